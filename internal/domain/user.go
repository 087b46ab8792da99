package domain

import (
	"time"
	"unicode/utf8"
)

// Column widths of the users table, in characters.
const (
	MaxNameLength  = 120
	MaxEmailLength = 255
)

// User represents a journal account.
type User struct {
	ID           int64
	Name         string
	Email        string
	PasswordHash []byte
	CreatedAt    time.Time
}

// FitsColumns reports whether name and email fit the stored column widths.
func FitsColumns(name, email string) bool {
	return utf8.RuneCountInString(name) <= MaxNameLength && utf8.RuneCountInString(email) <= MaxEmailLength
}
