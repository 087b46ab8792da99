package repository

import (
	"context"

	"github.com/splax/moodjournal/internal/domain"
)

// UserRepository persists users. Emails are stored and looked up lowercased.
type UserRepository interface {
	// CreateUser inserts the user and fills ID and CreatedAt. A duplicate email
	// returns ErrConflict and leaves the store unchanged.
	CreateUser(ctx context.Context, user *domain.User) error
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	GetUserByID(ctx context.Context, id int64) (*domain.User, error)
	// CountUsers is reported at startup.
	CountUsers(ctx context.Context) (int, error)
	// DeleteUser removes the user and every entry it owns. No route exposes
	// account deletion; it exists for operators and for cascade tests.
	DeleteUser(ctx context.Context, id int64) error
}

// EntryRepository persists journal entries.
type EntryRepository interface {
	// CreateEntry inserts the entry and fills ID (and CreatedAt when zero).
	// A missing owner returns ErrNotFound.
	CreateEntry(ctx context.Context, entry *domain.JournalEntry) error
	// ListEntriesByUser returns at most limit entries, newest first.
	ListEntriesByUser(ctx context.Context, userID int64, limit int) ([]domain.JournalEntry, error)
}
