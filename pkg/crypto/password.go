package crypto

import (
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrEmptyPassword is returned when hashing a blank password.
	ErrEmptyPassword = errors.New("crypto: empty password")
	// ErrPasswordTooLong is returned for passwords bcrypt cannot represent (over 72 bytes).
	ErrPasswordTooLong = errors.New("crypto: password too long")
	// ErrPasswordMismatch is returned when a password does not match its hash.
	ErrPasswordMismatch = errors.New("crypto: password mismatch")
)

// HashPassword hashes plaintext using bcrypt. bcrypt embeds a random salt in every hash.
func HashPassword(plain string) ([]byte, error) {
	if strings.TrimSpace(plain) == "" {
		return nil, ErrEmptyPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return nil, ErrPasswordTooLong
	}
	return hash, err
}

// ComparePassword compares plaintext to hashed secret.
func ComparePassword(hash []byte, plain string) error {
	err := bcrypt.CompareHashAndPassword(hash, []byte(plain))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrPasswordMismatch
	}
	return err
}
