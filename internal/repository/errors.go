package repository

import "errors"

var (
	// ErrNotFound indicates an entity was not located.
	ErrNotFound = errors.New("repository: not found")
	// ErrConflict indicates a uniqueness constraint was violated.
	ErrConflict = errors.New("repository: conflict")
	// ErrInvalidArgument indicates the entity was rejected by a store constraint.
	ErrInvalidArgument = errors.New("repository: invalid argument")
)
