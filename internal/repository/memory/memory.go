// Package memory provides an in-process store with the same semantics as the
// PostgreSQL repository. It backs tests and STORE_DRIVER=memory runs.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/splax/moodjournal/internal/domain"
	"github.com/splax/moodjournal/internal/repository"
)

// Store keeps users and entries in maps guarded by a mutex.
type Store struct {
	mu          sync.RWMutex
	users       map[int64]domain.User
	emails      map[string]int64
	entries     map[int64]domain.JournalEntry
	nextUserID  int64
	nextEntryID int64
	now         func() time.Time
}

var (
	_ repository.UserRepository  = (*Store)(nil)
	_ repository.EntryRepository = (*Store)(nil)
)

// New constructs an empty Store.
func New() *Store {
	return &Store{
		users:   make(map[int64]domain.User),
		emails:  make(map[string]int64),
		entries: make(map[int64]domain.JournalEntry),
		now:     time.Now,
	}
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error {
	return nil
}

// CreateUser inserts a user, rejecting duplicate emails case-insensitively.
func (s *Store) CreateUser(_ context.Context, user *domain.User) error {
	if user == nil {
		return repository.ErrInvalidArgument
	}
	email := strings.ToLower(strings.TrimSpace(user.Email))
	if email == "" || strings.TrimSpace(user.Name) == "" || len(user.PasswordHash) == 0 {
		return repository.ErrInvalidArgument
	}
	if !domain.FitsColumns(user.Name, email) {
		return repository.ErrInvalidArgument
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.emails[email]; taken {
		return repository.ErrConflict
	}
	s.nextUserID++
	stored := *user
	stored.ID = s.nextUserID
	stored.Email = email
	stored.PasswordHash = append([]byte(nil), user.PasswordHash...)
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = s.now().UTC()
	}
	s.users[stored.ID] = stored
	s.emails[email] = stored.ID

	user.ID = stored.ID
	user.Email = stored.Email
	user.CreatedAt = stored.CreatedAt
	return nil
}

// GetUserByEmail fetches a user by email.
func (s *Store) GetUserByEmail(_ context.Context, email string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.emails[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return nil, repository.ErrNotFound
	}
	u := s.users[id]
	return &u, nil
}

// GetUserByID retrieves a user by identifier.
func (s *Store) GetUserByID(_ context.Context, id int64) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

// CountUsers returns the number of registered users.
func (s *Store) CountUsers(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users), nil
}

// DeleteUser removes a user and cascades to its entries.
func (s *Store) DeleteUser(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	delete(s.users, id)
	delete(s.emails, u.Email)
	for entryID, e := range s.entries {
		if e.UserID == id {
			delete(s.entries, entryID)
		}
	}
	return nil
}

// CreateEntry inserts an entry owned by an existing user.
func (s *Store) CreateEntry(_ context.Context, entry *domain.JournalEntry) error {
	if entry == nil {
		return repository.ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[entry.UserID]; !ok {
		return repository.ErrNotFound
	}
	s.nextEntryID++
	stored := *entry
	stored.ID = s.nextEntryID
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = s.now().UTC()
	}
	s.entries[stored.ID] = stored

	entry.ID = stored.ID
	entry.CreatedAt = stored.CreatedAt
	return nil
}

// ListEntriesByUser returns at most limit entries for userID, newest first.
func (s *Store) ListEntriesByUser(_ context.Context, userID int64, limit int) ([]domain.JournalEntry, error) {
	s.mu.RLock()
	entries := make([]domain.JournalEntry, 0)
	for _, e := range s.entries {
		if e.UserID == userID {
			entries = append(entries, e)
		}
	}
	s.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].CreatedAt.After(entries[j].CreatedAt)
		}
		return entries[i].ID > entries[j].ID
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}
