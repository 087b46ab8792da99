package journal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/splax/moodjournal/internal/classifier"
	"github.com/splax/moodjournal/internal/domain"
	"github.com/splax/moodjournal/internal/repository"
)

// ListLimit caps the number of entries returned by List.
const ListLimit = 100

var (
	// ErrEmptyText indicates the submitted text was blank.
	ErrEmptyText = errors.New("text is required")
	// ErrUserNotFound indicates the owner does not exist.
	ErrUserNotFound = errors.New("user not found")
)

// Service classifies and stores journal entries.
type Service struct {
	entries    repository.EntryRepository
	classifier classifier.Classifier
	logger     *slog.Logger
	now        func() time.Time
}

// New constructs a journal service. A nil classifier always yields the fallback pair.
func New(entries repository.EntryRepository, c classifier.Classifier, logger *slog.Logger) Service {
	if c == nil {
		c = classifier.Fallback()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return Service{entries: entries, classifier: c, logger: logger, now: time.Now}
}

// Create classifies text and stores it for userID.
func (s Service) Create(ctx context.Context, userID int64, text string) (*domain.JournalEntry, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyText
	}
	if userID <= 0 {
		return nil, ErrUserNotFound
	}
	label, score := s.classifier.Classify(ctx, text)
	if !domain.IsEmotion(label) || math.IsNaN(score) {
		s.logger.Warn("classifier returned an unknown label, using fallback", "label", label)
		label, score = classifier.FallbackLabel, classifier.FallbackScore
	}
	score = math.Min(math.Max(score, 0), 1)
	entry := &domain.JournalEntry{
		UserID:    userID,
		Text:      text,
		Emotion:   label,
		Score:     score,
		CreatedAt: s.now().UTC(),
	}
	if err := s.entries.CreateEntry(ctx, entry); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("store entry: %w", err)
	}
	s.logger.Info("journal entry created", "entry_id", entry.ID, "user_id", userID, "emotion", entry.Emotion)
	return entry, nil
}

// List returns the newest entries owned by userID. Unknown owners get an empty list.
func (s Service) List(ctx context.Context, userID int64) ([]domain.JournalEntry, error) {
	if userID <= 0 {
		return []domain.JournalEntry{}, nil
	}
	entries, err := s.entries.ListEntriesByUser(ctx, userID, ListLimit)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	if entries == nil {
		entries = []domain.JournalEntry{}
	}
	return entries, nil
}
