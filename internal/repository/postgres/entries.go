package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/splax/moodjournal/internal/domain"
	"github.com/splax/moodjournal/internal/repository"
)

// CreateEntry inserts a journal entry for an existing user.
func (r *Repository) CreateEntry(ctx context.Context, entry *domain.JournalEntry) error {
	if entry == nil {
		return repository.ErrInvalidArgument
	}
	const query = `INSERT INTO journal_entries (user_id, text, emotion, score, created_at)
		VALUES ($1, $2, $3, $4, COALESCE($5, NOW()))
		RETURNING id, created_at`
	return r.inTx(ctx, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, query, entry.UserID, entry.Text, entry.Emotion, entry.Score, nilTime(entry.CreatedAt)).
			Scan(&entry.ID, &entry.CreatedAt); err != nil {
			return translateError(err)
		}
		return nil
	})
}

// ListEntriesByUser returns the newest entries owned by userID.
func (r *Repository) ListEntriesByUser(ctx context.Context, userID int64, limit int) ([]domain.JournalEntry, error) {
	const query = `SELECT id, user_id, text, emotion, score, created_at
		FROM journal_entries
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`
	rows, err := r.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.JournalEntry, 0)
	for rows.Next() {
		var e domain.JournalEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Text, &e.Emotion, &e.Score, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func nilTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}
