package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/splax/moodjournal/internal/domain"
	"github.com/splax/moodjournal/internal/repository"
)

const userColumns = `id, name, email, password_hash, created_at`

// CreateUser inserts a user.
func (r *Repository) CreateUser(ctx context.Context, user *domain.User) error {
	if user == nil {
		return repository.ErrInvalidArgument
	}
	email := normalizeEmail(user.Email)
	const query = `INSERT INTO users (name, email, password_hash, created_at)
		VALUES ($1, $2, $3, COALESCE($4, NOW()))
		RETURNING id, created_at`
	return r.inTx(ctx, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, query, user.Name, email, user.PasswordHash, nilTime(user.CreatedAt)).
			Scan(&user.ID, &user.CreatedAt); err != nil {
			return translateError(err)
		}
		user.Email = email
		return nil
	})
}

// GetUserByEmail fetches a user by email.
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return r.scanUser(r.pool.QueryRow(ctx, query, normalizeEmail(email)))
}

// GetUserByID retrieves a user by identifier.
func (r *Repository) GetUserByID(ctx context.Context, id int64) (*domain.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.scanUser(r.pool.QueryRow(ctx, query, id))
}

// CountUsers returns the number of registered users.
func (r *Repository) CountUsers(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(1) FROM users`).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// DeleteUser removes a user; owned entries go with it through ON DELETE CASCADE.
func (r *Repository) DeleteUser(ctx context.Context, id int64) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
		if err != nil {
			return translateError(err)
		}
		if tag.RowsAffected() == 0 {
			return repository.ErrNotFound
		}
		return nil
	})
}

func (r *Repository) scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.CreatedAt); err != nil {
		return nil, translateError(err)
	}
	return &u, nil
}
