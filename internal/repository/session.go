package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"eventboard/internal/model"
)

// SessionRepository stores opaque session tokens.
type SessionRepository struct {
	db *pgxpool.Pool
}

// NewSessionRepository constructs a SessionRepository.
func NewSessionRepository(db *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create stores a session token for a user.
func (r *SessionRepository) Create(ctx context.Context, token string, userID int64) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO sessions (token, user_id) VALUES ($1, $2)`,
		token, userID,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// FindUser resolves a session token to its account, or ErrNotFound.
func (r *SessionRepository) FindUser(ctx context.Context, token string) (*model.User, error) {
	var u model.User
	err := r.db.QueryRow(ctx,
		`SELECT u.id, u.email, u.password_hash, u.created_at
		 FROM sessions s
		 JOIN users u ON u.id = s.user_id
		 WHERE s.token = $1`,
		token,
	).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("resolve session: %w", err)
	}
	return &u, nil
}

// Delete revokes a session token. Deleting an unknown token is a no-op.
func (r *SessionRepository) Delete(ctx context.Context, token string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM sessions WHERE token = $1`, token)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
