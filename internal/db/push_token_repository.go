package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidPushToken is returned for empty users or tokens.
var ErrInvalidPushToken = errors.New("user id and token are required")

// PushTokenRepository stores one device push token per user.
type PushTokenRepository struct {
	db *DB
}

// NewPushTokenRepository creates a new PushTokenRepository.
func NewPushTokenRepository(db *DB) *PushTokenRepository {
	return &PushTokenRepository{db: db}
}

// Upsert stores token for userID, replacing any previous token.
func (r *PushTokenRepository) Upsert(ctx context.Context, userID, token string) error {
	userID = strings.TrimSpace(userID)
	token = strings.TrimSpace(token)
	if userID == "" || token == "" {
		return ErrInvalidPushToken
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO push_tokens (user_id, token, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET token = excluded.token, updated_at = excluded.updated_at
	`, userID, token, time.Now().UTC().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to store push token: %w", err)
	}
	return nil
}

// Get returns the token for userID, or "" when none is registered.
func (r *PushTokenRepository) Get(ctx context.Context, userID string) (string, error) {
	var token string
	err := r.db.QueryRowContext(ctx, `SELECT token FROM push_tokens WHERE user_id = ?`, userID).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read push token: %w", err)
	}
	return token, nil
}

// Delete forgets the token for userID.
func (r *PushTokenRepository) Delete(ctx context.Context, userID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM push_tokens WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("failed to delete push token: %w", err)
	}
	return nil
}
