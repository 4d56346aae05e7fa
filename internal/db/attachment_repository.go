package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tOgg1/spark/internal/models"
)

// Attachment repository errors.
var (
	ErrAttachmentExists = errors.New("attachment already exists")
)

// AttachmentRepository handles attachment persistence.
type AttachmentRepository struct {
	db *DB
}

// NewAttachmentRepository creates a new AttachmentRepository.
func NewAttachmentRepository(db *DB) *AttachmentRepository {
	return &AttachmentRepository{db: db}
}

// Create inserts an attachment for an existing message.
func (r *AttachmentRepository) Create(ctx context.Context, att *models.Attachment) error {
	if att.ID == "" {
		att.ID = uuid.New().String()
	}
	if att.CreatedAt.IsZero() {
		att.CreatedAt = time.Now().UTC()
	} else {
		att.CreatedAt = att.CreatedAt.UTC()
	}
	if att.MimeType == "" {
		att.MimeType = models.MimeTypeForPath(att.Path)
	}
	if err := att.Validate(); err != nil {
		return fmt.Errorf("invalid attachment: %w", err)
	}

	return r.db.TransactionWithRetry(ctx, 0, 0, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM messages WHERE id = ?`, att.MessageID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrMessageNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to look up message: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO attachments (id, message_id, path, mime_type, aspect_ratio, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`,
			att.ID,
			att.MessageID,
			att.Path,
			att.MimeType,
			att.AspectRatio,
			att.CreatedAt.UnixNano(),
		)
		if err != nil {
			if isUniqueConstraintError(err) {
				return ErrAttachmentExists
			}
			return fmt.Errorf("failed to insert attachment: %w", err)
		}
		return nil
	})
}

// ListForMessages returns attachments grouped by message id, oldest first.
func (r *AttachmentRepository) ListForMessages(ctx context.Context, messageIDs []string) (map[string][]models.Attachment, error) {
	out := make(map[string][]models.Attachment)
	if len(messageIDs) == 0 {
		return out, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(messageIDs)), ",")
	args := make([]any, len(messageIDs))
	for i, id := range messageIDs {
		args[i] = id
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, message_id, path, mime_type, aspect_ratio, created_at
		FROM attachments
		WHERE message_id IN (`+placeholders+`)
		ORDER BY created_at ASC, rowid ASC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query attachments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			att       models.Attachment
			ratio     sql.NullFloat64
			createdAt int64
		)
		if err := rows.Scan(&att.ID, &att.MessageID, &att.Path, &att.MimeType, &ratio, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan attachment: %w", err)
		}
		if ratio.Valid {
			value := ratio.Float64
			att.AspectRatio = &value
		}
		att.CreatedAt = time.Unix(0, createdAt).UTC()
		out[att.MessageID] = append(out[att.MessageID], att)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate attachments: %w", err)
	}
	return out, nil
}
