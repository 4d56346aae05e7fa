// Package backend is the hosted data service the feed talks to: paginated
// message reads, client-id message writes, attachment inserts and realtime
// insert subscriptions, backed by SQLite and a change broker.
package backend

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tOgg1/spark/internal/db"
	"github.com/tOgg1/spark/internal/events"
	"github.com/tOgg1/spark/internal/logging"
	"github.com/tOgg1/spark/internal/models"
)

// DefaultPageSize is the number of rows returned by FetchMessagePage.
const DefaultPageSize = 20

// ErrEmptyContent is returned when a message has no text.
var ErrEmptyContent = errors.New("message content is required")

// Option configures a Backend.
type Option func(*Backend)

// WithPageSize sets the page size of FetchMessagePage.
func WithPageSize(size int) Option {
	return func(b *Backend) {
		if size > 0 {
			b.pageSize = size
		}
	}
}

// WithClock overrides the commit clock.
func WithClock(now func() time.Time) Option {
	return func(b *Backend) {
		if now != nil {
			b.now = now
		}
	}
}

// Backend serves one user's view of the message store.
type Backend struct {
	messages    *db.MessageRepository
	attachments *db.AttachmentRepository
	tokens      *db.PushTokenRepository
	broker      events.Broker
	userID      string
	pageSize    int
	now         func() time.Time
	logger      zerolog.Logger
}

// New creates a Backend writing as userID.
func New(database *db.DB, broker events.Broker, userID string, opts ...Option) *Backend {
	b := &Backend{
		messages:    db.NewMessageRepository(database),
		attachments: db.NewAttachmentRepository(database),
		tokens:      db.NewPushTokenRepository(database),
		broker:      broker,
		userID:      userID,
		pageSize:    DefaultPageSize,
		now:         time.Now,
		logger:      logging.Component("backend"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// PageSize returns the page size of FetchMessagePage.
func (b *Backend) PageSize() int { return b.pageSize }

// CurrentUserID returns the user this backend writes as.
func (b *Backend) CurrentUserID() (string, bool) {
	return b.userID, b.userID != ""
}

// FetchMessagePage returns a newest-first page of a conversation.
func (b *Backend) FetchMessagePage(ctx context.Context, conversationID string, offset int) ([]models.Message, error) {
	if conversationID == "" {
		return nil, models.ErrInvalidConversation
	}
	page, err := b.messages.Page(ctx, conversationID, offset, b.pageSize)
	if err != nil {
		return nil, fmt.Errorf("fetch page at offset %d: %w", offset, err)
	}
	return page, nil
}

// SendMessage stores a message under the client-generated id and announces
// the insert to subscribers.
func (b *Backend) SendMessage(ctx context.Context, id, content, conversationID string) error {
	if strings.TrimSpace(content) == "" {
		return ErrEmptyContent
	}
	msg := models.Message{
		ID:             id,
		ConversationID: conversationID,
		SenderID:       b.userID,
		Content:        models.StringPtr(content),
		CreatedAt:      b.now().UTC(),
	}
	return b.InsertMessage(ctx, msg)
}

// InsertMessage stores msg as-is (sender included) and announces the insert.
func (b *Backend) InsertMessage(ctx context.Context, msg models.Message) error {
	if err := b.messages.Create(ctx, &msg); err != nil {
		return err
	}

	logger := logging.WithConversation(b.logger, msg.ConversationID)
	change, err := events.NewInsert(events.TableMessages, msg.ConversationID, msg.SenderID, msg)
	if err != nil {
		return err
	}
	if err := b.broker.Publish(ctx, change); err != nil {
		// The row is committed; subscribers will see it on their next page load.
		logger.Warn().Err(err).Str("message_id", msg.ID).Msg("failed to publish message insert")
		return nil
	}
	logger.Debug().Str("message_id", msg.ID).Msg("message stored")
	return nil
}

// AddAttachment stores an attachment for an existing message and announces
// the insert on the message's conversation.
func (b *Backend) AddAttachment(ctx context.Context, att models.Attachment) (models.Attachment, error) {
	parent, err := b.messages.Get(ctx, att.MessageID)
	if err != nil {
		return models.Attachment{}, err
	}
	if att.CreatedAt.IsZero() {
		att.CreatedAt = b.now().UTC()
	}
	if err := b.attachments.Create(ctx, &att); err != nil {
		return models.Attachment{}, err
	}

	logger := logging.WithConversation(b.logger, parent.ConversationID)
	change, err := events.NewInsert(events.TableAttachments, parent.ConversationID, parent.SenderID, att)
	if err != nil {
		return att, err
	}
	if err := b.broker.Publish(ctx, change); err != nil {
		logger.Warn().Err(err).Str("attachment_id", att.ID).Msg("failed to publish attachment insert")
		return att, nil
	}
	logger.Debug().Str("attachment_id", att.ID).Str("message_id", att.MessageID).Msg("attachment stored")
	return att, nil
}

// Subscribe opens a filtered insert subscription.
func (b *Backend) Subscribe(ctx context.Context, filter events.Filter) (<-chan events.Change, func(), error) {
	return b.broker.Subscribe(ctx, filter)
}

// RegisterPushToken stores the device token for userID.
func (b *Backend) RegisterPushToken(ctx context.Context, userID, token string) error {
	if err := b.tokens.Upsert(ctx, userID, token); err != nil {
		return err
	}
	b.logger.Info().Str("user_id", userID).Str("token", logging.Redact(token)).Msg("push token registered")
	return nil
}

// PushToken returns the device token of userID, or "" when none is registered.
func (b *Backend) PushToken(ctx context.Context, userID string) (string, error) {
	return b.tokens.Get(ctx, userID)
}
