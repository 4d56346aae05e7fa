package feed

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tOgg1/spark/internal/logging"
	"github.com/tOgg1/spark/internal/models"
)

// Sender inserts provisional messages into a Feed and writes them in the
// background. The client-generated id becomes the durable id.
type Sender struct {
	feed     *Feed
	writer   Writer
	identity Identity
	logger   zerolog.Logger

	newID func() string
	now   func() time.Time

	wg sync.WaitGroup
}

// NewSender creates a Sender.
func NewSender(feed *Feed, writer Writer, identity Identity) *Sender {
	return &Sender{
		feed:     feed,
		writer:   writer,
		identity: identity,
		logger:   logging.Component("sender"),
		newID:    uuid.NewString,
		now:      time.Now,
	}
}

// Send inserts a pending message at the front of the feed and writes it
// asynchronously. The returned channel receives nil on success or a
// *SendError after the pending message has been removed. It is buffered and
// may be ignored.
func (s *Sender) Send(ctx context.Context, conversationID, content string) (string, <-chan error, error) {
	if conversationID == "" {
		return "", nil, ErrNoConversation
	}
	if strings.TrimSpace(content) == "" {
		return "", nil, ErrEmptyMessage
	}
	senderID, ok := s.identity.CurrentUserID()
	if !ok {
		return "", nil, ErrNoCurrentUser
	}

	id := s.newID()
	s.feed.Apply(MessageInserted{Message: models.Message{
		ID:             id,
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        models.StringPtr(content),
		CreatedAt:      s.now().UTC(),
		Pending:        true,
	}})

	done := make(chan error, 1)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		done <- s.write(ctx, id, content, conversationID)
		close(done)
	}()
	return id, done, nil
}

func (s *Sender) write(ctx context.Context, id, content, conversationID string) error {
	logger := logging.WithConversation(s.logger, conversationID).With().Str("message_id", id).Logger()

	if err := s.writer.SendMessage(ctx, id, content, conversationID); err != nil {
		s.feed.Apply(MessageRemoved{ConversationID: conversationID, ID: id})
		logger.Warn().Err(err).Msg("send failed, pending message removed")
		return &SendError{ConversationID: conversationID, MessageID: id, Err: err}
	}

	// The ack carries no timestamp. The realtime echo, or the next page
	// load, brings the committed time.
	s.feed.Apply(MessageConfirmed{ConversationID: conversationID, ID: id})
	logger.Debug().Msg("message sent")
	return nil
}

// Wait blocks until all in-flight writes have finished.
func (s *Sender) Wait() {
	s.wg.Wait()
}
