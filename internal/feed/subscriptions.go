package feed

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/tOgg1/spark/internal/events"
	"github.com/tOgg1/spark/internal/logging"
	"github.com/tOgg1/spark/internal/notify"
)

const notifyTimeout = 10 * time.Second

// SubscriptionState is the lifecycle state of the realtime subscriptions.
type SubscriptionState int

const (
	Unsubscribed SubscriptionState = iota
	Subscribing
	Subscribed
)

func (s SubscriptionState) String() string {
	switch s {
	case Subscribing:
		return "subscribing"
	case Subscribed:
		return "subscribed"
	default:
		return "unsubscribed"
	}
}

// session is one conversation's pair of subscriptions.
type session struct {
	conversationID string
	cancel         context.CancelFunc
	stops          []func()
	wg             sync.WaitGroup
	dropped        atomic.Bool
}

// Subscriptions routes realtime message and attachment inserts for one
// conversation into a Feed.
type Subscriptions struct {
	feed     *Feed
	realtime Realtime
	identity Identity
	notifier Notifier
	logger   zerolog.Logger

	mu      sync.Mutex
	state   SubscriptionState
	current *session
	epoch   uint64

	notifications sync.WaitGroup
}

// NewSubscriptions creates an idle subscription manager. notifier may be nil.
func NewSubscriptions(feed *Feed, realtime Realtime, identity Identity, notifier Notifier) *Subscriptions {
	return &Subscriptions{
		feed:     feed,
		realtime: realtime,
		identity: identity,
		notifier: notifier,
		logger:   logging.Component("subscriptions"),
	}
}

// State reports the lifecycle state. A dropped stream reads as Unsubscribed.
func (s *Subscriptions) State() SubscriptionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil && s.current.dropped.Load() {
		return Unsubscribed
	}
	return s.state
}

// ConversationID returns the subscribed conversation, if any.
func (s *Subscriptions) ConversationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return ""
	}
	return s.current.conversationID
}

// Open tears down any existing subscriptions and subscribes to message and
// attachment inserts for conversationID. Failures are not retried. State
// reads Subscribing until both channels are open. A concurrent Open or Close
// supersedes this one, which then returns ErrSuperseded.
func (s *Subscriptions) Open(ctx context.Context, conversationID string) error {
	if conversationID == "" {
		return ErrNoConversation
	}

	s.mu.Lock()
	s.teardownLocked()
	s.state = Subscribing
	s.epoch++
	epoch := s.epoch
	s.mu.Unlock()

	logger := logging.WithConversation(s.logger, conversationID)

	sessCtx, cancel := context.WithCancel(ctx)
	sess := &session{conversationID: conversationID, cancel: cancel}

	var messages, attachments <-chan events.Change
	var stopMessages, stopAttachments func()
	var g errgroup.Group
	g.Go(func() error {
		ch, stop, err := s.realtime.Subscribe(sessCtx, events.InsertsOn(events.TableMessages, conversationID))
		if err != nil {
			return &SubscriptionError{ConversationID: conversationID, Table: events.TableMessages, Err: err}
		}
		messages, stopMessages = ch, stop
		return nil
	})
	g.Go(func() error {
		ch, stop, err := s.realtime.Subscribe(sessCtx, events.InsertsOn(events.TableAttachments, conversationID))
		if err != nil {
			return &SubscriptionError{ConversationID: conversationID, Table: events.TableAttachments, Err: err}
		}
		attachments, stopAttachments = ch, stop
		return nil
	})
	err := g.Wait()

	abandon := func() {
		if stopMessages != nil {
			stopMessages()
		}
		if stopAttachments != nil {
			stopAttachments()
		}
		cancel()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.epoch != epoch {
		abandon()
		logger.Debug().Msg("realtime subscriptions superseded while opening")
		return ErrSuperseded
	}
	if err != nil {
		abandon()
		s.state = Unsubscribed
		logger.Warn().Err(err).Msg("realtime subscription failed")
		return err
	}

	sess.stops = []func(){stopMessages, stopAttachments}
	sess.wg.Add(1)
	go s.route(sessCtx, sess, messages, attachments)

	s.current = sess
	s.state = Subscribed
	logger.Debug().Msg("realtime subscriptions open")
	return nil
}

// Close tears down the subscriptions and waits for routing to stop.
func (s *Subscriptions) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epoch++
	s.teardownLocked()
}

func (s *Subscriptions) teardownLocked() {
	sess := s.current
	s.current = nil
	s.state = Unsubscribed
	if sess == nil {
		return
	}
	sess.cancel()
	for _, stop := range sess.stops {
		stop()
	}
	sess.wg.Wait()
	logger := logging.WithConversation(s.logger, sess.conversationID)
	logger.Debug().Msg("realtime subscriptions closed")
}

// route applies both streams on one goroutine, one change at a time. Message
// inserts already buffered are applied before an attachment insert, so an
// attachment published after its message is never treated as an orphan.
func (s *Subscriptions) route(ctx context.Context, sess *session, messages, attachments <-chan events.Change) {
	defer sess.wg.Done()
	for messages != nil || attachments != nil {
		select {
		case <-ctx.Done():
			return
		case change, ok := <-messages:
			if !ok {
				s.streamClosed(ctx, sess, events.TableMessages)
				messages = nil
				continue
			}
			s.onMessage(ctx, sess.conversationID, change)
		case change, ok := <-attachments:
			if !ok {
				s.streamClosed(ctx, sess, events.TableAttachments)
				attachments = nil
				continue
			}
			messages = s.drainMessages(ctx, sess, messages)
			s.onAttachment(ctx, sess.conversationID, change)
		}
	}
}

// drainMessages applies every buffered message insert without blocking. It
// returns nil once the stream has closed.
func (s *Subscriptions) drainMessages(ctx context.Context, sess *session, messages <-chan events.Change) <-chan events.Change {
	for messages != nil {
		select {
		case change, ok := <-messages:
			if !ok {
				s.streamClosed(ctx, sess, events.TableMessages)
				return nil
			}
			s.onMessage(ctx, sess.conversationID, change)
		default:
			return messages
		}
	}
	return nil
}

func (s *Subscriptions) streamClosed(ctx context.Context, sess *session, table events.Table) {
	if ctx.Err() != nil {
		return
	}
	sess.dropped.Store(true)
	err := &SubscriptionError{ConversationID: sess.conversationID, Table: table, Dropped: true}
	logger := logging.WithConversation(s.logger, sess.conversationID)
	logger.Warn().Err(err).Msg("realtime stream closed")
}

func (s *Subscriptions) onMessage(ctx context.Context, conversationID string, change events.Change) {
	msg, err := change.Message()
	if err != nil {
		s.logger.Warn().Err(err).Str("change_id", change.ID).Msg("ignoring malformed message insert")
		return
	}
	if msg.ConversationID != conversationID {
		return
	}

	s.feed.Apply(MessageInserted{Message: msg})
	s.maybeNotify(ctx, conversationID, msg.SenderID, msg.Text())
}

func (s *Subscriptions) onAttachment(ctx context.Context, conversationID string, change events.Change) {
	att, err := change.Attachment()
	if err != nil {
		s.logger.Warn().Err(err).Str("change_id", change.ID).Msg("ignoring malformed attachment insert")
		return
	}

	next := s.feed.Apply(AttachmentInserted{ConversationID: conversationID, Attachment: att})
	owner, found := next.Get(att.MessageID)
	if !found {
		logger := logging.WithConversation(s.logger, conversationID)
		logger.Debug().
			Str("attachment_id", att.ID).
			Str("message_id", att.MessageID).
			Int("held", next.HeldAttachments()).
			Msg("attachment arrived before its message")
	}

	senderID := change.SenderID
	if senderID == "" && found {
		senderID = owner.SenderID
	}
	s.maybeNotify(ctx, conversationID, senderID, "sent an attachment")
}

// maybeNotify dispatches a notification for inserts written by someone else.
// It never blocks the caller and never affects feed state.
func (s *Subscriptions) maybeNotify(ctx context.Context, conversationID, senderID, body string) {
	if s.notifier == nil || senderID == "" {
		return
	}
	currentUser, ok := s.identity.CurrentUserID()
	if !ok || senderID == currentUser {
		return
	}

	n := notify.Notification{
		RecipientID:    currentUser,
		SenderID:       senderID,
		ConversationID: conversationID,
		Title:          "New message",
		Body:           body,
	}

	s.notifications.Add(1)
	go func() {
		defer s.notifications.Done()
		notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
		defer cancel()
		if err := s.notifier.Notify(notifyCtx, n); err != nil {
			notifyErr := &NotificationError{ConversationID: conversationID, RecipientID: currentUser, Err: err}
			s.logger.Debug().Err(notifyErr).Msg("notification dispatch failed")
		}
	}()
}

// waitNotifications blocks until in-flight notifications finish.
func (s *Subscriptions) waitNotifications() {
	s.notifications.Wait()
}
