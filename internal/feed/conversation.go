package feed

import (
	"context"
	"errors"
	"iter"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tOgg1/spark/internal/logging"
	"github.com/tOgg1/spark/internal/models"
)

// Config tunes a Conversation.
type Config struct {
	PageSize     int
	OrphanPolicy OrphanPolicy
}

// Deps are the collaborators a Conversation talks to. Notifier may be nil.
type Deps struct {
	Pager    Pager
	Writer   Writer
	Realtime Realtime
	Identity Identity
	Notifier Notifier
}

// Conversation is the controller behind one conversation view. It owns the
// feed and wires pagination, realtime subscriptions and optimistic sends to it.
//
// Fetch and subscribe failures do not cross this boundary: they are logged,
// the view degrades to whatever data it has, and the last one is kept for Err.
type Conversation struct {
	feed      *Feed
	paginator *Paginator
	subs      *Subscriptions
	sender    *Sender
	logger    zerolog.Logger

	mu             sync.Mutex
	conversationID string
	closed         bool
	err            error
}

// NewConversation creates a controller with no open conversation.
func NewConversation(cfg Config, deps Deps) *Conversation {
	identity := deps.Identity
	if identity == nil {
		identity = StaticIdentity("")
	}
	feed := NewFeed(cfg.OrphanPolicy)
	return &Conversation{
		feed:      feed,
		paginator: NewPaginator(feed, deps.Pager, cfg.PageSize),
		subs:      NewSubscriptions(feed, deps.Realtime, identity, deps.Notifier),
		sender:    NewSender(feed, deps.Writer, identity),
		logger:    logging.Component("conversation"),
	}
}

// Open switches the view to conversationID: the feed is reset, the previous
// subscriptions are closed, the newest page is loaded and realtime inserts
// are subscribed. Only caller errors are returned; see Err for the rest.
func (c *Conversation) Open(ctx context.Context, conversationID string) error {
	if conversationID == "" {
		return ErrNoConversation
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}

	c.conversationID = conversationID
	c.err = nil

	c.feed.Apply(Reset{ConversationID: conversationID})
	c.paginator.Reset()
	c.subs.Close()

	if err := c.paginator.LoadInitial(ctx, conversationID); err != nil {
		c.err = err
	}
	if err := c.subs.Open(ctx, conversationID); err != nil {
		c.err = err
	}

	logger := logging.WithConversation(c.logger, conversationID)
	logger.Debug().
		Int("messages", c.feed.Snapshot().Len()).
		Int("remaining", c.paginator.Remaining()).
		Str("subscription", c.subs.State().String()).
		Msg("conversation opened")
	return nil
}

// LoadOlder fetches the next older page if one exists and no other load is
// running. It is safe to call on every scroll event. A successful load clears
// an earlier fetch failure.
func (c *Conversation) LoadOlder(ctx context.Context) {
	loaded, err := c.paginator.loadOlder(ctx)
	switch {
	case err != nil:
		c.setErr(err)
	case loaded:
		c.clearFetchErr()
	}
}

// Send inserts content as a pending message and writes it in the background.
func (c *Conversation) Send(ctx context.Context, content string) (string, <-chan error, error) {
	c.mu.Lock()
	conversationID, closed := c.conversationID, c.closed
	c.mu.Unlock()

	if closed {
		return "", nil, ErrClosed
	}
	return c.sender.Send(ctx, conversationID, content)
}

// Messages yields the current messages, newest first.
func (c *Conversation) Messages() iter.Seq[models.Message] {
	return c.feed.Snapshot().Derive()
}

// Snapshot returns the current feed state.
func (c *Conversation) Snapshot() State {
	return c.feed.Snapshot()
}

// HasMore reports whether older history can be loaded.
func (c *Conversation) HasMore() bool {
	return c.paginator.HasMore()
}

// Remaining returns how many older messages have not been loaded.
func (c *Conversation) Remaining() int {
	return c.paginator.Remaining()
}

// ConversationID returns the open conversation, or "".
func (c *Conversation) ConversationID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conversationID
}

// Updates signals when the feed changes.
func (c *Conversation) Updates() <-chan struct{} {
	return c.feed.Updates()
}

// SubscriptionState reports the realtime subscription state.
func (c *Conversation) SubscriptionState() SubscriptionState {
	return c.subs.State()
}

// Err returns the last fetch or subscribe failure since Open.
func (c *Conversation) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Wait blocks until pending writes and notifications have finished.
func (c *Conversation) Wait() {
	c.sender.Wait()
	c.subs.waitNotifications()
}

// Close tears down the realtime subscriptions. Pending writes still finish.
func (c *Conversation) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.subs.Close()
	c.paginator.Reset()
}

func (c *Conversation) clearFetchErr() {
	c.mu.Lock()
	defer c.mu.Unlock()
	var fetchErr *FetchError
	if errors.As(c.err, &fetchErr) {
		c.err = nil
	}
}

func (c *Conversation) setErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}
