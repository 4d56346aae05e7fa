package feed

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/tOgg1/spark/internal/logging"
)

// DefaultPageSize matches the page size of the message page RPC.
const DefaultPageSize = 20

// Paginator loads history into a Feed, newest page first.
type Paginator struct {
	feed     *Feed
	pager    Pager
	pageSize int
	logger   zerolog.Logger

	inFlight atomic.Bool

	mu             sync.Mutex
	conversationID string
	generation     uint64
	remaining      int
}

// NewPaginator creates a Paginator. A non-positive pageSize uses DefaultPageSize.
func NewPaginator(feed *Feed, pager Pager, pageSize int) *Paginator {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Paginator{
		feed:     feed,
		pager:    pager,
		pageSize: pageSize,
		logger:   logging.Component("paginator"),
	}
}

// PageSize returns the configured page size.
func (p *Paginator) PageSize() int { return p.pageSize }

// Remaining returns how many rows have not been fetched yet.
func (p *Paginator) Remaining() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.remaining
}

// HasMore reports whether older history is available.
func (p *Paginator) HasMore() bool {
	return p.Remaining() > 0
}

// LoadInitial fetches the newest page of conversationID and replaces the
// feed's contents with it. The feed is reset first when it holds another
// conversation.
func (p *Paginator) LoadInitial(ctx context.Context, conversationID string) error {
	if conversationID == "" {
		return ErrNoConversation
	}
	if p.feed.Snapshot().ConversationID() != conversationID {
		p.feed.Apply(Reset{ConversationID: conversationID})
	}
	generation := p.feed.Snapshot().Generation()

	p.mu.Lock()
	p.conversationID = conversationID
	p.generation = generation
	p.remaining = 0
	p.mu.Unlock()

	logger := logging.WithConversation(p.logger, conversationID)
	records, err := p.pager.FetchMessagePage(ctx, conversationID, 0)
	if err != nil {
		fetchErr := &FetchError{ConversationID: conversationID, Offset: 0, Err: err}
		logger.Warn().Err(err).Msg("initial page load failed")
		return fetchErr
	}

	p.feed.Apply(PageLoaded{
		ConversationID: conversationID,
		Generation:     generation,
		Records:        records,
		Replace:        true,
	})

	pageCount := 0
	if len(records) > 0 {
		pageCount = records[0].PageCount
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.generation != generation || p.conversationID != conversationID {
		logger.Debug().Msg("discarding initial page for a replaced conversation")
		return nil
	}
	p.remaining = max(0, pageCount-p.pageSize)
	logger.Debug().
		Int("records", len(records)).
		Int("page_count", pageCount).
		Int("remaining", p.remaining).
		Msg("initial page loaded")
	return nil
}

// LoadOlder fetches the next older page. It does nothing when history is
// exhausted or another load is still in flight, so it can be called on every
// scroll event that reaches the oldest loaded message.
func (p *Paginator) LoadOlder(ctx context.Context) error {
	_, err := p.loadOlder(ctx)
	return err
}

// loadOlder is LoadOlder that also reports whether a page was applied.
func (p *Paginator) loadOlder(ctx context.Context) (bool, error) {
	p.mu.Lock()
	conversationID := p.conversationID
	generation := p.generation
	remaining := p.remaining
	p.mu.Unlock()

	if conversationID == "" || remaining <= 0 {
		return false, nil
	}
	if !p.inFlight.CompareAndSwap(false, true) {
		return false, nil
	}
	defer p.inFlight.Store(false)

	return p.fetchOlder(ctx, conversationID, generation)
}

func (p *Paginator) fetchOlder(ctx context.Context, conversationID string, generation uint64) (bool, error) {
	p.mu.Lock()
	stale := p.generation != generation || p.remaining <= 0
	p.mu.Unlock()
	if stale {
		return false, nil
	}

	logger := logging.WithConversation(p.logger, conversationID)
	offset := p.feed.Snapshot().ConfirmedLen()
	records, err := p.pager.FetchMessagePage(ctx, conversationID, offset)
	if err != nil {
		logger.Warn().Err(err).Int("offset", offset).Msg("unable to load older messages")
		return false, &FetchError{ConversationID: conversationID, Offset: offset, Err: err}
	}

	p.feed.Apply(PageLoaded{
		ConversationID: conversationID,
		Generation:     generation,
		Records:        records,
	})

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.generation != generation {
		logger.Debug().Int("offset", offset).Msg("discarding older page for a replaced conversation")
		return false, nil
	}
	if len(records) == 0 {
		p.remaining = 0
	} else {
		p.remaining = max(0, p.remaining-p.pageSize)
	}
	logger.Debug().
		Int("offset", offset).
		Int("records", len(records)).
		Int("remaining", p.remaining).
		Msg("older page loaded")
	return true, nil
}

// Reset forgets the pagination cursor.
func (p *Paginator) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.conversationID = ""
	p.generation = 0
	p.remaining = 0
}
