package events

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

const defaultSubscribeBuffer = 256

// Broker publishes changes and streams them to filtered subscribers.
type Broker interface {
	// Publish delivers a change to every matching subscriber.
	Publish(ctx context.Context, change Change) error

	// Subscribe streams matching changes until cancel is called or ctx ends.
	// The returned channel is closed once the subscription is torn down.
	Subscribe(ctx context.Context, filter Filter) (<-chan Change, func(), error)
}

// MemoryBroker implements Broker using in-process pub/sub.
type MemoryBroker struct {
	mu            sync.RWMutex
	subscriptions map[string]*subscription
	buffer        int
	closed        bool
}

// MemoryOption configures a MemoryBroker.
type MemoryOption func(*MemoryBroker)

// WithBuffer sets the per-subscription channel buffer.
func WithBuffer(size int) MemoryOption {
	return func(b *MemoryBroker) {
		if size > 0 {
			b.buffer = size
		}
	}
}

// NewMemoryBroker creates a new in-memory broker.
func NewMemoryBroker(opts ...MemoryOption) *MemoryBroker {
	b := &MemoryBroker{
		subscriptions: make(map[string]*subscription),
		buffer:        defaultSubscribeBuffer,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// subscription represents an active change subscription.
type subscription struct {
	id     string
	filter Filter
	ch     chan Change
	done   chan struct{}
	once   sync.Once

	mu     sync.RWMutex
	closed bool
}

func (s *subscription) deliver(ctx context.Context, change Change) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil
	}
	select {
	case s.ch <- change:
		return nil
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *subscription) close() {
	s.once.Do(func() {
		close(s.done)
		s.mu.Lock()
		s.closed = true
		close(s.ch)
		s.mu.Unlock()
	})
}

// Publish sends a change to all matching subscribers.
// It blocks while a subscriber's buffer is full.
func (b *MemoryBroker) Publish(ctx context.Context, change Change) error {
	if change.Table == "" {
		return ErrInvalidChange
	}

	// Get matching subscriptions under read lock
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrBrokerClosed
	}
	var targets []*subscription
	for _, sub := range b.subscriptions {
		if sub.filter.Matches(change) {
			targets = append(targets, sub)
		}
	}
	b.mu.RUnlock()

	// Deliver outside the broker lock so a slow subscriber cannot block Unsubscribe.
	for _, sub := range targets {
		if err := sub.deliver(ctx, change); err != nil {
			return err
		}
	}
	return nil
}

// Subscribe registers a filtered subscription.
func (b *MemoryBroker) Subscribe(ctx context.Context, filter Filter) (<-chan Change, func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	sub := &subscription{
		id:     uuid.NewString(),
		filter: filter,
		ch:     make(chan Change, b.buffer),
		done:   make(chan struct{}),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, nil, ErrBrokerClosed
	}
	b.subscriptions[sub.id] = sub
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		delete(b.subscriptions, sub.id)
		b.mu.Unlock()
		sub.close()
	}

	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-sub.done:
		}
	}()

	return sub.ch, cancel, nil
}

// SubscriberCount returns the number of active subscribers.
func (b *MemoryBroker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscriptions)
}

// Close tears down all subscriptions and rejects further use.
func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	subs := b.subscriptions
	b.subscriptions = make(map[string]*subscription)
	b.closed = true
	b.mu.Unlock()

	for _, sub := range subs {
		sub.close()
	}
	return nil
}

// Errors for broker operations.
var (
	ErrInvalidChange = &BrokerError{Message: "change table is required"}
	ErrBrokerClosed  = &BrokerError{Message: "broker is closed"}
	ErrInvalidFilter = &BrokerError{Message: "filter table is required"}
)

// BrokerError represents an error from broker operations.
type BrokerError struct {
	Message string
}

func (e *BrokerError) Error() string {
	return e.Message
}
