// Package feed implements the realtime direct-message feed: an ordered
// message store fed by page loads, realtime inserts and optimistic sends.
package feed

import (
	"iter"
	"time"

	"github.com/tOgg1/spark/internal/models"
)

// State is an immutable snapshot of one conversation's messages.
//
// Every transition returns a new State computed from the previous one;
// published snapshots are never mutated, so a renderer may iterate one while
// the next event is being applied.
type State struct {
	conversationID string
	generation     uint64
	version        uint64

	// order holds message ids newest-first.
	order    []string
	messages map[string]models.Message

	policy  OrphanPolicy
	orphans map[string][]models.Attachment
}

// NewState returns an empty state for conversationID.
func NewState(conversationID string, policy OrphanPolicy) State {
	return State{
		conversationID: conversationID,
		messages:       map[string]models.Message{},
		orphans:        map[string][]models.Attachment{},
		policy:         policy,
	}
}

// ConversationID returns the conversation the state belongs to.
func (s State) ConversationID() string { return s.conversationID }

// Generation increments every time the feed is reset to a conversation.
func (s State) Generation() uint64 { return s.generation }

// Version increments on every transition that changed the state.
func (s State) Version() uint64 { return s.version }

// Len returns the number of messages held.
func (s State) Len() int { return len(s.order) }

// ConfirmedLen counts messages the backend knows about (not pending).
func (s State) ConfirmedLen() int {
	n := 0
	for _, id := range s.order {
		if !s.messages[id].Pending {
			n++
		}
	}
	return n
}

// Has reports whether id is known.
func (s State) Has(id string) bool {
	_, ok := s.messages[id]
	return ok
}

// Get returns a copy of the message with id.
func (s State) Get(id string) (models.Message, bool) {
	msg, ok := s.messages[id]
	if !ok {
		return models.Message{}, false
	}
	return msg.Clone(), true
}

// IDs returns the order list, newest-first.
func (s State) IDs() []string {
	return append([]string(nil), s.order...)
}

// HeldAttachments returns how many attachments wait for their message.
func (s State) HeldAttachments() int {
	n := 0
	for _, held := range s.orphans {
		n += len(held)
	}
	return n
}

// Derive yields the messages newest-first. The sequence is finite and may be
// ranged over any number of times.
func (s State) Derive() iter.Seq[models.Message] {
	return func(yield func(models.Message) bool) {
		for _, id := range s.order {
			if !yield(s.messages[id].Clone()) {
				return
			}
		}
	}
}

// Oldest yields the messages oldest-first, the order a chat transcript is read.
func (s State) Oldest() iter.Seq[models.Message] {
	return func(yield func(models.Message) bool) {
		for i := len(s.order) - 1; i >= 0; i-- {
			if !yield(s.messages[s.order[i]].Clone()) {
				return
			}
		}
	}
}

// LoadPage merges a fetched page. With replace the state becomes exactly the
// given records in server order; otherwise unseen ids are appended after the
// known (newer) ones and known ids are left untouched.
func (s State) LoadPage(records []models.Message, replace bool) State {
	next := s.fork(replace)
	if replace {
		next.order = make([]string, 0, len(records))
		next.messages = make(map[string]models.Message, len(records))
	} else {
		next.order = append(make([]string, 0, len(s.order)+len(records)), s.order...)
	}

	changed := replace
	for _, record := range records {
		if record.ID == "" {
			continue
		}
		if _, ok := next.messages[record.ID]; ok {
			continue
		}
		next.messages[record.ID] = next.adoptOrphans(record.Clone())
		next.order = append(next.order, record.ID)
		changed = true
	}

	if !changed {
		return s
	}
	next.version++
	return next
}

// InsertRealtime prepends a newly committed (or optimistic) message.
// Known ids keep their position, which absorbs duplicate deliveries. The
// committed echo of a pending send confirms it with the echo's CreatedAt.
func (s State) InsertRealtime(record models.Message) State {
	if record.ID == "" {
		return s
	}
	if s.Has(record.ID) {
		if record.Pending {
			return s
		}
		return s.Confirm(record.ID, record.CreatedAt)
	}

	next := s.fork(false)
	next.messages[record.ID] = next.adoptOrphans(record.Clone())
	order := make([]string, 0, len(s.order)+1)
	order = append(order, record.ID)
	next.order = append(order, s.order...)
	next.version++
	return next
}

// Remove deletes id from the map and the order list.
func (s State) Remove(id string) State {
	if !s.Has(id) {
		return s
	}

	next := s.fork(false)
	delete(next.messages, id)
	order := make([]string, 0, len(s.order))
	for _, existing := range s.order {
		if existing != id {
			order = append(order, existing)
		}
	}
	next.order = order
	next.version++
	return next
}

// Confirm clears the pending marker of an acknowledged optimistic message.
func (s State) Confirm(id string, createdAt time.Time) State {
	msg, ok := s.messages[id]
	if !ok || !msg.Pending {
		return s
	}

	next := s.fork(false)
	msg = msg.Clone()
	msg.Pending = false
	if !createdAt.IsZero() {
		msg.CreatedAt = createdAt
	}
	next.messages[id] = msg
	next.version++
	return next
}

// fork copies the containers so the receiver stays untouched. The order
// slice is shared and must be reallocated before it is changed.
func (s State) fork(skipMessages bool) State {
	next := s
	if !skipMessages {
		next.messages = make(map[string]models.Message, len(s.messages)+1)
		for id, msg := range s.messages {
			next.messages[id] = msg
		}
	}
	next.orphans = make(map[string][]models.Attachment, len(s.orphans))
	for id, held := range s.orphans {
		next.orphans[id] = held
	}
	return next
}
