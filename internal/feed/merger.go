package feed

import (
	"fmt"
	"strings"

	"github.com/tOgg1/spark/internal/models"
)

// OrphanPolicy decides what happens to an attachment whose message is not in
// the store yet.
type OrphanPolicy int

const (
	// OrphanDrop discards the attachment. The backend gives no guarantee that
	// the message insert is delivered first, so this can lose attachments.
	OrphanDrop OrphanPolicy = iota

	// OrphanHold keeps the attachment until its message is loaded or inserted.
	OrphanHold
)

func (p OrphanPolicy) String() string {
	switch p {
	case OrphanHold:
		return "hold"
	default:
		return "drop"
	}
}

// ParseOrphanPolicy parses "drop" or "hold".
func ParseOrphanPolicy(value string) (OrphanPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "drop":
		return OrphanDrop, nil
	case "hold":
		return OrphanHold, nil
	default:
		return OrphanDrop, fmt.Errorf("unknown orphan policy %q (want drop or hold)", value)
	}
}

// Attach folds an attachment into its owning message. Attachments already
// present (by id) are ignored. The boolean reports whether the owning
// message was found.
func (s State) Attach(att models.Attachment) (State, bool) {
	if att.ID == "" || att.MessageID == "" {
		return s, false
	}

	msg, ok := s.messages[att.MessageID]
	if !ok {
		if s.policy != OrphanHold || s.holds(att) {
			return s, false
		}
		next := s.fork(true)
		held := s.orphans[att.MessageID]
		next.orphans[att.MessageID] = append(append([]models.Attachment(nil), held...), att.Clone())
		next.version++
		return next, false
	}

	if msg.HasAttachment(att.ID) {
		return s, true
	}

	next := s.fork(false)
	next.messages[att.MessageID] = withAttachment(msg, att)
	next.version++
	return next, true
}

func (s State) holds(att models.Attachment) bool {
	for _, held := range s.orphans[att.MessageID] {
		if held.ID == att.ID {
			return true
		}
	}
	return false
}

// adoptOrphans moves held attachments onto a message entering the store.
// The receiver must already be forked.
func (s *State) adoptOrphans(msg models.Message) models.Message {
	held, ok := s.orphans[msg.ID]
	if !ok {
		return msg
	}
	delete(s.orphans, msg.ID)
	for _, att := range held {
		if !msg.HasAttachment(att.ID) {
			msg = withAttachment(msg, att)
		}
	}
	return msg
}

func withAttachment(msg models.Message, att models.Attachment) models.Message {
	attachments := make([]models.Attachment, 0, len(msg.Attachments)+1)
	attachments = append(attachments, msg.Attachments...)
	msg.Attachments = append(attachments, att.Clone())
	return msg
}
