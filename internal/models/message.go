// Package models defines the records exchanged between the feed and the backend.
package models

import (
	"errors"
	"strings"
	"time"
)

// Message validation errors.
var (
	ErrInvalidMessageID    = errors.New("message id is required")
	ErrInvalidConversation = errors.New("conversation id is required")
	ErrInvalidSender       = errors.New("sender id is required")
)

// Message is a single direct message in a conversation.
//
// A message with nil content and no attachments is valid while an
// attachment-only send is still in flight.
type Message struct {
	// ID is unique within a conversation. Optimistic sends generate it client side.
	ID string `json:"id"`

	// ConversationID groups the message with its conversation.
	ConversationID string `json:"conversation_id"`

	// SenderID is the user that wrote the message.
	SenderID string `json:"sender_id"`

	// Content is the text body; nil for attachment-only messages.
	Content *string `json:"content"`

	// CreatedAt is the server commit time, or the local send time while Pending.
	CreatedAt time.Time `json:"created_at"`

	// Attachments are ordered by arrival.
	Attachments []Attachment `json:"attachments,omitempty"`

	// PageCount is the conversation's total row count when the page holding
	// this record was fetched. Zero for realtime and optimistic records.
	PageCount int `json:"page_count,omitempty"`

	// Pending marks an optimistic record that the backend has not acknowledged.
	Pending bool `json:"-"`
}

// Text returns the content or an empty string.
func (m Message) Text() string {
	if m.Content == nil {
		return ""
	}
	return *m.Content
}

// HasAttachment reports whether an attachment with id is already present.
func (m Message) HasAttachment(id string) bool {
	for _, att := range m.Attachments {
		if att.ID == id {
			return true
		}
	}
	return false
}

// Clone returns a deep copy safe to hand to another goroutine.
func (m Message) Clone() Message {
	out := m
	if m.Content != nil {
		content := *m.Content
		out.Content = &content
	}
	if len(m.Attachments) > 0 {
		out.Attachments = make([]Attachment, len(m.Attachments))
		for i, att := range m.Attachments {
			out.Attachments[i] = att.Clone()
		}
	} else {
		out.Attachments = nil
	}
	return out
}

// Validate checks the fields a backend write requires.
func (m Message) Validate() error {
	validation := &ValidationErrors{}
	if strings.TrimSpace(m.ID) == "" {
		validation.Add("id", ErrInvalidMessageID)
	}
	if strings.TrimSpace(m.ConversationID) == "" {
		validation.Add("conversation_id", ErrInvalidConversation)
	}
	if strings.TrimSpace(m.SenderID) == "" {
		validation.Add("sender_id", ErrInvalidSender)
	}
	for i, att := range m.Attachments {
		validation.Add(attachmentField(i), att.Validate())
	}
	return validation.Err()
}

// StringPtr returns a pointer to s, or nil when s is empty.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
