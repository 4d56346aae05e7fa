package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Context remembers the conversation the CLI worked with last, so commands
// can omit it.
type Context struct {
	// ConversationID is the last opened conversation.
	ConversationID string `yaml:"conversation,omitempty"`
	// UserID is the user the conversation was opened as.
	UserID string `yaml:"user,omitempty"`
	// UpdatedAt is when the context was last modified.
	UpdatedAt time.Time `yaml:"updated_at,omitempty"`
}

// IsEmpty returns true if no conversation is remembered.
func (c *Context) IsEmpty() bool {
	return c.ConversationID == ""
}

// SetConversation records conversationID as the current conversation.
func (c *Context) SetConversation(conversationID, userID string) {
	c.ConversationID = conversationID
	c.UserID = userID
	c.UpdatedAt = time.Now()
}

// Clear forgets the conversation.
func (c *Context) Clear() {
	c.ConversationID = ""
	c.UserID = ""
	c.UpdatedAt = time.Now()
}

func (c *Context) String() string {
	if c.IsEmpty() {
		return "(no conversation)"
	}
	if c.UserID == "" {
		return "conversation:" + shortID(c.ConversationID)
	}
	return fmt.Sprintf("conversation:%s user:%s", shortID(c.ConversationID), c.UserID)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// ContextStore loads and saves the Context file.
type ContextStore struct {
	path string
	mu   sync.RWMutex
}

// NewContextStore creates a context store at path, or at
// ~/.config/spark/context.yaml when path is empty.
func NewContextStore(path string) *ContextStore {
	if path == "" {
		homeDir, _ := os.UserHomeDir()
		path = filepath.Join(homeDir, ".config", "spark", "context.yaml")
	}
	return &ContextStore{path: path}
}

// Path returns the context file path.
func (s *ContextStore) Path() string {
	return s.path
}

// Load reads the context from disk. A missing file yields an empty context.
func (s *ContextStore) Load() (*Context, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := &Context{}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return ctx, nil
		}
		return nil, fmt.Errorf("failed to read context file: %w", err)
	}
	if err := yaml.Unmarshal(data, ctx); err != nil {
		return nil, fmt.Errorf("failed to parse context file: %w", err)
	}
	return ctx, nil
}

// Save writes the context to disk.
func (s *ContextStore) Save(ctx *Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create context directory: %w", err)
	}
	data, err := yaml.Marshal(ctx)
	if err != nil {
		return fmt.Errorf("failed to serialize context: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write context file: %w", err)
	}
	return nil
}

// Clear removes the context file.
func (s *ContextStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove context file: %w", err)
	}
	return nil
}
