package store

import (
	"strings"
	"time"
)

// MessageRole defines the role of a message in the conversation.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

const (
	// DefaultSessionName is the label a session carries until its first user message.
	DefaultSessionName = "New Chat"
	// CreatedLabelNew is the display label of a freshly created session.
	CreatedLabelNew = "Just now"

	nameLimit = 20
)

// Message is a single conversation entry.
type Message struct {
	ID      int64       `json:"id" yaml:"id"`
	Role    MessageRole `json:"role" yaml:"role"`
	Content string      `json:"content" yaml:"content"`
	IsCode  bool        `json:"is_code" yaml:"is_code"`
	Code    string      `json:"code,omitempty" yaml:"code,omitempty"`
	Output  string      `json:"output,omitempty" yaml:"output,omitempty"`
}

// Session is a named, ordered conversation.
type Session struct {
	ID           string    `json:"id" yaml:"id"`
	Name         string    `json:"name" yaml:"name"`
	Messages     []Message `json:"messages" yaml:"messages"`
	CreatedAt    time.Time `json:"created_at" yaml:"created_at"`
	CreatedLabel string    `json:"created_label" yaml:"created_label"`
}

// LastActivity returns the id of the newest message, or 0 for an empty session.
func (s *Session) LastActivity() int64 {
	if len(s.Messages) == 0 {
		return 0
	}
	return s.Messages[len(s.Messages)-1].ID
}

func (s *Session) clone() Session {
	c := *s
	c.Messages = make([]Message, len(s.Messages))
	copy(c.Messages, s.Messages)
	return c
}

// Summary provides sidebar metadata about a session.
type Summary struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	CreatedLabel string    `json:"created_label"`
	CreatedAt    time.Time `json:"created_at"`
	MessageCount int       `json:"message_count"`
	LastActivity int64     `json:"last_activity"`
}

// SessionName derives a display name from the first user message.
// Whitespace runs collapse to single spaces and the result is cut to
// 20 characters with a trailing ellipsis.
func SessionName(content string) string {
	name := strings.Join(strings.Fields(content), " ")
	if name == "" {
		return DefaultSessionName
	}
	r := []rune(name)
	if len(r) > nameLimit {
		return string(r[:nameLimit]) + "..."
	}
	return name
}
