// Package types provides core types used across the autoflow service.
// This package has ZERO dependencies on other autoflow packages to avoid circular imports.
package types

import (
	"fmt"
	"time"
)

// Role represents the role of a message participant.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// IsConversational reports whether the role may appear in conversation history.
func (r Role) IsConversational() bool {
	return r == RoleUser || r == RoleAssistant
}

// Message represents a conversation message. Messages are never mutated after
// they are appended to a history.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// NewMessage creates a new message with the given role and content.
func NewMessage(role Role, content string) Message {
	return Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string) Message {
	return NewMessage(RoleUser, content)
}

// NewAssistantMessage creates a new assistant message.
func NewAssistantMessage(content string) Message {
	return NewMessage(RoleAssistant, content)
}

// Validate checks that the message can be stored in a conversation history.
func (m Message) Validate() error {
	if !m.Role.IsConversational() {
		return NewValidationError(fmt.Sprintf("invalid message role %q", m.Role))
	}
	return nil
}
