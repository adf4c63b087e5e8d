// Package types provides core types used across captain.
// This package has ZERO dependencies on other captain packages to avoid circular imports.
package types

import (
	"time"
)

// Role represents the role of a message participant.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ImageContent represents image data for multimodal messages.
type ImageContent struct {
	Type      string `json:"type"`                 // "base64"
	MediaType string `json:"media_type,omitempty"` // e.g. "image/jpeg"
	Data      string `json:"data,omitempty"`       // base64 encoded
}

// Message represents a conversation message.
//
// A message carrying only Content is plain text. A message carrying Images is
// multi-content: providers render the images first and Content as the trailing
// text block.
type Message struct {
	Role      Role           `json:"role"`
	Content   string         `json:"content,omitempty"`
	Images    []ImageContent `json:"images,omitempty"`
	Timestamp time.Time      `json:"timestamp,omitempty"`
}

// NewMessage creates a new message with the given role and content.
func NewMessage(role Role, content string) Message {
	return Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// NewSystemMessage creates a new system message.
func NewSystemMessage(content string) Message {
	return NewMessage(RoleSystem, content)
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string) Message {
	return NewMessage(RoleUser, content)
}

// NewAssistantMessage creates a new assistant message.
func NewAssistantMessage(content string) Message {
	return NewMessage(RoleAssistant, content)
}

// WithImages adds images to the message.
func (m Message) WithImages(images []ImageContent) Message {
	m.Images = images
	return m
}

// HasImages reports whether the message is multi-content.
func (m Message) HasImages() bool {
	return len(m.Images) > 0
}

// Clone returns a copy whose Images slice can be modified independently.
func (m Message) Clone() Message {
	if m.Images != nil {
		m.Images = append([]ImageContent(nil), m.Images...)
	}
	return m
}

// WithoutSystem filters out system messages, preserving order.
func WithoutSystem(msgs []Message) []Message {
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == RoleSystem {
			continue
		}
		out = append(out, m)
	}
	return out
}
