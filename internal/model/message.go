// Package model defines data structures shared by the gateway and the chat client.
package model

import (
	"time"
)

// MessageType identifies who authored a message.
type MessageType string

const (
	MessageTypeUser      MessageType = "user"
	MessageTypeAssistant MessageType = "assistant"
)

// Message is a display message in a conversation.
type Message struct {
	ID        string      `json:"id"`
	Content   string      `json:"content"`
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`

	// Citations is set at most once per streamed message.
	Citations []Citation `json:"citations,omitempty"`
	Sources   []Source   `json:"sources,omitempty"`

	// Error marks a message appended to surface a failed request.
	Error bool `json:"error,omitempty"`
}

// ChatRecord is a raw record pushed by the live feed for authenticated users.
type ChatRecord struct {
	Content     string      `json:"content"`
	CreatedAt   string      `json:"created_at"`
	MessageType MessageType `json:"message_type"`

	// Sources is set by producers that resolve RAG sources server-side.
	Sources []Source `json:"sources,omitempty"`
}

// SendMessageRequest is the body accepted by the chat relay.
type SendMessageRequest struct {
	Message string `json:"message"`
}

// MessageEventData is the payload of an SSE "message" event.
type MessageEventData struct {
	Content string `json:"content"`
}

// ErrorEventData is the payload of an SSE "error" event.
type ErrorEventData struct {
	Error string `json:"error"`
}

// ErrorResponse is the JSON body of a failed relay request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// APIResponse is the envelope returned by the upstream REST endpoints.
type APIResponse struct {
	Status  string         `json:"status"`
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Data    any            `json:"data,omitempty"`
	Errors  map[string]any `json:"errors,omitempty"`
}
