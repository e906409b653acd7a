package middleware

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/reelrules/regbot-gateway/internal/model"
)

const (
	maxMessageLength        = 100000
	maxConversationIDLength = 128
)

// ValidateMessageContent validates a chat message.
func ValidateMessageContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return model.ErrEmptyMessage
	}
	if len(content) > maxMessageLength {
		return fmt.Errorf("%w: message exceeds maximum length", model.ErrInvalidRequest)
	}
	if !utf8.ValidString(content) {
		return fmt.Errorf("%w: message must be valid UTF-8", model.ErrInvalidRequest)
	}
	return nil
}

// ValidateConversationID validates a conversation ID. Backend ids are
// opaque, so only their shape is checked.
func ValidateConversationID(id string) error {
	switch {
	case id == "":
		return fmt.Errorf("%w: conversation ID cannot be empty", model.ErrInvalidRequest)
	case len(id) > maxConversationIDLength:
		return fmt.Errorf("%w: conversation ID exceeds maximum length", model.ErrInvalidRequest)
	case strings.ContainsAny(id, "/?#") || !utf8.ValidString(id):
		return fmt.Errorf("%w: invalid conversation ID format", model.ErrInvalidRequest)
	}
	return nil
}
