package conversation

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/reelrules/regbot-gateway/internal/chunk"
	"github.com/reelrules/regbot-gateway/internal/model"
	"github.com/reelrules/regbot-gateway/pkg/logger"
	"github.com/reelrules/regbot-gateway/pkg/metrics"
)

// Feed pushes full message snapshots for one conversation. Subscribe blocks
// until ctx is done or the feed fails.
type Feed interface {
	Subscribe(ctx context.Context, conversationID string, onSnapshot func([]model.ChatRecord)) error
}

// Authenticated is a message list owned by the live feed. Every snapshot
// replaces the whole list; nothing is mutated locally.
type Authenticated struct {
	conversationID string
	onChange       func([]model.Message)
	logger         *logger.Logger

	mu       sync.RWMutex
	messages []model.Message
}

// NewAuthenticated creates a store for a conversation. onChange may be nil.
func NewAuthenticated(conversationID string, onChange func([]model.Message), log *logger.Logger) *Authenticated {
	if log == nil {
		log = logger.Global()
	}
	return &Authenticated{
		conversationID: conversationID,
		onChange:       onChange,
		logger:         log,
	}
}

// Replace normalizes records and swaps them in as the new list.
func (s *Authenticated) Replace(records []model.ChatRecord) {
	normalized := Normalize(s.conversationID, records)

	s.mu.Lock()
	s.messages = normalized
	s.mu.Unlock()

	if s.onChange != nil {
		s.onChange(s.Messages())
	}
}

// Messages returns a copy of the current list.
func (s *Authenticated) Messages() []model.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Run feeds snapshots from f into the store until ctx is done.
func (s *Authenticated) Run(ctx context.Context, f Feed) error {
	s.logger.Info("subscribing to live feed", zap.String("conversation_id", s.conversationID))

	err := f.Subscribe(ctx, s.conversationID, func(records []model.ChatRecord) {
		metrics.RecordFeedSnapshot(len(records))
		s.Replace(records)
	})
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("live feed for %s: %w", s.conversationID, err)
	}
	return nil
}

// Normalize turns raw feed records into display messages. Assistant records
// still in wire format are decoded; everything else passes through.
func Normalize(conversationID string, records []model.ChatRecord) []model.Message {
	out := make([]model.Message, 0, len(records))
	for i, rec := range records {
		msg := model.Message{
			ID:        recordID(conversationID, i, rec),
			Content:   rec.Content,
			Type:      rec.MessageType,
			Timestamp: parseTimestamp(rec.CreatedAt),
			Sources:   rec.Sources,
		}

		if rec.MessageType == model.MessageTypeAssistant && chunk.IsWireFormat(rec.Content) {
			res := chunk.Assemble(rec.Content)
			msg.Content = res.Content
			msg.Citations = res.Citations
		}

		out = append(out, msg)
	}
	return out
}

// recordID is stable across snapshots so re-renders keep their identity.
func recordID(conversationID string, position int, rec model.ChatRecord) string {
	name := conversationID + "/" + strconv.Itoa(position) + "/" + rec.CreatedAt
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05.999999-07",
}

func parseTimestamp(s string) time.Time {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
