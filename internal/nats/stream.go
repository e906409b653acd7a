package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/reelrules/regbot-gateway/internal/model"
)

const (
	// StreamName is the name of the chat feed stream.
	StreamName = "CHAT_FEED"

	// SubjectPrefix is the prefix for all conversation snapshot subjects.
	SubjectPrefix = "chatfeed"
)

// StreamManager publishes and follows conversation snapshots. Each message
// on a subject is the full record list for that conversation, so only the
// latest one per subject is retained.
type StreamManager struct {
	client *Client
}

// NewStreamManager creates a new stream manager.
func NewStreamManager(client *Client) *StreamManager {
	return &StreamManager{client: client}
}

// EnsureStream ensures the chat feed stream exists with proper configuration.
func (m *StreamManager) EnsureStream(ctx context.Context) error {
	js := m.client.JetStream()

	if _, err := js.Stream(ctx, StreamName); err == nil {
		return nil
	}

	_, err := js.CreateStream(ctx, jetstream.StreamConfig{
		Name:              StreamName,
		Subjects:          []string{SubjectPrefix + ".>"},
		Retention:         jetstream.LimitsPolicy,
		MaxMsgsPerSubject: 1,
		MaxAge:            7 * 24 * time.Hour,
		Storage:           jetstream.FileStorage,
		Replicas:          1,
		Discard:           jetstream.DiscardOld,
		Description:       "Latest message snapshot per conversation",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	return nil
}

// Subject returns the snapshot subject for a conversation. Characters NATS
// treats as token separators or wildcards are replaced.
func Subject(conversationID string) string {
	return SubjectPrefix + "." + subjectToken(conversationID)
}

func subjectToken(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		}
		return r
	}, s)
}

// PublishSnapshot stores the full record list for a conversation.
func (m *StreamManager) PublishSnapshot(ctx context.Context, conversationID string, records []model.ChatRecord) (uint64, error) {
	if records == nil {
		records = []model.ChatRecord{}
	}
	data, err := json.Marshal(records)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	ack, err := m.client.JetStream().Publish(ctx, Subject(conversationID), data)
	if err != nil {
		return 0, fmt.Errorf("failed to publish snapshot: %w", err)
	}

	return ack.Sequence, nil
}

// Subscribe delivers the latest snapshot and every later one until ctx is
// done. Undecodable messages are logged and skipped.
func (m *StreamManager) Subscribe(ctx context.Context, conversationID string, onSnapshot func([]model.ChatRecord)) error {
	subject := Subject(conversationID)
	log := m.client.logger.With(zap.String("subject", subject))

	consumer, err := m.client.JetStream().OrderedConsumer(ctx, StreamName, jetstream.OrderedConsumerConfig{
		FilterSubjects: []string{subject},
		DeliverPolicy:  jetstream.DeliverLastPerSubjectPolicy,
	})
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	failed := make(chan error, 1)
	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		records, err := DecodeSnapshot(msg.Data())
		if err != nil {
			log.Warn("skipping snapshot", zap.Error(err))
			return
		}
		onSnapshot(records)
	}, jetstream.ConsumeErrHandler(func(_ jetstream.ConsumeContext, err error) {
		log.Warn("consumer error", zap.Error(err))
		if errors.Is(err, jetstream.ErrConsumerDeleted) || errors.Is(err, jetstream.ErrConsumerNotFound) {
			select {
			case failed <- err:
			default:
			}
		}
	}))
	if err != nil {
		return fmt.Errorf("failed to consume snapshots: %w", err)
	}
	defer cc.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-failed:
		return fmt.Errorf("snapshot consumer stopped: %w", err)
	}
}

// DecodeSnapshot parses one snapshot payload.
func DecodeSnapshot(data []byte) ([]model.ChatRecord, error) {
	var records []model.ChatRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrStreamDecode, err)
	}
	return records, nil
}
