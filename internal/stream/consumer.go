package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/reelrules/regbot-gateway/internal/chunk"
	"github.com/reelrules/regbot-gateway/internal/conversation"
	"github.com/reelrules/regbot-gateway/internal/model"
	"github.com/reelrules/regbot-gateway/pkg/logger"
)

// State is the lifecycle of the consumer's current stream.
type State int

const (
	StateIdle State = iota
	StateStreaming
	StateSettledOK
	StateSettledError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStreaming:
		return "streaming"
	case StateSettledOK:
		return "settled"
	case StateSettledError:
		return "settled_error"
	default:
		return "unknown"
	}
}

// ErrClosed is returned by Submit after Close.
var ErrClosed = errors.New("stream consumer closed")

const (
	msgInterrupted = "The response was interrupted before it finished. Please try again."
	msgUnavailable = "The assistant is unavailable right now. Please try again."
	msgFailed      = "Something went wrong while answering. Please try again."
)

// Transport opens the relayed SSE stream for one user message.
type Transport interface {
	Open(ctx context.Context, conversationID, message string) (io.ReadCloser, error)
}

// Observer is called with a copy of a message every time it changes.
type Observer func(model.Message)

// Consumer drives one conversation's streaming exchanges. Only one stream
// may be active at a time; Submit rejects with model.ErrBusy otherwise.
type Consumer struct {
	store     *conversation.Anonymous
	transport Transport
	observer  Observer
	logger    *logger.Logger
	now       func() time.Time

	mu     sync.Mutex
	state  State
	err    error
	closed bool
	cancel context.CancelFunc
	body   io.ReadCloser
}

// Option configures a Consumer.
type Option func(*Consumer)

// WithObserver registers a callback for message updates.
func WithObserver(o Observer) Option {
	return func(c *Consumer) { c.observer = o }
}

// WithLogger sets the consumer's logger.
func WithLogger(l *logger.Logger) Option {
	return func(c *Consumer) { c.logger = l }
}

// NewConsumer creates a consumer writing into store.
func NewConsumer(store *conversation.Anonymous, transport Transport, opts ...Option) *Consumer {
	c := &Consumer{
		store:     store,
		transport: transport,
		logger:    logger.Global(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(zap.String("conversation_id", store.ConversationID()))
	return c
}

// State returns the current lifecycle state.
func (c *Consumer) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err returns the error that settled the last stream, if any.
func (c *Consumer) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Busy reports whether a stream is in flight.
func (c *Consumer) Busy() bool {
	return c.State() == StateStreaming
}

// exchange is the per-stream accumulation state.
type exchange struct {
	placeholderID string
	fragments     []string
	citationsSet  bool
	eventErr      string
}

// Submit sends text and streams the answer into the store. The user message
// and an empty assistant placeholder are appended before any network I/O.
// It blocks until the stream settles, ctx is cancelled or Close is called.
func (c *Consumer) Submit(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return model.ErrEmptyMessage
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state == StateStreaming {
		c.mu.Unlock()
		return model.ErrBusy
	}
	ctx, cancel := context.WithCancel(ctx)
	c.state = StateStreaming
	c.err = nil
	c.cancel = cancel
	c.mu.Unlock()
	defer cancel()

	now := c.now()
	ex := &exchange{placeholderID: uuid.Must(uuid.NewV7()).String()}
	placeholder := model.Message{ID: ex.placeholderID, Type: model.MessageTypeAssistant, Timestamp: now}
	c.store.Append(
		model.Message{ID: uuid.Must(uuid.NewV7()).String(), Content: text, Type: model.MessageTypeUser, Timestamp: now},
		placeholder,
	)
	c.emit(placeholder)

	body, err := c.transport.Open(ctx, c.store.ConversationID(), text)
	if err != nil {
		if c.dead() {
			return ErrClosed
		}
		c.logger.Warn("chat stream request failed", zap.Error(err))
		return c.settle(ex, err, connectionMessage(err))
	}

	if !c.attach(body) {
		body.Close()
		return ErrClosed
	}
	defer c.detach()

	return c.consume(ctx, body, ex)
}

func (c *Consumer) consume(ctx context.Context, body io.Reader, ex *exchange) error {
	reader := NewReader(body)
	for {
		ev, err := reader.Next()
		if c.dead() {
			return ErrClosed
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				err = ctx.Err()
			}
			c.logger.Warn("chat stream interrupted",
				zap.Error(err),
				zap.Int("fragments", len(ex.fragments)),
			)
			c.finalize(ex)
			text := msgInterrupted
			if ex.eventErr != "" {
				text = ex.eventErr
			}
			return c.settle(ex, fmt.Errorf("%w: %v", model.ErrStreamInterrupted, err), text)
		}

		switch ev.Type {
		case EventMessage:
			var data model.MessageEventData
			if err := json.Unmarshal(ev.Data, &data); err != nil {
				c.logger.Warn("skipping message event", zap.Error(fmt.Errorf("%w: %v", model.ErrStreamDecode, err)))
				continue
			}
			ex.fragments = append(ex.fragments, data.Content)
			c.apply(ex)

		case EventError:
			var data model.ErrorEventData
			if err := json.Unmarshal(ev.Data, &data); err != nil {
				c.logger.Warn("skipping error event", zap.Error(fmt.Errorf("%w: %v", model.ErrStreamDecode, err)))
				continue
			}
			if data.Error == "" {
				data.Error = msgFailed
			}
			c.logger.Warn("chat stream reported an error", zap.String("error", data.Error))
			ex.eventErr = data.Error

		default:
			c.logger.Debug("ignoring stream block", zap.String("event", ev.Type))
		}
	}

	c.finalize(ex)
	if ex.eventErr != "" {
		return c.settle(ex, errors.New(ex.eventErr), ex.eventErr)
	}
	return c.settle(ex, nil, "")
}

// apply re-renders the placeholder from the whole fragment history. Chunk
// boundaries do not line up with display text near the separator, so the
// content is recomputed rather than appended to. The joined text is only
// used to spot the envelope; content is decoded fragment by fragment.
func (c *Consumer) apply(ex *exchange) {
	joined := strings.Join(ex.fragments, "")
	c.mutate(ex.placeholderID, func(m *model.Message) {
		if !ex.citationsSet && strings.Contains(joined, chunk.Separator) {
			m.Citations = chunk.ExtractCitations(joined)
			ex.citationsSet = true
		}
		if chunk.PendingEnvelope(joined) {
			m.Content = ""
			return
		}
		m.Content = chunk.Decode(chunk.AnswerFragments(ex.fragments))
	})
}

// finalize runs one full decode pass so the settled content matches a
// one-shot reassembly of everything received. Citations were already
// frozen by apply when the separator arrived.
func (c *Consumer) finalize(ex *exchange) {
	content := chunk.Decode(chunk.AnswerFragments(ex.fragments))
	c.mutate(ex.placeholderID, func(m *model.Message) {
		m.Content = content
	})
}

// settle records the outcome. A failure is surfaced as exactly one error
// message: an empty placeholder becomes that message, otherwise the partial
// answer is kept and the error is appended after it.
func (c *Consumer) settle(ex *exchange, err error, text string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if err == nil {
		c.state = StateSettledOK
		c.mu.Unlock()
		return nil
	}
	c.state = StateSettledError
	c.err = err

	var surfaced model.Message
	if current, _ := c.store.Get(ex.placeholderID); current.Content == "" {
		surfaced, _ = c.store.Update(ex.placeholderID, func(m *model.Message) {
			m.Content = text
			m.Error = true
		})
	} else {
		surfaced = model.Message{
			ID:        uuid.Must(uuid.NewV7()).String(),
			Content:   text,
			Type:      model.MessageTypeAssistant,
			Timestamp: c.now(),
			Error:     true,
		}
		c.store.Append(surfaced)
	}
	c.mu.Unlock()

	c.emit(surfaced)
	return err
}

// mutate updates a message unless the consumer has been torn down.
func (c *Consumer) mutate(id string, fn func(*model.Message)) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	msg, ok := c.store.Update(id, fn)
	c.mu.Unlock()

	if ok {
		c.emit(msg)
	}
}

func (c *Consumer) emit(m model.Message) {
	if c.observer != nil {
		c.observer(m)
	}
}

func (c *Consumer) attach(body io.ReadCloser) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.body = body
	return true
}

func (c *Consumer) detach() {
	c.mu.Lock()
	body := c.body
	c.body = nil
	c.mu.Unlock()
	if body != nil {
		body.Close()
	}
}

func (c *Consumer) dead() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close tears the consumer down. An in-flight stream is cancelled and its
// body released before Close returns; no message is written afterwards.
func (c *Consumer) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	cancel, body := c.cancel, c.body
	c.body = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if body != nil {
		return body.Close()
	}
	return nil
}

func connectionMessage(err error) string {
	var upstreamErr *model.UpstreamError
	switch {
	case errors.As(err, &upstreamErr):
		return fmt.Sprintf("The assistant could not answer (status %d). Please try again.", upstreamErr.StatusCode)
	case errors.Is(err, model.ErrUpstreamUnavailable):
		return msgUnavailable
	default:
		return msgFailed
	}
}
