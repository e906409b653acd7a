package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/reelrules/regbot-gateway/internal/model"
	"github.com/reelrules/regbot-gateway/pkg/logger"
)

// graphql-transport-ws message types.
const (
	msgConnectionInit = "connection_init"
	msgConnectionAck  = "connection_ack"
	msgPing           = "ping"
	msgPong           = "pong"
	msgSubscribe      = "subscribe"
	msgNext           = "next"
	msgError          = "error"
	msgComplete       = "complete"

	subprotocol      = "graphql-transport-ws"
	handshakeTimeout = 10 * time.Second
	subscriptionID   = "chat"
)

// ChatMessagesSubscription selects the ordered messages of one conversation.
const ChatMessagesSubscription = `subscription ChatMessages($id: uuid!) {
  chat_message(where: {conversation_id: {_eq: $id}}, order_by: {created_at: asc}) {
    content
    created_at
    message_type
  }
}`

// ErrSubscription is returned when the server rejects or ends a subscription
// with an error.
var ErrSubscription = errors.New("subscription failed")

type wsMessage struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type subscribePayload struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type nextPayload struct {
	Data struct {
		ChatMessage []model.ChatRecord `json:"chat_message"`
	} `json:"data"`
	Errors json.RawMessage `json:"errors,omitempty"`
}

// Hasura follows conversations through GraphQL subscriptions. Each
// Subscribe call holds its own websocket.
type Hasura struct {
	url    string
	token  string
	dialer *websocket.Dialer
	logger *logger.Logger

	mu     sync.Mutex
	conns  map[*websocket.Conn]struct{}
	closed bool
}

// NewHasura creates a feed client authenticating with token.
func NewHasura(url, token string, log *logger.Logger) *Hasura {
	return &Hasura{
		url:   url,
		token: token,
		dialer: &websocket.Dialer{
			Subprotocols:     []string{subprotocol},
			HandshakeTimeout: handshakeTimeout,
		},
		logger: log.Named("hasura"),
		conns:  make(map[*websocket.Conn]struct{}),
	}
}

// Subscribe streams snapshots for conversationID until ctx is done, the
// server completes the subscription, or the connection fails.
func (h *Hasura) Subscribe(ctx context.Context, conversationID string, onSnapshot func([]model.ChatRecord)) error {
	conn, _, err := h.dialer.DialContext(ctx, h.url, nil)
	if err != nil {
		return fmt.Errorf("failed to dial live feed: %w", err)
	}
	if !h.track(conn) {
		conn.Close()
		return fmt.Errorf("live feed client closed")
	}
	defer h.untrack(conn)

	if err := h.handshake(conn); err != nil {
		return err
	}

	payload, err := json.Marshal(subscribePayload{
		Query:     ChatMessagesSubscription,
		Variables: map[string]any{"id": conversationID},
	})
	if err != nil {
		return fmt.Errorf("failed to encode subscription: %w", err)
	}
	if err := conn.WriteJSON(wsMessage{ID: subscriptionID, Type: msgSubscribe, Payload: payload}); err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			conn.Close()
		case <-stop:
		}
	}()

	log := h.logger.With(zap.String("conversation_id", conversationID))
	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("live feed connection lost: %w", err)
		}

		switch msg.Type {
		case msgNext:
			var next nextPayload
			if err := json.Unmarshal(msg.Payload, &next); err != nil {
				log.Warn("skipping snapshot", zap.Error(fmt.Errorf("%w: %v", model.ErrStreamDecode, err)))
				continue
			}
			if len(next.Errors) > 0 && string(next.Errors) != "null" {
				return fmt.Errorf("%w: %s", ErrSubscription, next.Errors)
			}
			onSnapshot(next.Data.ChatMessage)
		case msgError:
			return fmt.Errorf("%w: %s", ErrSubscription, msg.Payload)
		case msgComplete:
			log.Info("subscription completed by server")
			return nil
		case msgPing:
			if err := conn.WriteJSON(wsMessage{Type: msgPong}); err != nil {
				return fmt.Errorf("failed to answer ping: %w", err)
			}
		}
	}
}

// handshake sends connection_init and waits for the server's ack.
func (h *Hasura) handshake(conn *websocket.Conn) error {
	init := wsMessage{Type: msgConnectionInit}
	if h.token != "" {
		payload, err := json.Marshal(map[string]any{
			"headers": map[string]string{"Authorization": "Bearer " + h.token},
		})
		if err != nil {
			return fmt.Errorf("failed to encode connection init: %w", err)
		}
		init.Payload = payload
	}
	if err := conn.WriteJSON(init); err != nil {
		return fmt.Errorf("failed to init live feed: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	defer conn.SetReadDeadline(time.Time{})

	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return fmt.Errorf("live feed handshake failed: %w", err)
		}
		switch msg.Type {
		case msgConnectionAck:
			return nil
		case msgPing:
			if err := conn.WriteJSON(wsMessage{Type: msgPong}); err != nil {
				return fmt.Errorf("failed to answer ping: %w", err)
			}
		default:
			return fmt.Errorf("live feed handshake: unexpected %q message", msg.Type)
		}
	}
}

func (h *Hasura) track(conn *websocket.Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.conns[conn] = struct{}{}
	return true
}

func (h *Hasura) untrack(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.conns, conn)
	h.mu.Unlock()
	conn.Close()
}

// Close ends every open subscription.
func (h *Hasura) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for conn := range h.conns {
		conn.Close()
	}
	return nil
}
