package feed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelrules/regbot-gateway/internal/model"
	"github.com/reelrules/regbot-gateway/pkg/logger"
)

func userToken(t *testing.T, userID string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"user_id": userID}).SignedString([]byte("k"))
	require.NoError(t, err)
	return s
}

type fakeClient struct {
	token  string
	mu     sync.Mutex
	closed bool
}

func (c *fakeClient) Subscribe(ctx context.Context, _ string, _ func([]model.ChatRecord)) error {
	<-ctx.Done()
	return ctx.Err()
}

func (c *fakeClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeClient) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func TestClientFactory(t *testing.T) {
	var dialed []*fakeClient
	var changes [][2]string
	f := NewClientFactory(func(ctx context.Context, token string) (Client, error) {
		c := &fakeClient{token: token}
		dialed = append(dialed, c)
		return c, nil
	}, func(previous, current string) {
		changes = append(changes, [2]string{previous, current})
	}, logger.Nop())
	ctx := context.Background()

	first, err := f.ForToken(ctx, userToken(t, "alice"))
	require.NoError(t, err)
	again, err := f.ForToken(ctx, userToken(t, "alice"))
	require.NoError(t, err)
	assert.Same(t, first, again)
	assert.Len(t, dialed, 1)
	assert.Empty(t, changes)

	second, err := f.ForToken(ctx, userToken(t, "bob"))
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.True(t, dialed[0].isClosed())
	assert.Equal(t, [][2]string{{"alice", "bob"}}, changes)
	assert.Equal(t, "bob", f.UserID())

	_, err = f.ForToken(ctx, "garbage")
	assert.Error(t, err)
	assert.Equal(t, "bob", f.UserID())

	require.NoError(t, f.Close())
	assert.True(t, dialed[1].isClosed())
	assert.Equal(t, "", f.UserID())
}

func TestNewDialer(t *testing.T) {
	_, err := NewDialer(Options{Backend: BackendNone})
	assert.Error(t, err)
	_, err = NewDialer(Options{Backend: "kafka"})
	assert.Error(t, err)
	_, err = NewDialer(Options{Backend: BackendHasura})
	assert.Error(t, err)

	dial, err := NewDialer(Options{Backend: BackendHasura, HasuraURL: "ws://localhost:8080/v1/graphql", Logger: logger.Nop()})
	require.NoError(t, err)
	c, err := dial(context.Background(), "tok")
	require.NoError(t, err)
	assert.IsType(t, &Hasura{}, c)
}

// hasuraServer speaks enough graphql-transport-ws to drive one subscription.
func hasuraServer(t *testing.T, script func(conn *websocket.Conn)) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{Subprotocols: []string{subprotocol}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		script(conn)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func nextMessage(t *testing.T, records ...model.ChatRecord) wsMessage {
	t.Helper()
	var p nextPayload
	p.Data.ChatMessage = records
	raw, err := json.Marshal(p)
	require.NoError(t, err)
	return wsMessage{ID: subscriptionID, Type: msgNext, Payload: raw}
}

type captured struct {
	init json.RawMessage
	sub  json.RawMessage
	pong bool
}

func TestHasura_Subscribe(t *testing.T) {
	user := model.ChatRecord{Content: "bag limit?", CreatedAt: "2026-05-01T10:00:00Z", MessageType: model.MessageTypeUser}
	answer := model.ChatRecord{Content: `0:"Five"`, CreatedAt: "2026-05-01T10:00:02Z", MessageType: model.MessageTypeAssistant}
	first := nextMessage(t, user)
	second := nextMessage(t, user, answer)

	got := make(chan captured, 1)
	srv := hasuraServer(t, func(conn *websocket.Conn) {
		var c captured
		defer func() { got <- c }()

		var msg wsMessage
		if conn.ReadJSON(&msg) != nil || msg.Type != msgConnectionInit {
			return
		}
		c.init = msg.Payload
		conn.WriteJSON(wsMessage{Type: msgConnectionAck})

		if conn.ReadJSON(&msg) != nil || msg.Type != msgSubscribe {
			return
		}
		c.sub = msg.Payload

		conn.WriteJSON(wsMessage{Type: msgPing})
		if conn.ReadJSON(&msg) == nil && msg.Type == msgPong {
			c.pong = true
		}

		conn.WriteJSON(first)
		conn.WriteJSON(second)
		conn.WriteJSON(wsMessage{ID: subscriptionID, Type: msgComplete})
	})

	h := NewHasura(wsURL(srv), "tok-123", logger.Nop())
	var snapshots [][]model.ChatRecord
	err := h.Subscribe(context.Background(), "conv-1", func(records []model.ChatRecord) {
		snapshots = append(snapshots, records)
	})
	require.NoError(t, err)

	c := <-got
	assert.JSONEq(t, `{"headers":{"Authorization":"Bearer tok-123"}}`, string(c.init))
	var sub subscribePayload
	require.NoError(t, json.Unmarshal(c.sub, &sub))
	assert.Equal(t, "conv-1", sub.Variables["id"])
	assert.Contains(t, sub.Query, "order_by: {created_at: asc}")
	assert.True(t, c.pong)

	require.Len(t, snapshots, 2)
	assert.Equal(t, []model.ChatRecord{user}, snapshots[0])
	assert.Equal(t, []model.ChatRecord{user, answer}, snapshots[1])
}

func TestHasura_SubscriptionError(t *testing.T) {
	srv := hasuraServer(t, func(conn *websocket.Conn) {
		var msg wsMessage
		conn.ReadJSON(&msg)
		conn.WriteJSON(wsMessage{Type: msgConnectionAck})
		conn.ReadJSON(&msg)
		conn.WriteJSON(wsMessage{ID: subscriptionID, Type: msgError, Payload: json.RawMessage(`[{"message":"field not found"}]`)})
		conn.ReadJSON(&msg)
	})

	err := NewHasura(wsURL(srv), "", logger.Nop()).Subscribe(context.Background(), "c", func([]model.ChatRecord) {})
	assert.ErrorIs(t, err, ErrSubscription)
	assert.Contains(t, err.Error(), "field not found")
}

func TestHasura_HandshakeRejected(t *testing.T) {
	srv := hasuraServer(t, func(conn *websocket.Conn) {
		var msg wsMessage
		conn.ReadJSON(&msg)
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(4403, "Forbidden"), time.Now().Add(time.Second))
	})

	err := NewHasura(wsURL(srv), "bad", logger.Nop()).Subscribe(context.Background(), "c", func([]model.ChatRecord) {})
	assert.ErrorContains(t, err, "handshake")
}

func TestHasura_CancelStopsSubscription(t *testing.T) {
	srv := hasuraServer(t, func(conn *websocket.Conn) {
		var msg wsMessage
		conn.ReadJSON(&msg)
		conn.WriteJSON(wsMessage{Type: msgConnectionAck})
		for conn.ReadJSON(&msg) == nil {
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- NewHasura(wsURL(srv), "", logger.Nop()).Subscribe(ctx, "c", func([]model.ChatRecord) {})
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("subscription did not stop after cancel")
	}
}
