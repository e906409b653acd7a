package feed

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/reelrules/regbot-gateway/internal/session"
	"github.com/reelrules/regbot-gateway/pkg/logger"
)

// DialFunc builds a feed client authenticated as the token's user.
type DialFunc func(ctx context.Context, token string) (Client, error)

// ClientFactory keeps one feed client per signed-in user. When the token
// belongs to a different user the old client is closed and replaced, so
// subscriptions never outlive the session that opened them.
type ClientFactory struct {
	dial         DialFunc
	onUserChange func(previous, current string)
	logger       *logger.Logger

	mu     sync.Mutex
	client Client
	userID string
}

// NewClientFactory creates a factory. onUserChange may be nil.
func NewClientFactory(dial DialFunc, onUserChange func(previous, current string), log *logger.Logger) *ClientFactory {
	if log == nil {
		log = logger.Global()
	}
	return &ClientFactory{
		dial:         dial,
		onUserChange: onUserChange,
		logger:       log.Named("feed"),
	}
}

// ForToken returns the client for the token's user, dialing a new one if
// the user differs from the current client's.
func (f *ClientFactory) ForToken(ctx context.Context, token string) (Client, error) {
	id, err := session.ParseToken(token)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	if f.client != nil && f.userID == id.UserID {
		c := f.client
		f.mu.Unlock()
		return c, nil
	}

	previous := f.userID
	if f.client != nil {
		if err := f.client.Close(); err != nil {
			f.logger.Warn("failed to close feed client", zap.String("user_id", previous), zap.Error(err))
		}
		f.client, f.userID = nil, ""
	}

	c, err := f.dial(ctx, token)
	if err != nil {
		f.mu.Unlock()
		return nil, fmt.Errorf("failed to dial live feed: %w", err)
	}
	f.client, f.userID = c, id.UserID
	f.mu.Unlock()

	if previous != "" {
		f.logger.Info("feed user changed", zap.String("previous", previous), zap.String("current", id.UserID))
		if f.onUserChange != nil {
			f.onUserChange(previous, id.UserID)
		}
	}
	return c, nil
}

// UserID returns the user the current client belongs to.
func (f *ClientFactory) UserID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.userID
}

// Close closes the current client.
func (f *ClientFactory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.client == nil {
		return nil
	}
	err := f.client.Close()
	f.client, f.userID = nil, ""
	return err
}
