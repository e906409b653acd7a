// Package feed delivers live conversation snapshots to signed-in clients.
//
// Two backends exist: a Hasura GraphQL subscription over websocket and a
// NATS JetStream subject carrying one snapshot per message. Both hand the
// full record list to the caller on every change.
package feed

import (
	"context"
	"fmt"
	"strings"

	"github.com/reelrules/regbot-gateway/internal/model"
	natsclient "github.com/reelrules/regbot-gateway/internal/nats"
	"github.com/reelrules/regbot-gateway/pkg/logger"
)

// Backend names accepted by LIVE_FEED_BACKEND.
const (
	BackendNone   = "none"
	BackendHasura = "hasura"
	BackendNATS   = "nats"
)

// Client is a live feed connection owned by one user.
type Client interface {
	Subscribe(ctx context.Context, conversationID string, onSnapshot func([]model.ChatRecord)) error
	Close() error
}

// Options configure the backend dialers.
type Options struct {
	Backend   string
	HasuraURL string
	NATS      natsclient.Config
	Logger    *logger.Logger
}

// NewDialer returns the dial function for the configured backend.
func NewDialer(opts Options) (DialFunc, error) {
	log := opts.Logger
	if log == nil {
		log = logger.Global()
	}

	switch strings.ToLower(opts.Backend) {
	case BackendHasura:
		if opts.HasuraURL == "" {
			return nil, fmt.Errorf("hasura feed requires a websocket url")
		}
		return func(ctx context.Context, token string) (Client, error) {
			return NewHasura(opts.HasuraURL, token, log), nil
		}, nil
	case BackendNATS:
		return func(ctx context.Context, token string) (Client, error) {
			f, err := DialNATS(ctx, opts.NATS, log)
			if err != nil {
				return nil, err
			}
			return f, nil
		}, nil
	case BackendNone, "":
		return nil, fmt.Errorf("no live feed backend configured")
	default:
		return nil, fmt.Errorf("unknown live feed backend %q", opts.Backend)
	}
}
