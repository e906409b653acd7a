package feed

import (
	"context"

	"github.com/reelrules/regbot-gateway/internal/model"
	natsclient "github.com/reelrules/regbot-gateway/internal/nats"
	"github.com/reelrules/regbot-gateway/pkg/logger"
)

// NATS follows conversation snapshots on JetStream.
type NATS struct {
	client  *natsclient.Client
	streams *natsclient.StreamManager
}

// DialNATS connects to NATS and makes sure the snapshot stream exists.
func DialNATS(ctx context.Context, cfg natsclient.Config, log *logger.Logger) (*NATS, error) {
	client, err := natsclient.Connect(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	streams := natsclient.NewStreamManager(client)
	if err := streams.EnsureStream(ctx); err != nil {
		client.Close()
		return nil, err
	}

	return &NATS{client: client, streams: streams}, nil
}

// Subscribe blocks delivering snapshots until ctx is done.
func (n *NATS) Subscribe(ctx context.Context, conversationID string, onSnapshot func([]model.ChatRecord)) error {
	return n.streams.Subscribe(ctx, conversationID, onSnapshot)
}

// Close drains the connection.
func (n *NATS) Close() error {
	n.client.Close()
	return nil
}
