package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/reelrules/regbot-gateway/internal/middleware"
	"github.com/reelrules/regbot-gateway/internal/model"
	"github.com/reelrules/regbot-gateway/pkg/logger"
	"github.com/reelrules/regbot-gateway/pkg/metrics"
)

// SnapshotPublisher stores a conversation's full record list for feed
// subscribers.
type SnapshotPublisher interface {
	PublishSnapshot(ctx context.Context, conversationID string, records []model.ChatRecord) (uint64, error)
}

// FeedHandler bridges conversation snapshots from the backend into the
// NATS live feed.
type FeedHandler struct {
	publisher SnapshotPublisher
	logger    *logger.Logger
}

// NewFeedHandler creates a new feed bridge handler.
func NewFeedHandler(publisher SnapshotPublisher, log *logger.Logger) *FeedHandler {
	return &FeedHandler{
		publisher: publisher,
		logger:    log.Named("feed_bridge"),
	}
}

type publishResponse struct {
	Sequence uint64 `json:"sequence"`
	Records  int    `json:"records"`
}

// Publish handles POST /internal/feed/{conversationId}
func (h *FeedHandler) Publish(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conversationID := chi.URLParam(r, "conversationId")

	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var records []model.ChatRecord
	if err := json.NewDecoder(io.LimitReader(r.Body, 8*maxRequestBody)).Decode(&records); err != nil {
		writeError(w, http.StatusBadRequest, "invalid snapshot body")
		return
	}

	seq, err := h.publisher.PublishSnapshot(ctx, conversationID, records)
	if err != nil {
		h.logger.Error("failed to publish snapshot",
			zap.String("conversation_id", conversationID),
			zap.String("correlation_id", middleware.GetCorrelationID(ctx)),
			zap.Error(err),
		)
		writeError(w, http.StatusBadGateway, "failed to publish snapshot")
		return
	}
	metrics.RecordFeedSnapshot(len(records))

	writeJSON(w, http.StatusAccepted, publishResponse{Sequence: seq, Records: len(records)})
}
