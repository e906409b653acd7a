package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/reelrules/regbot-gateway/internal/middleware"
	"github.com/reelrules/regbot-gateway/internal/model"
	"github.com/reelrules/regbot-gateway/internal/upstream"
	"github.com/reelrules/regbot-gateway/pkg/logger"
	"github.com/reelrules/regbot-gateway/pkg/metrics"
)

const (
	relayBufferSize = 32 * 1024
	maxRequestBody  = 1 << 20
)

// Relay outcomes recorded in metrics.
const (
	outcomeCompleted   = "completed"
	outcomeClientGone  = "client_gone"
	outcomeInterrupted = "interrupted"
)

// interruptedEvent closes any partial block before reporting the failure.
var interruptedEvent = []byte("\n\nevent: error\ndata: {\"error\":\"upstream stream interrupted\"}\n\n")

// errClientGone marks a failed write to the browser.
var errClientGone = errors.New("client disconnected")

// RelayHandler streams chat answers from the backend to the browser.
type RelayHandler struct {
	upstream *upstream.Client
	logger   *logger.Logger
}

// NewRelayHandler creates a new relay handler.
func NewRelayHandler(client *upstream.Client, log *logger.Logger) *RelayHandler {
	return &RelayHandler{
		upstream: client,
		logger:   log.Named("relay"),
	}
}

// Chat handles POST /chat/{conversationId}
//
// The upstream body is passed through unmodified, one flushed write per
// upstream read. Headers are only committed once the backend has answered
// 2xx, so any earlier failure is still a plain JSON error.
func (h *RelayHandler) Chat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conversationID := chi.URLParam(r, "conversationId")
	log := h.logger.WithRequest(middleware.GetCorrelationID(ctx), middleware.GetUserID(ctx)).
		With(zap.String("conversation_id", conversationID))

	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req model.SendMessageRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateMessageContent(req.Message); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	resp, err := h.upstream.OpenChatStream(ctx, conversationID, req.Message, r.Header.Get("Cookie"))
	if err != nil {
		status := model.StatusCode(err)
		log.Warn("failed to open upstream stream", zap.Int("status", status), zap.Error(err))
		writeError(w, status, upstreamErrorMessage(err))
		return
	}
	defer resp.Body.Close()

	upstream.CopySetCookies(w.Header(), resp.Header)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	metrics.IncrementSSEConnections()
	defer metrics.DecrementSSEConnections()

	n, err := pipe(w, flusher, resp.Body)
	switch {
	case err == nil:
		metrics.RecordRelayOutcome(outcomeCompleted, n)
		log.Debug("relay completed", zap.Int64("bytes", n))

	case errors.Is(err, errClientGone) || ctx.Err() != nil:
		metrics.RecordRelayOutcome(outcomeClientGone, n)
		log.Info("client disconnected during relay", zap.Int64("bytes", n))

	default:
		metrics.RecordRelayOutcome(outcomeInterrupted, n)
		log.Warn("upstream stream interrupted", zap.Int64("bytes", n), zap.Error(err))

		w.Write(interruptedEvent)
		flusher.Flush()
		// Abort so the chunked body ends without its terminator and the
		// browser sees an incomplete delivery.
		panic(http.ErrAbortHandler)
	}
}

// pipe copies src to w through one reusable buffer, flushing after each
// read so every upstream chunk reaches the client as it arrives.
func pipe(w io.Writer, flusher http.Flusher, src io.Reader) (int64, error) {
	buf := make([]byte, relayBufferSize)
	var total int64
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return total, errClientGone
			}
			flusher.Flush()
			total += int64(n)
		}
		if rerr == io.EOF {
			return total, nil
		}
		if rerr != nil {
			return total, rerr
		}
	}
}

func upstreamErrorMessage(err error) string {
	var upstreamErr *model.UpstreamError
	switch {
	case errors.As(err, &upstreamErr):
		if upstreamErr.Message != "" {
			return upstreamErr.Message
		}
		return "upstream request failed"
	case errors.Is(err, model.ErrUpstreamMalformed):
		return "upstream returned a malformed response"
	case errors.Is(err, model.ErrUpstreamUnavailable):
		return "upstream unavailable"
	default:
		return "internal error"
	}
}
