// Package upstream talks to the Django chat backend on behalf of the
// browser-facing routes. Cookies are forwarded opaquely; the backend owns
// sessions.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/reelrules/regbot-gateway/internal/model"
	"github.com/reelrules/regbot-gateway/pkg/logger"
	"github.com/reelrules/regbot-gateway/pkg/metrics"
)

// Client is an HTTP client for the chat backend.
type Client struct {
	baseURL string
	http    *http.Client
	tracer  trace.Tracer
	logger  *logger.Logger
}

// New creates a client for the backend at baseURL. A zero timeout leaves
// request lifetime to the caller's context, so a slow first byte from the
// backend is waited for rather than cut off.
func New(baseURL string, timeout time.Duration, log *logger.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Transport: http.DefaultTransport.(*http.Transport).Clone(), Timeout: timeout},
		tracer:  otel.Tracer("github.com/reelrules/regbot-gateway/internal/upstream"),
		logger:  log.Named("upstream"),
	}
}

// ChatPath is the backend route that streams an answer for a conversation.
func ChatPath(conversationID string) string {
	return "/chat/" + url.PathEscape(conversationID) + "/"
}

// AskPath is the backend route used by authenticated users; the answer is
// delivered through the live feed instead of the response body.
func AskPath(conversationID string) string {
	return "/chat/" + url.PathEscape(conversationID) + "/ask/"
}

// OpenChatStream posts message to the conversation's streaming endpoint.
// On success the caller owns resp.Body. A non-2xx answer is returned as
// *model.UpstreamError with the body already closed.
func (c *Client) OpenChatStream(ctx context.Context, conversationID, message, cookie string) (*http.Response, error) {
	payload, err := json.Marshal(model.SendMessageRequest{Message: message})
	if err != nil {
		return nil, fmt.Errorf("failed to encode chat request: %w", err)
	}

	header := http.Header{}
	header.Set("Content-Type", "application/json")
	header.Set("Accept", "text/event-stream")
	if cookie != "" {
		header.Set("Cookie", cookie)
	}

	resp, err := c.Do(ctx, "chat_stream", http.MethodPost, ChatPath(conversationID), bytes.NewReader(payload), header)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &model.UpstreamError{StatusCode: resp.StatusCode}
	}
	return resp, nil
}

// Ask submits a question for an authenticated conversation.
func (c *Client) Ask(ctx context.Context, conversationID, message, cookie string) error {
	payload, err := json.Marshal(model.SendMessageRequest{Message: message})
	if err != nil {
		return fmt.Errorf("failed to encode ask request: %w", err)
	}

	header := http.Header{}
	header.Set("Content-Type", "application/json")
	if cookie != "" {
		header.Set("Cookie", cookie)
	}

	resp, err := c.Do(ctx, "chat_ask", http.MethodPost, AskPath(conversationID), bytes.NewReader(payload), header)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var body model.APIResponse
		_ = json.NewDecoder(io.LimitReader(resp.Body, 64*1024)).Decode(&body)
		return &model.UpstreamError{StatusCode: resp.StatusCode, Message: body.Message}
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

// Do sends a request to path on the backend. Transport failures are mapped
// onto model.ErrUpstreamUnavailable or model.ErrUpstreamMalformed; any HTTP
// status is returned as a response.
func (c *Client) Do(ctx context.Context, endpoint, method, path string, body io.Reader, header http.Header) (*http.Response, error) {
	ctx, span := c.tracer.Start(ctx, "upstream."+endpoint,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("http.route", path),
		),
	)
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		span.SetStatus(codes.Error, "bad request")
		return nil, fmt.Errorf("failed to build upstream request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		classified := classify(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, classified.Error())
		c.logger.Warn("upstream request failed",
			zap.String("endpoint", endpoint),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		return nil, classified
	}

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode >= 500 {
		span.SetStatus(codes.Error, resp.Status)
	}
	metrics.RecordUpstream(endpoint, resp.StatusCode)
	c.logger.Debug("upstream responded",
		zap.String("endpoint", endpoint),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)
	return resp, nil
}

// classify separates unreachable backends from ones that answered with
// something that is not HTTP.
func classify(err error) error {
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", model.ErrUpstreamUnavailable, err)
	}

	var opErr *net.OpError
	var dnsErr *net.DNSError
	if errors.As(err, &opErr) || errors.As(err, &dnsErr) {
		return fmt.Errorf("%w: %v", model.ErrUpstreamUnavailable, err)
	}

	msg := err.Error()
	if strings.Contains(msg, "malformed HTTP") || strings.Contains(msg, "unexpected EOF") {
		return fmt.Errorf("%w: %v", model.ErrUpstreamMalformed, err)
	}
	return fmt.Errorf("%w: %v", model.ErrUpstreamUnavailable, err)
}
