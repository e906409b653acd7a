package stream

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelrules/regbot-gateway/internal/model"
)

func TestHTTPTransport_Open(t *testing.T) {
	var got model.SendMessageRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/chat/ok":
			json.NewDecoder(r.Body).Decode(&got)
			io.WriteString(w, "event: message\ndata: {}\n\n")
		default:
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(model.ErrorResponse{Error: "upstream request failed"})
		}
	}))
	defer srv.Close()

	tr := NewHTTPTransport(srv.URL+"/", nil)

	body, err := tr.Open(context.Background(), "ok", "size limit?")
	require.NoError(t, err)
	data, _ := io.ReadAll(body)
	body.Close()
	assert.Equal(t, "event: message\ndata: {}\n\n", string(data))
	assert.Equal(t, "size limit?", got.Message)

	_, err = tr.Open(context.Background(), "missing", "x")
	var upstreamErr *model.UpstreamError
	require.ErrorAs(t, err, &upstreamErr)
	assert.Equal(t, http.StatusNotFound, upstreamErr.StatusCode)
	assert.Equal(t, "upstream request failed", upstreamErr.Message)

	srv.Close()
	_, err = tr.Open(context.Background(), "ok", "x")
	assert.ErrorIs(t, err, model.ErrUpstreamUnavailable)
}
