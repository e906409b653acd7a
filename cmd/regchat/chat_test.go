package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelrules/regbot-gateway/internal/citation"
	"github.com/reelrules/regbot-gateway/internal/model"
	"github.com/reelrules/regbot-gateway/pkg/logger"
)

func TestPrompt(t *testing.T) {
	var out bytes.Buffer
	var got []string

	err := prompt(context.Background(), strings.NewReader("first\n\n  second  \n/quit\nignored\n"), &out, func(line string) error {
		got = append(got, line)
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, got)
}

func TestRunAnonymous(t *testing.T) {
	relay := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/conv-7" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "sessionid", Value: "anon"})
		w.Header().Set("Content-Type", "text/event-stream")
		for _, frag := range []string{`0:\"Five\"`, `0:\" fish.\"`} {
			fmt.Fprintf(w, "event: message\ndata: {\"content\":\"%s\"}\n\n", frag)
		}
	}))
	defer relay.Close()

	relayURL, conversationID = relay.URL, "conv-7"
	var out bytes.Buffer
	p := newPrinter(&out, citation.PlainStyles())

	err := runAnonymous(context.Background(), strings.NewReader("bag limit?\n/history\n/quit\n"), &out, p, logger.Nop())

	require.NoError(t, err)
	assert.Contains(t, out.String(), "Five fish.\n")
	assert.Contains(t, out.String(), "you: bag limit?\n")
	assert.Contains(t, out.String(), "bot: Five fish.\n")
}

func TestAskMessage(t *testing.T) {
	assert.Equal(t, "conversation closed", askMessage(&model.UpstreamError{StatusCode: 409, Message: "conversation closed"}))
	assert.Contains(t, askMessage(fmt.Errorf("%w: dial", model.ErrUpstreamUnavailable)), "unreachable")
	assert.Contains(t, askMessage(io.EOF), "could not be sent")
}
