package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/reelrules/regbot-gateway/internal/citation"
	"github.com/reelrules/regbot-gateway/internal/model"
)

func assistant(id, content string, citations ...model.Citation) model.Message {
	return model.Message{ID: id, Type: model.MessageTypeAssistant, Content: content, Citations: citations}
}

func TestPrinter_StreamsDeltasAndFootnotes(t *testing.T) {
	var out bytes.Buffer
	p := newPrinter(&out, citation.PlainStyles())
	guide := model.Citation{Metadata: model.CitationMetadata{Source: "walleye.pdf", Page: 3, TotalPages: 10}}

	p.update(assistant("a1", "", guide))
	p.update(assistant("a1", "Five fish", guide))
	p.update(assistant("a1", "Five fish [citat", guide))
	assert.Equal(t, "Five fish ", out.String())

	p.update(assistant("a1", "Five fish [citation:0] daily.", guide))
	p.finish()

	assert.Equal(t, "Five fish [1] daily.\n\n[1] walleye.pdf p.3/10\n", out.String())
}

func TestPrinter_ErrorMessage(t *testing.T) {
	var out bytes.Buffer
	p := newPrinter(&out, citation.PlainStyles())

	p.update(assistant("a1", "Partial"))
	p.update(model.Message{ID: "e1", Type: model.MessageTypeAssistant, Content: "The connection was interrupted.", Error: true})
	p.update(model.Message{ID: "e1", Type: model.MessageTypeAssistant, Content: "The connection was interrupted.", Error: true})

	assert.Equal(t, "Partial\n! The connection was interrupted.\n", out.String())
}

func TestPrinter_SnapshotFinishesEarlierAnswers(t *testing.T) {
	var out bytes.Buffer
	p := newPrinter(&out, citation.PlainStyles())

	p.snapshot([]model.Message{
		{ID: "u1", Type: model.MessageTypeUser, Content: "limit?"},
		assistant("a1", "Five"),
	})
	p.snapshot([]model.Message{
		{ID: "u1", Type: model.MessageTypeUser, Content: "limit?"},
		assistant("a1", "Five."),
		{ID: "u2", Type: model.MessageTypeUser, Content: "size?"},
		assistant("a2", "15 inches"),
	})

	assert.Equal(t, "Five.\n15 inches", out.String())
}

func TestStablePrefix(t *testing.T) {
	assert.Equal(t, "abc ", stablePrefix("abc [cit"))
	assert.Equal(t, "abc [1] d", stablePrefix("abc [1] d"))
	assert.Equal(t, "plain", stablePrefix("plain"))
}
