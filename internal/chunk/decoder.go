// Package chunk decodes the quoted-chunk wire format produced by the chat
// backend into display text and citations.
//
// A streamed answer looks like
//
//	0:"{\"context\":[...]}"__LLM_RESPONSE__0:"The "0:"limit is "0:"2."d:{...}
//
// where the optional citation envelope precedes the separator and every
// text token is a 0:"..." fragment. Payloads are taken verbatim between the
// quotes; no unescaping is performed, so text must not carry a bare quote
// next to a fragment boundary.
package chunk

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/reelrules/regbot-gateway/internal/model"
	"github.com/reelrules/regbot-gateway/pkg/logger"
)

const (
	// Separator splits the citation envelope from the answer text.
	Separator = "__LLM_RESPONSE__"

	// TextPrefix opens every text fragment.
	TextPrefix = `0:"`

	// MetaPrefix opens a terminal/metadata fragment.
	MetaPrefix = "d:"
)

var fragmentPattern = regexp.MustCompile(`0:"(?:[^"\\]|\\.)*"`)

// Decode concatenates the payloads of all 0:"..." fragments in order.
// Fragments that do not match are skipped. Decode keeps no state, so it is
// safe to call repeatedly on a growing fragment list.
func Decode(fragments []string) string {
	var b strings.Builder
	for _, f := range fragments {
		if len(f) <= len(TextPrefix) || !strings.HasPrefix(f, TextPrefix) || !strings.HasSuffix(f, `"`) {
			continue
		}
		b.WriteString(f[len(TextPrefix) : len(f)-1])
	}
	return b.String()
}

// SplitFragments pulls every 0:"..." token out of raw wire text.
func SplitFragments(raw string) []string {
	return fragmentPattern.FindAllString(raw, -1)
}

// ExtractCitations parses the citation envelope that precedes the first
// separator. It returns nil when there is no separator or the envelope
// cannot be parsed; parse failures are logged, never returned.
func ExtractCitations(fullText string) []model.Citation {
	idx := strings.Index(fullText, Separator)
	if idx < 0 {
		return nil
	}

	citations, err := parseEnvelope(strings.TrimPrefix(fullText[:idx], TextPrefix))
	if err != nil {
		logger.Global().Warn("dropping citation envelope",
			zap.Error(err),
			zap.Int("envelope_bytes", idx),
		)
		return nil
	}
	return citations
}

// parseEnvelope accepts the envelope either as plain JSON or still
// JSON-escaped the way it travels inside a 0:"..." fragment.
func parseEnvelope(payload string) ([]model.Citation, error) {
	payload = strings.TrimSuffix(strings.TrimSpace(payload), `"`)

	var envelope model.CitationEnvelope
	err := json.Unmarshal([]byte(payload), &envelope)
	if err != nil {
		var unescaped string
		if uerr := json.Unmarshal([]byte(`"`+payload+`"`), &unescaped); uerr != nil {
			return nil, fmt.Errorf("%w: %v", model.ErrCitationParse, err)
		}
		if err := json.Unmarshal([]byte(unescaped), &envelope); err != nil {
			return nil, fmt.Errorf("%w: %v", model.ErrCitationParse, err)
		}
	}

	if len(envelope.Context) == 0 {
		return nil, nil
	}
	return envelope.Context, nil
}

// Result is a fully assembled answer.
type Result struct {
	Content   string
	Citations []model.Citation

	// HasEnvelope reports whether the separator was present.
	HasEnvelope bool
}

// Assemble runs the full decode over raw wire text: citations from the
// envelope, then the text fragments after the separator.
func Assemble(raw string) Result {
	var res Result
	body := Body(raw)
	if body != raw {
		res.HasEnvelope = true
		res.Citations = ExtractCitations(raw)
	}
	res.Content = Decode(SplitFragments(body))
	return res
}

// Body returns the part of raw wire text that carries answer fragments.
func Body(raw string) string {
	if idx := strings.Index(raw, Separator); idx >= 0 {
		return raw[idx+len(Separator):]
	}
	return raw
}

// AnswerFragments returns the fragments that carry answer text. Without a
// separator that is every fragment. Otherwise it is whatever follows the
// separator inside the fragment that completes it, then every later
// fragment. Fragments are never re-split, so quotes inside a payload
// survive.
func AnswerFragments(fragments []string) []string {
	var seen strings.Builder
	for i, f := range fragments {
		before := seen.Len()
		seen.WriteString(f)

		// The separator can straddle fragments; only look where it could end in f.
		from := max(before-len(Separator)+1, 0)
		idx := strings.Index(seen.String()[from:], Separator)
		if idx < 0 {
			continue
		}

		out := make([]string, 0, len(fragments)-i)
		if tail := f[from+idx+len(Separator)-before:]; tail != "" {
			out = append(out, tail)
		}
		return append(out, fragments[i+1:]...)
	}
	return fragments
}

// IsWireFormat reports whether s still carries wire tokens.
func IsWireFormat(s string) bool {
	return strings.HasPrefix(s, TextPrefix) || strings.Contains(s, Separator)
}

// PendingEnvelope reports whether raw begins with a citation envelope whose
// separator has not arrived yet. Such text must not be shown as content.
func PendingEnvelope(raw string) bool {
	if strings.Contains(raw, Separator) || !strings.HasPrefix(raw, TextPrefix) {
		return false
	}
	rest := raw[len(TextPrefix):]
	return strings.HasPrefix(rest, `{"`) || strings.HasPrefix(rest, `{\"`)
}
