package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/reelrules/regbot-gateway/internal/citation"
	"github.com/reelrules/regbot-gateway/internal/model"
)

// printer writes assistant answers to the terminal as they grow. Content
// is recomputed on every update, so only the newly stable suffix of the
// rendered body is written.
type printer struct {
	out      io.Writer
	renderer *citation.Renderer
	errStyle lipgloss.Style

	mu      sync.Mutex
	current string
	printed string
	last    model.Message
	seen    map[string]bool
}

func newPrinter(out io.Writer, styles citation.Styles) *printer {
	return &printer{
		out:      out,
		renderer: citation.NewRenderer(styles),
		errStyle: styles.Unresolved,
		seen:     make(map[string]bool),
	}
}

// update handles one message change from the stream consumer.
func (p *printer) update(m model.Message) {
	if m.Type != model.MessageTypeAssistant {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if m.Error {
		p.finishLocked()
		if !p.seen[m.ID] {
			fmt.Fprintln(p.out, p.errStyle.Render("! "+m.Content))
			p.seen[m.ID] = true
		}
		return
	}
	if p.seen[m.ID] {
		return
	}

	if m.ID != p.current {
		p.finishLocked()
		p.current = m.ID
		p.printed = ""
	}
	p.last = m

	body := stablePrefix(p.renderer.Body(citation.ResolveMessage(m)))
	if !strings.HasPrefix(body, p.printed) {
		// A marker changed shape mid-stream; restart the line.
		fmt.Fprint(p.out, "\n")
		p.printed = ""
	}
	fmt.Fprint(p.out, body[len(p.printed):])
	p.printed = body
}

// snapshot handles a full list from the live feed. An answer is finished
// once a later answer starts.
func (p *printer) snapshot(messages []model.Message) {
	for _, m := range messages {
		p.update(m)
	}
}

// finish writes whatever remains of the current answer and its footnotes.
func (p *printer) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.finishLocked()
}

func (p *printer) finishLocked() {
	if p.current == "" {
		return
	}

	segments := citation.ResolveMessage(p.last)
	body := p.renderer.Body(segments)
	if strings.HasPrefix(body, p.printed) {
		fmt.Fprint(p.out, body[len(p.printed):])
	} else {
		fmt.Fprint(p.out, "\n"+body)
	}
	fmt.Fprintln(p.out, p.renderer.Footnotes(segments))

	p.seen[p.current] = true
	p.current, p.printed, p.last = "", "", model.Message{}
}

// stablePrefix holds back a trailing "[" that may still become a marker.
func stablePrefix(s string) string {
	open := strings.LastIndex(s, "[")
	if open >= 0 && open > strings.LastIndex(s, "]") {
		return s[:open]
	}
	return s
}
