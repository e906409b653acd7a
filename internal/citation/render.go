package citation

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/reelrules/regbot-gateway/internal/model"
)

// Styles used by the terminal renderer.
type Styles struct {
	Marker     lipgloss.Style
	Unresolved lipgloss.Style
	Footnote   lipgloss.Style
	Source     lipgloss.Style
}

// DefaultStyles returns the colour scheme used by regchat.
func DefaultStyles() Styles {
	return Styles{
		Marker:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#2AA198")),
		Unresolved: lipgloss.NewStyle().Foreground(lipgloss.Color("#6C7A89")),
		Footnote:   lipgloss.NewStyle().Foreground(lipgloss.Color("#93A1A1")),
		Source:     lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("#268BD2")),
	}
}

// PlainStyles renders without any terminal escapes.
func PlainStyles() Styles {
	s := lipgloss.NewStyle()
	return Styles{Marker: s, Unresolved: s, Footnote: s, Source: s}
}

// Renderer turns segments into terminal text.
type Renderer struct {
	styles Styles
}

// NewRenderer creates a renderer with the given styles.
func NewRenderer(styles Styles) *Renderer {
	return &Renderer{styles: styles}
}

// Render draws the answer body followed by a footnote per cited reference.
func (r *Renderer) Render(segments []model.Segment) string {
	return r.Body(segments) + r.Footnotes(segments)
}

// Body draws the answer text with citation markers replaced.
func (r *Renderer) Body(segments []model.Segment) string {
	var b strings.Builder
	for _, s := range segments {
		switch {
		case s.Type == model.SegmentText:
			b.WriteString(s.Content)
		case s.Resolved():
			b.WriteString(r.styles.Marker.Render(fmt.Sprintf("[%d]", s.Display)))
		default:
			b.WriteString(r.styles.Unresolved.Render(s.Content))
		}
	}
	return b.String()
}

// Footnotes draws the reference list, or nothing when no marker resolved.
func (r *Renderer) Footnotes(segments []model.Segment) string {
	refs := Referenced(segments)
	if len(refs) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("\n")
	for _, s := range refs {
		b.WriteString("\n")
		b.WriteString(r.styles.Footnote.Render(fmt.Sprintf("[%d] ", s.Display)))
		b.WriteString(r.styles.Source.Render(label(s)))
	}
	return b.String()
}

// RenderMessage resolves and renders a message in one step.
func (r *Renderer) RenderMessage(m model.Message) string {
	return r.Render(ResolveMessage(m))
}

func label(s model.Segment) string {
	if s.Citation != nil {
		meta := s.Citation.Metadata
		if meta.TotalPages > 0 {
			return fmt.Sprintf("%s p.%d/%d", meta.Source, meta.Page, meta.TotalPages)
		}
		return fmt.Sprintf("%s p.%d", meta.Source, meta.Page)
	}
	if s.Source.Title != "" {
		return s.Source.Title
	}
	return s.Source.ID
}
