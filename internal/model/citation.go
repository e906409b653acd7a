package model

// CitationMetadata locates a citation inside its source document.
type CitationMetadata struct {
	Page       int    `json:"page"`
	Chunk      int    `json:"chunk"`
	TotalPages int    `json:"total_pages"`
	Source     string `json:"source"`
}

// Citation is a retrieved passage backing an assistant answer.
type Citation struct {
	PageContent string           `json:"page_content"`
	Metadata    CitationMetadata `json:"metadata"`
}

// CitationEnvelope prefixes a stream before the response separator.
type CitationEnvelope struct {
	Context []Citation `json:"context"`
}

// SourceDocument is the retrieved document behind a RAG source.
type SourceDocument struct {
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Score    float64        `json:"score"`

	// Index is the marker id used in the answer text. Nil means the
	// source's position in its list is used instead.
	Index *int `json:"index,omitempty"`
}

// Source is a citation record returned by the authenticated RAG path.
type Source struct {
	ID       string         `json:"id"`
	Title    string         `json:"title"`
	Document SourceDocument `json:"document"`
}

// SegmentType distinguishes plain text from citation markers.
type SegmentType string

const (
	SegmentText     SegmentType = "text"
	SegmentCitation SegmentType = "citation"
)

// Segment is one renderable piece of an assistant answer.
type Segment struct {
	Type    SegmentType `json:"type"`
	Content string      `json:"content,omitempty"`

	// Marker is the raw index written in the text, e.g. 5 for [citation:5].
	Marker int `json:"marker"`
	// Display is the first-seen sequential number, starting at 1.
	Display int `json:"display,omitempty"`

	// At most one of Citation and Source is set. Both nil means the marker
	// did not resolve.
	Citation *Citation `json:"citation,omitempty"`
	Source   *Source   `json:"source,omitempty"`
}

// Resolved reports whether a citation segment points at a known reference.
func (s Segment) Resolved() bool {
	return s.Citation != nil || s.Source != nil
}
