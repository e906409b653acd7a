// Package citation splits assistant answers into text and citation
// segments.
//
// Markers look like [citation:N]. N is the citation's position in its list,
// or a source's document.index when the source carries one. Every distinct
// marker is given a display number in first-seen order starting at 1, and
// repeated markers reuse their number. The raw N is kept on the segment.
package citation

import (
	"regexp"
	"strconv"

	"github.com/reelrules/regbot-gateway/internal/model"
)

var markerPattern = regexp.MustCompile(`\[citation:(\d+)\]`)

type ref struct {
	citation *model.Citation
	source   *model.Source
}

// Resolve segments text against a citation list indexed by position.
func Resolve(text string, citations []model.Citation) []model.Segment {
	index := make(map[int]ref, len(citations))
	for i := range citations {
		index[i] = ref{citation: &citations[i]}
	}
	return resolve(text, index)
}

// ResolveSources segments text against RAG sources. A source's
// document.index wins over its position.
func ResolveSources(text string, sources []model.Source) []model.Segment {
	index := make(map[int]ref, len(sources))
	for i := range sources {
		key := i
		if sources[i].Document.Index != nil {
			key = *sources[i].Document.Index
		}
		index[key] = ref{source: &sources[i]}
	}
	return resolve(text, index)
}

// ResolveMessage picks the reference list carried by m.
func ResolveMessage(m model.Message) []model.Segment {
	if len(m.Sources) > 0 {
		return ResolveSources(m.Content, m.Sources)
	}
	return Resolve(m.Content, m.Citations)
}

func resolve(text string, index map[int]ref) []model.Segment {
	var segments []model.Segment
	display := make(map[int]int)
	last := 0

	for _, loc := range markerPattern.FindAllStringSubmatchIndex(text, -1) {
		if loc[0] > last {
			segments = append(segments, model.Segment{Type: model.SegmentText, Content: text[last:loc[0]]})
		}
		last = loc[1]

		marker, err := strconv.Atoi(text[loc[2]:loc[3]])
		if err != nil {
			// too many digits to be an index; keep it as text
			segments = append(segments, model.Segment{Type: model.SegmentText, Content: text[loc[0]:loc[1]]})
			continue
		}

		n, seen := display[marker]
		if !seen {
			n = len(display) + 1
			display[marker] = n
		}

		r := index[marker]
		segments = append(segments, model.Segment{
			Type:     model.SegmentCitation,
			Content:  text[loc[0]:loc[1]],
			Marker:   marker,
			Display:  n,
			Citation: r.citation,
			Source:   r.source,
		})
	}

	if last < len(text) {
		segments = append(segments, model.Segment{Type: model.SegmentText, Content: text[last:]})
	}
	return segments
}

// Referenced returns the resolved citation segments in display order,
// one per distinct marker.
func Referenced(segments []model.Segment) []model.Segment {
	var out []model.Segment
	seen := make(map[int]bool)
	for _, s := range segments {
		if s.Type != model.SegmentCitation || !s.Resolved() || seen[s.Marker] {
			continue
		}
		seen[s.Marker] = true
		out = append(out, s)
	}
	return out
}
