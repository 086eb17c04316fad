/**
 * Segment derivation
 *
 * Flattens a detected structure into persistable segments. Confidence per
 * segment type is a fixed heuristic reflecting relative OCR trust for that
 * structural pattern, not a measured value.
 */

package structure

import (
	"fmt"
	"strings"
)

// SegmentType enumerates the persisted structural categories.
type SegmentType string

const (
	SegmentHeading   SegmentType = "heading"
	SegmentKeyValue  SegmentType = "key_value"
	SegmentTable     SegmentType = "table"
	SegmentParagraph SegmentType = "paragraph"
	SegmentList      SegmentType = "list"
)

// Fixed confidence per segment type.
const (
	confidenceHeading   = 0.9
	confidenceKeyValue  = 0.85
	confidenceList      = 0.8
	confidenceParagraph = 0.8
	confidenceTable     = 0.75
)

// Segment is one structurally classified unit of document text, created
// once at ingestion and immutable thereafter. The owning document reference
// is attached by the persistence layer.
type Segment struct {
	Type       SegmentType            `json:"segment_type"`
	Text       string                 `json:"segment_text"`
	Markdown   string                 `json:"segment_markdown"`
	Data       map[string]interface{} `json:"segment_data"`
	Position   *Span                  `json:"position_data,omitempty"`
	Confidence float64                `json:"confidence_score"`
}

// Segments derives persistable segments from a structure, one per element
// (lists stay one segment carrying their items in Data).
func Segments(s *DocumentStructure) []Segment {
	var segments []Segment

	for _, h := range s.Headings {
		segments = append(segments, Segment{
			Type:     SegmentHeading,
			Text:     h.Text,
			Markdown: fmt.Sprintf("%s %s", strings.Repeat("#", h.Level), h.Text),
			Data: map[string]interface{}{
				"level": h.Level,
			},
			Position:   h.Position,
			Confidence: confidenceHeading,
		})
	}

	for _, kv := range s.KeyValuePairs {
		segments = append(segments, Segment{
			Type:     SegmentKeyValue,
			Text:     fmt.Sprintf("%s: %s", kv.Key, kv.Value),
			Markdown: fmt.Sprintf("**%s:** %s", kv.Key, kv.Value),
			Data: map[string]interface{}{
				"key":   kv.Key,
				"value": kv.Value,
			},
			Position:   kv.Position,
			Confidence: confidenceKeyValue,
		})
	}

	for _, list := range s.Lists {
		texts := make([]string, len(list.Items))
		var md []string
		for i, item := range list.Items {
			texts[i] = item.Text
			if list.Ordered {
				md = append(md, fmt.Sprintf("%d. %s", i+1, item.Text))
			} else {
				md = append(md, fmt.Sprintf("- %s", item.Text))
			}
		}
		segments = append(segments, Segment{
			Type:     SegmentList,
			Text:     strings.Join(texts, "\n"),
			Markdown: strings.Join(md, "\n"),
			Data: map[string]interface{}{
				"ordered": list.Ordered,
				"items":   texts,
			},
			Position:   list.Position,
			Confidence: confidenceList,
		})
	}

	for _, p := range s.Paragraphs {
		segments = append(segments, Segment{
			Type:       SegmentParagraph,
			Text:       p.Text,
			Markdown:   p.Text,
			Data:       map[string]interface{}{},
			Position:   p.Position,
			Confidence: confidenceParagraph,
		})
	}

	for _, t := range s.Tables {
		rows := make([]string, 0, len(t.Rows)+1)
		rows = append(rows, strings.Join(t.Header, " | "))
		for _, r := range t.Rows {
			rows = append(rows, strings.Join(r, " | "))
		}
		segments = append(segments, Segment{
			Type:     SegmentTable,
			Text:     strings.Join(rows, "\n"),
			Markdown: renderTable(t),
			Data: map[string]interface{}{
				"header": t.Header,
				"rows":   t.Rows,
			},
			Position:   t.Position,
			Confidence: confidenceTable,
		})
	}

	return segments
}
