/**
 * Markup Renderer
 *
 * Converts a detected structure into markdown. Rendering order is fixed by
 * category (headings, paragraphs, key-value pairs, lists, tables); callers
 * needing true document order use the structure's position data instead.
 */

package structure

import (
	"fmt"
	"strings"
)

// RenderOptions is the set of recognized rendering toggles.
type RenderOptions struct {
	// IncludePositionalData keeps position spans in the returned
	// structure; when false they are stripped before external use.
	IncludePositionalData bool
	// EnhanceFormatting is recognized but currently reserved.
	EnhanceFormatting bool
	// Category toggles: exclude a category from the markdown even when
	// present in the structure.
	DetectHeadings bool
	DetectLists    bool
	DetectTables   bool
}

// DefaultRenderOptions enables every category and keeps positions.
func DefaultRenderOptions() RenderOptions {
	return RenderOptions{
		IncludePositionalData: true,
		DetectHeadings:        true,
		DetectLists:           true,
		DetectTables:          true,
	}
}

// RenderResult pairs the markdown text with the (possibly stripped)
// structure it was rendered from.
type RenderResult struct {
	Markdown  string
	Structure *DocumentStructure
}

// Render produces markdown from a detected structure. Pure function: the
// input structure is never modified, stripping works on a copy.
func Render(s *DocumentStructure, opts RenderOptions) *RenderResult {
	var sections []string

	if opts.DetectHeadings {
		for _, h := range s.Headings {
			sections = append(sections, fmt.Sprintf("%s %s", strings.Repeat("#", h.Level), h.Text))
		}
	}

	for _, p := range s.Paragraphs {
		sections = append(sections, p.Text)
	}

	for _, kv := range s.KeyValuePairs {
		sections = append(sections, fmt.Sprintf("**%s:** %s", kv.Key, kv.Value))
	}

	if opts.DetectLists {
		for _, list := range s.Lists {
			var lines []string
			for i, item := range list.Items {
				if list.Ordered {
					lines = append(lines, fmt.Sprintf("%d. %s", i+1, item.Text))
				} else {
					lines = append(lines, fmt.Sprintf("- %s", item.Text))
				}
			}
			sections = append(sections, strings.Join(lines, "\n"))
		}
	}

	if opts.DetectTables {
		for _, t := range s.Tables {
			sections = append(sections, renderTable(t))
		}
	}

	out := s
	if !opts.IncludePositionalData {
		out = stripPositions(s)
	}

	return &RenderResult{
		Markdown:  strings.Join(sections, "\n\n"),
		Structure: out,
	}
}

// renderTable emits a markdown table: header row, a `---` separator cell per
// header column, then the data rows.
func renderTable(t Table) string {
	var b strings.Builder

	writeRow := func(cells []string) {
		b.WriteString("| ")
		b.WriteString(strings.Join(cells, " | "))
		b.WriteString(" |\n")
	}

	writeRow(t.Header)

	separators := make([]string, len(t.Header))
	for i := range separators {
		separators[i] = "---"
	}
	writeRow(separators)

	for _, row := range t.Rows {
		writeRow(row)
	}

	return strings.TrimSuffix(b.String(), "\n")
}

// stripPositions deep-copies the structure with all position spans removed.
func stripPositions(s *DocumentStructure) *DocumentStructure {
	out := &DocumentStructure{
		Headings:      make([]Heading, len(s.Headings)),
		Paragraphs:    make([]Paragraph, len(s.Paragraphs)),
		Lists:         make([]List, len(s.Lists)),
		KeyValuePairs: make([]KeyValuePair, len(s.KeyValuePairs)),
		Tables:        make([]Table, len(s.Tables)),
	}

	for i, h := range s.Headings {
		h.Position = nil
		out.Headings[i] = h
	}
	for i, p := range s.Paragraphs {
		p.Position = nil
		out.Paragraphs[i] = p
	}
	for i, l := range s.Lists {
		l.Position = nil
		items := make([]ListItem, len(l.Items))
		for j, item := range l.Items {
			item.Position = nil
			items[j] = item
		}
		l.Items = items
		out.Lists[i] = l
	}
	for i, kv := range s.KeyValuePairs {
		kv.Position = nil
		out.KeyValuePairs[i] = kv
	}
	for i, t := range s.Tables {
		t.Position = nil
		out.Tables[i] = t
	}

	return out
}
