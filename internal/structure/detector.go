/**
 * Document Structure Detector
 *
 * Single forward pass over lines with an explicit, ordered list of line
 * classifiers: heading, key-value, list item, table row, then paragraph as
 * the fallback. The priority order resolves ambiguous lines (a short all-caps
 * key-value line is a heading) and must stay stable: reordering classifiers
 * changes output.
 */

package structure

import (
	"regexp"
	"strings"
	"unicode"
)

const (
	headingMinLen      = 4
	headingMaxLen      = 49
	shortHeadingMaxLen = 50
	keyMaxLen          = 30
	keyMaxWords        = 6
	// listGapLimit bridges minor OCR noise: an item joins the previous
	// list when at most this many lines separate them.
	listGapLimit = 2
)

var (
	orderedMarker   = regexp.MustCompile(`^\d+\.\s+`)
	unorderedMarker = regexp.MustCompile(`^[-•*]\s+`)
	multiSpaceRun   = regexp.MustCompile(` {2,}`)
	// Page-break markers inserted during multi-page extraction are
	// first-class delimiters, not content.
	pageBreakLine = regexp.MustCompile(`^=== .+ ===$`)
)

type lineKind int

const (
	kindBlank lineKind = iota
	kindHeading
	kindKeyValue
	kindListItem
	kindTableRow
	kindParagraph
)

// classifier is one predicate in the ordered evaluation list. ctx gives
// access to surrounding lines for lookbehind/lookahead predicates.
type classifier struct {
	kind  lineKind
	match func(ctx *detectContext, index int, line string) bool
}

type detectContext struct {
	lines   []string
	inTable bool
}

// classifiers in priority order. The first match wins; paragraph is the
// implicit fallback and has no predicate here.
var classifiers = []classifier{
	{kindHeading, matchHeading},
	{kindKeyValue, matchKeyValue},
	{kindListItem, matchListItem},
	{kindTableRow, matchTableRow},
}

// Detect segments raw text into headings, paragraphs, key-value pairs,
// lists and tables in one linear pass.
func Detect(text string) *DocumentStructure {
	result := &DocumentStructure{
		Headings:      []Heading{},
		Paragraphs:    []Paragraph{},
		Lists:         []List{},
		KeyValuePairs: []KeyValuePair{},
		Tables:        []Table{},
	}

	ctx := &detectContext{lines: strings.Split(text, "\n")}

	var (
		para      []string
		paraStart int

		currentTable     *Table
		lastOrderedIdx   = -listGapLimit - 1
		lastUnorderedIdx = -listGapLimit - 1
	)

	flushParagraph := func(endIdx int) {
		if len(para) == 0 {
			return
		}
		result.Paragraphs = append(result.Paragraphs, Paragraph{
			Text:     strings.Join(para, " "),
			Position: span(paraStart, endIdx),
		})
		para = nil
	}

	closeTable := func() {
		if currentTable != nil {
			result.Tables = append(result.Tables, *currentTable)
			currentTable = nil
		}
		ctx.inTable = false
	}

	for i, raw := range ctx.lines {
		line := strings.TrimSpace(raw)

		if isDelimiterLine(line) {
			flushParagraph(i - 1)
			closeTable()
			continue
		}

		kind := kindParagraph
		for _, c := range classifiers {
			if c.match(ctx, i, line) {
				kind = c.kind
				break
			}
		}

		if kind != kindParagraph {
			flushParagraph(i - 1)
		}
		if kind != kindTableRow {
			closeTable()
		}

		switch kind {
		case kindHeading:
			level := 2
			if isAllCaps(line) {
				level = 1
			}
			result.Headings = append(result.Headings, Heading{
				Text:     line,
				Level:    level,
				Position: span(i, i),
			})

		case kindKeyValue:
			key, value, _ := strings.Cut(line, ":")
			result.KeyValuePairs = append(result.KeyValuePairs, KeyValuePair{
				Key:      strings.TrimSpace(key),
				Value:    strings.TrimSpace(value),
				Position: span(i, i),
			})

		case kindListItem:
			ordered := orderedMarker.MatchString(line)
			item := ListItem{
				Text:     stripListMarker(line, ordered),
				Position: span(i, i),
			}

			lastIdx := &lastUnorderedIdx
			if ordered {
				lastIdx = &lastOrderedIdx
			}

			if appendToOpenList(result, ordered, i, *lastIdx, item) {
				*lastIdx = i
				break
			}

			result.Lists = append(result.Lists, List{
				Ordered:  ordered,
				Items:    []ListItem{item},
				Position: span(i, i),
			})
			*lastIdx = i

		case kindTableRow:
			cells := splitCells(line)
			if currentTable == nil {
				// Tentatively treat the opening row as the header.
				currentTable = &Table{
					Header:   cells,
					Rows:     [][]string{},
					Position: span(i, i),
				}
				ctx.inTable = true
			} else {
				currentTable.Rows = append(currentTable.Rows, cells)
				currentTable.Position.End = i
			}

		default:
			if len(para) == 0 {
				paraStart = i
			}
			para = append(para, line)
		}
	}

	flushParagraph(len(ctx.lines) - 1)
	closeTable()

	return result
}

// appendToOpenList extends the most recent list of the same kind when the
// item is within the gap limit. Returns false when a new list must start.
func appendToOpenList(result *DocumentStructure, ordered bool, idx, lastIdx int, item ListItem) bool {
	if idx-lastIdx > listGapLimit {
		return false
	}
	for li := len(result.Lists) - 1; li >= 0; li-- {
		if result.Lists[li].Ordered == ordered {
			result.Lists[li].Items = append(result.Lists[li].Items, item)
			result.Lists[li].Position.End = idx
			return true
		}
	}
	return false
}

// matchHeading recognizes an all-caps line of moderate length, or a short
// line delimited by blanks. Document boundaries count as blank: a short
// first line is blank-preceded and a short last line is blank-followed.
func matchHeading(ctx *detectContext, index int, line string) bool {
	if isAllCaps(line) && len(line) >= headingMinLen && len(line) <= headingMaxLen {
		return true
	}

	if len(line) >= shortHeadingMaxLen {
		return false
	}

	prevBlank := index == 0 || isDelimiterLine(ctx.lines[index-1])
	nextBlank := index == len(ctx.lines)-1 || isDelimiterLine(ctx.lines[index+1])

	return prevBlank && nextBlank
}

func isDelimiterLine(raw string) bool {
	line := strings.TrimSpace(raw)
	return line == "" || pageBreakLine.MatchString(line)
}

// matchKeyValue recognizes `Key: Value` with a short key, guarding against
// prose sentences that merely contain a colon.
func matchKeyValue(ctx *detectContext, index int, line string) bool {
	key, value, found := strings.Cut(line, ":")
	if !found {
		return false
	}

	key = strings.TrimSpace(key)
	value = strings.TrimSpace(value)
	if key == "" || value == "" {
		return false
	}

	return len(key) < keyMaxLen && len(strings.Fields(key)) < keyMaxWords
}

func matchListItem(ctx *detectContext, index int, line string) bool {
	return looksLikeListItem(line)
}

func looksLikeListItem(line string) bool {
	return unorderedMarker.MatchString(line) || orderedMarker.MatchString(line)
}

// matchTableRow recognizes pipe-delimited lines, or columnar lines with two
// or more multi-space runs producing at least three cells.
func matchTableRow(ctx *detectContext, index int, line string) bool {
	if strings.Contains(line, "|") {
		return true
	}

	runs := multiSpaceRun.FindAllStringIndex(line, -1)
	if len(runs) < 2 {
		return false
	}

	return len(multiSpaceRun.Split(line, -1)) >= 3
}

// splitCells extracts cell values from a table-like line.
func splitCells(line string) []string {
	if strings.Contains(line, "|") {
		parts := strings.Split(line, "|")
		cells := make([]string, 0, len(parts))
		for _, p := range parts {
			cells = append(cells, strings.TrimSpace(p))
		}
		// Leading/trailing pipes yield empty edge cells.
		if len(cells) > 0 && cells[0] == "" {
			cells = cells[1:]
		}
		if len(cells) > 0 && cells[len(cells)-1] == "" {
			cells = cells[:len(cells)-1]
		}
		return cells
	}

	parts := multiSpaceRun.Split(line, -1)
	cells := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			cells = append(cells, p)
		}
	}
	return cells
}

// stripListMarker removes the bullet or number prefix from a list item.
func stripListMarker(line string, ordered bool) string {
	if ordered {
		return strings.TrimSpace(orderedMarker.ReplaceAllString(line, ""))
	}
	return strings.TrimSpace(unorderedMarker.ReplaceAllString(line, ""))
}

// isAllCaps reports whether a line has letters and none of them lowercase.
func isAllCaps(line string) bool {
	hasLetter := false
	for _, r := range line {
		if unicode.IsLetter(r) {
			hasLetter = true
			if unicode.IsLower(r) {
				return false
			}
		}
	}
	return hasLetter
}
