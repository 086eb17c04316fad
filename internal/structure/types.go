/**
 * Document structure model
 *
 * Output of the heuristic structure detector. Every element carries an
 * optional position back-reference into the source lines; positions are weak
 * references used for ordering and debugging, never ownership.
 */

package structure

// Span is a half-open reference back into the source text's line numbering.
// Single-line elements have Start == End.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Heading is a detected section heading. Level 1 is an all-caps heading,
// level 2 a short blank-delimited line.
type Heading struct {
	Text     string `json:"text"`
	Level    int    `json:"level"`
	Position *Span  `json:"position,omitempty"`
}

// Paragraph is a run of consecutive unclassified lines.
type Paragraph struct {
	Text     string `json:"text"`
	Position *Span  `json:"position,omitempty"`
}

// KeyValuePair is a single `Key: Value` line with a short key.
type KeyValuePair struct {
	Key      string `json:"key"`
	Value    string `json:"value"`
	Position *Span  `json:"position,omitempty"`
}

// ListItem is one entry of a list.
type ListItem struct {
	Text     string `json:"text"`
	Position *Span  `json:"position,omitempty"`
}

// List groups consecutive list items. Ordered and unordered lists are
// tracked separately; a gap of more than two lines starts a new list.
type List struct {
	Ordered  bool       `json:"ordered"`
	Items    []ListItem `json:"items"`
	Position *Span      `json:"position,omitempty"`
}

// Table is a run of delimiter-aligned rows. The first row of the run is
// tentatively the header.
type Table struct {
	Header   []string   `json:"header"`
	Rows     [][]string `json:"rows"`
	Position *Span      `json:"position,omitempty"`
}

// DocumentStructure is the one-pass detection result. Element order within
// each category preserves first-encountered line order. It is never mutated
// after construction except for optional position stripping.
type DocumentStructure struct {
	Headings      []Heading      `json:"headings"`
	Paragraphs    []Paragraph    `json:"paragraphs"`
	Lists         []List         `json:"lists"`
	KeyValuePairs []KeyValuePair `json:"keyValuePairs"`
	Tables        []Table        `json:"tables"`
}

// IsEmpty reports whether detection found nothing at all.
func (s *DocumentStructure) IsEmpty() bool {
	return len(s.Headings) == 0 && len(s.Paragraphs) == 0 && len(s.Lists) == 0 &&
		len(s.KeyValuePairs) == 0 && len(s.Tables) == 0
}

func span(start, end int) *Span {
	return &Span{Start: start, End: end}
}
