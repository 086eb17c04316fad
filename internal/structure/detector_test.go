package structure

import (
	"strings"
	"testing"
)

func TestDetectInvoiceScenario(t *testing.T) {
	text := "INVOICE\n\nVendor: Acme Co\nTotal: 500\n\n- Item A\n- Item B"
	s := Detect(text)

	if len(s.Headings) != 1 {
		t.Fatalf("headings = %d, want 1", len(s.Headings))
	}
	if s.Headings[0].Text != "INVOICE" || s.Headings[0].Level != 1 {
		t.Errorf("heading = %+v, want INVOICE level 1", s.Headings[0])
	}

	if len(s.KeyValuePairs) != 2 {
		t.Fatalf("key-value pairs = %d, want 2", len(s.KeyValuePairs))
	}
	if s.KeyValuePairs[0].Key != "Vendor" || s.KeyValuePairs[0].Value != "Acme Co" {
		t.Errorf("kv[0] = %+v, want Vendor -> Acme Co", s.KeyValuePairs[0])
	}
	if s.KeyValuePairs[1].Key != "Total" || s.KeyValuePairs[1].Value != "500" {
		t.Errorf("kv[1] = %+v, want Total -> 500", s.KeyValuePairs[1])
	}

	if len(s.Lists) != 1 {
		t.Fatalf("lists = %d, want 1", len(s.Lists))
	}
	list := s.Lists[0]
	if list.Ordered {
		t.Errorf("list should be unordered")
	}
	if len(list.Items) != 2 || list.Items[0].Text != "Item A" || list.Items[1].Text != "Item B" {
		t.Errorf("list items = %+v, want [Item A, Item B]", list.Items)
	}
}

func TestRenderInvoiceScenarioOrder(t *testing.T) {
	s := Detect("INVOICE\n\nVendor: Acme Co\nTotal: 500\n\n- Item A\n- Item B")
	rendered := Render(s, DefaultRenderOptions())

	heading := strings.Index(rendered.Markdown, "# INVOICE")
	vendor := strings.Index(rendered.Markdown, "**Vendor:** Acme Co")
	item := strings.Index(rendered.Markdown, "- Item A")

	if heading < 0 || vendor < 0 || item < 0 {
		t.Fatalf("missing sections in markdown:\n%s", rendered.Markdown)
	}
	if !(heading < vendor && vendor < item) {
		t.Errorf("category order wrong: heading=%d vendor=%d item=%d\n%s",
			heading, vendor, item, rendered.Markdown)
	}
}

func TestDetectTableRoundTrip(t *testing.T) {
	text := "Name | Qty | Price\nWidget | 2 | 3.50\nGadget | 1 | 9.99"
	s := Detect(text)

	if len(s.Tables) != 1 {
		t.Fatalf("tables = %d, want 1", len(s.Tables))
	}
	table := s.Tables[0]
	if len(table.Header) != 3 {
		t.Fatalf("header cells = %d, want 3", len(table.Header))
	}
	if len(table.Rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(table.Rows))
	}

	rendered := Render(s, DefaultRenderOptions())
	lines := strings.Split(rendered.Markdown, "\n")
	if len(lines) < 2 {
		t.Fatalf("markdown too short:\n%s", rendered.Markdown)
	}
	separator := lines[1]
	if got := strings.Count(separator, "---"); got != len(table.Header) {
		t.Errorf("separator cells = %d, want %d (line %q)", got, len(table.Header), separator)
	}
}

func TestDetectColumnarTable(t *testing.T) {
	text := "Name    Qty    Price\nWidget    2    3.50\nGadget    1    9.99"
	s := Detect(text)

	if len(s.Tables) != 1 {
		t.Fatalf("tables = %d, want 1 (got %+v)", len(s.Tables), s)
	}
	if len(s.Tables[0].Header) != 3 {
		t.Errorf("header cells = %d, want 3", len(s.Tables[0].Header))
	}
}

func TestDetectOrderedList(t *testing.T) {
	text := "Steps\n\n1. First step here\n2. Second step here\n3. Third step here\nTrailing prose paragraph continues the document with more words."
	s := Detect(text)

	if len(s.Lists) != 1 {
		t.Fatalf("lists = %d, want 1", len(s.Lists))
	}
	if !s.Lists[0].Ordered {
		t.Errorf("list should be ordered")
	}
	if len(s.Lists[0].Items) != 3 {
		t.Errorf("items = %d, want 3", len(s.Lists[0].Items))
	}
	if s.Lists[0].Items[0].Text != "First step here" {
		t.Errorf("item[0] = %q, marker not stripped", s.Lists[0].Items[0].Text)
	}
}

func TestDetectListGapBridging(t *testing.T) {
	// A single noise line between items must not split the list.
	text := "- alpha beta gamma delta epsilon zeta eta theta iota kappa lambda mu nu xi\nnoise line that is long enough to be a plain paragraph not a heading here\n- omicron pi rho sigma tau upsilon phi chi psi omega alpha beta gamma delta"
	s := Detect(text)

	if len(s.Lists) != 1 {
		t.Fatalf("lists = %d, want 1 (gap within limit)", len(s.Lists))
	}
	if len(s.Lists[0].Items) != 2 {
		t.Errorf("items = %d, want 2", len(s.Lists[0].Items))
	}
}

func TestDetectPageBreakNotHeading(t *testing.T) {
	text := "First page prose line that is long enough to be an ordinary paragraph here.\n=== PAGE BREAK ===\nSecond page prose line that is long enough to be an ordinary paragraph too."
	s := Detect(text)

	if len(s.Headings) != 0 {
		t.Errorf("headings = %+v, page break marker must not classify", s.Headings)
	}
	if len(s.Paragraphs) != 2 {
		t.Errorf("paragraphs = %d, want 2 (marker splits them)", len(s.Paragraphs))
	}
}

func TestDetectShortLineHeadingAtBoundaries(t *testing.T) {
	// Document start counts as preceded-by-blank, document end as
	// followed-by-blank.
	s := Detect("Quarterly Report")
	if len(s.Headings) != 1 || s.Headings[0].Level != 2 {
		t.Fatalf("single short line should be a level-2 heading, got %+v", s.Headings)
	}

	s = Detect("A long opening paragraph sentence that continues for quite a while here.\n\nClosing Note")
	if len(s.Headings) != 1 || s.Headings[0].Text != "Closing Note" {
		t.Errorf("trailing short line should be a heading, got %+v", s.Headings)
	}
}

func TestDetectEmptyText(t *testing.T) {
	s := Detect("")
	if !s.IsEmpty() {
		t.Errorf("empty input should yield empty structure: %+v", s)
	}
}

func TestRenderStripPositions(t *testing.T) {
	s := Detect("INVOICE\n\nVendor: Acme Co\nTotal: 500")
	opts := DefaultRenderOptions()
	opts.IncludePositionalData = false
	rendered := Render(s, opts)

	if rendered.Structure.Headings[0].Position != nil {
		t.Errorf("heading position should be stripped")
	}
	if rendered.Structure.KeyValuePairs[0].Position != nil {
		t.Errorf("key-value position should be stripped")
	}
	// Source structure stays intact.
	if s.Headings[0].Position == nil {
		t.Errorf("input structure must not be mutated")
	}
}

func TestRenderCategoryToggles(t *testing.T) {
	s := Detect("INVOICE\n\n- Item A\n- Item B\n\nName | Qty\nWidget | 2")
	opts := DefaultRenderOptions()
	opts.DetectLists = false
	opts.DetectTables = false
	rendered := Render(s, opts)

	if strings.Contains(rendered.Markdown, "Item A") {
		t.Errorf("lists should be excluded:\n%s", rendered.Markdown)
	}
	if strings.Contains(rendered.Markdown, "---") {
		t.Errorf("tables should be excluded:\n%s", rendered.Markdown)
	}
	if !strings.Contains(rendered.Markdown, "# INVOICE") {
		t.Errorf("heading should remain:\n%s", rendered.Markdown)
	}
}

func TestSegmentsConfidences(t *testing.T) {
	s := Detect("INVOICE\n\nVendor: Acme Co\nTotal: 500\n\n- Item A\n- Item B\n\nName | Qty\nWidget | 2\n\nA closing paragraph long enough to stay prose in this document right here.")
	segments := Segments(s)

	want := map[SegmentType]float64{
		SegmentHeading:   0.9,
		SegmentKeyValue:  0.85,
		SegmentList:      0.8,
		SegmentParagraph: 0.8,
		SegmentTable:     0.75,
	}

	seen := map[SegmentType]bool{}
	for _, seg := range segments {
		seen[seg.Type] = true
		if wantConf, ok := want[seg.Type]; ok && seg.Confidence != wantConf {
			t.Errorf("segment %s confidence = %v, want %v", seg.Type, seg.Confidence, wantConf)
		}
	}
	for typ := range want {
		if !seen[typ] {
			t.Errorf("segment type %s missing from %d segments", typ, len(segments))
		}
	}
}
