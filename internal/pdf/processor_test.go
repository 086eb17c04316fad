package pdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/adverant/nexus/docintake-worker/internal/extract"
	"github.com/adverant/nexus/docintake-worker/internal/logging"
	"github.com/adverant/nexus/docintake-worker/internal/ocr"
)

func newTestProcessor() *Processor {
	return NewProcessor(nil, 0, 0, logging.NewLogger("pdf-test"))
}

func TestNewProcessorDefaults(t *testing.T) {
	p := newTestProcessor()
	if p.scale != 2.0 {
		t.Errorf("scale = %v, want default 2.0", p.scale)
	}
	if p.batchSize != 3 {
		t.Errorf("batchSize = %v, want default 3", p.batchSize)
	}
}

func TestLanguageForExplicitRequest(t *testing.T) {
	p := newTestProcessor()

	if got := p.languageFor("de", "es"); got != "de" {
		t.Errorf("explicit language must win, got %q", got)
	}
}

func TestLanguageForAutoTrustsSeedPage(t *testing.T) {
	p := newTestProcessor()

	if got := p.languageFor(ocr.LanguageAuto, ""); got != ocr.LanguageAuto {
		t.Errorf("no seed detection yet must run auto, got %q", got)
	}
	if got := p.languageFor(ocr.LanguageAuto, "es"); got != "es" {
		t.Errorf("later batches must reuse the seed page's language, got %q", got)
	}
	if got := p.languageFor("", ""); got != ocr.LanguageAuto {
		t.Errorf("missing detection should fall back to auto, got %q", got)
	}
}

func TestAssembleJoinsWithPageBreakMarker(t *testing.T) {
	p := newTestProcessor()
	pages := []pageResult{
		{text: "page one", confidence: 1.0},
		{text: "page two", confidence: 0.5},
	}

	result := p.assemble(pages, "en", 1)

	want := "page one\n" + extract.DefaultPageBreakMarker + "\npage two"
	if result.Text != want {
		t.Errorf("Text = %q, want %q", result.Text, want)
	}
	if result.Confidence != 0.75 {
		t.Errorf("Confidence = %v, want mean 0.75", result.Confidence)
	}
	if result.PageCount != 2 || result.OCRPages != 1 {
		t.Errorf("counts = %d/%d, want 2/1", result.PageCount, result.OCRPages)
	}
	if result.Language != "en" {
		t.Errorf("Language = %q, want requested language", result.Language)
	}
}

func TestAssembleSkipsBlankPagesInConfidence(t *testing.T) {
	p := newTestProcessor()
	pages := []pageResult{
		{text: "content", confidence: 0.8},
		{text: "   ", confidence: 0.0},
	}

	result := p.assemble(pages, "en", 2)
	if result.Confidence != 0.8 {
		t.Errorf("Confidence = %v, blank pages must not dilute the mean", result.Confidence)
	}
	// Blank pages still occupy a slot in the joined text.
	if got := strings.Count(result.Text, extract.DefaultPageBreakMarker); got != 1 {
		t.Errorf("page break markers = %d, want 1", got)
	}
}

func TestAssembleAutoLanguageFromDetection(t *testing.T) {
	p := newTestProcessor()
	pages := []pageResult{{text: "hola", confidence: 0.9, detected: "es"}}

	result := p.assemble(pages, ocr.LanguageAuto, 1)
	if result.Language != "es" {
		t.Errorf("Language = %q, want detected language", result.Language)
	}
	if result.DetectedLanguage != "es" {
		t.Errorf("DetectedLanguage = %q, want es", result.DetectedLanguage)
	}
}

func TestAssembleAllBlank(t *testing.T) {
	p := newTestProcessor()
	pages := []pageResult{{text: ""}, {text: ""}}

	result := p.assemble(pages, "en", 0)
	if result.Confidence != 0 {
		t.Errorf("Confidence = %v, want 0 for blank documents", result.Confidence)
	}
}

func TestPageProgressMapsToDocumentScale(t *testing.T) {
	p := newTestProcessor()

	var got []int
	cb := p.pageProgress(1, 4, func(percent int) { got = append(got, percent) })
	cb(0)
	cb(100)

	if len(got) != 2 || got[0] != 25 || got[1] != 50 {
		t.Errorf("progress = %v, want [25 50]", got)
	}

	if p.pageProgress(0, 4, nil) != nil {
		t.Errorf("nil callback should stay nil")
	}
}

// blankPDF builds a valid document with the given number of empty pages, no
// content streams and so no text layer, forcing every page through OCR.
func blankPDF(t *testing.T, pageCount int) []byte {
	t.Helper()

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")

	objCount := 2 + pageCount
	offsets := make([]int, objCount+1)
	write := func(n int, body string) {
		offsets[n] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", n, body)
	}

	write(1, "<< /Type /Catalog /Pages 2 0 R >>")

	kids := make([]string, pageCount)
	for i := 0; i < pageCount; i++ {
		kids[i] = fmt.Sprintf("%d 0 R", 3+i)
	}
	write(2, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), pageCount))
	for i := 0; i < pageCount; i++ {
		write(3+i, "<< /Type /Page /Parent 2 0 R /MediaBox [0 0 200 200] >>")
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", objCount+1)
	for n := 1; n <= objCount; n++ {
		fmt.Fprintf(&buf, "%010d 00000 n \n", offsets[n])
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", objCount+1, xref)

	return buf.Bytes()
}

// stubOCR is a canned provider; it records the languages it was asked for.
type stubOCR struct {
	mu       sync.Mutex
	name     string
	err      error
	text     string
	detected string
	langs    []string
}

func (s *stubOCR) ExtractText(ctx context.Context, data []byte, mimeType string, language string, onProgress ocr.ProgressFunc) (*ocr.Result, error) {
	s.mu.Lock()
	s.langs = append(s.langs, language)
	s.mu.Unlock()

	if s.err != nil {
		return nil, s.err
	}

	res := &ocr.Result{Text: s.text, Confidence: 0.9, Language: language}
	if language == ocr.LanguageAuto && s.detected != "" {
		res.Language = s.detected
		res.DetectedLanguage = s.detected
	}
	return res, nil
}

func (s *stubOCR) SupportsFileType(mimeType string) bool { return mimeType == "image/png" }
func (s *stubOCR) SupportedFileTypes() []string          { return []string{"image/png"} }
func (s *stubOCR) Name() string                          { return s.name }
func (s *stubOCR) Dispose() error                        { return nil }

func TestProcessReportsSubstitutedProvider(t *testing.T) {
	broken := &stubOCR{name: "premium", err: errors.New("engine down")}
	backup := &stubOCR{name: "backup", text: "recovered text"}

	factory := ocr.NewFactory("backup")
	factory.Register("premium", func() ocr.Provider { return broken })
	factory.Register("backup", func() ocr.Provider { return backup })

	// Trip the breaker on the requested provider.
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		prov, err := factory.GetProvider("premium")
		if err != nil {
			t.Fatalf("GetProvider: %v", err)
		}
		if _, err := prov.ExtractText(ctx, []byte("x"), "image/png", "en", nil); err == nil {
			t.Fatalf("expected failure from broken provider")
		}
	}

	p := NewProcessor(factory, 1.0, 0, logging.NewLogger("pdf-test"))
	result, err := p.Process(ctx, blankPDF(t, 1), Options{Language: "en", Provider: "premium"})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	if result.ProviderUsed != "backup" {
		t.Errorf("ProviderUsed = %q, want the substituted fallback", result.ProviderUsed)
	}
	if !strings.Contains(result.Text, "recovered text") {
		t.Errorf("Text = %q, want the fallback's output", result.Text)
	}
	if result.OCRPages != 1 {
		t.Errorf("OCRPages = %d, want 1", result.OCRPages)
	}
}

func TestProcessSeedsLanguageFromFirstOCRPage(t *testing.T) {
	stub := &stubOCR{name: "backup", text: "hola", detected: "es"}

	factory := ocr.NewFactory("backup")
	factory.Register("backup", func() ocr.Provider { return stub })

	p := NewProcessor(factory, 1.0, 0, logging.NewLogger("pdf-test"))
	result, err := p.Process(context.Background(), blankPDF(t, 2), Options{Language: ocr.LanguageAuto, Provider: "backup"})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	want := []string{ocr.LanguageAuto, "es"}
	if len(stub.langs) != len(want) || stub.langs[0] != want[0] || stub.langs[1] != want[1] {
		t.Errorf("requested languages = %v, want %v", stub.langs, want)
	}
	if result.DetectedLanguage != "es" {
		t.Errorf("DetectedLanguage = %q, want es", result.DetectedLanguage)
	}
	if result.Language != "es" {
		t.Errorf("Language = %q, want detected language", result.Language)
	}
}

func TestAssembleDetectionSkipsTextLayerPages(t *testing.T) {
	p := newTestProcessor()
	pages := []pageResult{
		{text: "embedded text layer", confidence: 0.95},
		{text: "hola", confidence: 0.9, detected: "es"},
	}

	result := p.assemble(pages, ocr.LanguageAuto, 1)
	if result.DetectedLanguage != "es" {
		t.Errorf("DetectedLanguage = %q, detection must come from the first page that has one", result.DetectedLanguage)
	}
	if result.Language != "es" {
		t.Errorf("Language = %q, want es", result.Language)
	}
}

func TestExtractTextLayerMalformedInput(t *testing.T) {
	p := newTestProcessor()

	texts := p.extractTextLayer([]byte("not a pdf at all"), 3)
	if len(texts) != 3 {
		t.Fatalf("length = %d, want one slot per page", len(texts))
	}
	for i, text := range texts {
		if text != "" {
			t.Errorf("page %d text = %q, want empty on parse failure", i, text)
		}
	}
}
