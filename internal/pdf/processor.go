/**
 * PDF Page Processor
 *
 * Per-page text extraction for PDF documents. Pages with a usable embedded
 * text layer are read directly; the rest are rasterized and routed through
 * the OCR provider factory in small concurrent batches. Page texts are
 * joined with a page-break marker so downstream strategy selection can
 * split them back apart.
 */

package pdf

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"strings"
	"sync"

	"github.com/gen2brain/go-fitz"
	"github.com/ledongthuc/pdf"

	"github.com/adverant/nexus/docintake-worker/internal/errors"
	"github.com/adverant/nexus/docintake-worker/internal/extract"
	"github.com/adverant/nexus/docintake-worker/internal/logging"
	"github.com/adverant/nexus/docintake-worker/internal/ocr"
)

const (
	// baseDPI is the PDF point resolution; rasterization multiplies it by
	// the configured scale factor.
	baseDPI = 72.0

	// textLayerConfidence is assigned to pages whose embedded text layer
	// was used directly, without OCR.
	textLayerConfidence = 0.95
)

// Processor extracts text from PDF documents page by page.
type Processor struct {
	factory   *ocr.Factory
	scale     float64
	batchSize int
	log       *logging.Logger

	bufPool sync.Pool
}

// Options control a single Process call.
type Options struct {
	// Language is the requested recognition language, or ocr.LanguageAuto.
	Language string
	// Provider names the OCR provider to route rasterized pages through.
	Provider string
	// OnProgress receives document-relative progress in [0,100].
	OnProgress ocr.ProgressFunc
}

// Result is the combined outcome across all pages.
type Result struct {
	Text             string
	Confidence       float64
	Language         string
	DetectedLanguage string
	PageCount        int
	OCRPages         int
	// ProviderUsed is the name of the provider that actually recognized
	// the OCR pages, which differs from the requested one after a
	// fallback substitution. Empty when every page had a text layer.
	ProviderUsed string
}

// NewProcessor creates a PDF processor routing OCR through the given factory.
func NewProcessor(factory *ocr.Factory, scale float64, batchSize int, log *logging.Logger) *Processor {
	if scale <= 0 {
		scale = 2.0
	}
	if batchSize <= 0 {
		batchSize = 3
	}
	return &Processor{
		factory:   factory,
		scale:     scale,
		batchSize: batchSize,
		log:       log,
		bufPool: sync.Pool{
			New: func() interface{} { return new(bytes.Buffer) },
		},
	}
}

type pageResult struct {
	text       string
	confidence float64
	detected   string
}

// Process extracts text from every page of the document. Pages carrying an
// embedded text layer are used as-is; the remainder are rasterized at the
// configured scale and recognized in batches. The language detected on the
// first OCR'd page is trusted for the document; later pages only contribute
// text.
func (p *Processor) Process(ctx context.Context, data []byte, opts Options) (*Result, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, errors.NewPDFFailedError(0, fmt.Errorf("open document: %w", err))
	}
	defer doc.Close()

	pageCount := doc.NumPage()
	if pageCount == 0 {
		return nil, errors.NewPDFFailedError(0, fmt.Errorf("document has no pages"))
	}

	textLayer := p.extractTextLayer(data, pageCount)

	pages := make([]pageResult, pageCount)
	var ocrIndexes []int
	for i := 0; i < pageCount; i++ {
		if txt := strings.TrimSpace(textLayer[i]); txt != "" {
			pages[i] = pageResult{text: txt, confidence: textLayerConfidence}
			continue
		}
		ocrIndexes = append(ocrIndexes, i)
	}

	providerUsed := ""
	if len(ocrIndexes) > 0 {
		name, err := p.recognizePages(ctx, doc, pages, ocrIndexes, pageCount, opts)
		if err != nil {
			return nil, err
		}
		providerUsed = name
	}

	report(opts.OnProgress, 100)

	result := p.assemble(pages, opts.Language, len(ocrIndexes))
	result.ProviderUsed = providerUsed
	return result, nil
}

// recognizePages rasterizes and OCRs the listed pages in batches, waiting
// for each batch before starting the next so at most batchSize pages hold
// rasterized canvases at once. When language is auto, the first OCR page
// runs alone so its detected language can seed the remaining pages. Returns
// the name of the provider that handled the pages.
func (p *Processor) recognizePages(ctx context.Context, doc *fitz.Document, pages []pageResult, indexes []int, pageCount int, opts Options) (string, error) {
	provider, err := p.factory.GetProvider(opts.Provider)
	if err != nil {
		return "", err
	}

	// The seed page is the first OCR'd page, not page 0, which may have
	// had a text layer and so no detection of its own.
	firstOCR := indexes[0]

	auto := opts.Language == "" || opts.Language == ocr.LanguageAuto
	if auto && len(indexes) > 1 {
		if err := p.runBatch(ctx, doc, provider, pages, indexes[:1], firstOCR, pageCount, opts); err != nil {
			return "", err
		}
		indexes = indexes[1:]
	}

	for start := 0; start < len(indexes); start += p.batchSize {
		end := start + p.batchSize
		if end > len(indexes) {
			end = len(indexes)
		}
		if err := p.runBatch(ctx, doc, provider, pages, indexes[start:end], firstOCR, pageCount, opts); err != nil {
			return "", err
		}
	}
	return provider.Name(), nil
}

// runBatch rasterizes the batch sequentially, then recognizes its pages
// concurrently and waits for all of them.
func (p *Processor) runBatch(ctx context.Context, doc *fitz.Document, provider ocr.Provider, pages []pageResult, batch []int, firstOCR, pageCount int, opts Options) error {
	// Read the seed detection before the goroutines start; the seed batch
	// sees an empty detection and falls through to auto.
	lang := p.languageFor(opts.Language, pages[firstOCR].detected)

	encoded := make([][]byte, len(batch))
	for bi, pageIdx := range batch {
		if err := ctx.Err(); err != nil {
			return err
		}
		buf, err := p.rasterize(doc, pageIdx)
		if err != nil {
			return err
		}
		encoded[bi] = buf
	}

	var wg sync.WaitGroup
	errs := make([]error, len(batch))
	for bi, pageIdx := range batch {
		wg.Add(1)
		go func(bi, pageIdx int, canvas []byte) {
			defer wg.Done()
			res, err := provider.ExtractText(ctx, canvas, "image/png", lang, p.pageProgress(pageIdx, pageCount, opts.OnProgress))
			if err != nil {
				errs[bi] = err
				return
			}
			pages[pageIdx] = pageResult{
				text:       res.Text,
				confidence: res.Confidence,
				detected:   res.DetectedLanguage,
			}
		}(bi, pageIdx, encoded[bi])
	}
	wg.Wait()

	for bi, err := range errs {
		if err != nil {
			return errors.NewPDFFailedError(batch[bi]+1, err)
		}
	}
	return nil
}

// rasterize renders a single page at the configured scale and PNG-encodes it
// through the pooled buffer.
func (p *Processor) rasterize(doc *fitz.Document, pageIdx int) ([]byte, error) {
	img, err := doc.ImageDPI(pageIdx, baseDPI*p.scale)
	if err != nil {
		return nil, errors.NewPDFFailedError(pageIdx+1, fmt.Errorf("rasterize: %w", err))
	}

	buf := p.bufPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer p.bufPool.Put(buf)

	if err := png.Encode(buf, img); err != nil {
		return nil, errors.NewPDFFailedError(pageIdx+1, fmt.Errorf("encode: %w", err))
	}

	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out, nil
}

// languageFor returns the recognition language for a batch. An explicit
// request always wins; otherwise the seed page's detection is reused, and
// auto detection runs only until the seed produces one.
func (p *Processor) languageFor(requested, seed string) string {
	if requested != ocr.LanguageAuto && requested != "" {
		return requested
	}
	if seed != "" {
		return seed
	}
	return ocr.LanguageAuto
}

// pageProgress maps per-page progress into a document-relative percentage.
func (p *Processor) pageProgress(pageIdx, pageCount int, onProgress ocr.ProgressFunc) ocr.ProgressFunc {
	if onProgress == nil {
		return nil
	}
	return func(percent int) {
		onProgress((pageIdx*100 + percent) / pageCount)
	}
}

// assemble joins page texts with the page-break marker and aggregates
// confidence as the mean over non-empty pages.
func (p *Processor) assemble(pages []pageResult, requested string, ocrPages int) *Result {
	texts := make([]string, 0, len(pages))
	var confSum float64
	var confN int
	detected := ""
	for _, pg := range pages {
		texts = append(texts, pg.text)
		if strings.TrimSpace(pg.text) != "" {
			confSum += pg.confidence
			confN++
		}
		if detected == "" && pg.detected != "" {
			detected = pg.detected
		}
	}

	confidence := 0.0
	if confN > 0 {
		confidence = confSum / float64(confN)
	}

	language := requested
	if (language == ocr.LanguageAuto || language == "") && detected != "" {
		language = detected
	}

	return &Result{
		Text:             strings.Join(texts, "\n"+extract.DefaultPageBreakMarker+"\n"),
		Confidence:       confidence,
		Language:         language,
		DetectedLanguage: detected,
		PageCount:        len(pages),
		OCRPages:         ocrPages,
	}
}

// extractTextLayer reads the embedded text layer for each page, joining text
// items with spaces. Malformed content streams are tolerated: a page whose
// parse fails simply falls through to OCR.
func (p *Processor) extractTextLayer(data []byte, pageCount int) []string {
	out := make([]string, pageCount)

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		if p.log != nil {
			p.log.Warn("pdf text layer unavailable", "error", err.Error())
		}
		return out
	}

	total := reader.NumPage()
	if total > pageCount {
		total = pageCount
	}
	for i := 1; i <= total; i++ {
		out[i-1] = p.pageText(reader, i)
	}
	return out
}

// pageText extracts one page's text items. The parser panics on some
// malformed streams, so recovery is mandatory here.
func (p *Processor) pageText(reader *pdf.Reader, pageNum int) (text string) {
	defer func() {
		if r := recover(); r != nil {
			if p.log != nil {
				p.log.Warn("pdf page parse failed", "page", pageNum, "panic", fmt.Sprint(r))
			}
			text = ""
		}
	}()

	page := reader.Page(pageNum)
	if page.V.IsNull() {
		return ""
	}

	content := page.Content()
	items := make([]string, 0, len(content.Text))
	for _, t := range content.Text {
		if t.S != "" {
			items = append(items, t.S)
		}
	}
	return strings.Join(items, " ")
}

func report(onProgress ocr.ProgressFunc, percent int) {
	if onProgress != nil {
		onProgress(percent)
	}
}
