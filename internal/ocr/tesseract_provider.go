/**
 * Tesseract Provider (engine-backed, higher accuracy)
 *
 * Wraps the shared engine from the EngineManager. Adds a per-image result
 * cache, retry with linear backoff around single recognize calls, spatial
 * reading-order reassembly, and language auto-detection on the reconstructed
 * text.
 */

package ocr

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/otiai10/gosseract/v2"

	liberrors "github.com/adverant/nexus/docintake-worker/internal/errors"
	libimaging "github.com/adverant/nexus/docintake-worker/internal/imaging"
	"github.com/adverant/nexus/docintake-worker/internal/langdetect"
)

const (
	// ProviderTesseract is the registry name of the engine-backed variant.
	ProviderTesseract = "tesseract"

	recognizeAttempts = 3
	recognizeBackoff  = 500 * time.Millisecond
)

// TesseractProvider is the engine-backed OCR variant.
type TesseractProvider struct {
	manager         *EngineManager
	normalizer      *libimaging.Normalizer
	cache           *resultCache
	defaultLanguage string
}

// NewTesseractProvider creates the engine-backed provider. The engine itself
// is shared and lazily initialized by the manager.
func NewTesseractProvider(manager *EngineManager, normalizer *libimaging.Normalizer, defaultLanguage string) *TesseractProvider {
	if defaultLanguage == "" {
		defaultLanguage = langdetect.DefaultLanguage
	}
	return &TesseractProvider{
		manager:         manager,
		normalizer:      normalizer,
		cache:           newResultCache(),
		defaultLanguage: defaultLanguage,
	}
}

// Name implements Provider.
func (p *TesseractProvider) Name() string { return ProviderTesseract }

// SupportsFileType implements Provider.
func (p *TesseractProvider) SupportsFileType(mimeType string) bool {
	return p.normalizer.SupportsType(mimeType)
}

// SupportedFileTypes implements Provider.
func (p *TesseractProvider) SupportedFileTypes() []string {
	return []string{"image/jpeg", "image/png", "image/webp", "image/bmp", "image/gif", "image/tiff"}
}

// ExtractText implements Provider. On unrecoverable errors the provider
// disposes its own resources before returning the error.
func (p *TesseractProvider) ExtractText(ctx context.Context, data []byte, mimeType string, language string, onProgress ProgressFunc) (*Result, error) {
	report(onProgress, 5)

	normalized, err := p.normalizer.Normalize(data, mimeType)
	if err != nil {
		// Input validation failures are terminal and not the engine's
		// fault; no resource cleanup is needed.
		return nil, err
	}
	report(onProgress, 20)

	png, err := libimaging.EncodePNG(normalized.Image)
	if err != nil {
		return nil, fmt.Errorf("failed to encode normalized image: %w", err)
	}

	key := cacheKey(png)
	if cached := p.cache.Get(key); cached != nil {
		log.Printf("OCR cache hit, skipping recognition (key=%s)", key[:12])
		report(onProgress, 100)
		return cached, nil
	}

	// Resolve the engine up front so a sticky initialization failure
	// surfaces as itself, not as a recognition error.
	if _, err := p.manager.Engine(); err != nil {
		return nil, err
	}
	report(onProgress, 35)

	boxes, err := p.recognize(ctx, png)
	if err != nil {
		p.disposeOnFailure()
		return nil, liberrors.NewRecognitionFailedError(ProviderTesseract, recognizeAttempts, err)
	}
	report(onProgress, 70)

	blocks := convertBoxes(boxes)
	text := cleanText(assembleReadingOrder(blocks))
	report(onProgress, 85)

	result := &Result{
		Text:       text,
		Confidence: meanConfidence(blocks),
		Language:   language,
		Blocks:     blocks,
	}

	if language == LanguageAuto {
		result.Language, result.DetectedLanguage = p.detectLanguage(text)
	}

	p.cache.Put(key, result)
	report(onProgress, 100)

	return result, nil
}

// recognize runs single recognition attempts with linear backoff, validating
// the raw result shape before accepting it. A failed first attempt must never
// surface if a later attempt succeeds.
func (p *TesseractProvider) recognize(ctx context.Context, png []byte) ([]gosseract.BoundingBox, error) {
	var lastErr error

	for attempt := 1; attempt <= recognizeAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		boxes, err := p.recognizeOnce(png)
		if err == nil {
			return boxes, nil
		}

		lastErr = err
		log.Printf("recognition attempt %d/%d failed: %v", attempt, recognizeAttempts, err)

		if attempt < recognizeAttempts {
			// Linear backoff: 500ms, 1s.
			time.Sleep(time.Duration(attempt) * recognizeBackoff)
		}
	}

	return nil, lastErr
}

// recognizeOnce is a single serialized engine cycle plus output validation.
func (p *TesseractProvider) recognizeOnce(png []byte) ([]gosseract.BoundingBox, error) {
	boxes, err := p.manager.Recognize(png)
	if err != nil {
		return nil, err
	}

	if err := validateBoxes(boxes); err != nil {
		return nil, err
	}

	return boxes, nil
}

// validateBoxes rejects malformed engine output. An empty page is valid;
// a region with neither text nor geometry is not.
func validateBoxes(boxes []gosseract.BoundingBox) error {
	for i, b := range boxes {
		if b.Word == "" && b.Box.Empty() {
			return fmt.Errorf("malformed recognition result: region %d has no text and no geometry", i)
		}
	}
	return nil
}

// convertBoxes maps engine regions to blocks, dropping blank regions and
// converting rectangles to 8-number polygons.
func convertBoxes(boxes []gosseract.BoundingBox) []Block {
	blocks := make([]Block, 0, len(boxes))
	for _, b := range boxes {
		text := cleanText(b.Word)
		if text == "" {
			continue
		}
		r := b.Box
		blocks = append(blocks, Block{
			Text:       text,
			Confidence: normalizeConfidence(b.Confidence),
			Box: []float64{
				float64(r.Min.X), float64(r.Min.Y),
				float64(r.Max.X), float64(r.Min.Y),
				float64(r.Max.X), float64(r.Max.Y),
				float64(r.Min.X), float64(r.Max.Y),
			},
		})
	}
	return blocks
}

// detectLanguage resolves LanguageAuto: texts under the detection floor fall
// back to the default language with zero confidence.
func (p *TesseractProvider) detectLanguage(text string) (language, detected string) {
	if len(text) < langdetect.MinTextLength {
		return p.defaultLanguage, ""
	}

	result := langdetect.Detect(text)
	if result.Confidence == 0 {
		return p.defaultLanguage, ""
	}

	return result.Language, result.Language
}

// disposeOnFailure releases this provider's resources after an unrecoverable
// recognition error (fail-fast cleanup, not silent swallow).
func (p *TesseractProvider) disposeOnFailure() {
	if err := p.Dispose(); err != nil {
		log.Printf("cleanup after recognition failure: %v", err)
	}
}

// Dispose implements Provider: clears the result cache and releases the
// shared engine handle. Both are re-acquired lazily on the next call.
func (p *TesseractProvider) Dispose() error {
	p.cache.Clear()
	return p.manager.Dispose()
}

// report invokes the progress callback when one is provided.
func report(onProgress ProgressFunc, percent int) {
	if onProgress != nil {
		onProgress(percent)
	}
}
