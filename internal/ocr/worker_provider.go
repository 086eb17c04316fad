/**
 * Worker Provider (simpler, per-call engine)
 *
 * Spins up a short-lived Tesseract client per recognition call with a fixed
 * language list. No caching, no auto-detection, no spatial reassembly; the
 * engine's own text output is returned directly with a heuristic confidence.
 */

package ocr

import (
	"context"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"

	liberrors "github.com/adverant/nexus/docintake-worker/internal/errors"
)

// ProviderWorker is the registry name of the per-call variant.
const ProviderWorker = "tesseract-worker"

// workerLanguages is the fixed recognition set for this variant.
var workerLanguages = []string{"en", "es"}

// WorkerProvider is the simple per-call OCR variant.
type WorkerProvider struct {
	tessdataPrefix string
}

// NewWorkerProvider creates the per-call provider.
func NewWorkerProvider(tessdataPrefix string) *WorkerProvider {
	return &WorkerProvider{tessdataPrefix: tessdataPrefix}
}

// Name implements Provider.
func (p *WorkerProvider) Name() string { return ProviderWorker }

// SupportsFileType implements Provider. Leptonica decodes these directly.
func (p *WorkerProvider) SupportsFileType(mimeType string) bool {
	switch mimeType {
	case "image/jpeg", "image/jpg", "image/png", "image/bmp", "image/tiff":
		return true
	}
	return false
}

// SupportedFileTypes implements Provider.
func (p *WorkerProvider) SupportedFileTypes() []string {
	return []string{"image/jpeg", "image/png", "image/bmp", "image/tiff"}
}

// ExtractText implements Provider. The requested language is ignored in
// favor of the fixed list; LanguageAuto resolves to the first fixed language.
func (p *WorkerProvider) ExtractText(ctx context.Context, data []byte, mimeType string, language string, onProgress ProgressFunc) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report(onProgress, 10)

	client := gosseract.NewClient()
	defer client.Close()

	if p.tessdataPrefix != "" {
		if err := client.SetTessdataPrefix(p.tessdataPrefix); err != nil {
			return nil, fmt.Errorf("failed to set tessdata prefix: %w", err)
		}
	}

	tessLangs := make([]string, 0, len(workerLanguages))
	for _, lang := range workerLanguages {
		tessLangs = append(tessLangs, tesseractLanguage(lang))
	}
	if err := client.SetLanguage(tessLangs...); err != nil {
		return nil, fmt.Errorf("failed to set languages: %w", err)
	}

	if err := client.SetImageFromBytes(data); err != nil {
		return nil, liberrors.NewRecognitionFailedError(ProviderWorker, 1,
			fmt.Errorf("failed to set image: %w", err))
	}
	report(onProgress, 50)

	text, err := client.Text()
	if err != nil {
		return nil, liberrors.NewRecognitionFailedError(ProviderWorker, 1,
			fmt.Errorf("recognition failed: %w", err))
	}
	report(onProgress, 100)

	resolved := language
	if resolved == LanguageAuto || resolved == "" {
		resolved = workerLanguages[0]
	}

	return &Result{
		Text:       strings.TrimSpace(text),
		Confidence: estimateConfidence(text),
		Language:   resolved,
	}, nil
}

// Dispose implements Provider. Clients are per-call, so there is nothing
// long-lived to release.
func (p *WorkerProvider) Dispose() error { return nil }

// estimateConfidence scores text quality when the engine path gives no
// per-region confidences: longer, word-dense text with a natural alphabetic
// ratio scores higher, capped below the engine-backed variant's ceiling.
func estimateConfidence(text string) float64 {
	confidence := 0.5

	if len(text) > 1000 {
		confidence += 0.1
	}
	if len(text) > 5000 {
		confidence += 0.1
	}

	words := strings.Fields(text)
	if len(words) > 100 {
		confidence += 0.1
	}

	alphaCount := 0
	for _, r := range text {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			alphaCount++
		}
	}
	if len(text) > 0 {
		alphaRatio := float64(alphaCount) / float64(len(text))
		if alphaRatio > 0.5 && alphaRatio < 0.9 {
			confidence += 0.1
		}
	}

	if confidence > 0.85 {
		confidence = 0.85
	}

	return confidence
}
