/**
 * OCR Types - Shared data structures and the provider contract
 *
 * Every OCR backend implements Provider. The factory hands out providers by
 * name and is the only component allowed to construct them.
 */

package ocr

import "context"

// ProgressFunc receives recognition progress scaled to 0-100. Callbacks may
// be nil; providers must guard every invocation.
type ProgressFunc func(percent int)

// LanguageAuto asks the provider to detect the language from the
// reconstructed text instead of being told up front.
const LanguageAuto = "auto"

// Block is one recognized text region. Ordering between blocks as returned
// by the engine does not match visual reading order; callers rely on the
// provider's spatial reassembly instead.
type Block struct {
	Text       string
	Confidence float64
	// Box is an 8-number polygon (x1,y1 ... x4,y4), clockwise from the
	// top-left corner. Empty when the engine gave no geometry.
	Box []float64
}

// Result is the outcome of one recognition call. It is immutable once
// returned; its text is folded into the document text by the caller.
type Result struct {
	Text       string
	Confidence float64
	Language   string
	// DetectedLanguage is set when the request asked for LanguageAuto.
	DetectedLanguage string
	Blocks           []Block
}

// Provider is the pluggable OCR backend contract.
type Provider interface {
	// ExtractText recognizes text in an image. The language may be a
	// concrete tag or LanguageAuto; onProgress may be nil.
	ExtractText(ctx context.Context, data []byte, mimeType string, language string, onProgress ProgressFunc) (*Result, error)

	// SupportsFileType reports whether the provider can handle the MIME type.
	SupportsFileType(mimeType string) bool

	// SupportedFileTypes lists the MIME types the provider accepts.
	SupportedFileTypes() []string

	// Name returns the provider's registry name.
	Name() string

	// Dispose releases engine handles and caches. The provider may be
	// used again afterwards; resources are re-acquired lazily.
	Dispose() error
}

// tesseractLanguages maps our language tags to Tesseract traineddata names.
var tesseractLanguages = map[string]string{
	"en": "eng",
	"es": "spa",
	"pt": "por",
	"fr": "fra",
	"it": "ita",
	"de": "deu",
	"ca": "cat",
	"gl": "glg",
}

// tesseractLanguage resolves a tag, falling back to English for unknown tags.
func tesseractLanguage(tag string) string {
	if mapped, ok := tesseractLanguages[tag]; ok {
		return mapped
	}
	return "eng"
}
