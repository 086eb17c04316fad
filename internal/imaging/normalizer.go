/**
 * Image Normalizer for DocIntake Worker
 *
 * Decodes an uploaded image, validates type/size/dimensions and applies the
 * preprocessing chain that Tesseract likes: white background, grayscale,
 * contrast, brightness, 3x3 sharpen. Filtering is best-effort; only decoding
 * and validation are fatal.
 */

package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"log"

	"github.com/disintegration/imaging"
	"golang.org/x/image/bmp"
	"golang.org/x/image/webp"

	"github.com/adverant/nexus/docintake-worker/internal/errors"
)

const (
	// MaxFileSize is the hard cap on raw upload size (20 MB).
	MaxFileSize = 20 * 1024 * 1024
	// MinDimension is the smallest usable width/height in pixels.
	MinDimension = 50
	// MaxDimension bounds the normalized output width/height.
	MaxDimension = 2048
)

// Filter tuning. Contrast is a percentage for imaging.AdjustContrast,
// brightness likewise; sharpenKernel is the classic 3x3 sharpen convolution.
const (
	contrastPercent   = 15.0
	brightnessPercent = 5.0
)

var sharpenKernel = [9]float64{
	0, -1, 0,
	-1, 5, -1,
	0, -1, 0,
}

// supportedTypes maps accepted MIME types to a decoder hint.
var supportedTypes = map[string]bool{
	"image/jpeg": true,
	"image/jpg":  true,
	"image/png":  true,
	"image/webp": true,
	"image/bmp":  true,
	"image/gif":  true,
	"image/tiff": true,
}

// NormalizedImage is the decoded, resized and filtered bitmap handed to OCR.
type NormalizedImage struct {
	Image    *image.NRGBA
	Width    int
	Height   int
	MimeType string
	// Processed reports whether the filter chain ran to completion. When
	// false the image is only decoded and dimension-fit.
	Processed bool
}

// Normalizer validates and preprocesses images for OCR.
type Normalizer struct {
	maxFileSize int64
}

// NewNormalizer creates a normalizer. A maxFileSize of 0 uses the default cap.
func NewNormalizer(maxFileSize int64) *Normalizer {
	if maxFileSize <= 0 {
		maxFileSize = MaxFileSize
	}
	return &Normalizer{maxFileSize: maxFileSize}
}

// SupportsType reports whether the normalizer can decode the given MIME type.
func (n *Normalizer) SupportsType(mimeType string) bool {
	return supportedTypes[mimeType]
}

// Normalize decodes, validates and preprocesses an image.
//
// Validation failures return *errors.ImageProcessingError and must not be
// retried. If the decode succeeds but a filter step fails, the dimension-fit
// bitmap is returned unfiltered rather than failing the whole OCR call.
func (n *Normalizer) Normalize(data []byte, mimeType string) (*NormalizedImage, error) {
	if !supportedTypes[mimeType] {
		return nil, errors.NewUnsupportedTypeError(mimeType)
	}

	if int64(len(data)) > n.maxFileSize {
		return nil, errors.NewFileTooLargeError(int64(len(data)), n.maxFileSize)
	}

	src, err := decode(data, mimeType)
	if err != nil {
		return nil, errors.NewDecodeFailedError(err)
	}

	bounds := src.Bounds()
	if bounds.Dx() < MinDimension || bounds.Dy() < MinDimension {
		return nil, errors.NewImageTooSmallError(bounds.Dx(), bounds.Dy(), MinDimension)
	}

	// Bound to MaxDimension preserving aspect ratio. Fit never upscales.
	fitted := imaging.Fit(src, MaxDimension, MaxDimension, imaging.Lanczos)

	processed, perr := applyFilters(fitted)
	if perr != nil {
		// Preprocessing is best-effort: a failed filter chain degrades
		// accuracy, it should not fail the document.
		log.Printf("image preprocessing failed, using unfiltered bitmap: %v", perr)
		return &NormalizedImage{
			Image:     fitted,
			Width:     fitted.Bounds().Dx(),
			Height:    fitted.Bounds().Dy(),
			MimeType:  mimeType,
			Processed: false,
		}, nil
	}

	return &NormalizedImage{
		Image:     processed,
		Width:     processed.Bounds().Dx(),
		Height:    processed.Bounds().Dy(),
		MimeType:  mimeType,
		Processed: true,
	}, nil
}

// applyFilters runs the OCR preprocessing chain. A panic in any filter is
// converted into an error so the caller can fall back to the raw bitmap.
func applyFilters(src *image.NRGBA) (result *image.NRGBA, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("filter chain panicked: %v", r)
		}
	}()

	bounds := src.Bounds()

	// Flatten transparency onto a white background so alpha regions don't
	// read as black text.
	canvas := imaging.New(bounds.Dx(), bounds.Dy(), color.White)
	flattened := imaging.OverlayCenter(canvas, src, 1.0)

	gray := imaging.Grayscale(flattened)
	contrasted := imaging.AdjustContrast(gray, contrastPercent)
	brightened := imaging.AdjustBrightness(contrasted, brightnessPercent)
	sharpened := imaging.Convolve3x3(brightened, sharpenKernel, nil)

	if sharpened == nil {
		return nil, fmt.Errorf("sharpen convolution returned nil image")
	}

	return sharpened, nil
}

// EncodePNG renders a normalized image to PNG bytes for the OCR engine.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("failed to encode PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// decode picks a decoder from the MIME type. imaging.Decode covers the
// stdlib-registered formats; webp and bmp come from golang.org/x/image.
func decode(data []byte, mimeType string) (image.Image, error) {
	switch mimeType {
	case "image/webp":
		return webp.Decode(bytes.NewReader(data))
	case "image/bmp":
		return bmp.Decode(bytes.NewReader(data))
	default:
		return imaging.Decode(bytes.NewReader(data))
	}
}
