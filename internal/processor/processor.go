/**
 * Document Processor for DocIntake Worker
 *
 * Orchestrates the complete intake pipeline: load file, detect type,
 * extract text (direct, image OCR, or per-page PDF), detect language,
 * classify, infer structure, render markdown, and persist document plus
 * segments.
 */

package processor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/adverant/nexus/docintake-worker/internal/clients"
	"github.com/adverant/nexus/docintake-worker/internal/errors"
	"github.com/adverant/nexus/docintake-worker/internal/extract"
	"github.com/adverant/nexus/docintake-worker/internal/langdetect"
	"github.com/adverant/nexus/docintake-worker/internal/ocr"
	"github.com/adverant/nexus/docintake-worker/internal/pdf"
	"github.com/adverant/nexus/docintake-worker/internal/storage"
	"github.com/adverant/nexus/docintake-worker/internal/structure"
)

// DocumentProcessorInterface defines the interface for document processing
type DocumentProcessorInterface interface {
	ProcessDocument(ctx context.Context, req *ProcessRequest) (*ProcessResult, error)
	UpdateJobStatus(ctx context.Context, jobID string, status string, progress int, metadata map[string]interface{}) error
}

// ProgressPublisher emits per-job progress events. Implementations must be
// best effort: a dropped event never fails the job.
type ProgressPublisher interface {
	Publish(ctx context.Context, jobID, stage string, percent int)
}

// ProcessorConfig holds processor configuration
type ProcessorConfig struct {
	MaxFileSize       int64
	StorageManager    *storage.StorageManager
	Factory           *ocr.Factory
	PDFProcessor      *pdf.Processor
	Progress          ProgressPublisher
	ClassifierURL     string
	ClassifierModelID string
	DefaultLanguage   string
	DefaultProvider   string
	Strategy          extract.Config
}

// ProcessRequest represents a document processing request
type ProcessRequest struct {
	JobID      string
	UserID     string
	Filename   string
	MimeType   string
	FileSize   int64
	FileURL    string
	FileBuffer []byte
	Language   string
	Provider   string
	Metadata   map[string]interface{}
}

// ProcessResult represents the processing result
type ProcessResult struct {
	DocumentID       string
	Category         string
	Language         string
	Confidence       float64
	PageCount        int
	SegmentCount     int
	OCRProcessed     bool
	ProviderUsed     string
	ProcessingTimeMs int64
}

// extraction is the intermediate outcome of the text extraction stage
type extraction struct {
	text         string
	confidence   float64
	language     string
	pageCount    int
	ocrProcessed bool
	providerUsed string
}

// DocumentProcessor handles document processing
type DocumentProcessor struct {
	config     *ProcessorConfig
	storage    *storage.StorageManager
	factory    *ocr.Factory
	pdf        *pdf.Processor
	classifier *clients.ClassifierClient
	progress   ProgressPublisher
}

// NewDocumentProcessor creates a new document processor
func NewDocumentProcessor(cfg *ProcessorConfig) (*DocumentProcessor, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	if cfg.StorageManager == nil {
		return nil, fmt.Errorf("storage manager is required")
	}

	if cfg.Factory == nil {
		return nil, fmt.Errorf("OCR provider factory is required")
	}

	if cfg.PDFProcessor == nil {
		return nil, fmt.Errorf("PDF processor is required")
	}

	if cfg.ClassifierURL == "" {
		return nil, fmt.Errorf("classifier URL is required")
	}

	classifier := clients.NewClassifierClient(cfg.ClassifierURL)

	// Test classifier connection (non-fatal if unavailable)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := classifier.HealthCheck(ctx); err != nil {
		log.Printf("WARNING: Classifier health check failed: %v. Classification may fail at processing time.", err)
	} else {
		log.Printf("Classifier connection verified: %s", cfg.ClassifierURL)
	}

	return &DocumentProcessor{
		config:     cfg,
		storage:    cfg.StorageManager,
		factory:    cfg.Factory,
		pdf:        cfg.PDFProcessor,
		classifier: classifier,
		progress:   cfg.Progress,
	}, nil
}

// ProcessDocument processes a document through the complete pipeline
func (p *DocumentProcessor) ProcessDocument(ctx context.Context, req *ProcessRequest) (*ProcessResult, error) {
	startTime := time.Now()
	log.Printf("[Job %s] Starting document intake pipeline", req.JobID)

	// Step 1: Download/load file
	log.Printf("[Job %s] Step 1: Loading file (%d bytes)", req.JobID, req.FileSize)
	p.publish(ctx, req.JobID, "loading", 5)
	fileData, err := p.loadFile(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to load file: %w", err)
	}

	if p.config.MaxFileSize > 0 && int64(len(fileData)) > p.config.MaxFileSize {
		return nil, errors.NewFileTooLargeError(int64(len(fileData)), p.config.MaxFileSize)
	}

	// Step 1.5: Detect actual MIME type from magic bytes. Essential for
	// sources that hand over generic application/octet-stream.
	detectedMime := detectMimeTypeFromMagicBytes(fileData)
	if detectedMime != "" && (req.MimeType == "" || req.MimeType == "application/octet-stream") {
		log.Printf("[Job %s] Corrected MIME type from '%s' to '%s' (magic byte detection)",
			req.JobID, req.MimeType, detectedMime)
		req.MimeType = detectedMime
	}
	if req.MimeType == "application/zip" && strings.HasSuffix(strings.ToLower(req.Filename), ".docx") {
		req.MimeType = mimeDocx
	}

	// DOCX is accepted but not extracted: store the original and a stub
	// record so the upload is never lost.
	if req.MimeType == mimeDocx {
		return p.storeWithoutExtraction(ctx, req, fileData, startTime)
	}

	// Step 2: Extract text
	log.Printf("[Job %s] Step 2: Extracting text (mime=%s)", req.JobID, req.MimeType)
	p.publish(ctx, req.JobID, "extracting", 10)
	ext, err := p.extractText(ctx, req, fileData)
	if err != nil {
		return nil, err
	}

	// Step 3: Select text and classify
	log.Printf("[Job %s] Step 3: Classifying document (pages=%d)", req.JobID, ext.pageCount)
	p.publish(ctx, req.JobID, "classifying", 70)
	selection := extract.Select(ext.text, nil, p.config.Strategy)
	classification, err := p.classifier.Classify(ctx, selection.ClassificationText, p.config.ClassifierModelID, req.JobID)
	if err != nil {
		return nil, errors.NewClassificationFailedError(req.JobID, p.config.ClassifierModelID, err)
	}

	// Step 4: Detect structure and render markdown
	log.Printf("[Job %s] Step 4: Detecting structure", req.JobID)
	p.publish(ctx, req.JobID, "structuring", 80)
	docStructure := structure.Detect(ext.text)
	rendered := structure.Render(docStructure, structure.DefaultRenderOptions())
	segments := structure.Segments(docStructure)

	// Step 5: Persist blob, record, and segments
	log.Printf("[Job %s] Step 5: Persisting document (segments=%d)", req.JobID, len(segments))
	p.publish(ctx, req.JobID, "storing", 90)
	output, err := p.storage.StoreDocument(ctx, &storage.DocumentInput{
		JobID:              req.JobID,
		Filename:           req.Filename,
		MimeType:           req.MimeType,
		FileData:           fileData,
		Category:           classification.Label,
		Language:           ext.language,
		Confidence:         ext.confidence,
		PageCount:          ext.pageCount,
		ExtractedText:      ext.text,
		ContentMarkdown:    rendered.Markdown,
		ContentStructured:  rendered.Structure,
		Segments:           segments,
		OCRProcessed:       ext.ocrProcessed,
		ExtractionComplete: true,
	})
	if err != nil {
		return nil, errors.NewStorageFailedError(req.JobID, err)
	}

	p.publish(ctx, req.JobID, "completed", 100)

	duration := time.Since(startTime)
	log.Printf("[Job %s] Pipeline complete in %v: category=%s, language=%s, confidence=%.2f",
		req.JobID, duration, classification.Label, ext.language, ext.confidence)

	return &ProcessResult{
		DocumentID:       output.DocumentID,
		Category:         classification.Label,
		Language:         ext.language,
		Confidence:       ext.confidence,
		PageCount:        ext.pageCount,
		SegmentCount:     len(segments),
		OCRProcessed:     ext.ocrProcessed,
		ProviderUsed:     ext.providerUsed,
		ProcessingTimeMs: duration.Milliseconds(),
	}, nil
}

const mimeDocx = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

// extractText routes the file to the right extraction path based on its type.
func (p *DocumentProcessor) extractText(ctx context.Context, req *ProcessRequest, fileData []byte) (*extraction, error) {
	language := req.Language
	if language == "" {
		language = ocr.LanguageAuto
	}
	providerName := req.Provider
	if providerName == "" {
		providerName = p.config.DefaultProvider
	}

	switch {
	case req.MimeType == "application/pdf":
		result, err := p.pdf.Process(ctx, fileData, pdf.Options{
			Language:   language,
			Provider:   providerName,
			OnProgress: p.extractionProgress(ctx, req.JobID),
		})
		if err != nil {
			return nil, err
		}
		// The provider that actually ran may be the fallback, not the
		// requested one.
		providerUsed := result.ProviderUsed
		if providerUsed == "" {
			providerUsed = providerName
		}
		return &extraction{
			text:         result.Text,
			confidence:   result.Confidence,
			language:     result.Language,
			pageCount:    result.PageCount,
			ocrProcessed: result.OCRPages > 0,
			providerUsed: providerUsed,
		}, nil

	case !requiresOCR(req.MimeType):
		// Text-based formats are used verbatim; only the language needs
		// detecting.
		text := string(fileData)
		detected := langdetect.Detect(text)
		lang := detected.Language
		if language != ocr.LanguageAuto {
			lang = language
		}
		return &extraction{
			text:       text,
			confidence: 1.0,
			language:   lang,
			pageCount:  1,
		}, nil

	default:
		provider, err := p.factory.GetProvider(providerName)
		if err != nil {
			return nil, err
		}
		result, err := provider.ExtractText(ctx, fileData, req.MimeType, language, p.extractionProgress(ctx, req.JobID))
		if err != nil {
			return nil, err
		}
		lang := result.Language
		if lang == "" || lang == ocr.LanguageAuto {
			lang = p.config.DefaultLanguage
		}
		return &extraction{
			text:         result.Text,
			confidence:   result.Confidence,
			language:     lang,
			pageCount:    1,
			ocrProcessed: true,
			providerUsed: provider.Name(),
		}, nil
	}
}

// extractionProgress maps provider progress (0-100) into the pipeline's
// extraction band (10-65) and forwards it to the publisher.
func (p *DocumentProcessor) extractionProgress(ctx context.Context, jobID string) ocr.ProgressFunc {
	if p.progress == nil {
		return nil
	}
	return func(percent int) {
		p.progress.Publish(ctx, jobID, "extracting", 10+(percent*55)/100)
	}
}

// storeWithoutExtraction persists the original file with a stub record for
// formats the worker accepts but does not extract.
func (p *DocumentProcessor) storeWithoutExtraction(ctx context.Context, req *ProcessRequest, fileData []byte, startTime time.Time) (*ProcessResult, error) {
	log.Printf("[Job %s] Format %s accepted without extraction, storing original only", req.JobID, req.MimeType)

	output, err := p.storage.StoreDocument(ctx, &storage.DocumentInput{
		JobID:              req.JobID,
		Filename:           req.Filename,
		MimeType:           req.MimeType,
		FileData:           fileData,
		Category:           clients.FallbackLabel,
		Language:           p.config.DefaultLanguage,
		ExtractionComplete: false,
	})
	if err != nil {
		return nil, errors.NewStorageFailedError(req.JobID, err)
	}

	p.publish(ctx, req.JobID, "completed", 100)

	return &ProcessResult{
		DocumentID:       output.DocumentID,
		Category:         clients.FallbackLabel,
		Language:         p.config.DefaultLanguage,
		ProcessingTimeMs: time.Since(startTime).Milliseconds(),
	}, nil
}

// UpdateJobStatus updates job status in database
func (p *DocumentProcessor) UpdateJobStatus(ctx context.Context, jobID string, status string, progress int, metadata map[string]interface{}) error {
	update := &storage.JobUpdate{
		JobID:    jobID,
		Status:   status,
		Metadata: metadata,
	}

	if metadata != nil {
		if confidence, ok := metadata["confidence"].(float64); ok {
			update.Confidence = confidence
		}
		if processingTime, ok := metadata["processingTime"].(int64); ok {
			update.ProcessingTimeMs = processingTime
		}
		if documentID, ok := metadata["documentId"].(string); ok {
			update.DocumentID = documentID
		}
		if providerUsed, ok := metadata["providerUsed"].(string); ok {
			update.ProviderUsed = providerUsed
		}
		if errorMsg, ok := metadata["error"].(string); ok {
			update.ErrorCode = "PROCESSING_ERROR"
			update.ErrorMessage = errorMsg
		}
		if code, ok := metadata["code"].(string); ok {
			update.ErrorCode = code
		}
		if message, ok := metadata["message"].(string); ok && update.ErrorMessage == "" {
			update.ErrorMessage = message
		}
	}

	if err := p.storage.UpdateJobStatus(ctx, update); err != nil {
		return err
	}

	p.publish(ctx, jobID, status, progress)
	return nil
}

func (p *DocumentProcessor) publish(ctx context.Context, jobID, stage string, percent int) {
	if p.progress != nil {
		p.progress.Publish(ctx, jobID, stage, percent)
	}
}

// loadFile loads file from URL or buffer
func (p *DocumentProcessor) loadFile(ctx context.Context, req *ProcessRequest) ([]byte, error) {
	if len(req.FileBuffer) > 0 {
		log.Printf("[Job %s] Using file buffer (%d bytes)", req.JobID, len(req.FileBuffer))
		return req.FileBuffer, nil
	}

	if req.FileURL != "" {
		log.Printf("[Job %s] Downloading file from URL: %s (fileSize=%d)", req.JobID, req.FileURL, req.FileSize)
		fileData, err := p.downloadFileFromURL(ctx, req.JobID, req.FileURL, req.FileSize)
		if err != nil {
			return nil, fmt.Errorf("failed to download file: %w", err)
		}
		log.Printf("[Job %s] File downloaded successfully (%d bytes)", req.JobID, len(fileData))
		return fileData, nil
	}

	return nil, fmt.Errorf("no file source provided (buffer or URL)")
}

// downloadFileFromURL downloads a file from a URL with retry logic
func (p *DocumentProcessor) downloadFileFromURL(ctx context.Context, jobID string, fileURL string, expectedSize int64) ([]byte, error) {
	const (
		maxRetries        = 5
		initialBackoffMs  = 1000
		maxBackoffMs      = 32000
		downloadTimeoutMs = 600000 // 10 minutes total
	)

	client := &http.Client{
		Timeout: time.Duration(downloadTimeoutMs) * time.Millisecond,
	}

	var lastErr error

	for attempt := 1; attempt <= maxRetries; attempt++ {
		log.Printf("[Job %s] Download attempt %d/%d from: %s", jobID, attempt, maxRetries, fileURL)

		fileData, err := p.downloadOnce(ctx, client, fileURL, expectedSize, jobID)
		if err == nil {
			log.Printf("[Job %s] Download successful on attempt %d: %d bytes", jobID, attempt, len(fileData))
			return fileData, nil
		}

		lastErr = err
		log.Printf("[Job %s] Download attempt %d failed: %v", jobID, attempt, err)

		if attempt < maxRetries {
			backoffMs := initialBackoffMs * int(math.Pow(2, float64(attempt-1)))
			if backoffMs > maxBackoffMs {
				backoffMs = maxBackoffMs
			}
			log.Printf("[Job %s] Retrying in %dms...", jobID, backoffMs)
			select {
			case <-time.After(time.Duration(backoffMs) * time.Millisecond):
			case <-ctx.Done():
				return nil, fmt.Errorf("context cancelled during retry backoff")
			}
		}
	}

	return nil, fmt.Errorf("failed to download file after %d attempts: %w", maxRetries, lastErr)
}

func (p *DocumentProcessor) downloadOnce(ctx context.Context, client *http.Client, fileURL string, expectedSize int64, jobID string) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, "GET", fileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create download request: %w", err)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	contentLength := resp.ContentLength
	if contentLength > 0 && expectedSize > 0 && contentLength != expectedSize {
		log.Printf("[Job %s] WARNING: Content-Length mismatch. Expected=%d, Got=%d",
			jobID, expectedSize, contentLength)
	}

	if p.config.MaxFileSize > 0 && contentLength > p.config.MaxFileSize {
		return nil, fmt.Errorf("file size exceeds maximum: %d > %d bytes",
			contentLength, p.config.MaxFileSize)
	}

	maxReadBytes := p.config.MaxFileSize
	if maxReadBytes == 0 {
		maxReadBytes = 1 * 1024 * 1024 * 1024 // 1GB safety limit
	}

	fileData, err := io.ReadAll(io.LimitReader(resp.Body, maxReadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(fileData)) > maxReadBytes {
		return nil, fmt.Errorf("file size exceeds maximum: >%d bytes", maxReadBytes)
	}

	return fileData, nil
}

// requiresOCR determines if a file type requires OCR processing.
// Returns true for images and PDFs, false for text-based formats.
func requiresOCR(mimeType string) bool {
	textFormats := map[string]bool{
		"text/plain":             true,
		"text/html":              true,
		"text/markdown":          true,
		"text/csv":               true,
		"application/json":       true,
		"application/xml":        true,
		"text/xml":               true,
		"application/x-yaml":     true,
		"text/yaml":              true,
		"application/javascript": true,
		"text/javascript":        true,
	}

	if isText, exists := textFormats[mimeType]; exists {
		return !isText
	}

	if strings.HasPrefix(mimeType, "image/") {
		return true
	}

	if mimeType == "application/pdf" {
		return true
	}

	// Default: assume OCR needed for unknown formats
	return true
}

// detectMimeTypeFromMagicBytes detects the actual MIME type from file content
// magic bytes. Essential when sources return generic application/octet-stream.
func detectMimeTypeFromMagicBytes(data []byte) string {
	if len(data) < 4 {
		return ""
	}

	// PDF: %PDF-
	if bytes.HasPrefix(data, []byte("%PDF")) {
		return "application/pdf"
	}

	// PNG: 0x89 'P' 'N' 'G' 0x0D 0x0A 0x1A 0x0A
	if len(data) >= 8 && bytes.HasPrefix(data, []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}) {
		return "image/png"
	}

	// JPEG: 0xFF 0xD8 0xFF
	if bytes.HasPrefix(data, []byte{0xFF, 0xD8, 0xFF}) {
		return "image/jpeg"
	}

	// GIF: 'G' 'I' 'F' '8' ('7' or '9') 'a'
	if bytes.HasPrefix(data, []byte("GIF87a")) || bytes.HasPrefix(data, []byte("GIF89a")) {
		return "image/gif"
	}

	// WebP: 'R' 'I' 'F' 'F' .... 'W' 'E' 'B' 'P'
	if len(data) > 12 && bytes.HasPrefix(data, []byte("RIFF")) && string(data[8:12]) == "WEBP" {
		return "image/webp"
	}

	// TIFF: 'I' 'I' 0x2A 0x00 (little-endian) or 'M' 'M' 0x00 0x2A (big-endian)
	if bytes.HasPrefix(data, []byte{0x49, 0x49, 0x2A, 0x00}) || bytes.HasPrefix(data, []byte{0x4D, 0x4D, 0x00, 0x2A}) {
		return "image/tiff"
	}

	// BMP: 'B' 'M'
	if bytes.HasPrefix(data, []byte("BM")) {
		return "image/bmp"
	}

	// ZIP (and Office documents): 'P' 'K' 0x03 0x04. Could be DOCX, XLSX, or
	// plain ZIP; the caller disambiguates by filename extension.
	if bytes.HasPrefix(data, []byte{0x50, 0x4B, 0x03, 0x04}) {
		return "application/zip"
	}

	return ""
}
