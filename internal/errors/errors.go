package errors

import (
	"fmt"
	"time"
)

/**
 * Custom error types for DocIntake Worker
 *
 * Two families:
 * - ImageProcessingError: bad input files. Never retried, surfaced immediately.
 * - ProcessingError: pipeline failures (engine init, recognition, storage,
 *   classification). Carries a job ID and a structured detail map for the
 *   job status table.
 */

// ErrorCode enum for structured error handling
type ErrorCode string

const (
	// Image input errors (never retried)
	ErrorUnsupportedType ErrorCode = "UNSUPPORTED_TYPE"
	ErrorFileTooLarge    ErrorCode = "FILE_TOO_LARGE"
	ErrorImageTooSmall   ErrorCode = "IMAGE_TOO_SMALL"
	ErrorDecodeFailed    ErrorCode = "DECODE_FAILED"

	// Processing errors
	ErrorEngineInitFailed  ErrorCode = "ENGINE_INIT_FAILED"
	ErrorRecognitionFailed ErrorCode = "RECOGNITION_FAILED"
	ErrorPDFFailed         ErrorCode = "PDF_FAILED"
	ErrorProcessingTimeout ErrorCode = "PROCESSING_TIMEOUT"

	// Collaborator errors
	ErrorClassificationFailed ErrorCode = "CLASSIFICATION_FAILED"
	ErrorStorageFailed        ErrorCode = "STORAGE_FAILED"
	ErrorDatabaseFailed       ErrorCode = "DATABASE_FAILED"
)

// ImageProcessingError represents a rejected input image. It is terminal:
// callers must not retry, because the input itself is at fault.
type ImageProcessingError struct {
	Code    ErrorCode
	Message string
}

func (e *ImageProcessingError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewUnsupportedTypeError reports a MIME type the normalizer cannot decode.
func NewUnsupportedTypeError(mimeType string) *ImageProcessingError {
	return &ImageProcessingError{
		Code:    ErrorUnsupportedType,
		Message: fmt.Sprintf("unsupported file type: %s", mimeType),
	}
}

// NewFileTooLargeError reports a file over the configured size cap.
func NewFileTooLargeError(size, maxSize int64) *ImageProcessingError {
	return &ImageProcessingError{
		Code:    ErrorFileTooLarge,
		Message: fmt.Sprintf("file size %d exceeds maximum %d bytes", size, maxSize),
	}
}

// NewImageTooSmallError reports decoded dimensions below the minimum.
func NewImageTooSmallError(width, height, min int) *ImageProcessingError {
	return &ImageProcessingError{
		Code:    ErrorImageTooSmall,
		Message: fmt.Sprintf("image dimensions %dx%d below minimum %dx%d", width, height, min, min),
	}
}

// NewDecodeFailedError reports an image that could not be decoded at all.
func NewDecodeFailedError(cause error) *ImageProcessingError {
	return &ImageProcessingError{
		Code:    ErrorDecodeFailed,
		Message: fmt.Sprintf("failed to decode image: %v", cause),
	}
}

// ProcessingError represents a structured pipeline error
type ProcessingError struct {
	Code      ErrorCode
	Message   string
	JobID     string
	Timestamp time.Time
	Details   map[string]interface{}
	Cause     error
}

func (e *ProcessingError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ProcessingError) Unwrap() error {
	return e.Cause
}

// Factory functions for common errors

func NewEngineInitFailedError(attempts int, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorEngineInitFailed,
		Message:   fmt.Sprintf("OCR engine initialization failed after %d attempts", attempts),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"attempts": attempts,
		},
		Cause: cause,
	}
}

func NewRecognitionFailedError(provider string, attempts int, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorRecognitionFailed,
		Message:   fmt.Sprintf("recognition failed on provider %s after %d attempts", provider, attempts),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"provider": provider,
			"attempts": attempts,
		},
		Cause: cause,
	}
}

func NewPDFFailedError(page int, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorPDFFailed,
		Message:   fmt.Sprintf("PDF processing failed on page %d", page),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"page": page,
		},
		Cause: cause,
	}
}

func NewProcessingTimeoutError(jobID string, duration time.Duration, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorProcessingTimeout,
		Message:   fmt.Sprintf("processing timed out after %v", duration),
		JobID:     jobID,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"timeout_duration": duration.String(),
		},
		Cause: cause,
	}
}

func NewClassificationFailedError(jobID string, modelID string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorClassificationFailed,
		Message:   fmt.Sprintf("classification failed for model %s", modelID),
		JobID:     jobID,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"model_id": modelID,
		},
		Cause: cause,
	}
}

func NewStorageFailedError(jobID string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorStorageFailed,
		Message:   "failed to store processing results",
		JobID:     jobID,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

// ToMap converts error to map for database storage
func (e *ProcessingError) ToMap() map[string]interface{} {
	result := map[string]interface{}{
		"error_code": string(e.Code),
		"message":    e.Message,
		"timestamp":  e.Timestamp,
	}

	for k, v := range e.Details {
		result[k] = v
	}

	if e.Cause != nil {
		result["cause"] = e.Cause.Error()
	}

	return result
}
