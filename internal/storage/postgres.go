/**
 * PostgreSQL Client for DocIntake Worker
 *
 * Handles database operations for job status tracking, document records,
 * and structural segments.
 */

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	_ "github.com/lib/pq"
)

// PostgresClient handles database operations
type PostgresClient struct {
	db *sql.DB
}

// JobUpdate represents a job status update
type JobUpdate struct {
	JobID            string
	Status           string
	Confidence       float64
	ProcessingTimeMs int64
	DocumentID       string
	ErrorCode        string
	ErrorMessage     string
	ProviderUsed     string
	Metadata         map[string]interface{}
}

// DocumentRecord represents the persisted document row
type DocumentRecord struct {
	JobID              string
	Filename           string
	MimeType           string
	FileSize           int64
	StoragePath        string
	Category           string
	Language           string
	Confidence         float64
	PageCount          int
	ExtractedText      string
	ContentMarkdown    string
	ContentStructured  map[string]interface{}
	OCRProcessed       bool
	ExtractionComplete bool
}

// SegmentRecord represents one structural segment row
type SegmentRecord struct {
	SegmentType     string
	SegmentText     string
	SegmentMarkdown string
	SegmentData     map[string]interface{}
	PositionData    map[string]interface{}
	Confidence      float64
}

// sanitizeConfidence rounds confidence to 4 decimal places to prevent PostgreSQL float precision errors
// PostgreSQL FLOAT type can represent values with excessive precision (e.g., 0.9632000000000001)
// which causes "invalid input syntax for type integer" errors when used in certain contexts.
// This function enforces bounded precision by rounding to 4 decimals and clamping to [0.0, 1.0].
func sanitizeConfidence(confidence float64) float64 {
	if confidence < 0.0 {
		return 0.0
	}
	if confidence > 1.0 {
		return 1.0
	}
	return float64(int(confidence*10000+0.5)) / 10000
}

// sanitizeJSONForPostgres removes problematic Unicode escape sequences from JSON.
// PostgreSQL JSONB doesn't support certain escapes like \u0000 (null character)
// which show up in OCR output from damaged scans.
func sanitizeJSONForPostgres(jsonBytes []byte) []byte {
	nullPattern := regexp.MustCompile(`\\u0000`)
	result := nullPattern.ReplaceAll(jsonBytes, []byte{})

	controlPattern := regexp.MustCompile(`\\u00[01][0-9a-fA-F]`)
	result = controlPattern.ReplaceAll(result, []byte(" "))

	return result
}

// NewPostgresClient creates a new PostgreSQL client
func NewPostgresClient(databaseURL string) (*PostgresClient, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(2 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresClient{db: db}, nil
}

// UpdateJobStatus updates job status in the database. Uses an UPSERT so the
// worker can create the job record if the API didn't create it yet.
func (p *PostgresClient) UpdateJobStatus(ctx context.Context, update *JobUpdate) error {
	if update.JobID == "" {
		return fmt.Errorf("job ID is required")
	}

	if update.Status == "" {
		return fmt.Errorf("status is required")
	}

	sanitizedConfidence := sanitizeConfidence(update.Confidence)

	metadataJSON, err := json.Marshal(update.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	metadataJSON = sanitizeJSONForPostgres(metadataJSON)

	// Explicit NUMERIC(5,4) casting for confidence prevents precision errors:
	// FLOAT can carry values like 0.9632000000000001 which PostgreSQL rejects
	// in bounded-precision contexts.
	query := `
		INSERT INTO docintake.processing_jobs (
			id, filename, mime_type, file_size,
			status, confidence, processing_time_ms, document_id,
			error_code, error_message, provider_used, metadata,
			created_at, updated_at
		) VALUES (
			$1::uuid, COALESCE($9, 'unknown'), COALESCE($10, 'application/octet-stream'),
			COALESCE($11, 0),
			$2, NULLIF($3::NUMERIC(5,4), 0), NULLIF($4, 0),
			CASE WHEN $5 = '' THEN NULL ELSE $5::uuid END,
			NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, ''),
			COALESCE($12::jsonb, '{}'::jsonb),
			NOW(), NOW()
		)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			confidence = COALESCE(NULLIF(EXCLUDED.confidence::NUMERIC(5,4), 0), docintake.processing_jobs.confidence),
			processing_time_ms = COALESCE(NULLIF(EXCLUDED.processing_time_ms, 0), docintake.processing_jobs.processing_time_ms),
			document_id = CASE
				WHEN EXCLUDED.document_id IS NOT NULL THEN EXCLUDED.document_id
				ELSE docintake.processing_jobs.document_id
			END,
			error_code = NULLIF(EXCLUDED.error_code, ''),
			error_message = NULLIF(EXCLUDED.error_message, ''),
			provider_used = NULLIF(EXCLUDED.provider_used, ''),
			metadata = COALESCE(EXCLUDED.metadata, docintake.processing_jobs.metadata),
			filename = COALESCE(EXCLUDED.filename, docintake.processing_jobs.filename),
			mime_type = COALESCE(EXCLUDED.mime_type, docintake.processing_jobs.mime_type),
			file_size = COALESCE(NULLIF(EXCLUDED.file_size, 0), docintake.processing_jobs.file_size),
			updated_at = NOW()
		RETURNING id
	`

	var filename, mimeType string
	var fileSize int64
	if update.Metadata != nil {
		if fn, ok := update.Metadata["filename"].(string); ok {
			filename = fn
		}
		if mt, ok := update.Metadata["mimeType"].(string); ok {
			mimeType = mt
		}
		if fs, ok := update.Metadata["fileSize"].(int64); ok {
			fileSize = fs
		} else if fs, ok := update.Metadata["fileSize"].(float64); ok {
			fileSize = int64(fs)
		}
	}

	var returnedID string
	err = p.db.QueryRowContext(
		ctx,
		query,
		update.JobID,            // $1
		update.Status,           // $2
		sanitizedConfidence,     // $3
		update.ProcessingTimeMs, // $4
		update.DocumentID,       // $5
		update.ErrorCode,        // $6
		update.ErrorMessage,     // $7
		update.ProviderUsed,     // $8
		filename,                // $9
		mimeType,                // $10
		fileSize,                // $11
		metadataJSON,            // $12
	).Scan(&returnedID)

	if err == sql.ErrNoRows {
		return fmt.Errorf("job not found: %s", update.JobID)
	}

	if err != nil {
		return fmt.Errorf("failed to update job status (job=%s, status=%s, confidence=%.4f): %w",
			update.JobID, update.Status, sanitizedConfidence, err)
	}

	return nil
}

// SaveDocument inserts the document record and its segments in a single
// transaction and returns the document ID. The segment order column
// preserves reading order.
func (p *PostgresClient) SaveDocument(ctx context.Context, record *DocumentRecord, segments []SegmentRecord) (string, error) {
	if record.JobID == "" {
		return "", fmt.Errorf("job ID is required")
	}

	structuredJSON, err := json.Marshal(record.ContentStructured)
	if err != nil {
		return "", fmt.Errorf("failed to marshal structured content: %w", err)
	}
	structuredJSON = sanitizeJSONForPostgres(structuredJSON)

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	docQuery := `
		INSERT INTO docintake.documents (
			job_id, filename, mime_type, file_size, storage_path,
			category, language, confidence, page_count,
			extracted_text, content_markdown, content_structured,
			ocr_processed, extraction_complete, created_at, updated_at
		) VALUES (
			$1::uuid, $2, $3, $4, $5,
			$6, $7, $8::NUMERIC(5,4), $9,
			$10, $11, $12::jsonb,
			$13, $14, NOW(), NOW()
		)
		RETURNING id
	`

	var documentID string
	err = tx.QueryRowContext(
		ctx,
		docQuery,
		record.JobID,
		record.Filename,
		record.MimeType,
		record.FileSize,
		record.StoragePath,
		record.Category,
		record.Language,
		sanitizeConfidence(record.Confidence),
		record.PageCount,
		record.ExtractedText,
		record.ContentMarkdown,
		structuredJSON,
		record.OCRProcessed,
		record.ExtractionComplete,
	).Scan(&documentID)

	if err != nil {
		return "", fmt.Errorf("failed to insert document record: %w", err)
	}

	if err := p.insertSegments(ctx, tx, documentID, segments); err != nil {
		return "", err
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit document transaction: %w", err)
	}

	return documentID, nil
}

func (p *PostgresClient) insertSegments(ctx context.Context, tx *sql.Tx, documentID string, segments []SegmentRecord) error {
	if len(segments) == 0 {
		return nil
	}

	query := `
		INSERT INTO docintake.document_segments (
			document_id, segment_order, segment_type, segment_text,
			segment_markdown, segment_data, position_data, confidence_score,
			created_at
		) VALUES ($1::uuid, $2, $3, $4, $5, $6::jsonb, $7::jsonb, $8::NUMERIC(5,4), NOW())
	`

	for i, seg := range segments {
		dataJSON, err := json.Marshal(seg.SegmentData)
		if err != nil {
			return fmt.Errorf("failed to marshal segment data: %w", err)
		}
		positionJSON, err := json.Marshal(seg.PositionData)
		if err != nil {
			return fmt.Errorf("failed to marshal segment position: %w", err)
		}

		_, err = tx.ExecContext(
			ctx,
			query,
			documentID,
			i,
			seg.SegmentType,
			seg.SegmentText,
			seg.SegmentMarkdown,
			sanitizeJSONForPostgres(dataJSON),
			sanitizeJSONForPostgres(positionJSON),
			sanitizeConfidence(seg.Confidence),
		)
		if err != nil {
			return fmt.Errorf("failed to insert segment %d (%s): %w", i, seg.SegmentType, err)
		}
	}

	return nil
}

// GetDocumentByJobID retrieves a document row by its originating job
func (p *PostgresClient) GetDocumentByJobID(ctx context.Context, jobID string) (map[string]interface{}, error) {
	if jobID == "" {
		return nil, fmt.Errorf("job ID is required")
	}

	query := `
		SELECT
			id, job_id, filename, mime_type, file_size, storage_path,
			category, language, confidence, page_count,
			ocr_processed, extraction_complete, created_at, updated_at
		FROM docintake.documents
		WHERE job_id = $1::uuid
	`

	var (
		id, recordJobID, filename             string
		mimeType, storagePath                 sql.NullString
		category, language                    sql.NullString
		fileSize                              sql.NullInt64
		confidence                            sql.NullFloat64
		pageCount                             sql.NullInt64
		ocrProcessed, extractionComplete      bool
		createdAt, updatedAt                  time.Time
	)

	err := p.db.QueryRowContext(ctx, query, jobID).Scan(
		&id, &recordJobID, &filename, &mimeType, &fileSize, &storagePath,
		&category, &language, &confidence, &pageCount,
		&ocrProcessed, &extractionComplete, &createdAt, &updatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("document not found for job: %s", jobID)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}

	result := map[string]interface{}{
		"id":                 id,
		"jobId":              recordJobID,
		"filename":           filename,
		"ocrProcessed":       ocrProcessed,
		"extractionComplete": extractionComplete,
		"createdAt":          createdAt,
		"updatedAt":          updatedAt,
	}

	if mimeType.Valid {
		result["mimeType"] = mimeType.String
	}
	if storagePath.Valid {
		result["storagePath"] = storagePath.String
	}
	if category.Valid {
		result["category"] = category.String
	}
	if language.Valid {
		result["language"] = language.String
	}
	if fileSize.Valid {
		result["fileSize"] = fileSize.Int64
	}
	if confidence.Valid {
		result["confidence"] = confidence.Float64
	}
	if pageCount.Valid {
		result["pageCount"] = pageCount.Int64
	}

	return result, nil
}

// Ping checks database connectivity
func (p *PostgresClient) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close closes the database connection
func (p *PostgresClient) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}

// GetStats returns connection pool statistics
func (p *PostgresClient) GetStats() sql.DBStats {
	return p.db.Stats()
}
