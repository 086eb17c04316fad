/**
 * Storage Manager for DocIntake Worker
 *
 * Coordinates storage operations across the filesystem blob store
 * (original files) and PostgreSQL (document records, segments, job
 * status). The blob is written first so a failed database write can
 * roll it back and leave no orphaned record pointing at a missing file.
 */

package storage

import (
	"context"
	"fmt"

	"github.com/adverant/nexus/docintake-worker/internal/structure"
)

// StorageManager coordinates blob and PostgreSQL operations
type StorageManager struct {
	postgres *PostgresClient
	blobs    *BlobStore
}

// DocumentInput represents everything to persist for a processed document
type DocumentInput struct {
	JobID              string
	Filename           string
	MimeType           string
	FileData           []byte
	Category           string
	Language           string
	Confidence         float64
	PageCount          int
	ExtractedText      string
	ContentMarkdown    string
	ContentStructured  *structure.DocumentStructure
	Segments           []structure.Segment
	OCRProcessed       bool
	ExtractionComplete bool
}

// DocumentOutput represents the stored document
type DocumentOutput struct {
	DocumentID  string
	StoragePath string
}

// NewStorageManager creates a storage manager over the given database URL
// and blob directory
func NewStorageManager(postgresURL, blobDir string) (*StorageManager, error) {
	postgres, err := NewPostgresClient(postgresURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize PostgreSQL client: %w", err)
	}

	blobs, err := NewBlobStore(blobDir)
	if err != nil {
		postgres.Close() // Cleanup on failure
		return nil, fmt.Errorf("failed to initialize blob store: %w", err)
	}

	return &StorageManager{
		postgres: postgres,
		blobs:    blobs,
	}, nil
}

// StoreDocument persists the original file and the extracted document record
// with its segments. Ordering: blob first, then the database transaction; a
// failed transaction rolls the blob back.
func (sm *StorageManager) StoreDocument(ctx context.Context, input *DocumentInput) (*DocumentOutput, error) {
	if input == nil {
		return nil, fmt.Errorf("input is required")
	}

	if input.JobID == "" {
		return nil, fmt.Errorf("job ID is required")
	}

	storagePath, err := sm.blobs.Store(input.JobID, input.Filename, input.FileData)
	if err != nil {
		return nil, fmt.Errorf("failed to store original file: %w", err)
	}

	record := &DocumentRecord{
		JobID:              input.JobID,
		Filename:           input.Filename,
		MimeType:           input.MimeType,
		FileSize:           int64(len(input.FileData)),
		StoragePath:        storagePath,
		Category:           input.Category,
		Language:           input.Language,
		Confidence:         input.Confidence,
		PageCount:          input.PageCount,
		ExtractedText:      input.ExtractedText,
		ContentMarkdown:    input.ContentMarkdown,
		ContentStructured:  structureAsMap(input.ContentStructured),
		OCRProcessed:       input.OCRProcessed,
		ExtractionComplete: input.ExtractionComplete,
	}

	documentID, err := sm.postgres.SaveDocument(ctx, record, segmentRecords(input.Segments))
	if err != nil {
		// Rollback: remove the blob so no orphaned file remains
		sm.blobs.Delete(storagePath)
		return nil, fmt.Errorf("failed to save document record: %w", err)
	}

	return &DocumentOutput{
		DocumentID:  documentID,
		StoragePath: storagePath,
	}, nil
}

// UpdateJobStatus updates job status in PostgreSQL
func (sm *StorageManager) UpdateJobStatus(ctx context.Context, update *JobUpdate) error {
	return sm.postgres.UpdateJobStatus(ctx, update)
}

// GetDocumentByJobID retrieves a stored document by its originating job
func (sm *StorageManager) GetDocumentByJobID(ctx context.Context, jobID string) (map[string]interface{}, error) {
	return sm.postgres.GetDocumentByJobID(ctx, jobID)
}

// Ping checks database connectivity
func (sm *StorageManager) Ping(ctx context.Context) error {
	return sm.postgres.Ping(ctx)
}

// GetStats returns connection pool statistics
func (sm *StorageManager) GetStats() map[string]interface{} {
	pgStats := sm.postgres.GetStats()

	return map[string]interface{}{
		"postgres": map[string]interface{}{
			"max_open_connections": pgStats.MaxOpenConnections,
			"open_connections":     pgStats.OpenConnections,
			"in_use":               pgStats.InUse,
			"idle":                 pgStats.Idle,
			"wait_count":           pgStats.WaitCount,
			"wait_duration":        pgStats.WaitDuration.String(),
		},
	}
}

// Close closes all connections
func (sm *StorageManager) Close() error {
	if sm.postgres != nil {
		return sm.postgres.Close()
	}
	return nil
}

// structureAsMap converts the detected structure into the generic map shape
// stored as JSONB
func structureAsMap(s *structure.DocumentStructure) map[string]interface{} {
	if s == nil {
		return nil
	}
	return map[string]interface{}{
		"headings":      s.Headings,
		"paragraphs":    s.Paragraphs,
		"lists":         s.Lists,
		"keyValuePairs": s.KeyValuePairs,
		"tables":        s.Tables,
	}
}

// segmentRecords flattens detected segments into row form
func segmentRecords(segments []structure.Segment) []SegmentRecord {
	records := make([]SegmentRecord, 0, len(segments))
	for _, seg := range segments {
		var position map[string]interface{}
		if seg.Position != nil {
			position = map[string]interface{}{
				"start": seg.Position.Start,
				"end":   seg.Position.End,
			}
		}
		records = append(records, SegmentRecord{
			SegmentType:     string(seg.Type),
			SegmentText:     seg.Text,
			SegmentMarkdown: seg.Markdown,
			SegmentData:     seg.Data,
			PositionData:    position,
			Confidence:      seg.Confidence,
		})
	}
	return records
}
