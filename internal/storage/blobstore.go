/**
 * Filesystem Blob Store for DocIntake Worker
 *
 * Stores original document files under a per-job directory so a failed
 * database write can roll the blob back without touching other jobs.
 */

package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// BlobStore persists original files on the local filesystem
type BlobStore struct {
	baseDir string
}

// NewBlobStore creates a blob store rooted at baseDir
func NewBlobStore(baseDir string) (*BlobStore, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("blob directory is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create blob directory: %w", err)
	}
	return &BlobStore{baseDir: baseDir}, nil
}

// Store writes the file under <baseDir>/<jobID>/<filename> and returns the
// storage path. The filename is sanitized to its base name so payloads
// cannot escape the job directory.
func (b *BlobStore) Store(jobID, filename string, data []byte) (string, error) {
	if jobID == "" {
		return "", fmt.Errorf("job ID is required")
	}

	name := filepath.Base(strings.TrimSpace(filename))
	if name == "" || name == "." || name == string(filepath.Separator) {
		name = "document"
	}

	jobDir := filepath.Join(b.baseDir, jobID)
	if err := os.MkdirAll(jobDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create job directory: %w", err)
	}

	path := filepath.Join(jobDir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write blob: %w", err)
	}

	return path, nil
}

// Delete removes a stored blob and its job directory if it became empty.
func (b *BlobStore) Delete(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete blob: %w", err)
	}
	// Best effort: drop the job directory when nothing is left in it.
	os.Remove(filepath.Dir(path))
	return nil
}
