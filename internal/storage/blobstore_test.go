package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestBlobStoreRequiresBaseDir(t *testing.T) {
	if _, err := NewBlobStore(""); err == nil {
		t.Fatalf("expected error for empty base directory")
	}
}

func TestBlobStoreStoreAndRead(t *testing.T) {
	store, err := NewBlobStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewBlobStore: %v", err)
	}

	path, err := store.Store("job-1", "invoice.pdf", []byte("%PDF-1.7"))
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	if filepath.Base(path) != "invoice.pdf" {
		t.Errorf("stored name = %q, want invoice.pdf", filepath.Base(path))
	}
	if filepath.Base(filepath.Dir(path)) != "job-1" {
		t.Errorf("blob should live in a per-job directory, got %q", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(data) != "%PDF-1.7" {
		t.Errorf("content = %q", data)
	}
}

func TestBlobStoreSanitizesFilename(t *testing.T) {
	base := t.TempDir()
	store, _ := NewBlobStore(base)

	path, err := store.Store("job-2", "../../etc/passwd", []byte("x"))
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	if filepath.Base(path) != "passwd" {
		t.Errorf("stored name = %q, want base name only", filepath.Base(path))
	}
	rel, err := filepath.Rel(base, path)
	if err != nil || filepath.IsAbs(rel) || strings.HasPrefix(rel, "..") {
		t.Errorf("blob escaped the base directory: %q", path)
	}
}

func TestBlobStoreFallbackFilename(t *testing.T) {
	store, _ := NewBlobStore(t.TempDir())

	path, err := store.Store("job-3", "   ", []byte("x"))
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	if filepath.Base(path) != "document" {
		t.Errorf("stored name = %q, want fallback name", filepath.Base(path))
	}
}

func TestBlobStoreRejectsEmptyJobID(t *testing.T) {
	store, _ := NewBlobStore(t.TempDir())
	if _, err := store.Store("", "a.txt", []byte("x")); err == nil {
		t.Fatalf("expected error for empty job ID")
	}
}

func TestBlobStoreDelete(t *testing.T) {
	store, _ := NewBlobStore(t.TempDir())
	path, err := store.Store("job-4", "doc.txt", []byte("x"))
	if err != nil {
		t.Fatalf("Store: %v", err)
	}

	if err := store.Delete(path); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("blob should be gone after delete")
	}
	if _, err := os.Stat(filepath.Dir(path)); !os.IsNotExist(err) {
		t.Errorf("empty job directory should be removed")
	}

	// Deleting again is a no-op.
	if err := store.Delete(path); err != nil {
		t.Errorf("repeat delete should not fail: %v", err)
	}
}
