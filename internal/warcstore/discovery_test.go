package warcstore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func mustMkdirAll(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(path, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", path, err)
	}
}

func touchFile(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestDiscoverUsesArchiveStateTempDirs(t *testing.T) {
	root := t.TempDir()
	tempDir := filepath.Join(root, ".tmpabc")
	archiveDir := filepath.Join(tempDir, "collections", "crawl-1", "archive")
	mustMkdirAll(t, archiveDir)
	touchFile(t, filepath.Join(archiveDir, "rec-0001.warc.gz"))

	state := archiveState{TempDirs: []string{tempDir}}
	data, _ := json.Marshal(state)
	if err := os.WriteFile(filepath.Join(root, ".archive_state.json"), data, 0o644); err != nil {
		t.Fatalf("write archive state: %v", err)
	}

	warcs, err := Discover(root, true)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if len(warcs) != 1 {
		t.Fatalf("expected 1 warc file, got %d: %v", len(warcs), warcs)
	}
}

func TestDiscoverFallsBackToFilesystemScan(t *testing.T) {
	root := t.TempDir()
	tempDir := filepath.Join(root, ".tmpxyz")
	archiveDir := filepath.Join(tempDir, "collections", "crawl-9", "archive")
	mustMkdirAll(t, archiveDir)
	touchFile(t, filepath.Join(archiveDir, "rec-0001.warc.gz"))

	// No .archive_state.json present at all.
	warcs, err := Discover(root, true)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if len(warcs) != 1 {
		t.Fatalf("expected fallback scan to find 1 warc file, got %d: %v", len(warcs), warcs)
	}
}

func TestDiscoverDropsMissingTempDirs(t *testing.T) {
	root := t.TempDir()
	state := archiveState{TempDirs: []string{filepath.Join(root, ".tmpgone")}}
	data, _ := json.Marshal(state)
	if err := os.WriteFile(filepath.Join(root, ".archive_state.json"), data, 0o644); err != nil {
		t.Fatalf("write archive state: %v", err)
	}

	warcs, err := Discover(root, false)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if len(warcs) != 0 {
		t.Fatalf("expected no warcs when tracked temp dir is gone and fallback disabled, got %v", warcs)
	}
}

func TestDiscoverDeduplicatesAndSorts(t *testing.T) {
	root := t.TempDir()
	tempDir := filepath.Join(root, ".tmpabc")
	archiveDir := filepath.Join(tempDir, "collections", "crawl-1", "archive")
	mustMkdirAll(t, archiveDir)
	touchFile(t, filepath.Join(archiveDir, "rec-0002.warc.gz"))
	touchFile(t, filepath.Join(archiveDir, "rec-0001.warc.gz"))

	state := archiveState{TempDirs: []string{tempDir, tempDir}}
	data, _ := json.Marshal(state)
	if err := os.WriteFile(filepath.Join(root, ".archive_state.json"), data, 0o644); err != nil {
		t.Fatalf("write archive state: %v", err)
	}

	warcs, err := Discover(root, true)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if len(warcs) != 2 {
		t.Fatalf("expected deduplication to yield 2 warcs, got %d: %v", len(warcs), warcs)
	}
	if filepath.Base(warcs[0]) != "rec-0001.warc.gz" {
		t.Fatalf("expected sorted order, got %v", warcs)
	}
}
