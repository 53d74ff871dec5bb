package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestStoreResolveAndRemove(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	name := "video [abc123].mp4"
	content := []byte("not really a video")
	if err := os.WriteFile(filepath.Join(store.Dir(), name), content, 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	path, err := store.Resolve(name)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if filepath.Base(path) != name {
		t.Errorf("resolved path %q does not end in %q", path, name)
	}

	size, err := store.Size(name)
	if err != nil {
		t.Fatalf("Size: %v", err)
	}
	if size != int64(len(content)) {
		t.Errorf("size = %d, want %d", size, len(content))
	}

	if err := store.Remove(name); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := store.Resolve(name); !errors.Is(err, ErrFileMissing) {
		t.Errorf("Resolve after remove = %v, want ErrFileMissing", err)
	}

	// Removing twice is fine.
	if err := store.Remove(name); err != nil {
		t.Errorf("second Remove = %v, want nil", err)
	}
}

func TestStoreRejectsTraversal(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	for _, name := range []string{"../etc/passwd", "a/b.mp4", "..\\x.mp4"} {
		if _, err := store.Resolve(name); err == nil || errors.Is(err, ErrFileMissing) {
			t.Errorf("Resolve(%q) = %v, want invalid filename error", name, err)
		}
	}
}

func TestStoreMissingFile(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if _, err := store.Resolve("nope.mp4"); !errors.Is(err, ErrFileMissing) {
		t.Errorf("Resolve = %v, want ErrFileMissing", err)
	}
	if _, err := store.Resolve(""); !errors.Is(err, ErrFileMissing) {
		t.Errorf("Resolve(empty) = %v, want ErrFileMissing", err)
	}
}
