package storage

import (
	"io"
	"os"
	"strings"
	"testing"
)

func TestLocalStoreSaveOpenDelete(t *testing.T) {
	store, errNew := NewLocalStore(t.TempDir())
	if errNew != nil {
		t.Fatalf("new store: %v", errNew)
	}
	key := NewObjectKey()

	written, errSave := store.Save(key, strings.NewReader("hello world"))
	if errSave != nil {
		t.Fatalf("save: %v", errSave)
	}
	if written != int64(len("hello world")) {
		t.Fatalf("expected %d bytes written, got %d", len("hello world"), written)
	}

	r, errOpen := store.Open(key)
	if errOpen != nil {
		t.Fatalf("open: %v", errOpen)
	}
	data, errRead := io.ReadAll(r)
	_ = r.Close()
	if errRead != nil {
		t.Fatalf("read: %v", errRead)
	}
	if string(data) != "hello world" {
		t.Fatalf("unexpected content %q", data)
	}

	if errDelete := store.Delete(key); errDelete != nil {
		t.Fatalf("delete: %v", errDelete)
	}
	if _, errOpen = store.Open(key); errOpen == nil {
		t.Fatalf("expected open to fail after delete")
	}

	// Deleting a missing object is not an error.
	if errDelete := store.Delete(key); errDelete != nil {
		t.Fatalf("delete missing: %v", errDelete)
	}
}

func TestLocalStoreSaveReplacesContent(t *testing.T) {
	store, _ := NewLocalStore(t.TempDir())
	key := NewObjectKey()

	if _, errSave := store.Save(key, strings.NewReader("first")); errSave != nil {
		t.Fatalf("save first: %v", errSave)
	}
	if _, errSave := store.Save(key, strings.NewReader("second")); errSave != nil {
		t.Fatalf("save second: %v", errSave)
	}
	r, _ := store.Open(key)
	data, _ := io.ReadAll(r)
	_ = r.Close()
	if string(data) != "second" {
		t.Fatalf("expected replaced content, got %q", data)
	}
}

func TestLocalStoreRejectsUnsafeKeys(t *testing.T) {
	dir := t.TempDir()
	store, _ := NewLocalStore(dir)
	for _, key := range []string{"", "../escape", "a/b", ".hidden", "..", "sub/../../etc"} {
		if _, errSave := store.Save(key, strings.NewReader("x")); errSave == nil {
			t.Fatalf("expected key %q rejected", key)
		}
		if _, errOpen := store.Open(key); errOpen == nil {
			t.Fatalf("expected open of %q rejected", key)
		}
	}
	entries, errRead := os.ReadDir(dir)
	if errRead != nil {
		t.Fatalf("read dir: %v", errRead)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no files written, found %d", len(entries))
	}
}

func TestNewLocalStoreRequiresDirectory(t *testing.T) {
	if _, errNew := NewLocalStore("  "); errNew == nil {
		t.Fatalf("expected empty directory rejected")
	}
}
