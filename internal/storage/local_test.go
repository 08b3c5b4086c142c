// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2024-2026 taskloop contributors
// https://github.com/lrbcloud/taskloop

package storage

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
)

func newTestBackend(t *testing.T) *LocalBackend {
	t.Helper()
	backend, err := NewLocalBackend(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalBackend: %v", err)
	}
	return backend
}

func TestLocalBackend_WriteRead(t *testing.T) {
	backend := newTestBackend(t)
	ctx := context.Background()

	content := []byte("completion evidence")
	if err := backend.Write(ctx, "tenant-1/task-1/proof.pdf", bytes.NewReader(content), int64(len(content))); err != nil {
		t.Fatalf("Write: %v", err)
	}

	rc, err := backend.Read(ctx, "tenant-1/task-1/proof.pdf")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	defer rc.Close()

	got, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Fatalf("content mismatch: got %q", got)
	}
}

func TestLocalBackend_SizeMismatch(t *testing.T) {
	backend := newTestBackend(t)
	ctx := context.Background()

	err := backend.Write(ctx, "file.bin", strings.NewReader("short"), 100)
	if err == nil {
		t.Fatal("expected size mismatch error")
	}
}

func TestLocalBackend_ReadMissing(t *testing.T) {
	backend := newTestBackend(t)

	if _, err := backend.Read(context.Background(), "missing/file.txt"); err == nil {
		t.Fatal("expected error reading missing attachment")
	}
}

func TestLocalBackend_DeleteIdempotent(t *testing.T) {
	backend := newTestBackend(t)
	ctx := context.Background()

	if err := backend.Write(ctx, "a/b/c.txt", strings.NewReader("x"), 1); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := backend.Delete(ctx, "a/b/c.txt"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	// Second delete of a missing file is not an error
	if err := backend.Delete(ctx, "a/b/c.txt"); err != nil {
		t.Fatalf("Delete (missing): %v", err)
	}

	exists, err := backend.Exists(ctx, "a/b/c.txt")
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if exists {
		t.Fatal("expected attachment to be gone")
	}
}

func TestLocalBackend_PathTraversalRejected(t *testing.T) {
	backend := newTestBackend(t)
	ctx := context.Background()

	err := backend.Write(ctx, "../escape.txt", strings.NewReader("x"), 1)
	if err == nil {
		t.Fatal("expected traversal path to be rejected")
	}
}

func TestLocalBackend_List(t *testing.T) {
	backend := newTestBackend(t)
	ctx := context.Background()

	files := []string{"t1/a.txt", "t1/sub/b.txt", "t2/c.txt"}
	for _, f := range files {
		if err := backend.Write(ctx, f, strings.NewReader("data"), 4); err != nil {
			t.Fatalf("Write %s: %v", f, err)
		}
	}

	entries, err := backend.List(ctx, "t1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries under t1, got %d", len(entries))
	}
	for _, e := range entries {
		if !strings.HasPrefix(e.Path, "t1/") {
			t.Errorf("entry %q escaped prefix", e.Path)
		}
		if e.Size != 4 {
			t.Errorf("entry %q size = %d, want 4", e.Path, e.Size)
		}
	}
}
