// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2024-2026 taskloop contributors
// https://github.com/lrbcloud/taskloop

// Package storage holds the evidence attachment backends. Checklist
// completions and delegation tasks store uploaded proof files through the
// Backend interface; local disk is the default, SFTP covers deployments that
// keep evidence on a file server.
package storage

import (
	"context"
	"io"
	"time"
)

// Backend stores evidence attachments under relative slash-separated paths.
type Backend interface {
	// Type returns the backend identifier ("local", "sftp").
	Type() string

	// Write stores the reader's content at path. When size is positive the
	// written byte count is verified against it.
	Write(ctx context.Context, path string, reader io.Reader, size int64) error

	// Read opens the attachment at path.
	Read(ctx context.Context, path string) (io.ReadCloser, error)

	// Delete removes the attachment at path. Deleting a missing attachment
	// is not an error.
	Delete(ctx context.Context, path string) error

	// Exists reports whether an attachment is present.
	Exists(ctx context.Context, path string) (bool, error)

	// Size returns the attachment size in bytes.
	Size(ctx context.Context, path string) (int64, error)

	// List returns attachments under the given prefix.
	List(ctx context.Context, prefix string) ([]Entry, error)

	// Close releases backend resources.
	Close() error
}

// Entry describes one stored attachment.
type Entry struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// Stats describes backend capacity. Unknown values are -1.
type Stats struct {
	TotalSpace     int64
	UsedSpace      int64
	AvailableSpace int64
	FileCount      int64
}
