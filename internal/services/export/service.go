// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2024-2026 taskloop contributors
// https://github.com/lrbcloud/taskloop

// Package export bundles a tenant's evidence attachments into a compressed
// tar archive for download or offsite retention.
package export

import (
	"archive/tar"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/lrbcloud/taskloop/internal/pkg/errors"
	"github.com/lrbcloud/taskloop/internal/pkg/logger"
	"github.com/lrbcloud/taskloop/internal/storage"
)

// Compression selects the archive compression codec.
type Compression string

const (
	CompressionGzip Compression = "gzip"
	CompressionZstd Compression = "zstd"
	CompressionNone Compression = "none"
)

// Extension returns the archive file extension for the codec.
func (c Compression) Extension() string {
	switch c {
	case CompressionZstd:
		return ".tar.zst"
	case CompressionNone:
		return ".tar"
	default:
		return ".tar.gz"
	}
}

// Result summarizes a finished export.
type Result struct {
	TenantID     uuid.UUID `json:"tenant_id"`
	FileCount    int       `json:"file_count"`
	OriginalSize int64     `json:"original_size"`
	Checksum     string    `json:"checksum"`
	CreatedAt    time.Time `json:"created_at"`
}

// manifest is the metadata entry written at the head of every archive.
type manifest struct {
	TenantID  uuid.UUID `json:"tenant_id"`
	CreatedAt time.Time `json:"created_at"`
	FileCount int       `json:"file_count"`
	TotalSize int64     `json:"total_size"`
}

// Service streams evidence archives out of the configured storage backend.
type Service struct {
	files  storage.Backend
	logger *logger.Logger

	now func() time.Time
}

// NewService creates an export service over the evidence backend.
func NewService(files storage.Backend, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		files:  files,
		logger: log.Named("export"),
		now:    time.Now,
	}
}

// Export writes a compressed tar of every attachment stored under the
// tenant's prefix. The archive opens with a manifest.json entry; attachment
// paths inside the archive are relative to the tenant prefix. The returned
// checksum covers the compressed byte stream.
func (s *Service) Export(ctx context.Context, tenantID uuid.UUID, dest io.Writer, compression Compression) (*Result, error) {
	prefix := tenantID.String() + "/"

	entries, err := s.files.List(ctx, prefix)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeStorageError, "failed to list tenant attachments")
	}

	hashWriter := sha256.New()
	multiWriter := io.MultiWriter(dest, hashWriter)

	var compWriter io.WriteCloser
	switch compression {
	case CompressionGzip:
		compWriter, err = gzip.NewWriterLevel(multiWriter, gzip.BestCompression)
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeStorageError, "failed to create gzip writer")
		}
	case CompressionZstd:
		compWriter, err = zstd.NewWriter(multiWriter, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeStorageError, "failed to create zstd writer")
		}
	case CompressionNone:
		compWriter = &nopWriteCloser{multiWriter}
	default:
		return nil, errors.InvalidInput("unsupported compression type")
	}
	defer compWriter.Close()

	tarWriter := tar.NewWriter(compWriter)
	defer tarWriter.Close()

	now := s.now().UTC()

	var totalSize int64
	for _, e := range entries {
		totalSize += e.Size
	}
	if err := s.writeManifest(tarWriter, manifest{
		TenantID:  tenantID,
		CreatedAt: now,
		FileCount: len(entries),
		TotalSize: totalSize,
	}); err != nil {
		return nil, err
	}

	var archived int
	for _, entry := range entries {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if err := s.writeEntry(ctx, tarWriter, prefix, entry); err != nil {
			return nil, err
		}
		archived++
	}

	if err := tarWriter.Close(); err != nil {
		return nil, errors.Wrap(err, errors.CodeStorageError, "failed to close tar writer")
	}
	if err := compWriter.Close(); err != nil {
		return nil, errors.Wrap(err, errors.CodeStorageError, "failed to close compression writer")
	}

	result := &Result{
		TenantID:     tenantID,
		FileCount:    archived,
		OriginalSize: totalSize,
		Checksum:     hex.EncodeToString(hashWriter.Sum(nil)),
		CreatedAt:    now,
	}

	s.logger.Info("evidence export complete",
		"tenant_id", tenantID,
		"files", archived,
		"bytes", totalSize,
	)
	return result, nil
}

func (s *Service) writeManifest(tw *tar.Writer, m manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return errors.Wrap(err, errors.CodeStorageError, "failed to marshal manifest")
	}
	header := &tar.Header{
		Name:    "manifest.json",
		Mode:    0644,
		Size:    int64(len(data)),
		ModTime: m.CreatedAt,
	}
	if err := tw.WriteHeader(header); err != nil {
		return errors.Wrap(err, errors.CodeStorageError, "failed to write manifest header")
	}
	if _, err := tw.Write(data); err != nil {
		return errors.Wrap(err, errors.CodeStorageError, "failed to write manifest")
	}
	return nil
}

func (s *Service) writeEntry(ctx context.Context, tw *tar.Writer, prefix string, entry storage.Entry) error {
	reader, err := s.files.Read(ctx, entry.Path)
	if err != nil {
		return errors.Wrap(err, errors.CodeStorageError, "failed to open attachment "+entry.Path)
	}
	defer reader.Close()

	header := &tar.Header{
		Name:    "evidence/" + strings.TrimPrefix(entry.Path, prefix),
		Mode:    0644,
		Size:    entry.Size,
		ModTime: entry.ModTime,
	}
	if err := tw.WriteHeader(header); err != nil {
		return errors.Wrap(err, errors.CodeStorageError, "failed to write header for "+entry.Path)
	}
	if _, err := io.Copy(tw, reader); err != nil {
		return errors.Wrap(err, errors.CodeStorageError, "failed to archive "+entry.Path)
	}
	return nil
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
