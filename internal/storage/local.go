// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2024-2026 taskloop contributors
// https://github.com/lrbcloud/taskloop

package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/lrbcloud/taskloop/internal/pkg/errors"
)

// LocalBackend stores attachments on the local filesystem.
type LocalBackend struct {
	basePath string
}

// NewLocalBackend creates a local storage backend rooted at basePath.
func NewLocalBackend(basePath string) (*LocalBackend, error) {
	absPath, err := filepath.Abs(basePath)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeStorageError, "invalid storage path")
	}

	if err := os.MkdirAll(absPath, 0755); err != nil {
		return nil, errors.Wrap(err, errors.CodeStorageError, "failed to create storage directory")
	}

	// Verify we can write to the directory
	testFile := filepath.Join(absPath, ".write_test")
	if err := os.WriteFile(testFile, []byte("test"), 0644); err != nil {
		return nil, errors.Wrap(err, errors.CodeStorageError, "storage directory is not writable")
	}
	os.Remove(testFile)

	return &LocalBackend{basePath: absPath}, nil
}

// Type returns the storage type identifier.
func (s *LocalBackend) Type() string {
	return "local"
}

// Write writes data to storage atomically via a temp file and rename.
func (s *LocalBackend) Write(ctx context.Context, path string, reader io.Reader, size int64) error {
	fullPath, err := s.resolvePath(path)
	if err != nil {
		return fmt.Errorf("resolve write path: %w", err)
	}

	parentDir := filepath.Dir(fullPath)
	if err := os.MkdirAll(parentDir, 0755); err != nil {
		return errors.Wrap(err, errors.CodeStorageError, "failed to create parent directory")
	}

	// Temp file in the same directory so the rename stays on one filesystem
	tmpFile, err := os.CreateTemp(parentDir, ".upload_tmp_*")
	if err != nil {
		return errors.Wrap(err, errors.CodeStorageError, "failed to create temporary file")
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	written, err := copyWithContext(ctx, tmpFile, reader)
	if err != nil {
		tmpFile.Close()
		return errors.Wrap(err, errors.CodeStorageError, "failed to write attachment data")
	}

	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return errors.Wrap(err, errors.CodeStorageError, "failed to sync attachment data")
	}
	tmpFile.Close()

	if size > 0 && written != size {
		return errors.New(errors.CodeStorageError,
			fmt.Sprintf("size mismatch: expected %d, got %d", size, written))
	}

	if err := os.Rename(tmpPath, fullPath); err != nil {
		return errors.Wrap(err, errors.CodeStorageError, "failed to finalize attachment file")
	}

	success = true
	return nil
}

// Read returns a reader for the attachment at path.
func (s *LocalBackend) Read(ctx context.Context, path string) (io.ReadCloser, error) {
	fullPath, err := s.resolvePath(path)
	if err != nil {
		return nil, fmt.Errorf("resolve read path: %w", err)
	}

	file, err := os.Open(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NotFound("attachment")
		}
		return nil, errors.Wrap(err, errors.CodeStorageError, "failed to open attachment file")
	}

	return file, nil
}

// Delete removes an attachment from storage.
func (s *LocalBackend) Delete(ctx context.Context, path string) error {
	fullPath, err := s.resolvePath(path)
	if err != nil {
		return fmt.Errorf("resolve delete path: %w", err)
	}

	if err := os.Remove(fullPath); err != nil {
		if os.IsNotExist(err) {
			return nil // Already deleted
		}
		return errors.Wrap(err, errors.CodeStorageError, "failed to delete attachment file")
	}

	s.cleanupEmptyDirs(filepath.Dir(fullPath))

	return nil
}

// Exists checks if an attachment exists.
func (s *LocalBackend) Exists(ctx context.Context, path string) (bool, error) {
	fullPath, err := s.resolvePath(path)
	if err != nil {
		return false, fmt.Errorf("resolve exists path: %w", err)
	}

	_, err = os.Stat(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, errors.Wrap(err, errors.CodeStorageError, "failed to check attachment existence")
	}

	return true, nil
}

// Size returns the size of an attachment in bytes.
func (s *LocalBackend) Size(ctx context.Context, path string) (int64, error) {
	fullPath, err := s.resolvePath(path)
	if err != nil {
		return 0, err
	}

	info, err := os.Stat(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, errors.NotFound("attachment")
		}
		return 0, errors.Wrap(err, errors.CodeStorageError, "failed to get attachment size")
	}

	return info.Size(), nil
}

// List lists attachments with optional prefix.
func (s *LocalBackend) List(ctx context.Context, prefix string) ([]Entry, error) {
	searchPath := s.basePath
	if prefix != "" {
		searchPath = filepath.Join(s.basePath, filepath.FromSlash(prefix))
	}

	var entries []Entry

	err := filepath.Walk(searchPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return fmt.Errorf("list storage entries: walk %q: %w", path, err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if info.IsDir() {
			return nil
		}
		if strings.HasPrefix(info.Name(), ".") {
			return nil
		}

		relPath, err := filepath.Rel(s.basePath, path)
		if err != nil {
			return nil
		}

		entries = append(entries, Entry{
			Path:    filepath.ToSlash(relPath),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})

		return nil
	})

	if err != nil {
		return nil, errors.Wrap(err, errors.CodeStorageError, "failed to list attachments")
	}

	return entries, nil
}

// Stats returns storage statistics.
func (s *LocalBackend) Stats(ctx context.Context) (*Stats, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(s.basePath, &stat); err != nil {
		return nil, errors.Wrap(err, errors.CodeStorageError, "failed to get filesystem stats")
	}

	blockSize := uint64(stat.Bsize)
	totalSpace := int64(stat.Blocks * blockSize)
	availableSpace := int64(stat.Bavail * blockSize)
	usedSpace := totalSpace - int64(stat.Bfree*blockSize)

	var fileCount int64
	filepath.Walk(s.basePath, func(path string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() && !strings.HasPrefix(info.Name(), ".") {
			fileCount++
		}
		return nil
	})

	return &Stats{
		TotalSpace:     totalSpace,
		UsedSpace:      usedSpace,
		AvailableSpace: availableSpace,
		FileCount:      fileCount,
	}, nil
}

// Close releases any resources.
func (s *LocalBackend) Close() error {
	return nil
}

// BasePath returns the base storage path.
func (s *LocalBackend) BasePath() string {
	return s.basePath
}

// GetLastModified returns the last modification time of an attachment.
func (s *LocalBackend) GetLastModified(ctx context.Context, path string) (time.Time, error) {
	fullPath, err := s.resolvePath(path)
	if err != nil {
		return time.Time{}, err
	}

	info, err := os.Stat(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return time.Time{}, errors.NotFound("attachment")
		}
		return time.Time{}, errors.Wrap(err, errors.CodeStorageError, "failed to get attachment info")
	}

	return info.ModTime(), nil
}

// resolvePath validates and resolves a relative path to a full path.
func (s *LocalBackend) resolvePath(path string) (string, error) {
	cleanPath := filepath.Clean(filepath.FromSlash(path))

	// Ensure path doesn't escape base directory
	fullPath := filepath.Join(s.basePath, cleanPath)
	if !strings.HasPrefix(fullPath, s.basePath) {
		return "", errors.New(errors.CodeStorageError, "invalid storage path")
	}

	return fullPath, nil
}

// cleanupEmptyDirs removes empty parent directories up to basePath.
func (s *LocalBackend) cleanupEmptyDirs(dir string) {
	for {
		if dir == s.basePath || !strings.HasPrefix(dir, s.basePath) {
			break
		}
		if err := os.Remove(dir); err != nil {
			break // Directory not empty or other error
		}
		dir = filepath.Dir(dir)
	}
}

// copyWithContext copies from reader to writer with context cancellation support.
func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, 32*1024)
	var written int64

	for {
		select {
		case <-ctx.Done():
			return written, ctx.Err()
		default:
		}

		nr, rerr := src.Read(buf)
		if nr > 0 {
			nw, werr := dst.Write(buf[:nr])
			if nw > 0 {
				written += int64(nw)
			}
			if werr != nil {
				return written, werr
			}
			if nr != nw {
				return written, io.ErrShortWrite
			}
		}
		if rerr != nil {
			if rerr == io.EOF {
				return written, nil
			}
			return written, rerr
		}
	}
}
