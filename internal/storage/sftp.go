// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2024-2026 taskloop contributors
// https://github.com/lrbcloud/taskloop

package storage

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"strings"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/lrbcloud/taskloop/internal/pkg/errors"
)

// SFTPBackend stores attachments on a remote SFTP server.
type SFTPBackend struct {
	client   *sftp.Client
	sshConn  *ssh.Client
	basePath string
	config   SFTPConfig
}

// SFTPConfig contains SFTP storage configuration.
type SFTPConfig struct {
	// Host is the SFTP server hostname
	Host string

	// Port is the SFTP server port (default: 22)
	Port int

	// Username is the SSH username
	Username string

	// Password is the SSH password (optional if using key)
	Password string

	// PrivateKey is the SSH private key (PEM encoded)
	PrivateKey string

	// PrivateKeyPassphrase is the passphrase for the private key
	PrivateKeyPassphrase string

	// HostKeyFingerprint is the expected SSH host key fingerprint (SHA256:...).
	// If set, only this fingerprint is accepted.
	HostKeyFingerprint string

	// InsecureIgnoreHostKey skips host key verification (not recommended)
	InsecureIgnoreHostKey bool

	// BasePath is the base directory on the SFTP server
	BasePath string

	// ConnectTimeout is the connection timeout
	ConnectTimeout time.Duration
}

// NewSFTPBackend creates an SFTP storage backend.
func NewSFTPBackend(ctx context.Context, cfg SFTPConfig) (*SFTPBackend, error) {
	if cfg.Host == "" {
		return nil, errors.New(errors.CodeStorageError, "SFTP host is required")
	}
	if cfg.Username == "" {
		return nil, errors.New(errors.CodeStorageError, "SFTP username is required")
	}
	if cfg.Password == "" && cfg.PrivateKey == "" {
		return nil, errors.New(errors.CodeStorageError, "SFTP password or private key is required")
	}
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 30 * time.Second
	}
	if cfg.BasePath == "" {
		cfg.BasePath = "/taskloop/uploads"
	}

	var authMethods []ssh.AuthMethod

	if cfg.PrivateKey != "" {
		var signer ssh.Signer
		var err error

		if cfg.PrivateKeyPassphrase != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase([]byte(cfg.PrivateKey), []byte(cfg.PrivateKeyPassphrase))
		} else {
			signer, err = ssh.ParsePrivateKey([]byte(cfg.PrivateKey))
		}
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeStorageError, "failed to parse SSH private key")
		}
		authMethods = append(authMethods, ssh.PublicKeys(signer))
	}

	if cfg.Password != "" {
		authMethods = append(authMethods, ssh.Password(cfg.Password))
	}

	var hostKeyCallback ssh.HostKeyCallback
	if cfg.InsecureIgnoreHostKey {
		hostKeyCallback = ssh.InsecureIgnoreHostKey()
	} else if cfg.HostKeyFingerprint != "" {
		expected := cfg.HostKeyFingerprint
		hostKeyCallback = func(hostname string, remote net.Addr, key ssh.PublicKey) error {
			hash := sha256.Sum256(key.Marshal())
			got := "SHA256:" + base64.RawStdEncoding.EncodeToString(hash[:])
			if got != expected {
				return fmt.Errorf("SFTP host key mismatch for %s: expected %s, got %s", hostname, expected, got)
			}
			return nil
		}
	} else {
		hostKeyCallback = ssh.InsecureIgnoreHostKey()
	}

	sshConfig := &ssh.ClientConfig{
		User:            cfg.Username,
		Auth:            authMethods,
		HostKeyCallback: hostKeyCallback,
		Timeout:         cfg.ConnectTimeout,
	}

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	sshConn, err := ssh.Dial("tcp", addr, sshConfig)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeStorageError, "failed to connect to SFTP server")
	}

	sftpClient, err := sftp.NewClient(sshConn)
	if err != nil {
		sshConn.Close()
		return nil, errors.Wrap(err, errors.CodeStorageError, "failed to create SFTP client")
	}

	basePath := path.Clean(cfg.BasePath)
	if err := sftpClient.MkdirAll(basePath); err != nil {
		sftpClient.Close()
		sshConn.Close()
		return nil, errors.Wrap(err, errors.CodeStorageError, "failed to create base directory")
	}

	return &SFTPBackend{
		client:   sftpClient,
		sshConn:  sshConn,
		basePath: basePath,
		config:   cfg,
	}, nil
}

// Type returns the storage type identifier.
func (s *SFTPBackend) Type() string {
	return "sftp"
}

// Write writes data to SFTP storage.
func (s *SFTPBackend) Write(ctx context.Context, filePath string, reader io.Reader, size int64) error {
	fullPath := s.fullPath(filePath)

	parentDir := path.Dir(fullPath)
	if err := s.client.MkdirAll(parentDir); err != nil {
		return errors.Wrap(err, errors.CodeStorageError, "failed to create parent directory")
	}

	tmpPath := fullPath + ".tmp"
	file, err := s.client.Create(tmpPath)
	if err != nil {
		return errors.Wrap(err, errors.CodeStorageError, "failed to create temporary file")
	}

	success := false
	defer func() {
		if !success {
			s.client.Remove(tmpPath)
		}
	}()

	written, err := copyWithContext(ctx, file, reader)
	if err != nil {
		file.Close()
		return errors.Wrap(err, errors.CodeStorageError, "failed to write attachment data")
	}
	file.Close()

	if size > 0 && written != size {
		return errors.New(errors.CodeStorageError,
			fmt.Sprintf("size mismatch: expected %d, got %d", size, written))
	}

	if err := s.client.Rename(tmpPath, fullPath); err != nil {
		return errors.Wrap(err, errors.CodeStorageError, "failed to finalize attachment file")
	}

	success = true
	return nil
}

// Read returns a reader for the attachment at path.
func (s *SFTPBackend) Read(ctx context.Context, filePath string) (io.ReadCloser, error) {
	fullPath := s.fullPath(filePath)

	file, err := s.client.Open(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NotFound("attachment")
		}
		return nil, errors.Wrap(err, errors.CodeStorageError, "failed to open attachment file")
	}

	return file, nil
}

// Delete removes an attachment from storage.
func (s *SFTPBackend) Delete(ctx context.Context, filePath string) error {
	fullPath := s.fullPath(filePath)

	if err := s.client.Remove(fullPath); err != nil {
		if os.IsNotExist(err) {
			return nil // Already deleted
		}
		return errors.Wrap(err, errors.CodeStorageError, "failed to delete attachment file")
	}

	s.cleanupEmptyDirs(path.Dir(fullPath))

	return nil
}

// Exists checks if an attachment exists.
func (s *SFTPBackend) Exists(ctx context.Context, filePath string) (bool, error) {
	fullPath := s.fullPath(filePath)

	_, err := s.client.Stat(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, errors.Wrap(err, errors.CodeStorageError, "failed to check attachment existence")
	}

	return true, nil
}

// Size returns the size of an attachment in bytes.
func (s *SFTPBackend) Size(ctx context.Context, filePath string) (int64, error) {
	fullPath := s.fullPath(filePath)

	info, err := s.client.Stat(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, errors.NotFound("attachment")
		}
		return 0, errors.Wrap(err, errors.CodeStorageError, "failed to get attachment size")
	}

	return info.Size(), nil
}

// List lists attachments with optional prefix.
func (s *SFTPBackend) List(ctx context.Context, prefix string) ([]Entry, error) {
	searchPath := s.basePath
	if prefix != "" {
		searchPath = path.Join(s.basePath, prefix)
	}

	var entries []Entry

	walker := s.client.Walk(searchPath)
	for walker.Step() {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if walker.Err() != nil {
			continue
		}

		info := walker.Stat()
		if info.IsDir() {
			continue
		}
		if strings.HasPrefix(info.Name(), ".") {
			continue
		}

		relPath := strings.TrimPrefix(walker.Path(), s.basePath+"/")

		entries = append(entries, Entry{
			Path:    relPath,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}

	return entries, nil
}

// Close closes the SFTP connection.
func (s *SFTPBackend) Close() error {
	var errs []error

	if s.client != nil {
		if err := s.client.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if s.sshConn != nil {
		if err := s.sshConn.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return errors.Wrap(errs[0], errors.CodeStorageError, "failed to close SFTP connection")
	}

	return nil
}

// Reconnect attempts to reconnect to the SFTP server.
func (s *SFTPBackend) Reconnect(ctx context.Context) error {
	s.Close()

	newBackend, err := NewSFTPBackend(ctx, s.config)
	if err != nil {
		return fmt.Errorf("reconnect to SFTP server: %w", err)
	}

	s.client = newBackend.client
	s.sshConn = newBackend.sshConn

	return nil
}

// fullPath returns the full path on the SFTP server.
func (s *SFTPBackend) fullPath(filePath string) string {
	return path.Join(s.basePath, path.Clean(filePath))
}

// cleanupEmptyDirs removes empty parent directories up to basePath.
func (s *SFTPBackend) cleanupEmptyDirs(dir string) {
	for {
		if dir == s.basePath || !strings.HasPrefix(dir, s.basePath) {
			break
		}

		entries, err := s.client.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			break
		}

		if err := s.client.RemoveDirectory(dir); err != nil {
			break
		}

		dir = path.Dir(dir)
	}
}
