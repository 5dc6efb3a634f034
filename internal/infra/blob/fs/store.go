// Package fs implements a filesystem-backed blob store for single node and
// development deployments.
package fs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"permitdesk/pkg/domain"
)

// Compile-time contract assertion.
var _ domain.BlobStore = (*Store)(nil)

// Store maps keys to relative file paths under the root. A metadata sidecar
// (filename + `.meta`) stores the content type. Not concurrent-writer safe
// beyond per-file creation.
type Store struct {
	root    string
	baseURL string
}

// New returns a filesystem blob store rooted at path, creating it if needed.
// baseURL prefixes returned URLs; empty yields file:// URLs.
func New(root, baseURL string) (*Store, error) {
	if root == "" {
		root = "./blobdata"
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &Store{root: root, baseURL: strings.TrimSuffix(baseURL, "/")}, nil
}

// sanitizeKey forbids traversal and absolute paths so keys stay under root.
func sanitizeKey(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("empty key")
	}
	if strings.Contains(key, "..") || strings.HasPrefix(key, "/") {
		return "", fmt.Errorf("invalid key %q", key)
	}
	clean := filepath.ToSlash(filepath.Clean(key))
	if strings.HasPrefix(clean, "..") {
		return "", fmt.Errorf("invalid key traversal")
	}
	return clean, nil
}

func (s *Store) pathFor(key string) (dataPath, metaPath string, err error) {
	k, err := sanitizeKey(key)
	if err != nil {
		return "", "", err
	}
	dataPath = filepath.Join(s.root, k)
	metaPath = dataPath + ".meta"
	return
}

type metaFile struct {
	ContentType string    `json:"content_type,omitempty"`
	ETag        string    `json:"etag"`
	Size        int64     `json:"size"`
	CreatedAt   time.Time `json:"created_at"`
}

// Put streams the blob to a temp file and renames it into place.
func (s *Store) Put(_ context.Context, key string, r io.Reader, contentType string) (domain.BlobInfo, error) {
	dataPath, metaPath, err := s.pathFor(key)
	if err != nil {
		return domain.BlobInfo{}, err
	}
	if _, err := os.Stat(dataPath); err == nil {
		return domain.BlobInfo{}, fmt.Errorf("blob %s already exists", key)
	}
	if err := os.MkdirAll(filepath.Dir(dataPath), 0o755); err != nil {
		return domain.BlobInfo{}, err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dataPath), ".tmp-*")
	if err != nil {
		return domain.BlobInfo{}, err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	h := sha256.New()
	size, copyErr := io.Copy(io.MultiWriter(tmp, h), r)
	if copyErr != nil {
		_ = tmp.Close()
		return domain.BlobInfo{}, copyErr
	}
	if err := tmp.Close(); err != nil {
		return domain.BlobInfo{}, err
	}
	if err := os.Rename(tmp.Name(), dataPath); err != nil {
		return domain.BlobInfo{}, err
	}
	now := time.Now().UTC()
	mf := metaFile{ContentType: contentType, ETag: hex.EncodeToString(h.Sum(nil)), Size: size, CreatedAt: now}
	mb, err := json.Marshal(mf)
	if err != nil {
		return domain.BlobInfo{}, err
	}
	if err := os.WriteFile(metaPath, mb, 0o644); err != nil {
		return domain.BlobInfo{}, err
	}
	u, err := s.urlFor(key)
	if err != nil {
		return domain.BlobInfo{}, err
	}
	return domain.BlobInfo{Key: key, URL: u, Size: size, ContentType: contentType, UploadedAt: now}, nil
}

// Delete removes the blob and its sidecar, reporting whether it existed.
func (s *Store) Delete(_ context.Context, key string) (bool, error) {
	dataPath, metaPath, err := s.pathFor(key)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(dataPath); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if err := os.Remove(dataPath); err != nil {
		return false, err
	}
	_ = os.Remove(metaPath)
	return true, nil
}

// URL returns a retrieval URL; filesystem URLs carry no expiry.
func (s *Store) URL(_ context.Context, key string, _ time.Duration) (string, error) {
	dataPath, _, err := s.pathFor(key)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(dataPath); err != nil {
		return "", fmt.Errorf("blob %s not found", key)
	}
	return s.urlFor(key)
}

func (s *Store) urlFor(key string) (string, error) {
	if s.baseURL != "" {
		return s.baseURL + "/" + url.PathEscape(key), nil
	}
	abs, err := filepath.Abs(filepath.Join(s.root, key))
	if err != nil {
		return "", err
	}
	return "file://" + filepath.ToSlash(abs), nil
}
