package storage

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"artpost/internal/domain"
)

const metaSuffix = ".meta.json"

// FileStore persists blobs onto the local filesystem. It is intended for
// development and test environments where an object storage service is not
// available. Each object has a sidecar holding its content type and
// download token, and is served by the blob download handler.
type FileStore struct {
	basePath string
	baseURL  string
}

type objectMeta struct {
	ContentType string `json:"contentType"`
	Token       string `json:"token"`
}

// NewFileStore initializes a FileStore rooted at basePath whose objects are
// served under baseURL.
func NewFileStore(basePath, baseURL string) (*FileStore, error) {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		return nil, errors.New("storage: base path is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("storage: ensure base path: %w", err)
	}
	return &FileStore{basePath: basePath, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// BasePath returns the configured root directory.
func (s *FileStore) BasePath() string {
	if s == nil {
		return ""
	}
	return s.basePath
}

// Store copies the file at localPath under a fresh key and returns its
// download URL. The object only becomes visible once fully written.
func (s *FileStore) Store(ctx context.Context, localPath, contentType, token string) (string, error) {
	if s == nil {
		return "", errors.New("storage: no store configured")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	key, err := sanitizeKey(NewObjectKey(localPath))
	if err != nil {
		return "", err
	}

	src, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("storage: open staged file: %w", err)
	}
	defer src.Close()

	fullPath := s.fullPath(key)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return "", fmt.Errorf("storage: ensure directory: %w", err)
	}

	meta, err := json.Marshal(objectMeta{ContentType: contentType, Token: token})
	if err != nil {
		return "", fmt.Errorf("storage: encode metadata: %w", err)
	}
	if err := writeAtomic(fullPath+metaSuffix, func(w io.Writer) error {
		_, err := w.Write(meta)
		return err
	}); err != nil {
		return "", fmt.Errorf("storage: write metadata: %w", err)
	}
	if err := writeAtomic(fullPath, func(w io.Writer) error {
		_, err := io.Copy(w, &ctxReader{ctx: ctx, r: src})
		return err
	}); err != nil {
		_ = os.Remove(fullPath + metaSuffix)
		return "", fmt.Errorf("storage: write object: %w", err)
	}

	return DownloadURL(s.baseURL, key, token), nil
}

// Open returns the object stored under key when token matches the token it
// was stored with. The caller closes the returned reader.
func (s *FileStore) Open(ctx context.Context, key, token string) (io.ReadCloser, string, error) {
	if s == nil {
		return nil, "", errors.New("storage: no store configured")
	}
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return nil, "", domain.ErrNotFound
	}
	fullPath := s.fullPath(cleanKey)

	raw, err := os.ReadFile(fullPath + metaSuffix)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, "", domain.ErrNotFound
		}
		return nil, "", fmt.Errorf("storage: read metadata: %w", err)
	}
	var meta objectMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, "", fmt.Errorf("storage: decode metadata: %w", err)
	}
	if token == "" || subtle.ConstantTimeCompare([]byte(meta.Token), []byte(token)) != 1 {
		return nil, "", domain.ErrInvalidToken
	}

	f, err := os.Open(fullPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, "", domain.ErrNotFound
		}
		return nil, "", fmt.Errorf("storage: open object: %w", err)
	}
	return f, meta.ContentType, nil
}

func (s *FileStore) fullPath(key string) string {
	return filepath.Join(s.basePath, filepath.FromSlash(key))
}

// writeAtomic writes through a temp file in the target directory and renames
// it into place, so readers never observe a partial object.
func writeAtomic(path string, write func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".upload-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if err := write(tmp); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// sanitizeKey normalizes a key and prevents escaping the storage root.
func sanitizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("storage: key is required")
	}
	key = strings.ReplaceAll(key, "\\", "/")
	key = strings.TrimPrefix(key, "./")
	key = strings.TrimLeft(key, "/")
	cleaned := filepath.ToSlash(filepath.Clean(key))
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") || strings.HasSuffix(cleaned, metaSuffix) {
		return "", errors.New("storage: invalid key")
	}
	return cleaned, nil
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

var _ domain.BlobStore = (*FileStore)(nil)
