package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"artpost/internal/domain"
)

const (
	// DownloadTokenMetadataKey is the object metadata key Firebase Storage
	// consults when serving ?alt=media&token= URLs.
	DownloadTokenMetadataKey = "firebaseStorageDownloadTokens"

	firebaseDownloadBase = "https://firebasestorage.googleapis.com/v0/b/"
)

// objectWriter is the part of *gcs.Writer used by GCSStore.
type objectWriter interface {
	io.WriteCloser
}

// objectOpener creates a writer for one object. ctx cancellation before
// Close aborts the upload without creating the object.
type objectOpener func(ctx context.Context, key, contentType string, metadata map[string]string) objectWriter

// GCSStore uploads blobs to a Google Cloud Storage bucket and hands out
// Firebase download-token URLs.
type GCSStore struct {
	bucket string
	open   objectOpener
	client *gcs.Client
}

// NewGCSStore creates a client from the service account key file (or
// application default credentials when keyFile is empty).
func NewGCSStore(ctx context.Context, bucket, project, keyFile string) (*GCSStore, error) {
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errors.New("storage: bucket is required")
	}
	var opts []option.ClientOption
	if keyFile != "" {
		opts = append(opts, option.WithCredentialsFile(keyFile))
	}
	if project != "" {
		opts = append(opts, option.WithQuotaProject(project))
	}
	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("storage: gcs client: %w", err)
	}
	handle := client.Bucket(bucket)
	open := func(ctx context.Context, key, contentType string, metadata map[string]string) objectWriter {
		w := handle.Object(key).If(gcs.Conditions{DoesNotExist: true}).NewWriter(ctx)
		w.ContentType = contentType
		w.Metadata = metadata
		return w
	}
	return &GCSStore{bucket: bucket, open: open, client: client}, nil
}

// Close releases the underlying client.
func (s *GCSStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

// Store streams the staged file into a new object. Any failure before the
// writer is closed cancels the upload so nothing is finalized.
func (s *GCSStore) Store(ctx context.Context, localPath, contentType, token string) (string, error) {
	src, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("storage: open staged file: %w", err)
	}
	defer src.Close()

	key := NewObjectKey(localPath)
	uploadCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := s.open(uploadCtx, key, contentType, map[string]string{DownloadTokenMetadataKey: token})
	if _, err := io.Copy(w, src); err != nil {
		cancel()
		_ = w.Close()
		return "", fmt.Errorf("storage: upload %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("storage: finalize %s: %w", key, err)
	}
	return DownloadURL(firebaseDownloadBase+s.bucket+"/o", key, token), nil
}

var _ domain.BlobStore = (*GCSStore)(nil)
