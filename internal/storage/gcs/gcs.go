// Package gcs stores catalog media in a Google Cloud Storage bucket.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	objstore "github.com/utafrali/catalogcore/internal/storage"
)

// DefaultBaseURL is the public endpoint objects are served from.
const DefaultBaseURL = "https://storage.googleapis.com"

// Config holds the bucket and credentials of the store.
type Config struct {
	Bucket          string
	CredentialsFile string
	BaseURL         string
	CacheControl    string
}

// Store implements objstore.ObjectStore on a GCS bucket.
type Store struct {
	client *storage.Client
	cfg    Config
	logger *slog.Logger
}

// New creates a GCS client for cfg.Bucket. Extra client options are passed
// through, which lets tests point the client at an emulator.
func New(ctx context.Context, cfg Config, logger *slog.Logger, opts ...option.ClientOption) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("gcs: bucket is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.CacheControl == "" {
		cfg.CacheControl = "public, max-age=86400"
	}
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}

	logger.Info("gcs object store ready", slog.String("bucket", cfg.Bucket))
	return &Store{client: client, cfg: cfg, logger: logger}, nil
}

// Upload streams the payload into a new object.
func (s *Store) Upload(ctx context.Context, input *objstore.UploadInput) (*objstore.Object, error) {
	key := objstore.NewKey(input.Folder, input.ContentType)

	w := s.client.Bucket(s.cfg.Bucket).Object(key).NewWriter(ctx)
	w.ContentType = input.ContentType
	w.CacheControl = s.cfg.CacheControl

	if _, err := io.Copy(w, input.Data); err != nil {
		_ = w.Close()
		return nil, objstore.UploadError(key, err)
	}
	if err := w.Close(); err != nil {
		return nil, objstore.UploadError(key, err)
	}

	return &objstore.Object{RemoteID: key, URL: s.PublicURL(key)}, nil
}

// Delete removes the object. A missing object maps to
// objstore.ErrObjectNotFound.
func (s *Store) Delete(ctx context.Context, remoteID string) error {
	err := s.client.Bucket(s.cfg.Bucket).Object(remoteID).Delete(ctx)
	return mapDeleteError(remoteID, err)
}

// Ping checks that the bucket is reachable. Used by the readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	if _, err := s.client.Bucket(s.cfg.Bucket).Attrs(ctx); err != nil {
		return fmt.Errorf("gcs bucket %s: %w", s.cfg.Bucket, err)
	}
	return nil
}

// PublicURL returns the URL an object key is served from.
func (s *Store) PublicURL(key string) string {
	return publicURL(s.cfg.BaseURL, s.cfg.Bucket, key)
}

// Close releases the client.
func (s *Store) Close() error {
	return s.client.Close()
}

func publicURL(baseURL, bucket, key string) string {
	return fmt.Sprintf("%s/%s/%s", baseURL, bucket, key)
}

func mapDeleteError(remoteID string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrObjectNotExist):
		return fmt.Errorf("%s: %w", remoteID, objstore.ErrObjectNotFound)
	default:
		return objstore.DeleteError(remoteID, err)
	}
}
