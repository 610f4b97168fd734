// Package natsobj stores catalog media in a NATS JetStream object store
// bucket.
package natsobj

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/utafrali/catalogcore/internal/storage"
)

// bucket is the subset of jetstream.ObjectStore the store uses.
type bucket interface {
	Put(ctx context.Context, meta jetstream.ObjectMeta, reader io.Reader) (*jetstream.ObjectInfo, error)
	Delete(ctx context.Context, name string) error
}

// Config holds the connection and bucket settings.
type Config struct {
	URL     string
	Bucket  string
	BaseURL string
}

// Store implements storage.ObjectStore on a JetStream object store.
type Store struct {
	conn    *nats.Conn
	bucket  bucket
	baseURL string
	logger  *slog.Logger
}

// Connect dials NATS, creates the bucket when missing and returns a store.
func Connect(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("natsobj: bucket is required")
	}

	nc, err := nats.Connect(cfg.URL,
		nats.Name("catalog-media"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", slog.String("error", err.Error()))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", slog.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}

	obs, err := js.CreateOrUpdateObjectStore(ctx, jetstream.ObjectStoreConfig{
		Bucket:      cfg.Bucket,
		Description: "catalog product images and brand logos",
		Storage:     jetstream.FileStorage,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create object store %s: %w", cfg.Bucket, err)
	}

	logger.Info("nats object store ready",
		slog.String("url", nc.ConnectedUrl()),
		slog.String("bucket", cfg.Bucket),
	)

	s := newStore(obs, cfg.BaseURL, logger)
	s.conn = nc
	return s, nil
}

func newStore(b bucket, baseURL string, logger *slog.Logger) *Store {
	return &Store{
		bucket:  b,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  logger,
	}
}

// Upload stores the payload as a new object.
func (s *Store) Upload(ctx context.Context, input *storage.UploadInput) (*storage.Object, error) {
	key := storage.NewKey(input.Folder, input.ContentType)

	_, err := s.bucket.Put(ctx, jetstream.ObjectMeta{
		Name: key,
		Headers: nats.Header{
			"Content-Type": []string{input.ContentType},
		},
	}, input.Data)
	if err != nil {
		return nil, storage.UploadError(key, err)
	}

	return &storage.Object{RemoteID: key, URL: s.baseURL + "/" + key}, nil
}

// Delete removes the object. A missing object maps to
// storage.ErrObjectNotFound.
func (s *Store) Delete(ctx context.Context, remoteID string) error {
	err := s.bucket.Delete(ctx, remoteID)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, jetstream.ErrObjectNotFound):
		return fmt.Errorf("%s: %w", remoteID, storage.ErrObjectNotFound)
	default:
		return storage.DeleteError(remoteID, err)
	}
}

// Ping reports whether the NATS connection is up.
func (s *Store) Ping(_ context.Context) error {
	if s.conn == nil || !s.conn.IsConnected() {
		return errors.New("nats not connected")
	}
	return nil
}

// Close drains the connection.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Drain()
}
