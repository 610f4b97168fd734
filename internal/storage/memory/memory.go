package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/utafrali/catalogcore/internal/storage"
)

type entry struct {
	ContentType string
	Data        []byte
}

// Store implements storage.ObjectStore in process. It is used for local
// development and tests.
type Store struct {
	mu      sync.RWMutex
	objects map[string]entry
	baseURL string
}

// New creates an empty in-memory store serving URLs under baseURL.
func New(baseURL string) *Store {
	return &Store{
		objects: make(map[string]entry),
		baseURL: baseURL,
	}
}

// Upload stores the payload and returns its generated key and URL.
func (s *Store) Upload(ctx context.Context, input *storage.UploadInput) (*storage.Object, error) {
	key := storage.NewKey(input.Folder, input.ContentType)
	if err := ctx.Err(); err != nil {
		return nil, storage.UploadError(key, err)
	}

	var buf bytes.Buffer
	if input.Data != nil {
		if _, err := io.Copy(&buf, input.Data); err != nil {
			return nil, storage.UploadError(key, err)
		}
	}

	s.mu.Lock()
	s.objects[key] = entry{ContentType: input.ContentType, Data: buf.Bytes()}
	s.mu.Unlock()

	return &storage.Object{RemoteID: key, URL: s.url(key)}, nil
}

// Delete removes the object. Unknown keys return storage.ErrObjectNotFound.
func (s *Store) Delete(ctx context.Context, remoteID string) error {
	if err := ctx.Err(); err != nil {
		return storage.DeleteError(remoteID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.objects[remoteID]; !ok {
		return fmt.Errorf("%s: %w", remoteID, storage.ErrObjectNotFound)
	}
	delete(s.objects, remoteID)
	return nil
}

// Get returns the stored bytes and content type of remoteID.
func (s *Store) Get(remoteID string) ([]byte, string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.objects[remoteID]
	return e.Data, e.ContentType, ok
}

// Len returns the number of stored objects.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}

func (s *Store) url(key string) string {
	return fmt.Sprintf("%s/media/%s", s.baseURL, key)
}
