package media

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/utafrali/catalogcore/internal/storage"
	"github.com/utafrali/catalogcore/internal/storage/memory"
	"github.com/utafrali/catalogcore/pkg/httpclient"
	"github.com/utafrali/catalogcore/pkg/logger"
)

var errInjected = errors.New("injected failure")

// pngBytes returns a minimal PNG signature followed by tag, so payloads
// can be told apart by content.
func pngBytes(tag string) []byte {
	return append([]byte("\x89PNG\r\n\x1a\n"), tag...)
}

func pngPayload(tag string) Payload {
	return InlinePayload(pngBytes(tag), "image/png")
}

func pngBase64(tag string) string {
	return base64.StdEncoding.EncodeToString(pngBytes(tag))
}

// fakeStore is an in-memory object store with failure injection.
type fakeStore struct {
	*memory.Store

	mu         sync.Mutex
	failUpload func(data []byte, attempt int) error
	failDelete func(remoteID string, attempt int) error
	uploads    map[string]int
	deletes    map[string]int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		Store:   memory.New("http://media.test"),
		uploads: make(map[string]int),
		deletes: make(map[string]int),
	}
}

func (f *fakeStore) Upload(ctx context.Context, in *storage.UploadInput) (*storage.Object, error) {
	data, err := io.ReadAll(in.Data)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.uploads[string(data)]++
	attempt := f.uploads[string(data)]
	fail := f.failUpload
	f.mu.Unlock()

	if fail != nil {
		if err := fail(data, attempt); err != nil {
			return nil, storage.UploadError(in.Folder, err)
		}
	}
	return f.Store.Upload(ctx, &storage.UploadInput{
		Folder:      in.Folder,
		ContentType: in.ContentType,
		Size:        in.Size,
		Data:        bytes.NewReader(data),
	})
}

func (f *fakeStore) Delete(ctx context.Context, remoteID string) error {
	f.mu.Lock()
	f.deletes[remoteID]++
	attempt := f.deletes[remoteID]
	fail := f.failDelete
	f.mu.Unlock()

	if fail != nil {
		if err := fail(remoteID, attempt); err != nil {
			return storage.DeleteError(remoteID, err)
		}
	}
	return f.Store.Delete(ctx, remoteID)
}

// seed stores a pre-existing object and returns its reference.
func (f *fakeStore) seed(t *testing.T, folder, tag string) storage.Object {
	t.Helper()
	obj, err := f.Store.Upload(context.Background(), &storage.UploadInput{
		Folder:      folder,
		ContentType: "image/png",
		Data:        bytes.NewReader(pngBytes(tag)),
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return *obj
}

func (f *fakeStore) has(remoteID string) bool {
	_, _, ok := f.Get(remoteID)
	return ok
}

type orphanRecorder struct {
	mu      sync.Mutex
	reports []Orphans
}

func (r *orphanRecorder) ReportOrphans(_ context.Context, o Orphans) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, o)
}

func (r *orphanRecorder) all() []Orphans {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Orphans(nil), r.reports...)
}

type fakeFetcher struct {
	bodies map[string]*httpclient.Body
	err    error
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (*httpclient.Body, error) {
	if f.err != nil {
		return nil, f.err
	}
	b, ok := f.bodies[url]
	if !ok {
		return nil, &httpclient.StatusError{URL: url, StatusCode: 404}
	}
	return b, nil
}

func testConfig() Config {
	return Config{
		CallTimeout: time.Second,
		MaxAttempts: 2,
		RetryWait:   time.Millisecond,
		Concurrency: 4,
	}
}

func newTestManager(store storage.ObjectStore, fetcher Fetcher, orphans OrphanReporter) *Manager {
	return NewManager(store, fetcher, orphans, testConfig(), logger.Discard())
}
