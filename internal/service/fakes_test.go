package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/catalogcore/internal/domain"
	"github.com/utafrali/catalogcore/internal/event"
	"github.com/utafrali/catalogcore/internal/media"
	"github.com/utafrali/catalogcore/internal/query"
	"github.com/utafrali/catalogcore/internal/repository"
	"github.com/utafrali/catalogcore/internal/repository/memory"
	"github.com/utafrali/catalogcore/internal/storage"
	memstore "github.com/utafrali/catalogcore/internal/storage/memory"
	pkgkafka "github.com/utafrali/catalogcore/pkg/kafka"
	"github.com/utafrali/catalogcore/pkg/logger"
	"github.com/utafrali/catalogcore/pkg/pagination"
	"github.com/utafrali/catalogcore/pkg/retry"
)

var errInjected = errors.New("injected failure")

// pngData returns a data URI whose content is a PNG signature followed by
// tag, so uploads can be told apart by content.
func pngData(tag string) string {
	data := append([]byte("\x89PNG\r\n\x1a\n"), tag...)
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(data)
}

// --- object store with failure injection ---

type flakyStore struct {
	*memstore.Store

	mu          sync.Mutex
	failUploads map[string]bool
	failDeletes map[string]bool
}

func newFlakyStore() *flakyStore {
	return &flakyStore{
		Store:       memstore.New("http://media.test"),
		failUploads: make(map[string]bool),
		failDeletes: make(map[string]bool),
	}
}

func (f *flakyStore) failUploadOf(tag string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failUploads[tag] = true
}

func (f *flakyStore) failDeleteOf(remoteID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failDeletes[remoteID] = true
}

func (f *flakyStore) Upload(ctx context.Context, in *storage.UploadInput) (*storage.Object, error) {
	data, err := io.ReadAll(in.Data)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	for tag := range f.failUploads {
		if bytes.HasSuffix(data, []byte(tag)) {
			f.mu.Unlock()
			return nil, storage.UploadError(in.Folder, errInjected)
		}
	}
	f.mu.Unlock()

	next := *in
	next.Data = bytes.NewReader(data)
	return f.Store.Upload(ctx, &next)
}

func (f *flakyStore) Delete(ctx context.Context, remoteID string) error {
	f.mu.Lock()
	fail := f.failDeletes[remoteID]
	f.mu.Unlock()
	if fail {
		return storage.DeleteError(remoteID, errInjected)
	}
	return f.Store.Delete(ctx, remoteID)
}

// --- event publisher ---

type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
}

func (r *recordingPublisher) Publish(_ context.Context, topic string, _ *pkgkafka.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.topics = append(r.topics, topic)
	return nil
}

func (r *recordingPublisher) published() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.topics...)
}

// --- mock repository ---

type mockProductRepository struct {
	mock.Mock
}

var _ repository.ProductRepository = (*mockProductRepository)(nil)

func (m *mockProductRepository) Create(ctx context.Context, p *domain.Product) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *mockProductRepository) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Product), args.Error(1)
}

func (m *mockProductRepository) Search(ctx context.Context, expr query.Expression, page pagination.Params) (*repository.SearchResult, error) {
	args := m.Called(ctx, expr, page)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.SearchResult), args.Error(1)
}

func (m *mockProductRepository) All(ctx context.Context) ([]domain.Product, error) {
	args := m.Called(ctx)
	return args.Get(0).([]domain.Product), args.Error(1)
}

func (m *mockProductRepository) UpdateIfVersion(ctx context.Context, p *domain.Product, expected int64) error {
	args := m.Called(ctx, p, expected)
	return args.Error(0)
}

func (m *mockProductRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// racingRepo runs before once, ahead of the first conditional write, to
// simulate another writer getting in first.
type racingRepo struct {
	repository.ProductRepository
	once   sync.Once
	before func()
}

func (r *racingRepo) UpdateIfVersion(ctx context.Context, p *domain.Product, expected int64) error {
	r.once.Do(r.before)
	return r.ProductRepository.UpdateIfVersion(ctx, p, expected)
}

// --- fixture ---

func testRetry(attempts int) retry.Config {
	return retry.Config{
		MaxAttempts:     attempts,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
	}
}

type fixture struct {
	repo    *memory.ProductRepository
	store   *flakyStore
	pub     *recordingPublisher
	manager *media.Manager
	catalog *CatalogService
	reviews *ReviewService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:  memory.NewProductRepository(),
		store: newFlakyStore(),
		pub:   &recordingPublisher{},
	}
	producer := event.NewProducer(f.pub, logger.Discard())
	f.manager = media.NewManager(f.store, nil, producer, media.Config{
		CallTimeout: time.Second,
		MaxAttempts: 2,
		RetryWait:   time.Millisecond,
		Concurrency: 4,
	}, logger.Discard())
	f.catalog = NewCatalogService(f.repo, f.manager, producer, testRetry(3), logger.Discard())
	f.reviews = NewReviewService(f.repo, producer, testRetry(5), logger.Discard())
	return f
}

// withRepo rebuilds the services on repo, keeping the store and publisher.
func (f *fixture) withRepo(repo repository.ProductRepository) *fixture {
	producer := event.NewProducer(f.pub, logger.Discard())
	f.catalog = NewCatalogService(repo, f.manager, producer, testRetry(3), logger.Discard())
	f.reviews = NewReviewService(repo, producer, testRetry(5), logger.Discard())
	return f
}

func createRequest(images ...string) *CreateProductRequest {
	return &CreateProductRequest{
		Name:        "Phone X",
		Description: "A phone",
		Price:       299,
		CuttedPrice: 349,
		Category:    "mobiles",
		Stock:       10,
		Warranty:    1,
		Highlights:  []string{"OLED"},
		Specifications: []string{
			`{"title":"RAM","description":"8 GB"}`,
		},
		Images:    ImageList(images),
		BrandName: "Acme",
		Logo:      pngData("logo"),
	}
}

func (f *fixture) create(t *testing.T, images ...string) *domain.Product {
	t.Helper()
	p, err := f.catalog.CreateProduct(context.Background(), "admin-1", createRequest(images...))
	require.NoError(t, err)
	return p
}

func ptr[T any](v T) *T {
	return &v
}
