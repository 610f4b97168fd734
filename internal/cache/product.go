// Package cache puts a Redis read-through cache in front of a product
// repository.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	"github.com/utafrali/catalogcore/internal/domain"
	"github.com/utafrali/catalogcore/internal/query"
	"github.com/utafrali/catalogcore/internal/repository"
	apperrors "github.com/utafrali/catalogcore/pkg/errors"
	"github.com/utafrali/catalogcore/pkg/pagination"
)

const keyPrefix = "catalog:product:"

var lookups = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "catalog_product_cache_lookups_total",
	Help: "Product cache lookups by result.",
}, []string{"result"})

// ProductRepository caches single-product reads. Listings always go to the
// underlying store so their counts and page stay consistent. The cache is
// best effort: Redis failures are logged and the store answers instead.
type ProductRepository struct {
	next   repository.ProductRepository
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

var _ repository.ProductRepository = (*ProductRepository)(nil)

// NewProductRepository wraps next with a cache whose entries expire after ttl.
func NewProductRepository(next repository.ProductRepository, client *redis.Client, ttl time.Duration, logger *slog.Logger) *ProductRepository {
	return &ProductRepository{next: next, client: client, ttl: ttl, logger: logger}
}

func key(id string) string {
	return keyPrefix + id
}

func (r *ProductRepository) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	if p, ok := r.lookup(ctx, id); ok {
		return p, nil
	}

	p, err := r.next.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	r.store(ctx, p)
	return p, nil
}

func (r *ProductRepository) lookup(ctx context.Context, id string) (*domain.Product, bool) {
	data, err := r.client.Get(ctx, key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		lookups.WithLabelValues("miss").Inc()
		return nil, false
	}
	if err != nil {
		lookups.WithLabelValues("error").Inc()
		r.logger.WarnContext(ctx, "product cache read failed", slog.String("product_id", id), slog.String("error", err.Error()))
		return nil, false
	}

	var p domain.Product
	if err := json.Unmarshal(data, &p); err != nil {
		lookups.WithLabelValues("error").Inc()
		r.invalidate(ctx, id)
		return nil, false
	}
	lookups.WithLabelValues("hit").Inc()
	return &p, true
}

func (r *ProductRepository) store(ctx context.Context, p *domain.Product) {
	data, err := json.Marshal(p)
	if err != nil {
		return
	}
	if err := r.client.Set(ctx, key(p.ID), data, r.ttl).Err(); err != nil {
		r.logger.WarnContext(ctx, "product cache write failed", slog.String("product_id", p.ID), slog.String("error", err.Error()))
	}
}

func (r *ProductRepository) invalidate(ctx context.Context, id string) {
	if err := r.client.Del(context.WithoutCancel(ctx), key(id)).Err(); err != nil {
		r.logger.WarnContext(ctx, "product cache invalidation failed", slog.String("product_id", id), slog.String("error", err.Error()))
	}
}

func (r *ProductRepository) Create(ctx context.Context, p *domain.Product) error {
	return r.next.Create(ctx, p)
}

func (r *ProductRepository) Search(ctx context.Context, expr query.Expression, page pagination.Params) (*repository.SearchResult, error) {
	return r.next.Search(ctx, expr, page)
}

func (r *ProductRepository) All(ctx context.Context) ([]domain.Product, error) {
	return r.next.All(ctx)
}

// UpdateIfVersion drops the cached entry after the write, and also after a
// version conflict so the next read sees the winning version.
func (r *ProductRepository) UpdateIfVersion(ctx context.Context, p *domain.Product, expected int64) error {
	err := r.next.UpdateIfVersion(ctx, p, expected)
	if err == nil || errors.Is(err, apperrors.ErrConflict) || errors.Is(err, apperrors.ErrNotFound) {
		r.invalidate(ctx, p.ID)
	}
	return err
}

func (r *ProductRepository) Delete(ctx context.Context, id string) error {
	if err := r.next.Delete(ctx, id); err != nil {
		return err
	}
	r.invalidate(ctx, id)
	return nil
}
