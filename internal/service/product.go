// Package service sequences the catalog's media, review and persistence
// steps for each mutation.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/utafrali/catalogcore/internal/domain"
	"github.com/utafrali/catalogcore/internal/event"
	"github.com/utafrali/catalogcore/internal/media"
	"github.com/utafrali/catalogcore/internal/query"
	"github.com/utafrali/catalogcore/internal/repository"
	apperrors "github.com/utafrali/catalogcore/pkg/errors"
	"github.com/utafrali/catalogcore/pkg/logger"
	"github.com/utafrali/catalogcore/pkg/retry"
	"github.com/utafrali/catalogcore/pkg/tracing"
)

const tracerName = "github.com/utafrali/catalogcore/internal/service"

// errStale marks a version-conditional write that lost a race and may be
// retried from a fresh read.
var errStale = errors.New("stale product version")

// CatalogService creates, updates, deletes and lists products.
type CatalogService struct {
	repo     repository.ProductRepository
	media    *media.Manager
	producer *event.Producer
	retry    retry.Config
	logger   *slog.Logger
	tracer   trace.Tracer
	now      func() time.Time
}

// NewCatalogService creates a catalog service. retryCfg bounds the
// re-application of a field update that raced with another writer.
func NewCatalogService(repo repository.ProductRepository, mediaManager *media.Manager, producer *event.Producer, retryCfg retry.Config, logger *slog.Logger) *CatalogService {
	return &CatalogService{
		repo:     repo,
		media:    mediaManager,
		producer: producer,
		retry:    retryCfg,
		logger:   logger,
		tracer:   tracing.Tracer(tracerName),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// ProductList is one page of a filtered listing.
type ProductList struct {
	Products []domain.Product `json:"products"`
	// ProductsCount is the size of the whole catalog.
	ProductsCount int64 `json:"products_count"`
	// FilteredProductsCount is the number of products matching the filter.
	FilteredProductsCount int64 `json:"filtered_products_count"`
	Page                  int   `json:"page"`
	PerPage               int   `json:"per_page"`
}

// CreateProduct uploads the product's media and inserts it. principal is
// the authenticated creator. Staged media is rolled back when the insert
// fails.
func (s *CatalogService) CreateProduct(ctx context.Context, principal string, req *CreateProductRequest) (p *domain.Product, err error) {
	ctx, span := s.tracer.Start(ctx, "CatalogService.CreateProduct")
	defer func() { tracing.End(span, err) }()

	in, err := req.decode()
	if err != nil {
		return nil, err
	}

	id := uuid.New().String()
	ctx = logger.WithProductID(logger.WithPrincipalID(ctx, principal), id)
	span.SetAttributes(attribute.String("product.id", id))

	change, err := s.media.PrepareCreate(ctx, id, in.images, &in.logo)
	if err != nil {
		return nil, fmt.Errorf("stage product media: %w", err)
	}

	now := s.now()
	p = &domain.Product{
		ID:             id,
		Name:           req.Name,
		Description:    req.Description,
		Price:          req.Price,
		CuttedPrice:    req.CuttedPrice,
		Category:       req.Category,
		Stock:          req.Stock,
		Warranty:       req.Warranty,
		Highlights:     append([]string{}, req.Highlights...),
		Specifications: in.specs,
		Brand:          domain.Brand{Name: req.BrandName},
		Reviews:        []domain.Review{},
		CreatedBy:      principal,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	change.ApplyTo(p)

	if err := s.repo.Create(ctx, p); err != nil {
		s.abort(ctx, change)
		return nil, fmt.Errorf("create product: %w", err)
	}
	if err := s.media.Finalize(ctx, change); err != nil {
		return nil, fmt.Errorf("finalize product media: %w", err)
	}

	if err := s.producer.PublishProductCreated(ctx, p); err != nil {
		s.logPublishFailure(ctx, "product.created", err)
	}
	logger.WithContext(ctx, s.logger).InfoContext(ctx, "product created",
		slog.Int("images", len(p.Images)),
	)
	return p, nil
}

// UpdateProduct applies req to product id. New media is uploaded first and
// the new references are written with a version check; the assets they
// replace are deleted only after that write succeeds. If the product moved
// on meanwhile, the field changes are re-applied to the fresh version as
// long as its media is unchanged; otherwise the staged media is rolled
// back and a conflict is returned.
func (s *CatalogService) UpdateProduct(ctx context.Context, principal, id string, req *UpdateProductRequest) (p *domain.Product, err error) {
	ctx, span := s.tracer.Start(ctx, "CatalogService.UpdateProduct",
		trace.WithAttributes(attribute.String("product.id", id)))
	defer func() { tracing.End(span, err) }()

	in, err := req.decode()
	if err != nil {
		return nil, err
	}
	ctx = logger.WithProductID(logger.WithPrincipalID(ctx, principal), id)

	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}

	change, err := s.media.PrepareUpdate(ctx, current, in.assets)
	if err != nil {
		return nil, fmt.Errorf("stage product media: %w", err)
	}

	base := current
	cfg := s.retry
	cfg.Retryable = func(err error) bool { return errors.Is(err, errStale) }
	cfg.OnRetry = func(int, error, time.Duration) {
		writeConflicts.WithLabelValues("update_product").Inc()
	}
	p, err = retry.Do(ctx, cfg, func(ctx context.Context) (*domain.Product, error) {
		if base == nil {
			fresh, err := s.repo.GetByID(ctx, id)
			if err != nil {
				return nil, fmt.Errorf("reload product: %w", err)
			}
			if !sameMedia(fresh, current) {
				return nil, apperrors.Conflict(fmt.Sprintf("product %s media was changed concurrently", id))
			}
			base = fresh
		}

		next := base.Clone()
		req.applyFields(next, in)
		change.ApplyTo(next)
		next.UpdatedAt = s.now()

		expected := base.Version
		base = nil
		if err := s.repo.UpdateIfVersion(ctx, next, expected); err != nil {
			if errors.Is(err, apperrors.ErrConflict) {
				return nil, fmt.Errorf("%w: %w", errStale, err)
			}
			return nil, err
		}
		return next, nil
	})
	if err != nil {
		s.abort(ctx, change)
		if errors.Is(err, errStale) {
			writeConflictsExhausted.WithLabelValues("update_product").Inc()
			return nil, apperrors.Conflict(fmt.Sprintf("product %s was modified concurrently", id))
		}
		return nil, fmt.Errorf("update product: %w", err)
	}

	if err := s.media.Finalize(ctx, change); err != nil {
		return nil, fmt.Errorf("finalize product media: %w", err)
	}

	if err := s.producer.PublishProductUpdated(ctx, p); err != nil {
		s.logPublishFailure(ctx, "product.updated", err)
	}
	logger.WithContext(ctx, s.logger).InfoContext(ctx, "product updated",
		slog.Int64("version", p.Version),
		slog.Bool("images_replaced", change.ImagesChanged()),
		slog.Bool("logo_replaced", change.LogoChanged()),
	)
	return p, nil
}

// DeleteProduct removes every remote asset of product id and then the
// record. A failed remote delete keeps the record.
func (s *CatalogService) DeleteProduct(ctx context.Context, id string) (err error) {
	ctx, span := s.tracer.Start(ctx, "CatalogService.DeleteProduct",
		trace.WithAttributes(attribute.String("product.id", id)))
	defer func() { tracing.End(span, err) }()

	ctx = logger.WithProductID(ctx, id)

	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("get product: %w", err)
	}
	if err := s.media.Purge(ctx, p); err != nil {
		return fmt.Errorf("purge product media: %w", err)
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete product: %w", err)
	}

	if err := s.producer.PublishProductDeleted(ctx, p); err != nil {
		s.logPublishFailure(ctx, "product.deleted", err)
	}
	logger.WithContext(ctx, s.logger).InfoContext(ctx, "product deleted")
	return nil
}

// GetProduct retrieves a product by its ID.
func (s *CatalogService) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	return p, nil
}

// ListProducts compiles params into a filter and returns the requested
// page with the catalog and filtered counts.
func (s *CatalogService) ListProducts(ctx context.Context, params query.RawParams) (list *ProductList, err error) {
	ctx, span := s.tracer.Start(ctx, "CatalogService.ListProducts")
	defer func() { tracing.End(span, err) }()

	expr := query.Compile(params)
	page := query.Page(params)
	span.SetAttributes(
		attribute.String("catalog.filter", query.String(expr)),
		attribute.Int("catalog.page", page.Page),
	)

	res, err := s.repo.Search(ctx, expr, page)
	if err != nil {
		return nil, fmt.Errorf("search products: %w", err)
	}
	return &ProductList{
		Products:              res.Products,
		ProductsCount:         res.Total,
		FilteredProductsCount: res.Filtered,
		Page:                  page.Page,
		PerPage:               page.PerPage,
	}, nil
}

// ListAllProducts returns the whole catalog for administration.
func (s *CatalogService) ListAllProducts(ctx context.Context) ([]domain.Product, error) {
	products, err := s.repo.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("list all products: %w", err)
	}
	return products, nil
}

func (s *CatalogService) abort(ctx context.Context, change *media.Change) {
	if err := s.media.Abort(ctx, change); err != nil {
		logger.WithContext(ctx, s.logger).ErrorContext(ctx, "failed to roll back staged media",
			slog.String("error", err.Error()),
		)
	}
}

func (s *CatalogService) logPublishFailure(ctx context.Context, what string, err error) {
	logger.WithContext(ctx, s.logger).ErrorContext(ctx, "failed to publish event",
		slog.String("event", what),
		slog.String("error", err.Error()),
	)
}

// sameMedia reports whether a and b reference the same remote assets.
func sameMedia(a, b *domain.Product) bool {
	return slices.Equal(a.RemoteIDs(), b.RemoteIDs())
}
