// Package memory keeps products in process. It backs tests and
// single-node development setups.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/utafrali/catalogcore/internal/domain"
	"github.com/utafrali/catalogcore/internal/query"
	"github.com/utafrali/catalogcore/internal/repository"
	apperrors "github.com/utafrali/catalogcore/pkg/errors"
	"github.com/utafrali/catalogcore/pkg/pagination"
)

// ProductRepository is a map-backed repository.ProductRepository. Stored
// products are cloned on the way in and out.
type ProductRepository struct {
	mu       sync.RWMutex
	products map[string]*domain.Product
}

var _ repository.ProductRepository = (*ProductRepository)(nil)

// NewProductRepository returns an empty repository.
func NewProductRepository() *ProductRepository {
	return &ProductRepository{products: make(map[string]*domain.Product)}
}

func (r *ProductRepository) Create(_ context.Context, p *domain.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.products[p.ID]; ok {
		return apperrors.Conflict(fmt.Sprintf("product %s already exists", p.ID))
	}
	p.Version = 1
	r.products[p.ID] = p.Clone()
	return nil
}

func (r *ProductRepository) GetByID(_ context.Context, id string) (*domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.products[id]
	if !ok {
		return nil, apperrors.NotFound("product", id)
	}
	return p.Clone(), nil
}

// Search evaluates expr under a single read lock so the counts and the
// page agree.
func (r *ProductRepository) Search(_ context.Context, expr query.Expression, page pagination.Params) (*repository.SearchResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := make([]*domain.Product, 0)
	for _, p := range r.products {
		if query.Match(expr, p) {
			matched = append(matched, p)
		}
	}
	sortNewestFirst(matched)

	res := &repository.SearchResult{
		Total:    int64(len(r.products)),
		Filtered: int64(len(matched)),
		Products: []domain.Product{},
	}
	if page.Offset >= len(matched) {
		return res, nil
	}
	end := min(page.Offset+page.PerPage, len(matched))
	for _, p := range matched[page.Offset:end] {
		res.Products = append(res.Products, *p.Clone())
	}
	return res, nil
}

func (r *ProductRepository) All(_ context.Context) ([]domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]*domain.Product, 0, len(r.products))
	for _, p := range r.products {
		all = append(all, p)
	}
	sortNewestFirst(all)

	out := make([]domain.Product, 0, len(all))
	for _, p := range all {
		out = append(out, *p.Clone())
	}
	return out, nil
}

func (r *ProductRepository) UpdateIfVersion(_ context.Context, p *domain.Product, expected int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.products[p.ID]
	if !ok {
		return apperrors.NotFound("product", p.ID)
	}
	if cur.Version != expected {
		return fmt.Errorf("product %s moved past version %d: %w", p.ID, expected, apperrors.ErrConflict)
	}
	p.Version = expected + 1
	r.products[p.ID] = p.Clone()
	return nil
}

func (r *ProductRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.products[id]; !ok {
		return apperrors.NotFound("product", id)
	}
	delete(r.products, id)
	return nil
}

func sortNewestFirst(ps []*domain.Product) {
	sort.Slice(ps, func(i, j int) bool {
		if !ps[i].CreatedAt.Equal(ps[j].CreatedAt) {
			return ps[i].CreatedAt.After(ps[j].CreatedAt)
		}
		return ps[i].ID < ps[j].ID
	})
}
