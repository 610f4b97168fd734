package repository

import (
	"context"

	"github.com/utafrali/catalogcore/internal/domain"
	"github.com/utafrali/catalogcore/internal/query"
	"github.com/utafrali/catalogcore/pkg/pagination"
)

// SearchResult is one page of a filtered product listing. All three
// values come from the same snapshot of the store.
type SearchResult struct {
	// Total is the unfiltered catalog size.
	Total int64
	// Filtered is the number of products matching the expression.
	Filtered int64
	Products []domain.Product
}

// ProductRepository defines the interface for product persistence operations.
type ProductRepository interface {
	// Create inserts a new product and sets its Version to 1.
	Create(ctx context.Context, product *domain.Product) error

	// GetByID retrieves a product by its unique identifier.
	GetByID(ctx context.Context, id string) (*domain.Product, error)

	// Search returns the page of products matching expr, newest first.
	Search(ctx context.Context, expr query.Expression, page pagination.Params) (*SearchResult, error)

	// All returns every product, newest first.
	All(ctx context.Context) ([]domain.Product, error)

	// UpdateIfVersion replaces the stored product when its version still
	// equals expected, and sets product.Version to expected+1. A changed
	// version yields an error matching errors.ErrConflict.
	UpdateIfVersion(ctx context.Context, product *domain.Product, expected int64) error

	// Delete removes a product from the store by its identifier.
	Delete(ctx context.Context, id string) error
}
