package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/utafrali/catalogcore/internal/domain"
	"github.com/utafrali/catalogcore/internal/query"
	"github.com/utafrali/catalogcore/internal/repository"
	"github.com/utafrali/catalogcore/pkg/database"
	apperrors "github.com/utafrali/catalogcore/pkg/errors"
	"github.com/utafrali/catalogcore/pkg/pagination"
)

// ProductRepository implements repository.ProductRepository on a JSONB
// document column.
type ProductRepository struct {
	db database.DBTX
}

var _ repository.ProductRepository = (*ProductRepository)(nil)

// NewProductRepository creates a new PostgreSQL-backed product repository.
func NewProductRepository(db database.DBTX) *ProductRepository {
	return &ProductRepository{db: db}
}

// snapshotTx reads the three search results from one snapshot.
var snapshotTx = pgx.TxOptions{
	IsoLevel:   pgx.RepeatableRead,
	AccessMode: pgx.ReadOnly,
}

// Create inserts a new product into the database.
func (r *ProductRepository) Create(ctx context.Context, p *domain.Product) (err error) {
	const q = `INSERT INTO products (id, doc, version, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`
	ctx, end := database.TraceQuery(ctx, database.SystemPostgres, "CreateProduct", q)
	defer func() { end(err) }()

	p.Version = 1
	doc, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal product: %w", err)
	}

	if _, err = r.db.Exec(ctx, q, p.ID, doc, p.Version, p.CreatedAt, p.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return apperrors.Conflict(fmt.Sprintf("product %s already exists", p.ID))
		}
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

// GetByID retrieves a product by its ID.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (p *domain.Product, err error) {
	const q = `SELECT doc, version FROM products WHERE id = $1`
	ctx, end := database.TraceQuery(ctx, database.SystemPostgres, "GetProduct", q)
	defer func() { end(err) }()

	p, err = scanProduct(r.db.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("product", id)
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	return p, nil
}

// Search counts the catalog, counts the matches and reads one page inside a
// single repeatable-read transaction.
func (r *ProductRepository) Search(ctx context.Context, expr query.Expression, page pagination.Params) (res *repository.SearchResult, err error) {
	b := &whereBuilder{}
	where := b.build(expr)
	countArgs := b.args
	pageQuery := fmt.Sprintf(
		`SELECT doc, version FROM products WHERE %s ORDER BY created_at DESC, id LIMIT %s OFFSET %s`,
		where, b.arg(page.PerPage), b.arg(page.Offset),
	)

	ctx, end := database.TraceQuery(ctx, database.SystemPostgres, "SearchProducts", pageQuery)
	defer func() { end(err) }()

	tx, err := r.db.BeginTx(ctx, snapshotTx)
	if err != nil {
		return nil, fmt.Errorf("begin search tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	res = &repository.SearchResult{Products: []domain.Product{}}
	if err = tx.QueryRow(ctx, `SELECT count(*) FROM products`).Scan(&res.Total); err != nil {
		return nil, fmt.Errorf("count products: %w", err)
	}
	if err = tx.QueryRow(ctx, `SELECT count(*) FROM products WHERE `+where, countArgs...).Scan(&res.Filtered); err != nil {
		return nil, fmt.Errorf("count matching products: %w", err)
	}

	rows, err := tx.Query(ctx, pageQuery, b.args...)
	if err != nil {
		return nil, fmt.Errorf("search products: %w", err)
	}
	res.Products, err = collectProducts(rows)
	if err != nil {
		return nil, err
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit search tx: %w", err)
	}
	return res, nil
}

// All returns every product, newest first.
func (r *ProductRepository) All(ctx context.Context) (products []domain.Product, err error) {
	const q = `SELECT doc, version FROM products ORDER BY created_at DESC, id`
	ctx, end := database.TraceQuery(ctx, database.SystemPostgres, "ListAllProducts", q)
	defer func() { end(err) }()

	rows, err := r.db.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return collectProducts(rows)
}

// UpdateIfVersion writes p when the stored version equals expected.
func (r *ProductRepository) UpdateIfVersion(ctx context.Context, p *domain.Product, expected int64) (err error) {
	const q = `UPDATE products SET doc = $1, version = $2, updated_at = $3 WHERE id = $4 AND version = $5`
	ctx, end := database.TraceQuery(ctx, database.SystemPostgres, "UpdateProduct", q)
	defer func() { end(err) }()

	next := *p
	next.Version = expected + 1
	doc, err := json.Marshal(&next)
	if err != nil {
		return fmt.Errorf("marshal product: %w", err)
	}

	ct, err := r.db.Exec(ctx, q, doc, next.Version, next.UpdatedAt, p.ID, expected)
	if err != nil {
		return fmt.Errorf("update product: %w", err)
	}
	if ct.RowsAffected() == 1 {
		p.Version = next.Version
		return nil
	}

	// Nothing matched: either the product is gone or its version moved.
	var current int64
	err = r.db.QueryRow(ctx, `SELECT version FROM products WHERE id = $1`, p.ID).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.NotFound("product", p.ID)
	}
	if err != nil {
		return fmt.Errorf("read product version: %w", err)
	}
	return fmt.Errorf("product %s at version %d, expected %d: %w", p.ID, current, expected, apperrors.ErrConflict)
}

// Delete removes a product from the database by its ID.
func (r *ProductRepository) Delete(ctx context.Context, id string) (err error) {
	const q = `DELETE FROM products WHERE id = $1`
	ctx, end := database.TraceQuery(ctx, database.SystemPostgres, "DeleteProduct", q)
	defer func() { end(err) }()

	ct, err := r.db.Exec(ctx, q, id)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("product", id)
	}
	return nil
}

func scanProduct(row pgx.Row) (*domain.Product, error) {
	var (
		doc     []byte
		version int64
	)
	if err := row.Scan(&doc, &version); err != nil {
		return nil, err
	}
	var p domain.Product
	if err := json.Unmarshal(doc, &p); err != nil {
		return nil, fmt.Errorf("unmarshal product: %w", err)
	}
	p.Version = version
	return &p, nil
}

func collectProducts(rows pgx.Rows) ([]domain.Product, error) {
	defer rows.Close()

	products := []domain.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product row: %w", err)
		}
		products = append(products, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate product rows: %w", err)
	}
	return products, nil
}

// isUniqueViolation checks if the error is a PostgreSQL unique constraint violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "23505")
}
