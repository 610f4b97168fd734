package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/catalogcore/internal/domain"
	"github.com/utafrali/catalogcore/internal/query"
	"github.com/utafrali/catalogcore/pkg/database"
	apperrors "github.com/utafrali/catalogcore/pkg/errors"
	"github.com/utafrali/catalogcore/pkg/pagination"
)

// ─────────────────────────────────────────────────────────────────────────────
// helpers
// ─────────────────────────────────────────────────────────────────────────────

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := database.NewMockPool()
	require.NoError(t, err)
	return mock
}

var now = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

var docColumns = []string{"doc", "version"}

func sampleProduct() domain.Product {
	return domain.Product{
		ID:             "prod-1",
		Name:           "Galaxy Phone",
		Description:    "A fine phone",
		Price:          299,
		Category:       "mobiles",
		Stock:          5,
		Images:         []domain.ImageAsset{{RemoteID: "products/a.png", URL: "https://cdn/a.png"}},
		Brand:          domain.Brand{Name: "Acme"},
		Reviews:        []domain.Review{{ID: "r1", UserID: "u1", Rating: 4}},
		ReviewCount:    1,
		RatingsAverage: 4,
		Version:        3,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func docOf(t *testing.T, p domain.Product) []byte {
	t.Helper()
	doc, err := json.Marshal(&p)
	require.NoError(t, err)
	return doc
}

// ─────────────────────────────────────────────────────────────────────────────
// where builder
// ─────────────────────────────────────────────────────────────────────────────

func TestWhereBuilder(t *testing.T) {
	expr := query.Compile(query.RawParams{
		"keyword":  "pho",
		"category": "mobiles",
		"price":    map[string]any{"gte": "100"},
	})

	b := &whereBuilder{}
	where := b.build(expr)

	assert.Equal(t,
		"((doc #>> $1::text[]) ~* $2 AND (doc #>> $3::text[]) = $4 AND (doc #>> $5::text[])::double precision >= $6)",
		where,
	)
	assert.Equal(t, []any{
		[]string{"name"}, "pho",
		[]string{"category"}, "mobiles",
		[]string{"price"}, 100.0,
	}, b.args)
}

func TestWhereBuilder_MatchAllAndUnknown(t *testing.T) {
	b := &whereBuilder{}
	assert.Equal(t, "TRUE", b.build(query.MatchAll()))
	assert.Empty(t, b.args)

	assert.Equal(t, "(FALSE)", b.build(query.And{Children: []query.Expression{
		query.Equals{Field: "password", Value: "x"},
	}}))
	assert.Equal(t, "FALSE", b.build(query.Range{Field: "name", Op: query.OpGt, Value: 1}))
	assert.Equal(t, "FALSE", b.build(query.Regex{Field: "price", Pattern: "1"}))
	assert.Empty(t, b.args)
}

func TestWhereBuilder_NestedPath(t *testing.T) {
	b := &whereBuilder{}
	where := b.build(query.Equals{Field: "brand", Value: "Acme"})
	assert.Equal(t, "(doc #>> $1::text[]) = $2", where)
	assert.Equal(t, []any{[]string{"brand", "name"}, "Acme"}, b.args)
}

// ─────────────────────────────────────────────────────────────────────────────
// ProductRepository
// ─────────────────────────────────────────────────────────────────────────────

func TestProductRepository_Create_Success(t *testing.T) {
	mock := newMock(t)
	defer mock.Close()
	repo := NewProductRepository(mock)

	p := sampleProduct()
	want := p
	want.Version = 1

	mock.ExpectExec("INSERT INTO products").
		WithArgs(p.ID, docOf(t, want), int64(1), p.CreatedAt, p.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, repo.Create(context.Background(), &p))
	assert.Equal(t, int64(1), p.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProductRepository_Create_Duplicate(t *testing.T) {
	mock := newMock(t)
	defer mock.Close()
	repo := NewProductRepository(mock)

	mock.ExpectExec("INSERT INTO products").
		WillReturnError(errors.New("ERROR: duplicate key value (SQLSTATE 23505)"))

	p := sampleProduct()
	err := repo.Create(context.Background(), &p)
	assert.True(t, errors.Is(err, apperrors.ErrConflict))
}

func TestProductRepository_GetByID_Success(t *testing.T) {
	mock := newMock(t)
	defer mock.Close()
	repo := NewProductRepository(mock)

	p := sampleProduct()
	mock.ExpectQuery("SELECT doc, version FROM products WHERE id").
		WithArgs("prod-1").
		WillReturnRows(pgxmock.NewRows(docColumns).AddRow(docOf(t, p), int64(7)))

	got, err := repo.GetByID(context.Background(), "prod-1")
	require.NoError(t, err)
	assert.Equal(t, "Galaxy Phone", got.Name)
	assert.Equal(t, int64(7), got.Version, "version column is authoritative")
	assert.Equal(t, p.Reviews, got.Reviews)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProductRepository_GetByID_NotFound(t *testing.T) {
	mock := newMock(t)
	defer mock.Close()
	repo := NewProductRepository(mock)

	mock.ExpectQuery("SELECT doc, version FROM products WHERE id").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "missing")
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestProductRepository_Search_SnapshotTx(t *testing.T) {
	mock := newMock(t)
	defer mock.Close()
	repo := NewProductRepository(mock)

	p := sampleProduct()
	expr := query.Compile(query.RawParams{"category": "mobiles"})
	page := pagination.Parse("2", "10")

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	mock.ExpectQuery(`SELECT count\(\*\) FROM products$`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(42)))
	mock.ExpectQuery(`SELECT count\(\*\) FROM products WHERE`).
		WithArgs([]string{"category"}, "mobiles").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(11)))
	mock.ExpectQuery("SELECT doc, version FROM products WHERE .* ORDER BY created_at DESC").
		WithArgs([]string{"category"}, "mobiles", 10, 10).
		WillReturnRows(pgxmock.NewRows(docColumns).AddRow(docOf(t, p), int64(3)))
	mock.ExpectCommit()

	res, err := repo.Search(context.Background(), expr, page)
	require.NoError(t, err)
	assert.Equal(t, int64(42), res.Total)
	assert.Equal(t, int64(11), res.Filtered)
	require.Len(t, res.Products, 1)
	assert.Equal(t, "prod-1", res.Products[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProductRepository_Search_EmptyPage(t *testing.T) {
	mock := newMock(t)
	defer mock.Close()
	repo := NewProductRepository(mock)

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	mock.ExpectQuery(`SELECT count\(\*\) FROM products$`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(0)))
	mock.ExpectQuery(`SELECT count\(\*\) FROM products WHERE TRUE`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(0)))
	mock.ExpectQuery("SELECT doc, version FROM products WHERE TRUE").
		WithArgs(20, 0).
		WillReturnRows(pgxmock.NewRows(docColumns))
	mock.ExpectCommit()

	res, err := repo.Search(context.Background(), query.MatchAll(), pagination.DefaultParams())
	require.NoError(t, err)
	assert.NotNil(t, res.Products)
	assert.Empty(t, res.Products)
}

func TestProductRepository_Search_CountError(t *testing.T) {
	mock := newMock(t)
	defer mock.Close()
	repo := NewProductRepository(mock)

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	mock.ExpectQuery(`SELECT count\(\*\) FROM products$`).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	_, err := repo.Search(context.Background(), query.MatchAll(), pagination.DefaultParams())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "count products")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProductRepository_All(t *testing.T) {
	mock := newMock(t)
	defer mock.Close()
	repo := NewProductRepository(mock)

	a, b := sampleProduct(), sampleProduct()
	b.ID = "prod-2"
	mock.ExpectQuery("SELECT doc, version FROM products ORDER BY").
		WillReturnRows(pgxmock.NewRows(docColumns).
			AddRow(docOf(t, a), int64(1)).
			AddRow(docOf(t, b), int64(2)))

	got, err := repo.All(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "prod-2", got[1].ID)
	assert.Equal(t, int64(2), got[1].Version)
}

func TestProductRepository_UpdateIfVersion_Success(t *testing.T) {
	mock := newMock(t)
	defer mock.Close()
	repo := NewProductRepository(mock)

	p := sampleProduct()
	want := p
	want.Version = 4

	mock.ExpectExec("UPDATE products SET doc").
		WithArgs(docOf(t, want), int64(4), p.UpdatedAt, p.ID, int64(3)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, repo.UpdateIfVersion(context.Background(), &p, 3))
	assert.Equal(t, int64(4), p.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProductRepository_UpdateIfVersion_Conflict(t *testing.T) {
	mock := newMock(t)
	defer mock.Close()
	repo := NewProductRepository(mock)

	p := sampleProduct()
	mock.ExpectExec("UPDATE products SET doc").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery("SELECT version FROM products").
		WithArgs(p.ID).
		WillReturnRows(pgxmock.NewRows([]string{"version"}).AddRow(int64(5)))

	err := repo.UpdateIfVersion(context.Background(), &p, 3)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrConflict))
	assert.Equal(t, int64(3), p.Version, "version untouched on conflict")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProductRepository_UpdateIfVersion_NotFound(t *testing.T) {
	mock := newMock(t)
	defer mock.Close()
	repo := NewProductRepository(mock)

	p := sampleProduct()
	mock.ExpectExec("UPDATE products SET doc").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery("SELECT version FROM products").
		WithArgs(p.ID).
		WillReturnError(pgx.ErrNoRows)

	err := repo.UpdateIfVersion(context.Background(), &p, 3)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestProductRepository_Delete(t *testing.T) {
	mock := newMock(t)
	defer mock.Close()
	repo := NewProductRepository(mock)

	mock.ExpectExec("DELETE FROM products").
		WithArgs("prod-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec("DELETE FROM products").
		WithArgs("prod-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	require.NoError(t, repo.Delete(context.Background(), "prod-1"))
	err := repo.Delete(context.Background(), "prod-1")
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}
