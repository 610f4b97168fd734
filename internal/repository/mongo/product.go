// Package mongo stores products as MongoDB documents.
package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/utafrali/catalogcore/internal/domain"
	"github.com/utafrali/catalogcore/internal/query"
	"github.com/utafrali/catalogcore/internal/repository"
	"github.com/utafrali/catalogcore/pkg/database"
	apperrors "github.com/utafrali/catalogcore/pkg/errors"
	"github.com/utafrali/catalogcore/pkg/pagination"
)

// CollectionName is the collection products are stored in.
const CollectionName = "products"

// newestFirst is the listing order.
var newestFirst = bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}}

// ProductRepository implements repository.ProductRepository on MongoDB.
type ProductRepository struct {
	client   *mongo.Client
	coll     *mongo.Collection
	snapshot bool
}

var _ repository.ProductRepository = (*ProductRepository)(nil)

// NewProductRepository creates a repository on db. With snapshot set,
// searches read through a snapshot session.
func NewProductRepository(db *mongo.Database, snapshot bool) *ProductRepository {
	return &ProductRepository{
		client:   db.Client(),
		coll:     db.Collection(CollectionName),
		snapshot: snapshot,
	}
}

// EnsureIndexes creates the listing and filter indexes.
func (r *ProductRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: newestFirst},
		{Keys: bson.D{{Key: "category", Value: 1}}},
		{Keys: bson.D{{Key: "price", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create product indexes: %w", err)
	}
	return nil
}

// Create inserts a new product document.
func (r *ProductRepository) Create(ctx context.Context, p *domain.Product) (err error) {
	ctx, end := database.TraceQuery(ctx, database.SystemMongo, "CreateProduct", "products.insertOne")
	defer func() { end(err) }()

	p.Version = 1
	if _, err = r.coll.InsertOne(ctx, p); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return apperrors.Conflict(fmt.Sprintf("product %s already exists", p.ID))
		}
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

// GetByID retrieves a product by its ID.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (p *domain.Product, err error) {
	ctx, end := database.TraceQuery(ctx, database.SystemMongo, "GetProduct", "products.findOne")
	defer func() { end(err) }()

	p = &domain.Product{}
	err = r.coll.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperrors.NotFound("product", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	return p, nil
}

// Search counts and reads one page. With snapshot reads enabled all three
// reads share one snapshot session.
func (r *ProductRepository) Search(ctx context.Context, expr query.Expression, page pagination.Params) (res *repository.SearchResult, err error) {
	ctx, end := database.TraceQuery(ctx, database.SystemMongo, "SearchProducts", query.String(expr))
	defer func() { end(err) }()

	if !r.snapshot {
		return r.search(ctx, expr, page)
	}

	sess, err := r.client.StartSession(options.Session().SetSnapshot(true))
	if err != nil {
		return nil, fmt.Errorf("start snapshot session: %w", err)
	}
	defer sess.EndSession(ctx)

	err = mongo.WithSession(ctx, sess, func(sc mongo.SessionContext) error {
		var serr error
		res, serr = r.search(sc, expr, page)
		return serr
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (r *ProductRepository) search(ctx context.Context, expr query.Expression, page pagination.Params) (*repository.SearchResult, error) {
	filter := toFilter(expr)

	total, err := r.coll.CountDocuments(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("count products: %w", err)
	}
	filtered, err := r.coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("count matching products: %w", err)
	}

	opts := options.Find().
		SetSort(newestFirst).
		SetSkip(int64(page.Offset)).
		SetLimit(int64(page.PerPage))
	products, err := r.find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}

	return &repository.SearchResult{Total: total, Filtered: filtered, Products: products}, nil
}

// All returns every product, newest first.
func (r *ProductRepository) All(ctx context.Context) (products []domain.Product, err error) {
	ctx, end := database.TraceQuery(ctx, database.SystemMongo, "ListAllProducts", "products.find")
	defer func() { end(err) }()

	return r.find(ctx, bson.D{}, options.Find().SetSort(newestFirst))
}

func (r *ProductRepository) find(ctx context.Context, filter bson.D, opts *options.FindOptions) ([]domain.Product, error) {
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find products: %w", err)
	}
	products := []domain.Product{}
	if err := cur.All(ctx, &products); err != nil {
		return nil, fmt.Errorf("decode products: %w", err)
	}
	return products, nil
}

// UpdateIfVersion replaces the document when its version equals expected.
func (r *ProductRepository) UpdateIfVersion(ctx context.Context, p *domain.Product, expected int64) (err error) {
	ctx, end := database.TraceQuery(ctx, database.SystemMongo, "UpdateProduct", "products.replaceOne")
	defer func() { end(err) }()

	next := *p
	next.Version = expected + 1

	res, err := r.coll.ReplaceOne(ctx, bson.D{
		{Key: "_id", Value: p.ID},
		{Key: "version", Value: expected},
	}, &next)
	if err != nil {
		return fmt.Errorf("update product: %w", err)
	}
	if res.MatchedCount == 1 {
		p.Version = next.Version
		return nil
	}

	n, err := r.coll.CountDocuments(ctx, bson.D{{Key: "_id", Value: p.ID}}, options.Count().SetLimit(1))
	if err != nil {
		return fmt.Errorf("check product: %w", err)
	}
	if n == 0 {
		return apperrors.NotFound("product", p.ID)
	}
	return fmt.Errorf("product %s moved past version %d: %w", p.ID, expected, apperrors.ErrConflict)
}

// Delete removes a product document.
func (r *ProductRepository) Delete(ctx context.Context, id string) (err error) {
	ctx, end := database.TraceQuery(ctx, database.SystemMongo, "DeleteProduct", "products.deleteOne")
	defer func() { end(err) }()

	res, err := r.coll.DeleteOne(ctx, bson.D{{Key: "_id", Value: id}})
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	if res.DeletedCount == 0 {
		return apperrors.NotFound("product", id)
	}
	return nil
}
