package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/catalogcore/internal/domain"
	"github.com/utafrali/catalogcore/internal/event"
	"github.com/utafrali/catalogcore/internal/query"
	"github.com/utafrali/catalogcore/internal/review"
	apperrors "github.com/utafrali/catalogcore/pkg/errors"
	"github.com/utafrali/catalogcore/pkg/logger"
)

func TestCreateProduct_UploadsMediaAndStores(t *testing.T) {
	f := newFixture(t)

	p := f.create(t, pngData("one"), pngData("two"))

	assert.Equal(t, int64(1), p.Version)
	assert.Equal(t, "admin-1", p.CreatedBy)
	require.Len(t, p.Images, 2)
	for _, img := range p.Images {
		assert.Contains(t, img.RemoteID, "products/")
		_, _, ok := f.store.Get(img.RemoteID)
		assert.True(t, ok)
	}
	assert.Contains(t, p.Brand.Logo.RemoteID, "brands/")
	assert.Equal(t, "Acme", p.Brand.Name)
	assert.Equal(t, []domain.Specification{{Title: "RAM", Description: "8 GB"}}, p.Specifications)
	assert.Equal(t, 3, f.store.Len())

	stored, err := f.repo.GetByID(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.Images, stored.Images)
	assert.Equal(t, []string{event.TopicProductCreated}, f.pub.published())
}

func TestCreateProduct_RejectsBadInputBeforeUploading(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *CreateProductRequest)
	}{
		{"missing name", func(r *CreateProductRequest) { r.Name = "" }},
		{"negative price", func(r *CreateProductRequest) { r.Price = -1 }},
		{"no images", func(r *CreateProductRequest) { r.Images = nil }},
		{"missing logo", func(r *CreateProductRequest) { r.Logo = "" }},
		{"malformed specification", func(r *CreateProductRequest) { r.Specifications = []string{`{"title":`} }},
		{"incomplete specification", func(r *CreateProductRequest) { r.Specifications = []string{`{"title":"RAM"}`} }},
		{"image is not an image", func(r *CreateProductRequest) { r.Images = ImageList{"aGVsbG8gd29ybGQ="} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			req := createRequest(pngData("one"))
			tt.mutate(req)

			_, err := f.catalog.CreateProduct(context.Background(), "admin-1", req)
			require.Error(t, err)
			assert.Equal(t, apperrors.CodeInvalidInput, apperrors.Code(err))
			assert.Equal(t, 0, f.store.Len())
		})
	}
}

func TestCreateProduct_UploadFailureStoresNothing(t *testing.T) {
	f := newFixture(t)
	f.store.failUploadOf("two")

	_, err := f.catalog.CreateProduct(context.Background(), "admin-1",
		createRequest(pngData("one"), pngData("two"), pngData("three")))

	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrStorageUnavailable))
	assert.Equal(t, 0, f.store.Len())
	all, err := f.repo.All(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestCreateProduct_InsertFailureRollsBackMedia(t *testing.T) {
	f := newFixture(t)
	repo := new(mockProductRepository)
	repo.On("Create", mock.Anything, mock.AnythingOfType("*domain.Product")).Return(errors.New("db down"))
	f.withRepo(repo)

	_, err := f.catalog.CreateProduct(context.Background(), "admin-1", createRequest(pngData("one")))

	require.Error(t, err)
	assert.Equal(t, 0, f.store.Len())
	assert.Empty(t, f.pub.published())
	repo.AssertExpectations(t)
}

func TestUpdateProduct_ReplacesImagesAndRetiresOld(t *testing.T) {
	f := newFixture(t)
	p := f.create(t, pngData("old-1"), pngData("old-2"))
	oldImages := p.Images
	oldLogo := p.Brand.Logo

	got, err := f.catalog.UpdateProduct(context.Background(), "admin-2", p.ID, &UpdateProductRequest{
		Name:   ptr("Phone X2"),
		Images: &ImageList{pngData("new-1")},
	})
	require.NoError(t, err)

	assert.Equal(t, int64(2), got.Version)
	assert.Equal(t, "Phone X2", got.Name)
	require.Len(t, got.Images, 1)
	_, _, ok := f.store.Get(got.Images[0].RemoteID)
	assert.True(t, ok)
	for _, img := range oldImages {
		_, _, ok := f.store.Get(img.RemoteID)
		assert.False(t, ok, "replaced image %s should be deleted", img.RemoteID)
	}
	assert.Equal(t, oldLogo, got.Brand.Logo)
	assert.Equal(t, 2, f.store.Len())
	assert.Equal(t, []string{event.TopicProductCreated, event.TopicProductUpdated}, f.pub.published())
}

func TestUpdateProduct_UploadFailureKeepsPriorReferences(t *testing.T) {
	f := newFixture(t)
	p := f.create(t, pngData("old-1"))
	before := f.store.Len()
	f.store.failUploadOf("new-2")

	_, err := f.catalog.UpdateProduct(context.Background(), "admin-2", p.ID, &UpdateProductRequest{
		Name:   ptr("renamed"),
		Images: &ImageList{pngData("new-1"), pngData("new-2"), pngData("new-3")},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrStorageUnavailable))

	stored, err := f.repo.GetByID(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.Images, stored.Images)
	assert.Equal(t, p.Name, stored.Name)
	assert.Equal(t, int64(1), stored.Version)
	_, _, ok := f.store.Get(p.Images[0].RemoteID)
	assert.True(t, ok)
	assert.Equal(t, before, f.store.Len())
}

func TestUpdateProduct_EmptyImageSetClearsImages(t *testing.T) {
	f := newFixture(t)
	p := f.create(t, pngData("old-1"))

	got, err := f.catalog.UpdateProduct(context.Background(), "admin-2", p.ID, &UpdateProductRequest{
		Images: &ImageList{},
	})
	require.NoError(t, err)
	assert.Empty(t, got.Images)
	assert.Equal(t, 1, f.store.Len())
}

func TestUpdateProduct_FieldsOnlyKeepsMedia(t *testing.T) {
	f := newFixture(t)
	p := f.create(t, pngData("old-1"))

	got, err := f.catalog.UpdateProduct(context.Background(), "admin-2", p.ID, &UpdateProductRequest{
		Stock:          ptr(0),
		Specifications: []string{`{"title":"Color","description":"Black"}`},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, got.Stock)
	assert.Equal(t, p.Images, got.Images)
	assert.Equal(t, p.Brand.Logo, got.Brand.Logo)
	assert.Equal(t, "Color", got.Specifications[0].Title)
	assert.Equal(t, 2, f.store.Len())
}

func TestUpdateProduct_LogoReplacement(t *testing.T) {
	f := newFixture(t)
	p := f.create(t, pngData("old-1"))

	got, err := f.catalog.UpdateProduct(context.Background(), "admin-2", p.ID, &UpdateProductRequest{
		BrandName: ptr("Acme Corp"),
		Logo:      pngData("logo-2"),
	})
	require.NoError(t, err)
	assert.NotEqual(t, p.Brand.Logo, got.Brand.Logo)
	assert.Equal(t, "Acme Corp", got.Brand.Name)
	_, _, ok := f.store.Get(p.Brand.Logo.RemoteID)
	assert.False(t, ok)
	assert.Equal(t, p.Images, got.Images)
}

func TestUpdateProduct_ReappliesFieldsAfterReviewRace(t *testing.T) {
	f := newFixture(t)
	p := f.create(t, pngData("old-1"))

	racer := NewReviewService(f.repo, event.NewProducer(f.pub, logger.Discard()), testRetry(1), logger.Discard())
	f.withRepo(&racingRepo{
		ProductRepository: f.repo,
		before: func() {
			_, err := racer.UpsertReview(context.Background(), p.ID, review.Input{UserID: "u-1", UserName: "Ann", Rating: 4})
			require.NoError(t, err)
		},
	})

	got, err := f.catalog.UpdateProduct(context.Background(), "admin-2", p.ID, &UpdateProductRequest{Name: ptr("renamed")})
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.Version)
	assert.Equal(t, "renamed", got.Name)
	assert.Equal(t, 1, got.ReviewCount)
	assert.Equal(t, 4.0, got.RatingsAverage)
}

func TestUpdateProduct_MediaRaceConflictsAndRollsBack(t *testing.T) {
	f := newFixture(t)
	p := f.create(t, pngData("old-1"))
	before := f.store.Len()

	f.withRepo(&racingRepo{
		ProductRepository: f.repo,
		before: func() {
			cur, err := f.repo.GetByID(context.Background(), p.ID)
			require.NoError(t, err)
			cur.Images = []domain.ImageAsset{{RemoteID: "products/elsewhere.png", URL: "http://media.test/elsewhere"}}
			require.NoError(t, f.repo.UpdateIfVersion(context.Background(), cur, cur.Version))
		},
	})

	_, err := f.catalog.UpdateProduct(context.Background(), "admin-2", p.ID, &UpdateProductRequest{
		Images: &ImageList{pngData("new-1")},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrConflict))
	assert.Equal(t, before, f.store.Len())
	_, _, ok := f.store.Get(p.Images[0].RemoteID)
	assert.True(t, ok, "assets of the losing update must not be retired")
}

func TestUpdateProduct_NotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.catalog.UpdateProduct(context.Background(), "admin-2", "missing", &UpdateProductRequest{Name: ptr("x")})
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestDeleteProduct_RemovesMediaThenRecord(t *testing.T) {
	f := newFixture(t)
	p := f.create(t, pngData("one"), pngData("two"))

	require.NoError(t, f.catalog.DeleteProduct(context.Background(), p.ID))

	assert.Equal(t, 0, f.store.Len())
	_, err := f.repo.GetByID(context.Background(), p.ID)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	assert.Contains(t, f.pub.published(), event.TopicProductDeleted)
}

func TestDeleteProduct_RemoteFailureKeepsRecord(t *testing.T) {
	f := newFixture(t)
	p := f.create(t, pngData("one"), pngData("two"))
	f.store.failDeleteOf(p.Images[1].RemoteID)

	err := f.catalog.DeleteProduct(context.Background(), p.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrStorageUnavailable))

	stored, err := f.repo.GetByID(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.Images, stored.Images)
	assert.Contains(t, f.pub.published(), event.TopicMediaOrphaned)
	assert.NotContains(t, f.pub.published(), event.TopicProductDeleted)
}

func TestListProducts_CompilesFilterAndPages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, p := range []*domain.Product{
		{ID: "a", Name: "Phone A", Category: "mobiles", Price: 50},
		{ID: "b", Name: "Phone B", Category: "mobiles", Price: 150},
		{ID: "c", Name: "phone C", Category: "mobiles", Price: 250},
		{ID: "d", Name: "Laptop", Category: "laptops", Price: 900},
	} {
		require.NoError(t, f.repo.Create(ctx, p))
	}

	list, err := f.catalog.ListProducts(ctx, query.RawParams{
		"keyword":  "PHONE",
		"category": "mobiles",
		"price":    map[string]any{"gte": "100"},
		"page":     "1",
		"limit":    "1",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(4), list.ProductsCount)
	assert.Equal(t, int64(2), list.FilteredProductsCount)
	assert.Len(t, list.Products, 1)
	assert.Equal(t, 1, list.PerPage)
}

func TestListProducts_StoreError(t *testing.T) {
	f := newFixture(t)
	repo := new(mockProductRepository)
	repo.On("Search", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("timeout"))
	f.withRepo(repo)

	_, err := f.catalog.ListProducts(context.Background(), query.RawParams{})
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeInternal, apperrors.Code(err))
}

func TestListAllProducts(t *testing.T) {
	f := newFixture(t)
	repo := new(mockProductRepository)
	repo.On("All", mock.Anything).Return([]domain.Product{{ID: "a"}, {ID: "b"}}, nil)
	f.withRepo(repo)

	all, err := f.catalog.ListAllProducts(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestGetProduct(t *testing.T) {
	f := newFixture(t)
	p := f.create(t, pngData("one"))

	got, err := f.catalog.GetProduct(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.Name, got.Name)
}
