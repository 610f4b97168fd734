// Package seed populates a catalog with deterministic demo products and
// reviews through the catalog services, so the media lifecycle and review
// aggregation run exactly as they do for real traffic.
package seed

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/utafrali/catalogcore/internal/domain"
	"github.com/utafrali/catalogcore/internal/review"
	"github.com/utafrali/catalogcore/internal/service"
)

type brandDef struct {
	Name  string
	Color byte
}

var brands = []brandDef{
	{"Aurora", 0x10},
	{"Northwind", 0x20},
	{"Kestrel", 0x30},
	{"Lumen", 0x40},
	{"Vantage", 0x50},
	{"Orbit", 0x60},
}

type categoryDef struct {
	Name      string
	Items     []string
	MinPrice  float64
	MaxPrice  float64
	Warranty  int
	Highlight string
}

var categories = []categoryDef{
	{"mobiles", []string{"Phone", "Phone Pro", "Phone Mini"}, 150, 1400, 12, "Dual SIM"},
	{"laptops", []string{"Notebook", "Ultrabook", "Workstation"}, 450, 3200, 24, "Backlit keyboard"},
	{"audio", []string{"Headphones", "Earbuds", "Speaker"}, 20, 450, 6, "Noise cancelling"},
	{"wearables", []string{"Watch", "Fitness Band"}, 40, 700, 12, "Water resistant"},
	{"cameras", []string{"Mirrorless Camera", "Action Camera"}, 120, 2600, 12, "4K video"},
}

var reviewComments = []string{
	"Does what it says.",
	"Great value for the price.",
	"Battery could be better.",
	"Arrived quickly, works fine.",
	"Not what I expected.",
	"Would buy again.",
}

// Options controls the size and shape of the generated data.
type Options struct {
	Products          int
	ReviewsPerProduct int
	ImagesPerProduct  int
	Concurrency       int
	Seed              int64
	Principal         string
}

// DefaultOptions returns a small catalog suitable for local development.
func DefaultOptions() Options {
	return Options{
		Products:          100,
		ReviewsPerProduct: 3,
		ImagesPerProduct:  2,
		Concurrency:       4,
		Seed:              42,
		Principal:         "seed",
	}
}

// Item is one generated product with the reviews to post for it.
type Item struct {
	Request *service.CreateProductRequest
	Reviews []review.Input
}

// Generate builds n items deterministically from opts.Seed.
func Generate(opts Options) []Item {
	rng := rand.New(rand.NewSource(opts.Seed))
	images := max(opts.ImagesPerProduct, 1)

	items := make([]Item, opts.Products)
	for i := range items {
		cat := categories[rng.Intn(len(categories))]
		brand := brands[rng.Intn(len(brands))]
		name := fmt.Sprintf("%s %s %d", brand.Name, cat.Items[rng.Intn(len(cat.Items))], 100+i)

		price := cat.MinPrice + rng.Float64()*(cat.MaxPrice-cat.MinPrice)
		price = float64(int(price*100)) / 100
		cutted := price
		if rng.Intn(3) == 0 {
			cutted = float64(int(price*115)) / 100
		}

		req := &service.CreateProductRequest{
			Name:        name,
			Description: fmt.Sprintf("%s from %s, category %s.", name, brand.Name, cat.Name),
			Price:       price,
			CuttedPrice: cutted,
			Category:    cat.Name,
			Stock:       rng.Intn(250),
			Warranty:    cat.Warranty,
			Highlights:  []string{cat.Highlight, fmt.Sprintf("%d months warranty", cat.Warranty)},
			Specifications: []string{
				specification("Brand", brand.Name),
				specification("Model", fmt.Sprintf("%s-%04d", brand.Name[:3], i)),
			},
			BrandName: brand.Name,
			Logo:      imageData(brand.Color, "logo:"+brand.Name),
		}
		for j := 0; j < images; j++ {
			req.Images = append(req.Images, imageData(brand.Color, fmt.Sprintf("%d/%d", i, j)))
		}

		revs := make([]review.Input, opts.ReviewsPerProduct)
		for j := range revs {
			revs[j] = review.Input{
				UserID:   fmt.Sprintf("user-%03d", rng.Intn(500)),
				UserName: fmt.Sprintf("Customer %d", j+1),
				Rating:   domain.MinRating + rng.Intn(domain.MaxRating-domain.MinRating+1),
				Comment:  reviewComments[rng.Intn(len(reviewComments))],
			}
		}

		items[i] = Item{Request: req, Reviews: revs}
	}
	return items
}

// specification encodes one entry the way clients send them.
func specification(title, description string) string {
	b, _ := json.Marshal(domain.Specification{Title: title, Description: description})
	return string(b)
}

// imageData returns a small PNG-signed data URI unique to tag.
func imageData(color byte, tag string) string {
	data := append([]byte("\x89PNG\r\n\x1a\n"), color)
	data = append(data, tag...)
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(data)
}

// Result summarizes a Run.
type Result struct {
	Products int64
	Reviews  int64
}

// Run creates every generated product and posts its reviews. The first
// failure stops the run; products created before it are kept.
func Run(ctx context.Context, catalog *service.CatalogService, reviews *service.ReviewService, opts Options, logger *slog.Logger) (Result, error) {
	items := Generate(opts)

	var products, posted atomic.Int64
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(opts.Concurrency, 1))

	for i, item := range items {
		g.Go(func() error {
			p, err := catalog.CreateProduct(ctx, opts.Principal, item.Request)
			if err != nil {
				return fmt.Errorf("create product %d: %w", i, err)
			}
			products.Add(1)

			for _, in := range item.Reviews {
				if _, err := reviews.UpsertReview(ctx, p.ID, in); err != nil {
					return fmt.Errorf("review product %s: %w", p.ID, err)
				}
				posted.Add(1)
			}
			return nil
		})
	}

	err := g.Wait()
	res := Result{Products: products.Load(), Reviews: posted.Load()}
	logger.Info("seed finished",
		slog.Int64("products", res.Products),
		slog.Int64("reviews", res.Reviews),
	)
	return res, err
}
