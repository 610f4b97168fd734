package domain

import (
	"time"
)

// Product is a catalog record. RatingsAverage and ReviewCount are derived
// from Reviews and are only written by the review engine.
type Product struct {
	ID             string          `json:"id" bson:"_id"`
	Name           string          `json:"name" bson:"name"`
	Description    string          `json:"description" bson:"description"`
	Price          float64         `json:"price" bson:"price"`
	CuttedPrice    float64         `json:"cutted_price" bson:"cutted_price"`
	Category       string          `json:"category" bson:"category"`
	Stock          int             `json:"stock" bson:"stock"`
	Warranty       int             `json:"warranty" bson:"warranty"`
	Highlights     []string        `json:"highlights" bson:"highlights"`
	Specifications []Specification `json:"specifications" bson:"specifications"`
	Images         []ImageAsset    `json:"images" bson:"images"`
	Brand          Brand           `json:"brand" bson:"brand"`
	Reviews        []Review        `json:"reviews" bson:"reviews"`
	RatingsAverage float64         `json:"ratings_average" bson:"ratings_average"`
	ReviewCount    int             `json:"review_count" bson:"review_count"`
	CreatedBy      string          `json:"created_by" bson:"created_by"`
	Version        int64           `json:"version" bson:"version"`
	CreatedAt      time.Time       `json:"created_at" bson:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at" bson:"updated_at"`
}

// Specification is one title/description pair shown on a product page.
type Specification struct {
	Title       string `json:"title" bson:"title" validate:"required"`
	Description string `json:"description" bson:"description" validate:"required"`
}

// ImageAsset references a remotely stored image.
type ImageAsset struct {
	RemoteID string `json:"remote_id" bson:"remote_id"`
	URL      string `json:"url" bson:"url"`
}

// IsZero reports whether the asset references nothing.
func (a ImageAsset) IsZero() bool {
	return a.RemoteID == ""
}

// Brand is embedded in its product and owns its logo asset.
type Brand struct {
	Name string     `json:"name" bson:"name"`
	Logo ImageAsset `json:"logo" bson:"logo"`
}

// Review is owned by its product. At most one review exists per UserID.
type Review struct {
	ID        string    `json:"id" bson:"id"`
	UserID    string    `json:"user_id" bson:"user_id"`
	UserName  string    `json:"user_name" bson:"user_name"`
	Rating    int       `json:"rating" bson:"rating"`
	Comment   string    `json:"comment" bson:"comment"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

// Rating bounds.
const (
	MinRating = 1
	MaxRating = 5
)

// Clone returns a deep copy of p so that callers can mutate the copy
// without touching shared state.
func (p *Product) Clone() *Product {
	if p == nil {
		return nil
	}
	c := *p
	c.Highlights = cloneSlice(p.Highlights)
	c.Specifications = cloneSlice(p.Specifications)
	c.Images = cloneSlice(p.Images)
	c.Reviews = cloneSlice(p.Reviews)
	return &c
}

// RemoteIDs lists every remote asset the product references: images first,
// then the brand logo.
func (p *Product) RemoteIDs() []string {
	ids := make([]string, 0, len(p.Images)+1)
	for _, img := range p.Images {
		if !img.IsZero() {
			ids = append(ids, img.RemoteID)
		}
	}
	if !p.Brand.Logo.IsZero() {
		ids = append(ids, p.Brand.Logo.RemoteID)
	}
	return ids
}

// FindReview returns the index of the review with id, or -1.
func (p *Product) FindReview(id string) int {
	for i, r := range p.Reviews {
		if r.ID == id {
			return i
		}
	}
	return -1
}

func cloneSlice[T any](s []T) []T {
	if s == nil {
		return nil
	}
	out := make([]T, len(s))
	copy(out, s)
	return out
}
