// Package review maintains a product's embedded reviews and the aggregate
// fields derived from them. Every function is pure: it returns a new
// product and never mutates its argument.
package review

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/utafrali/catalogcore/internal/domain"
	apperrors "github.com/utafrali/catalogcore/pkg/errors"
)

// newID generates review ids. Replaced in tests.
var newID = func() string { return uuid.New().String() }

// Input describes one user's review of a product.
type Input struct {
	UserID   string
	UserName string
	Rating   int
	Comment  string
}

// Outcome reports what Apply did to the review list.
type Outcome int

const (
	Created Outcome = iota + 1
	Updated
)

func (o Outcome) String() string {
	switch o {
	case Created:
		return "created"
	case Updated:
		return "updated"
	default:
		return "unknown"
	}
}

// Validate checks the rating bounds and the author.
func (in Input) Validate() error {
	if strings.TrimSpace(in.UserID) == "" {
		return apperrors.InvalidInput("user_id is required")
	}
	if in.Rating < domain.MinRating || in.Rating > domain.MaxRating {
		return apperrors.InvalidInput(fmt.Sprintf("rating must be between %d and %d", domain.MinRating, domain.MaxRating))
	}
	return nil
}

// Apply upserts the review written by in.UserID. An existing review keeps
// its ID and UserName and has its rating and comment replaced; otherwise a
// new review is appended. The aggregate fields are recomputed either way.
func Apply(p *domain.Product, in Input, now time.Time) (*domain.Product, Outcome, error) {
	if err := in.Validate(); err != nil {
		return nil, 0, err
	}

	out := p.Clone()
	outcome := Created
	for i := range out.Reviews {
		if out.Reviews[i].UserID != in.UserID {
			continue
		}
		out.Reviews[i].Rating = in.Rating
		out.Reviews[i].Comment = in.Comment
		out.Reviews[i].UpdatedAt = now
		outcome = Updated
		break
	}

	if outcome == Created {
		out.Reviews = append(out.Reviews, domain.Review{
			ID:        newID(),
			UserID:    in.UserID,
			UserName:  in.UserName,
			Rating:    in.Rating,
			Comment:   in.Comment,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}

	Recompute(out)
	return out, outcome, nil
}

// Remove drops the review with reviewID. Removing an unknown id still
// recomputes the aggregate and reports removed=false.
func Remove(p *domain.Product, reviewID string) (*domain.Product, bool) {
	out := p.Clone()
	removed := false
	kept := out.Reviews[:0]
	for _, r := range out.Reviews {
		if r.ID == reviewID {
			removed = true
			continue
		}
		kept = append(kept, r)
	}
	out.Reviews = kept
	Recompute(out)
	return out, removed
}

// Recompute sets ReviewCount and RatingsAverage from p.Reviews.
func Recompute(p *domain.Product) {
	p.ReviewCount = len(p.Reviews)
	p.RatingsAverage = Mean(p.Reviews)
}

// Mean is the arithmetic mean of the ratings, or 0 for no reviews.
func Mean(reviews []domain.Review) float64 {
	if len(reviews) == 0 {
		return 0
	}
	sum := 0
	for _, r := range reviews {
		sum += r.Rating
	}
	return float64(sum) / float64(len(reviews))
}

// Consistent reports whether the aggregate fields of p match its reviews.
func Consistent(p *domain.Product) bool {
	return p.ReviewCount == len(p.Reviews) && p.RatingsAverage == Mean(p.Reviews)
}
