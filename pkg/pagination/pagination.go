package pagination

import (
	"strconv"
	"strings"
)

// Bounds for page sizes.
const (
	DefaultPerPage = 20
	MaxPerPage     = 100
)

// Params holds pagination parameters extracted from query strings.
type Params struct {
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
	Offset  int `json:"-"`
}

// DefaultParams returns sensible pagination defaults.
func DefaultParams() Params {
	return Params{
		Page:    1,
		PerPage: DefaultPerPage,
		Offset:  0,
	}
}

// Parse builds Params from raw page and limit strings. Missing, malformed,
// or out-of-range values fall back to the defaults; limit is capped at
// MaxPerPage.
func Parse(page, limit string) Params {
	p := DefaultParams()

	if v, err := strconv.Atoi(strings.TrimSpace(page)); err == nil && v > 0 {
		p.Page = v
	}

	if v, err := strconv.Atoi(strings.TrimSpace(limit)); err == nil && v > 0 {
		p.PerPage = min(v, MaxPerPage)
	}

	p.Offset = (p.Page - 1) * p.PerPage
	return p
}

// Result wraps a paginated response.
type Result[T any] struct {
	Data       []T  `json:"data"`
	TotalCount int  `json:"total_count"`
	Page       int  `json:"page"`
	PerPage    int  `json:"per_page"`
	TotalPages int  `json:"total_pages"`
	HasNext    bool `json:"has_next"`
	HasPrev    bool `json:"has_prev"`
}

// NewResult creates a paginated result.
func NewResult[T any](data []T, totalCount int, params Params) Result[T] {
	perPage := params.PerPage
	if perPage <= 0 {
		perPage = DefaultPerPage
	}

	totalPages := totalCount / perPage
	if totalCount%perPage > 0 {
		totalPages++
	}

	if data == nil {
		data = []T{}
	}

	return Result[T]{
		Data:       data,
		TotalCount: totalCount,
		Page:       params.Page,
		PerPage:    perPage,
		TotalPages: totalPages,
		HasNext:    params.Page < totalPages,
		HasPrev:    params.Page > 1,
	}
}
