// Package pagination reads page/page_size query parameters and shapes
// paginated list responses.
package pagination

import (
	"fmt"
	"math"
	"net/url"
	"strconv"
)

// Params is a validated page request.
type Params struct {
	Page     int
	PageSize int
}

// Limit and Offset translate the page into SQL terms.
func (p Params) Limit() int  { return p.PageSize }
func (p Params) Offset() int { return (p.Page - 1) * p.PageSize }

// Page is the JSON envelope of a list endpoint. Results is never nil so
// it encodes as [] rather than null.
type Page[T any] struct {
	Count    int `json:"count"`
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
	Results  []T `json:"results"`
}

// NewPage wraps results.
func NewPage[T any](p Params, count int, results []T) Page[T] {
	if results == nil {
		results = []T{}
	}
	return Page[T]{Count: count, Page: p.Page, PageSize: p.PageSize, Results: results}
}

// Parse reads page (default 1) and page_size (default defaultSize, at
// most maxSize) from query.
func Parse(query url.Values, defaultSize, maxSize int) (Params, error) {
	p := Params{Page: 1, PageSize: defaultSize}

	if raw := query.Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return Params{}, fmt.Errorf("page must be a positive integer")
		}
		p.Page = n
	}
	if raw := query.Get("page_size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return Params{}, fmt.Errorf("page_size must be a positive integer")
		}
		if n > maxSize {
			n = maxSize
		}
		p.PageSize = n
	}
	// Offset must stay representable.
	if p.Page-1 > math.MaxInt/p.PageSize {
		return Params{}, fmt.Errorf("page is out of range")
	}
	return p, nil
}
