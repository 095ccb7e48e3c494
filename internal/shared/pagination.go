package shared

import (
	"math"
	"strings"
)

const (
	defaultPageSize = 20
	maxPageSize     = 500
)

// PageLink describes a requested page of a listing.
type PageLink struct {
	Page         int
	PageSize     int
	TextSearch   string
	SortProperty string
	SortOrder    string
}

// Normalize clamps paging values and canonicalises the sort order.
func (p PageLink) Normalize() PageLink {
	if p.PageSize <= 0 {
		p.PageSize = defaultPageSize
	}
	if p.PageSize > maxPageSize {
		p.PageSize = maxPageSize
	}
	if p.Page < 0 {
		p.Page = 0
	}
	p.TextSearch = strings.TrimSpace(p.TextSearch)
	if strings.EqualFold(p.SortOrder, "desc") {
		p.SortOrder = "DESC"
	} else {
		p.SortOrder = "ASC"
	}
	return p
}

// Offset returns the row offset for the page.
func (p PageLink) Offset() int {
	return p.Page * p.PageSize
}

// PageData is a single page of results with totals.
type PageData[T any] struct {
	Data          []T  `json:"data"`
	TotalPages    int  `json:"totalPages"`
	TotalElements int  `json:"totalElements"`
	HasNext       bool `json:"hasNext"`
}

// NewPageData computes pagination metadata for the given page.
func NewPageData[T any](data []T, total int, link PageLink) PageData[T] {
	link = link.Normalize()
	if data == nil {
		data = []T{}
	}
	totalPages := int(math.Ceil(float64(total) / float64(link.PageSize)))
	return PageData[T]{
		Data:          data,
		TotalPages:    totalPages,
		TotalElements: total,
		HasNext:       link.Page+1 < totalPages,
	}
}
