package shared

import (
	"math"
	"net/http"
	"strconv"
	"strings"
)

const (
	// DefaultPageSize applies when the client sends no limit.
	DefaultPageSize = 20
	// MaxPageSize caps the per-page limit a client may request.
	MaxPageSize = 100
)

// Pagination contains metadata for paginated listings.
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// NewPagination computes pagination metadata.
func NewPagination(page, limit, total int) Pagination {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if page <= 0 {
		page = 1
	}
	totalPages := int(math.Ceil(float64(total) / float64(limit)))
	return Pagination{Page: page, Limit: limit, Total: total, TotalPages: totalPages}
}

// Offset returns the row offset for the current page.
func (p Pagination) Offset() int {
	return (p.Page - 1) * p.Limit
}

// ParsePageQuery reads page/limit query parameters. Absent values fall back
// to defaults; malformed or non-positive values are reported as invalid.
func ParsePageQuery(r *http.Request) (page, limit int, ok bool) {
	page, limit = 1, DefaultPageSize
	if v := strings.TrimSpace(r.URL.Query().Get("page")); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			return 0, 0, false
		}
		page = parsed
	}
	if v := strings.TrimSpace(r.URL.Query().Get("limit")); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			return 0, 0, false
		}
		if parsed > MaxPageSize {
			parsed = MaxPageSize
		}
		limit = parsed
	}
	return page, limit, true
}
