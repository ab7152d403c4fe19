package shared

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParsePageQueryDefaults(t *testing.T) {
	page, limit, ok := ParsePageQuery(httptest.NewRequest(http.MethodGet, "/bugs", nil))
	assert.True(t, ok)
	assert.Equal(t, 1, page)
	assert.Equal(t, DefaultPageSize, limit)
}

func TestParsePageQueryValues(t *testing.T) {
	page, limit, ok := ParsePageQuery(httptest.NewRequest(http.MethodGet, "/bugs?page=3&limit=50", nil))
	assert.True(t, ok)
	assert.Equal(t, 3, page)
	assert.Equal(t, 50, limit)
}

func TestParsePageQueryCapsLimit(t *testing.T) {
	_, limit, ok := ParsePageQuery(httptest.NewRequest(http.MethodGet, "/bugs?limit=9999", nil))
	assert.True(t, ok)
	assert.Equal(t, MaxPageSize, limit)
}

func TestParsePageQueryRejectsMalformed(t *testing.T) {
	for _, query := range []string{"page=abc", "page=0", "page=-1", "limit=abc", "limit=0"} {
		_, _, ok := ParsePageQuery(httptest.NewRequest(http.MethodGet, "/bugs?"+query, nil))
		assert.False(t, ok, query)
	}
}

func TestNewPagination(t *testing.T) {
	p := NewPagination(2, 20, 45)
	assert.Equal(t, 3, p.TotalPages)
	assert.Equal(t, 20, p.Offset())

	p = NewPagination(0, 0, 0)
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, DefaultPageSize, p.Limit)
	assert.Equal(t, 0, p.TotalPages)
}
