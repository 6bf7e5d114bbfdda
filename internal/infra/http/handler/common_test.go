package handler

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Hostname string `json:"hostname"`
	}

	t.Run("valid body", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"hostname":"web01"}`))

		var p payload
		require.True(t, decodeJSON(rec, req, &p))
		assert.Equal(t, "web01", p.Hostname)
	})

	t.Run("malformed body is a 400", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{oops`))

		var p payload
		require.False(t, decodeJSON(rec, req, &p))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "BAD_REQUEST")
	})

	t.Run("tripped body limit is a 413", func(t *testing.T) {
		rec := httptest.NewRecorder()
		body := `{"hostname":"` + strings.Repeat("a", 100) + `"}`
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		req.Body = http.MaxBytesReader(rec, io.NopCloser(strings.NewReader(body)), 10)

		var p payload
		require.False(t, decodeJSON(rec, req, &p))
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
		assert.Contains(t, rec.Body.String(), "REQUEST_TOO_LARGE")
	})
}

func TestParseQueryInt(t *testing.T) {
	assert.Equal(t, 7, parseQueryInt("", 7))
	assert.Equal(t, 7, parseQueryInt("abc", 7))
	assert.Equal(t, 15, parseQueryInt("15", 7))
}

func TestTotalPages(t *testing.T) {
	tests := []struct {
		total   int64
		perPage int
		want    int
	}{
		{0, 20, 0},
		{1, 20, 1},
		{20, 20, 1},
		{21, 20, 2},
		{100, 0, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, totalPages(tt.total, tt.perPage), "totalPages(%d, %d)", tt.total, tt.perPage)
	}
}

func TestNewPaginationLinks(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/assets?owner=alice&page=2&per_page=20", nil)
	req.Host = "vulntrack.internal"

	links := NewPaginationLinks(req, 2, 20, 5)
	require.NotNil(t, links)

	assert.Contains(t, links.Self, "page=2")
	assert.Contains(t, links.First, "page=1")
	assert.Contains(t, links.Prev, "page=1")
	assert.Contains(t, links.Next, "page=3")
	assert.Contains(t, links.Last, "page=5")

	// Other query parameters survive page navigation.
	assert.Contains(t, links.Next, "owner=alice")
	assert.Contains(t, links.Self, "http://vulntrack.internal/api/v1/assets")
}

func TestNewPaginationLinks_Edges(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/assets", nil)

	assert.Nil(t, NewPaginationLinks(req, 1, 20, 0), "empty result sets carry no links")

	links := NewPaginationLinks(req, 1, 20, 1)
	require.NotNil(t, links)
	assert.Empty(t, links.Prev)
	assert.Empty(t, links.Next)
	assert.Empty(t, links.Last, "single page needs no last link")
}

func TestNewPaginationLinks_ForwardedHeaders(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/assets", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	req.Header.Set("X-Forwarded-Host", "api.example.com")

	links := NewPaginationLinks(req, 1, 20, 2)
	require.NotNil(t, links)
	assert.Contains(t, links.Self, "https://api.example.com/api/v1/assets")
}
