package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/vulntrack/api/pkg/apierror"
)

// decodeJSON decodes a JSON request body into v and writes the error
// response itself on failure. A tripped body size limit maps to 413, any
// other decode failure to 400. Returns false when the response was written.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			apierror.New(http.StatusRequestEntityTooLarge, "REQUEST_TOO_LARGE",
				"Request body too large").WriteJSON(w)
			return false
		}
		apierror.BadRequest("Invalid request body").WriteJSON(w)
		return false
	}
	return true
}

// ListResponse is the envelope for every paginated listing.
type ListResponse[T any] struct {
	Data       []T              `json:"data"`
	Total      int64            `json:"total"`
	Page       int              `json:"page"`
	PerPage    int              `json:"per_page"`
	TotalPages int              `json:"total_pages"`
	Links      *PaginationLinks `json:"links,omitempty"`
}

// PaginationLinks carries page navigation URLs for list responses.
type PaginationLinks struct {
	Self  string `json:"self"`
	First string `json:"first,omitempty"`
	Prev  string `json:"prev,omitempty"`
	Next  string `json:"next,omitempty"`
	Last  string `json:"last,omitempty"`
}

// NewPaginationLinks builds navigation links for the current request,
// keeping all other query parameters intact. Returns nil for empty result
// sets so the links block is omitted entirely.
func NewPaginationLinks(r *http.Request, page, perPage, totalPages int) *PaginationLinks {
	if totalPages == 0 {
		return nil
	}

	base := requestBaseURL(r)
	query := r.URL.Query()
	pageURL := func(p int) string {
		q := make(url.Values, len(query))
		for k, v := range query {
			q[k] = v
		}
		q.Set("page", strconv.Itoa(p))
		q.Set("per_page", strconv.Itoa(perPage))
		return base + "?" + q.Encode()
	}

	links := &PaginationLinks{
		Self:  pageURL(page),
		First: pageURL(1),
	}
	if page > 1 {
		links.Prev = pageURL(page - 1)
	}
	if page < totalPages {
		links.Next = pageURL(page + 1)
	}
	if totalPages > 1 {
		links.Last = pageURL(totalPages)
	}

	return links
}

// requestBaseURL reconstructs the externally visible URL for the request.
// Forwarded headers win over the local connection details because the
// service normally runs behind the gateway.
func requestBaseURL(r *http.Request) string {
	scheme := "https"
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	} else if r.TLS == nil {
		scheme = "http"
	}

	host := r.Host
	if fwd := r.Header.Get("X-Forwarded-Host"); fwd != "" {
		host = fwd
	}

	return scheme + "://" + host + r.URL.Path
}

// parseQueryInt parses an integer query parameter, falling back to
// defaultVal when absent or malformed.
func parseQueryInt(s string, defaultVal int) int {
	if s == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return val
}

// totalPages returns the page count for a result set.
func totalPages(total int64, perPage int) int {
	if perPage <= 0 {
		return 0
	}
	return int((total + int64(perPage) - 1) / int64(perPage))
}
