// Package pagination provides offset pagination and sort parsing shared by
// the list endpoints.
package pagination

import "strings"

// Page size bounds applied by New.
const (
	DefaultPerPage = 20
	MaxPerPage     = 100
)

// Pagination is a clamped page request.
type Pagination struct {
	Page    int
	PerPage int
}

// New clamps the raw page parameters into a valid Pagination.
func New(page, perPage int) Pagination {
	if page < 1 {
		page = 1
	}
	switch {
	case perPage < 1:
		perPage = DefaultPerPage
	case perPage > MaxPerPage:
		perPage = MaxPerPage
	}
	return Pagination{Page: page, PerPage: perPage}
}

// Offset returns the row offset for the page.
func (p Pagination) Offset() int {
	return (p.Page - 1) * p.PerPage
}

// Limit returns the row limit for the page.
func (p Pagination) Limit() int {
	return p.PerPage
}

// SortOption parses user-supplied sort expressions against an allow-list.
// Only listed fields reach SQL; everything else is dropped silently, so a
// caller probing column names gets the default order instead of an error.
type SortOption struct {
	clauses []string
	allowed map[string]string
}

// NewSortOption creates a SortOption. allowed maps the request-facing field
// name to the column expression it sorts by.
func NewSortOption(allowed map[string]string) *SortOption {
	return &SortOption{allowed: allowed}
}

// Parse reads a comma-separated sort expression. A leading "-" selects
// descending order, an optional "+" ascending: "-severity,discovered_at".
func (s *SortOption) Parse(expr string) *SortOption {
	for _, part := range strings.Split(expr, ",") {
		field := strings.TrimSpace(part)
		if field == "" {
			continue
		}

		dir := "ASC"
		switch field[0] {
		case '-':
			dir = "DESC"
			field = field[1:]
		case '+':
			field = field[1:]
		}

		if column, ok := s.allowed[field]; ok {
			s.clauses = append(s.clauses, column+" "+dir)
		}
	}
	return s
}

// IsEmpty reports whether any valid sort field was parsed.
func (s *SortOption) IsEmpty() bool {
	return len(s.clauses) == 0
}

// SQLWithDefault renders the ORDER BY body, falling back to defaultSort
// when nothing valid was parsed.
func (s *SortOption) SQLWithDefault(defaultSort string) string {
	if len(s.clauses) == 0 {
		return defaultSort
	}
	return strings.Join(s.clauses, ", ")
}
