package postgres

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/vulntrack/api/pkg/domain/shared"
)

// Helper functions for null handling in PostgreSQL queries

// nullString converts a string to sql.NullString.
// Empty strings are treated as NULL.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullStringValue extracts a string from sql.NullString.
// Returns empty string if NULL.
func nullStringValue(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// nullStringPtr converts a *string to sql.NullString.
// nil is treated as NULL.
func nullStringPtr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// nullStringPtrValue extracts a *string from sql.NullString.
// Returns nil if NULL.
func nullStringPtrValue(ns sql.NullString) *string {
	if ns.Valid {
		return &ns.String
	}
	return nil
}

// nullTime converts a *time.Time to sql.NullTime.
// nil is treated as NULL.
func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// nullTimeValue extracts a *time.Time from sql.NullTime.
// Returns nil if NULL.
func nullTimeValue(nt sql.NullTime) *time.Time {
	if nt.Valid {
		return &nt.Time
	}
	return nil
}

// parseNullID parses a sql.NullString into *shared.ID.
// Returns nil if NULL or if parsing fails.
func parseNullID(ns sql.NullString) *shared.ID {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	id, err := shared.IDFromString(ns.String)
	if err != nil {
		return nil
	}
	return &id
}

// nullID helper for optional shared.ID pointers.
func nullID(id *shared.ID) sql.NullString {
	if id == nil || id.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: id.String(), Valid: true}
}

// isUniqueViolation checks if the error is a PostgreSQL unique constraint violation.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

// isTransientFailure reports whether err is a retryable infrastructure
// failure rather than a logic or data error: lost connections, network
// errors, serialization aborts, resource exhaustion, server shutdown.
func isTransientFailure(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		code := string(pqErr.Code)
		switch {
		case strings.HasPrefix(code, "08"): // connection exception
			return true
		case code == "40001" || code == "40P01": // serialization failure, deadlock
			return true
		case strings.HasPrefix(code, "53"): // insufficient resources
			return true
		case strings.HasPrefix(code, "57P"): // operator intervention
			return true
		}
	}
	return false
}

// storageErr wraps a database error with its operation, tagging retryable
// failures with shared.ErrTransient so the API layer answers 503 instead
// of 500.
func storageErr(op string, err error) error {
	if isTransientFailure(err) {
		return fmt.Errorf("%s: %w: %w", op, shared.ErrTransient, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// toJSONB marshals a value to JSON bytes for JSONB columns.
// Returns nil if the value is nil.
func toJSONB(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

// escapeLikePattern escapes special characters in LIKE/ILIKE patterns.
// The % and _ characters have special meaning in SQL LIKE patterns;
// without escaping, user search input could inject wildcards.
func escapeLikePattern(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}

// wrapLikePattern wraps a search term with % wildcards after escaping.
// Use this for substring search: wrapLikePattern("foo") returns "%foo%"
func wrapLikePattern(s string) string {
	return "%" + escapeLikePattern(s) + "%"
}
