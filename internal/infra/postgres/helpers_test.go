package postgres

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"

	"github.com/vulntrack/api/pkg/domain/shared"
)

func TestIsTransientFailure(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		transient bool
	}{
		{"nil", nil, false},
		{"bad connection", driver.ErrBadConn, true},
		{"wrapped bad connection", fmt.Errorf("exec: %w", driver.ErrBadConn), true},
		{"network error", &net.OpError{Op: "dial", Err: errors.New("connection refused")}, true},
		{"connection exception", &pq.Error{Code: "08006"}, true},
		{"connection does not exist", &pq.Error{Code: "08003"}, true},
		{"serialization failure", &pq.Error{Code: "40001"}, true},
		{"deadlock detected", &pq.Error{Code: "40P01"}, true},
		{"too many connections", &pq.Error{Code: "53300"}, true},
		{"disk full", &pq.Error{Code: "53100"}, true},
		{"admin shutdown", &pq.Error{Code: "57P01"}, true},
		{"cannot connect now", &pq.Error{Code: "57P03"}, true},

		{"no rows", sql.ErrNoRows, false},
		{"unique violation", &pq.Error{Code: "23505"}, false},
		{"foreign key violation", &pq.Error{Code: "23503"}, false},
		{"syntax error", &pq.Error{Code: "42601"}, false},
		{"undefined table", &pq.Error{Code: "42P01"}, false},
		{"plain error", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.transient, isTransientFailure(tt.err))
		})
	}
}

func TestStorageErr(t *testing.T) {
	t.Run("tags transient failures", func(t *testing.T) {
		err := storageErr("failed to query assets", &pq.Error{Code: "08006"})

		assert.True(t, shared.IsTransient(err))
		assert.Contains(t, err.Error(), "failed to query assets")
	})

	t.Run("keeps the driver error in the chain", func(t *testing.T) {
		cause := &pq.Error{Code: "40001", Message: "could not serialize access"}
		err := storageErr("failed to save decision", cause)

		var pqErr *pq.Error
		assert.True(t, errors.As(err, &pqErr))
		assert.Equal(t, cause.Code, pqErr.Code)
	})

	t.Run("leaves logic errors untagged", func(t *testing.T) {
		err := storageErr("failed to scan asset", errors.New("converting NULL to string"))

		assert.False(t, shared.IsTransient(err))
		assert.Contains(t, err.Error(), "failed to scan asset")
	})
}

func TestEscapeLikePattern(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "web-01", "web-01"},
		{"percent wildcard", "100%", `100\%`},
		{"underscore wildcard", "web_01", `web\_01`},
		{"backslash", `a\b`, `a\\b`},
		{"mixed", `%_\`, `\%\_\\`},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, escapeLikePattern(tt.input))
		})
	}
}

func TestWrapLikePattern(t *testing.T) {
	assert.Equal(t, "%web-01%", wrapLikePattern("web-01"))
	assert.Equal(t, `%100\%%`, wrapLikePattern("100%"))
}

func TestNullHelpers(t *testing.T) {
	t.Run("nullString", func(t *testing.T) {
		assert.False(t, nullString("").Valid)
		assert.Equal(t, sql.NullString{String: "x", Valid: true}, nullString("x"))
	})

	t.Run("nullStringPtr round trip", func(t *testing.T) {
		assert.Nil(t, nullStringPtrValue(sql.NullString{}))

		s := "owner"
		ns := nullStringPtr(&s)
		got := nullStringPtrValue(ns)
		assert.NotNil(t, got)
		assert.Equal(t, s, *got)
	})

	t.Run("nullTime round trip", func(t *testing.T) {
		assert.False(t, nullTime(nil).Valid)

		ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
		nt := nullTime(&ts)
		got := nullTimeValue(nt)
		assert.NotNil(t, got)
		assert.True(t, ts.Equal(*got))
	})

	t.Run("nullID", func(t *testing.T) {
		assert.False(t, nullID(nil).Valid)

		id := shared.NewID()
		ns := nullID(&id)
		assert.True(t, ns.Valid)

		parsed := parseNullID(ns)
		assert.NotNil(t, parsed)
		assert.True(t, id.Equals(*parsed))
	})

	t.Run("parseNullID rejects junk", func(t *testing.T) {
		assert.Nil(t, parseNullID(sql.NullString{String: "not-a-uuid", Valid: true}))
	})
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, isUniqueViolation(&pq.Error{Code: "23505"}))
	assert.True(t, isUniqueViolation(fmt.Errorf("insert: %w", &pq.Error{Code: "23505"})))
	assert.False(t, isUniqueViolation(&pq.Error{Code: "23503"}))
	assert.False(t, isUniqueViolation(errors.New("boom")))
}
