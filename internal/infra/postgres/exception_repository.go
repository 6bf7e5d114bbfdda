package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vulntrack/api/pkg/domain/exception"
	"github.com/vulntrack/api/pkg/domain/shared"
	"github.com/vulntrack/api/pkg/domain/vulnerability"
	"github.com/vulntrack/api/pkg/pagination"
)

// Default sort order for exception requests
const requestDefaultSortOrder = "requested_at DESC"

// executor interface for both *DB and *sql.Tx
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// ExceptionRepository implements exception.Repository using PostgreSQL.
type ExceptionRepository struct {
	db *DB
}

// NewExceptionRepository creates a new ExceptionRepository.
func NewExceptionRepository(db *DB) *ExceptionRepository {
	return &ExceptionRepository{db: db}
}

// Save inserts a new pending request.
func (r *ExceptionRepository) Save(ctx context.Context, req *exception.Request) error {
	return r.insertRequest(ctx, r.db, req)
}

// SaveWithException inserts a request together with its exception in a
// single transaction.
func (r *ExceptionRepository) SaveWithException(ctx context.Context, req *exception.Request, ex *exception.Exception) error {
	return r.db.Transaction(ctx, func(tx *sql.Tx) error {
		if err := r.insertRequest(ctx, tx, req); err != nil {
			return err
		}
		return r.insertException(ctx, tx, ex)
	})
}

// FindByID returns the request or nil when it does not exist.
func (r *ExceptionRepository) FindByID(ctx context.Context, id shared.ID) (*exception.Request, error) {
	query := r.requestSelectQuery() + " WHERE r.id = $1"

	row := r.db.QueryRowContext(ctx, query, id.String())
	req, err := r.doScanRequest(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, storageErr("failed to scan exception request", err)
	}
	return req, nil
}

// List retrieves exception requests with filtering, sorting, and pagination.
func (r *ExceptionRepository) List(
	ctx context.Context,
	filter exception.RequestFilter,
	page pagination.Pagination,
	sort *pagination.SortOption,
) ([]*exception.Request, int64, error) {
	baseQuery := r.requestSelectQuery()
	countQuery := `SELECT COUNT(*) FROM exception_requests r`

	whereClause, args := r.buildWhereClause(filter)

	if whereClause != "" {
		baseQuery += " WHERE " + whereClause
		countQuery += " WHERE " + whereClause
	}

	// Apply sorting (default to requested_at DESC)
	orderBy := requestDefaultSortOrder
	if sort != nil && !sort.IsEmpty() {
		orderBy = sort.SQLWithDefault(requestDefaultSortOrder)
	}
	baseQuery += " ORDER BY " + orderBy
	baseQuery += fmt.Sprintf(" LIMIT %d OFFSET %d", page.Limit(), page.Offset())

	var total int64
	err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total)
	if err != nil {
		return nil, 0, storageErr("failed to count exception requests", err)
	}

	rows, err := r.db.QueryContext(ctx, baseQuery, args...)
	if err != nil {
		return nil, 0, storageErr("failed to query exception requests", err)
	}
	defer rows.Close()

	var requests []*exception.Request
	for rows.Next() {
		req, err := r.doScanRequest(rows.Scan)
		if err != nil {
			return nil, 0, storageErr("failed to scan exception request", err)
		}
		requests = append(requests, req)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, storageErr("failed to iterate exception requests", err)
	}

	return requests, total, nil
}

// SaveDecision persists a pending-to-decided transition. The update is
// guarded on the stored status still being pending so concurrent deciders
// cannot both win; the loser gets shared.ErrConflict.
func (r *ExceptionRepository) SaveDecision(ctx context.Context, req *exception.Request, ex *exception.Exception) error {
	return r.db.Transaction(ctx, func(tx *sql.Tx) error {
		query := `
			UPDATE exception_requests
			SET status = $2, decided_by = $3, decided_at = $4, decision_note = $5, updated_at = $6
			WHERE id = $1 AND status = 'pending'
		`

		result, err := tx.ExecContext(ctx, query,
			req.ID().String(),
			req.Status().String(),
			nullStringPtr(req.DecidedBy()),
			nullTime(req.DecidedAt()),
			nullString(req.DecisionNote()),
			req.UpdatedAt(),
		)
		if err != nil {
			return storageErr("failed to save decision", err)
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return storageErr("failed to get rows affected", err)
		}
		if rowsAffected == 0 {
			return fmt.Errorf("%w: exception request %s is no longer pending", shared.ErrConflict, req.ID())
		}

		if ex != nil {
			return r.insertException(ctx, tx, ex)
		}
		return nil
	})
}

// FindActiveForAssets returns exceptions that can cover vulnerabilities on
// the given assets as of now: single-scope grants pinned to one of the
// assets plus every pattern-scope grant.
func (r *ExceptionRepository) FindActiveForAssets(ctx context.Context, assetIDs []shared.ID, now time.Time) ([]*exception.Exception, error) {
	query := r.exceptionSelectQuery() + " WHERE e.expires_at > $1"
	args := []any{now}

	if len(assetIDs) > 0 {
		placeholders := make([]string, len(assetIDs))
		for i, id := range assetIDs {
			placeholders[i] = fmt.Sprintf("$%d", i+2)
			args = append(args, id.String())
		}
		query += fmt.Sprintf(" AND (e.scope = 'cve_pattern' OR e.asset_id IN (%s))", strings.Join(placeholders, ", "))
	} else {
		query += " AND e.scope = 'cve_pattern'"
	}

	query += " ORDER BY e.created_at"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("failed to query exceptions", err)
	}
	defer rows.Close()

	return r.collectExceptions(rows)
}

// ListActiveExceptions returns exceptions still applying as of now, soonest
// expiring first.
func (r *ExceptionRepository) ListActiveExceptions(ctx context.Context, now time.Time, page pagination.Pagination) ([]*exception.Exception, int64, error) {
	countQuery := `SELECT COUNT(*) FROM exceptions e WHERE e.expires_at > $1`

	var total int64
	if err := r.db.QueryRowContext(ctx, countQuery, now).Scan(&total); err != nil {
		return nil, 0, storageErr("failed to count exceptions", err)
	}

	query := r.exceptionSelectQuery() + " WHERE e.expires_at > $1 ORDER BY e.expires_at" +
		fmt.Sprintf(" LIMIT %d OFFSET %d", page.Limit(), page.Offset())

	rows, err := r.db.QueryContext(ctx, query, now)
	if err != nil {
		return nil, 0, storageErr("failed to query exceptions", err)
	}
	defer rows.Close()

	exceptions, err := r.collectExceptions(rows)
	if err != nil {
		return nil, 0, err
	}

	return exceptions, total, nil
}

// ExpireDue flips approved requests past their expiration to expired and
// returns how many rows changed.
func (r *ExceptionRepository) ExpireDue(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE exception_requests
		SET status = 'expired', updated_at = $1
		WHERE status = 'approved' AND expires_at <= $1
	`

	result, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, storageErr("failed to expire requests", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, storageErr("failed to get rows affected", err)
	}

	return rowsAffected, nil
}

// RecordAudit records an audit trail entry for a request.
func (r *ExceptionRepository) RecordAudit(ctx context.Context, requestID shared.ID, action, actor string, details map[string]any) error {
	detailsJSON, err := toJSONB(details)
	if err != nil {
		return fmt.Errorf("failed to marshal audit details: %w", err)
	}

	query := `
		INSERT INTO audit_log (entity_type, entity_id, action, actor, details)
		VALUES ('exception_request', $1, $2, $3, $4)
	`

	if _, err := r.db.ExecContext(ctx, query, requestID.String(), action, actor, detailsJSON); err != nil {
		return storageErr("failed to record audit entry", err)
	}

	return nil
}

// Helper methods

func (r *ExceptionRepository) insertRequest(ctx context.Context, exec executor, req *exception.Request) error {
	query := `
		INSERT INTO exception_requests (
			id, scope, asset_id, cve_id, justification, expires_at,
			status, requested_by, requested_at,
			decided_by, decided_at, decision_note,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err := exec.ExecContext(ctx, query,
		req.ID().String(),
		req.Scope().String(),
		nullID(req.AssetID()),
		req.CVEID(),
		req.Justification(),
		req.ExpiresAt(),
		req.Status().String(),
		req.RequestedBy(),
		req.RequestedAt(),
		nullStringPtr(req.DecidedBy()),
		nullTime(req.DecidedAt()),
		nullString(req.DecisionNote()),
		req.CreatedAt(),
		req.UpdatedAt(),
	)
	if err != nil {
		return storageErr("failed to create exception request", err)
	}

	return nil
}

func (r *ExceptionRepository) insertException(ctx context.Context, exec executor, ex *exception.Exception) error {
	query := `
		INSERT INTO exceptions (
			id, request_id, scope, asset_id, cve_id, granted_by, expires_at, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := exec.ExecContext(ctx, query,
		ex.ID().String(),
		ex.RequestID().String(),
		ex.Scope().String(),
		nullID(ex.AssetID()),
		ex.CVEID(),
		ex.GrantedBy(),
		ex.ExpiresAt(),
		ex.CreatedAt(),
	)
	if err != nil {
		return storageErr("failed to create exception", err)
	}

	return nil
}

func (r *ExceptionRepository) requestSelectQuery() string {
	return `
		SELECT r.id, r.scope, r.asset_id, r.cve_id, r.justification, r.expires_at,
			   r.status, r.requested_by, r.requested_at,
			   r.decided_by, r.decided_at, r.decision_note,
			   r.created_at, r.updated_at
		FROM exception_requests r
	`
}

func (r *ExceptionRepository) exceptionSelectQuery() string {
	return `
		SELECT e.id, e.request_id, e.scope, e.asset_id, e.cve_id,
			   e.granted_by, e.expires_at, e.created_at
		FROM exceptions e
	`
}

func (r *ExceptionRepository) doScanRequest(scan func(dest ...any) error) (*exception.Request, error) {
	var (
		idStr         string
		scope         string
		assetID       sql.NullString
		cveID         string
		justification string
		expiresAt     time.Time
		status        string
		requestedBy   string
		requestedAt   time.Time
		decidedBy     sql.NullString
		decidedAt     sql.NullTime
		decisionNote  sql.NullString
		createdAt     time.Time
		updatedAt     time.Time
	)

	err := scan(
		&idStr, &scope, &assetID, &cveID, &justification, &expiresAt,
		&status, &requestedBy, &requestedAt,
		&decidedBy, &decidedAt, &decisionNote,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	id, err := shared.IDFromString(idStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse request id: %w", err)
	}

	return exception.ReconstituteRequest(exception.RequestData{
		ID:            id,
		Scope:         exception.Scope(scope),
		AssetID:       parseNullID(assetID),
		CVEID:         cveID,
		Justification: justification,
		ExpiresAt:     expiresAt,
		Status:        exception.RequestStatus(status),
		RequestedBy:   requestedBy,
		RequestedAt:   requestedAt,
		DecidedBy:     nullStringPtrValue(decidedBy),
		DecidedAt:     nullTimeValue(decidedAt),
		DecisionNote:  nullStringValue(decisionNote),
		CreatedAt:     createdAt,
		UpdatedAt:     updatedAt,
	}), nil
}

func (r *ExceptionRepository) doScanException(scan func(dest ...any) error) (*exception.Exception, error) {
	var (
		idStr        string
		requestIDStr string
		scope        string
		assetID      sql.NullString
		cveID        string
		grantedBy    string
		expiresAt    time.Time
		createdAt    time.Time
	)

	err := scan(
		&idStr, &requestIDStr, &scope, &assetID, &cveID,
		&grantedBy, &expiresAt, &createdAt,
	)
	if err != nil {
		return nil, err
	}

	id, err := shared.IDFromString(idStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse exception id: %w", err)
	}
	requestID, err := shared.IDFromString(requestIDStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse request id: %w", err)
	}

	return exception.ReconstituteException(exception.ExceptionData{
		ID:        id,
		RequestID: requestID,
		Scope:     exception.Scope(scope),
		AssetID:   parseNullID(assetID),
		CVEID:     cveID,
		GrantedBy: grantedBy,
		ExpiresAt: expiresAt,
		CreatedAt: createdAt,
	}), nil
}

func (r *ExceptionRepository) collectExceptions(rows *sql.Rows) ([]*exception.Exception, error) {
	var exceptions []*exception.Exception
	for rows.Next() {
		ex, err := r.doScanException(rows.Scan)
		if err != nil {
			return nil, storageErr("failed to scan exception", err)
		}
		exceptions = append(exceptions, ex)
	}

	if err := rows.Err(); err != nil {
		return nil, storageErr("failed to iterate exceptions", err)
	}

	return exceptions, nil
}

func (r *ExceptionRepository) buildWhereClause(filter exception.RequestFilter) (string, []any) {
	var conditions []string
	var args []any
	argIndex := 1

	// Status filter
	if filter.Status != nil && *filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("r.status = $%d", argIndex))
		args = append(args, filter.Status.String())
		argIndex++
	}

	// Scope filter
	if filter.Scope != nil && *filter.Scope != "" {
		conditions = append(conditions, fmt.Sprintf("r.scope = $%d", argIndex))
		args = append(args, filter.Scope.String())
		argIndex++
	}

	// Requester filter (exact match)
	if filter.RequestedBy != nil && *filter.RequestedBy != "" {
		conditions = append(conditions, fmt.Sprintf("r.requested_by = $%d", argIndex))
		args = append(args, *filter.RequestedBy)
		argIndex++
	}

	// CVE filter (exact match on the canonical form)
	if filter.CVEID != nil && *filter.CVEID != "" {
		conditions = append(conditions, fmt.Sprintf("r.cve_id = $%d", argIndex))
		args = append(args, vulnerability.NormalizeCVEID(*filter.CVEID))
		argIndex++
	}

	// Covered asset filter
	if filter.AssetID != nil && !filter.AssetID.IsZero() {
		conditions = append(conditions, fmt.Sprintf("r.asset_id = $%d", argIndex))
		args = append(args, filter.AssetID.String())
		argIndex++
	}

	return strings.Join(conditions, " AND "), args
}
