package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vulntrack/api/pkg/domain/shared"
	"github.com/vulntrack/api/pkg/domain/vulnerability"
	"github.com/vulntrack/api/pkg/pagination"
)

// Default sort order for vulnerabilities
const vulnDefaultSortOrder = "discovered_at DESC"

// severityRankSQL orders severities by rank rather than alphabetically.
const severityRankSQL = "CASE v.severity WHEN 'critical' THEN 4 WHEN 'high' THEN 3 WHEN 'medium' THEN 2 ELSE 1 END"

// VulnerabilityRepository implements vulnerability.Repository using PostgreSQL.
type VulnerabilityRepository struct {
	db *DB
}

// NewVulnerabilityRepository creates a new VulnerabilityRepository.
func NewVulnerabilityRepository(db *DB) *VulnerabilityRepository {
	return &VulnerabilityRepository{db: db}
}

// GetByID retrieves a vulnerability by its ID.
func (r *VulnerabilityRepository) GetByID(ctx context.Context, id shared.ID) (*vulnerability.Vulnerability, error) {
	query := r.selectQuery() + " WHERE v.id = $1"

	row := r.db.QueryRowContext(ctx, query, id.String())
	v, err := r.doScan(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, vulnerability.NotFoundError(id)
		}
		return nil, storageErr("failed to scan vulnerability", err)
	}
	return v, nil
}

// ListByAsset returns the full vulnerability set of one asset, most severe
// first.
func (r *VulnerabilityRepository) ListByAsset(ctx context.Context, assetID shared.ID) ([]*vulnerability.Vulnerability, error) {
	query := r.selectQuery() + " WHERE v.asset_id = $1 ORDER BY " + severityRankSQL + " DESC, v.cve_id"

	rows, err := r.db.QueryContext(ctx, query, assetID.String())
	if err != nil {
		return nil, storageErr("failed to query vulnerabilities", err)
	}
	defer rows.Close()

	var vulns []*vulnerability.Vulnerability
	for rows.Next() {
		v, err := r.doScan(rows.Scan)
		if err != nil {
			return nil, storageErr("failed to scan vulnerability", err)
		}
		vulns = append(vulns, v)
	}

	if err := rows.Err(); err != nil {
		return nil, storageErr("failed to iterate vulnerabilities", err)
	}

	return vulns, nil
}

// List retrieves vulnerabilities with filtering, sorting, and pagination.
func (r *VulnerabilityRepository) List(
	ctx context.Context,
	filter vulnerability.Filter,
	page pagination.Pagination,
	sort *pagination.SortOption,
) ([]*vulnerability.Vulnerability, int64, error) {
	baseQuery := r.selectQuery()
	countQuery := `SELECT COUNT(*) FROM vulnerabilities v`

	whereClause, args := r.buildWhereClause(filter)

	if whereClause != "" {
		baseQuery += " WHERE " + whereClause
		countQuery += " WHERE " + whereClause
	}

	// Apply sorting (default to discovered_at DESC)
	orderBy := vulnDefaultSortOrder
	if sort != nil && !sort.IsEmpty() {
		orderBy = sort.SQLWithDefault(vulnDefaultSortOrder)
	}
	baseQuery += " ORDER BY " + orderBy
	baseQuery += fmt.Sprintf(" LIMIT %d OFFSET %d", page.Limit(), page.Offset())

	var total int64
	err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total)
	if err != nil {
		return nil, 0, storageErr("failed to count vulnerabilities", err)
	}

	rows, err := r.db.QueryContext(ctx, baseQuery, args...)
	if err != nil {
		return nil, 0, storageErr("failed to query vulnerabilities", err)
	}
	defer rows.Close()

	var vulns []*vulnerability.Vulnerability
	for rows.Next() {
		v, err := r.doScan(rows.Scan)
		if err != nil {
			return nil, 0, storageErr("failed to scan vulnerability", err)
		}
		vulns = append(vulns, v)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, storageErr("failed to iterate vulnerabilities", err)
	}

	return vulns, total, nil
}

// DeleteByAsset removes all vulnerability rows for an asset and returns the
// number of rows removed.
func (r *VulnerabilityRepository) DeleteByAsset(ctx context.Context, assetID shared.ID) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM vulnerabilities WHERE asset_id = $1`, assetID.String())
	if err != nil {
		return 0, storageErr("failed to delete vulnerabilities", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, storageErr("failed to get rows affected", err)
	}

	return rowsAffected, nil
}

// Helper methods

func (r *VulnerabilityRepository) selectQuery() string {
	return `
		SELECT v.id, v.asset_id, v.cve_id, v.severity, v.cvss_score,
			   v.raw_severity, v.product_versions,
			   v.discovered_at, v.patch_published_at, v.created_at
		FROM vulnerabilities v
	`
}

func (r *VulnerabilityRepository) doScan(scan func(dest ...any) error) (*vulnerability.Vulnerability, error) {
	var (
		idStr            string
		assetIDStr       string
		cveID            string
		severity         string
		cvssScore        float64
		rawSeverity      sql.NullString
		productVersions  sql.NullString
		discoveredAt     time.Time
		patchPublishedAt sql.NullTime
		createdAt        time.Time
	)

	err := scan(
		&idStr, &assetIDStr, &cveID, &severity, &cvssScore,
		&rawSeverity, &productVersions,
		&discoveredAt, &patchPublishedAt, &createdAt,
	)
	if err != nil {
		return nil, err
	}

	id, err := shared.IDFromString(idStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse vulnerability id: %w", err)
	}
	assetID, err := shared.IDFromString(assetIDStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse asset id: %w", err)
	}

	return vulnerability.Reconstitute(vulnerability.Data{
		ID:               id,
		AssetID:          assetID,
		CVEID:            cveID,
		Severity:         vulnerability.Severity(severity),
		CVSSScore:        cvssScore,
		RawSeverity:      nullStringValue(rawSeverity),
		ProductVersions:  nullStringValue(productVersions),
		DiscoveredAt:     discoveredAt,
		PatchPublishedAt: nullTimeValue(patchPublishedAt),
		CreatedAt:        createdAt,
	}), nil
}

func (r *VulnerabilityRepository) buildWhereClause(filter vulnerability.Filter) (string, []any) {
	var conditions []string
	var args []any
	argIndex := 1

	// Asset filter
	if filter.AssetID != nil && !filter.AssetID.IsZero() {
		conditions = append(conditions, fmt.Sprintf("v.asset_id = $%d", argIndex))
		args = append(args, filter.AssetID.String())
		argIndex++
	}

	// CVE filter (exact match on the canonical form)
	if filter.CVEID != nil && *filter.CVEID != "" {
		conditions = append(conditions, fmt.Sprintf("v.cve_id = $%d", argIndex))
		args = append(args, vulnerability.NormalizeCVEID(*filter.CVEID))
		argIndex++
	}

	// Severity filter (exact match)
	if filter.Severity != nil && *filter.Severity != "" {
		conditions = append(conditions, fmt.Sprintf("v.severity = $%d", argIndex))
		args = append(args, filter.Severity.String())
		argIndex++
	}

	// Minimum severity filter (by rank)
	if filter.MinSeverity != nil && *filter.MinSeverity != "" {
		conditions = append(conditions, fmt.Sprintf(severityRankSQL+" >= $%d", argIndex))
		args = append(args, filter.MinSeverity.Rank())
		argIndex++
	}

	// Evaluated status filter
	if filter.Status != nil {
		cond, statusArgs := statusCondition(filter.Status, argIndex)
		conditions = append(conditions, cond)
		args = append(args, statusArgs...)
		argIndex += len(statusArgs)
	}

	return strings.Join(conditions, " AND "), args
}

// statusCondition renders the status evaluation rule as SQL so status
// filtering happens in the database instead of post-filtering pages. It
// mirrors vulnerability.EvaluateStatus: an unexpired covering exception wins
// outright, otherwise the age in whole days is compared against the
// per-severity threshold.
func statusCondition(f *vulnerability.StatusFilter, argIndex int) (string, []any) {
	covered := fmt.Sprintf(`EXISTS (
		SELECT 1 FROM exceptions e
		WHERE e.cve_id = v.cve_id
		AND e.expires_at > $%d
		AND (e.scope = 'cve_pattern' OR e.asset_id = v.asset_id)
	)`, argIndex)

	overdue := fmt.Sprintf(
		"floor(extract(epoch FROM ($%d::timestamptz - v.discovered_at)) / 86400) > (CASE v.severity WHEN 'critical' THEN $%d WHEN 'high' THEN $%d WHEN 'medium' THEN $%d ELSE $%d END)",
		argIndex, argIndex+1, argIndex+2, argIndex+3, argIndex+4,
	)

	args := []any{f.Now, f.CriticalDays, f.HighDays, f.MediumDays, f.LowDays}

	switch f.Status {
	case vulnerability.StatusExcepted:
		return covered, []any{f.Now}
	case vulnerability.StatusOverdue:
		return "(NOT " + covered + " AND " + overdue + ")", args
	default:
		return "(NOT " + covered + " AND NOT (" + overdue + "))", args
	}
}
