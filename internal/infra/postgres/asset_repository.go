package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/vulntrack/api/pkg/domain/asset"
	"github.com/vulntrack/api/pkg/domain/shared"
	"github.com/vulntrack/api/pkg/pagination"
)

// Default sort order for assets
const defaultSortOrder = "created_at DESC"

// AssetRepository implements asset.Repository using PostgreSQL.
type AssetRepository struct {
	db *DB
}

// NewAssetRepository creates a new AssetRepository.
func NewAssetRepository(db *DB) *AssetRepository {
	return &AssetRepository{db: db}
}

// Update updates an existing asset.
func (r *AssetRepository) Update(ctx context.Context, a *asset.Asset) error {
	query := `
		UPDATE assets
		SET hostname = $2, owner = $3, local_ip = $4, host_groups = $5,
		    cloud_account_id = $6, cloud_instance_id = $7, os_version = $8, ad_domain = $9,
		    updated_at = $10, last_seen_at = $11
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		a.ID().String(),
		a.Hostname(),
		nullString(a.Owner()),
		nullString(a.LocalIP()),
		pq.Array(a.HostGroups()),
		nullString(a.CloudAccountID()),
		nullString(a.CloudInstanceID()),
		nullString(a.OSVersion()),
		nullString(a.ADDomain()),
		a.UpdatedAt(),
		a.LastSeenAt(),
	)

	if err != nil {
		return storageErr("failed to update asset", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return storageErr("failed to get rows affected", err)
	}

	if rowsAffected == 0 {
		return asset.NotFoundError(a.ID())
	}

	return nil
}

// GetByID retrieves an asset by its ID.
func (r *AssetRepository) GetByID(ctx context.Context, id shared.ID) (*asset.Asset, error) {
	query := r.selectQuery() + " WHERE a.id = $1"

	row := r.db.QueryRowContext(ctx, query, id.String())
	a, err := r.scanAsset(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, asset.NotFoundError(id)
		}
		return nil, err
	}
	return a, nil
}

// GetByHostname retrieves an asset by hostname, case-insensitively.
func (r *AssetRepository) GetByHostname(ctx context.Context, hostname string) (*asset.Asset, error) {
	query := r.selectQuery() + " WHERE lower(a.hostname) = $1"

	row := r.db.QueryRowContext(ctx, query, asset.NormalizeHostname(hostname))
	a, err := r.scanAsset(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, asset.NotFoundByHostnameError(hostname)
		}
		return nil, err
	}
	return a, nil
}

// List retrieves assets with filtering, sorting, and pagination.
func (r *AssetRepository) List(
	ctx context.Context,
	filter asset.Filter,
	page pagination.Pagination,
	sort *pagination.SortOption,
) ([]*asset.Asset, int64, error) {
	baseQuery := r.selectQuery()
	countQuery := `SELECT COUNT(*) FROM assets a`

	whereClause, args := r.buildWhereClause(filter)

	if whereClause != "" {
		baseQuery += " WHERE " + whereClause
		countQuery += " WHERE " + whereClause
	}

	// Apply sorting (default to created_at DESC)
	orderBy := defaultSortOrder
	if sort != nil && !sort.IsEmpty() {
		orderBy = sort.SQLWithDefault(defaultSortOrder)
	}
	baseQuery += " ORDER BY " + orderBy
	baseQuery += fmt.Sprintf(" LIMIT %d OFFSET %d", page.Limit(), page.Offset())

	var total int64
	err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total)
	if err != nil {
		return nil, 0, storageErr("failed to count assets", err)
	}

	rows, err := r.db.QueryContext(ctx, baseQuery, args...)
	if err != nil {
		return nil, 0, storageErr("failed to query assets", err)
	}
	defer rows.Close()

	var assets []*asset.Asset
	for rows.Next() {
		a, err := r.scanAssetFromRows(rows)
		if err != nil {
			return nil, 0, err
		}
		assets = append(assets, a)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, storageErr("failed to iterate assets", err)
	}

	return assets, total, nil
}

// Delete removes an asset by its ID. Vulnerability rows must be removed
// first through the importer's delete-by-asset operation.
func (r *AssetRepository) Delete(ctx context.Context, id shared.ID) error {
	query := `DELETE FROM assets WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id.String())
	if err != nil {
		return storageErr("failed to delete asset", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return storageErr("failed to get rows affected", err)
	}

	if rowsAffected == 0 {
		return asset.NotFoundError(id)
	}

	return nil
}

// Helper methods

func (r *AssetRepository) selectQuery() string {
	return `
		SELECT a.id, a.hostname, a.owner, a.local_ip, a.host_groups,
			   a.cloud_account_id, a.cloud_instance_id, a.os_version, a.ad_domain,
			   a.created_at, a.updated_at, a.last_seen_at
		FROM assets a
	`
}

func (r *AssetRepository) scanAsset(row *sql.Row) (*asset.Asset, error) {
	a, err := r.doScan(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, storageErr("failed to scan asset", err)
	}
	return a, nil
}

func (r *AssetRepository) scanAssetFromRows(rows *sql.Rows) (*asset.Asset, error) {
	return r.doScan(rows.Scan)
}

func (r *AssetRepository) doScan(scan func(dest ...any) error) (*asset.Asset, error) {
	var (
		idStr           string
		hostname        string
		owner           sql.NullString
		localIP         sql.NullString
		hostGroups      pq.StringArray
		cloudAccountID  sql.NullString
		cloudInstanceID sql.NullString
		osVersion       sql.NullString
		adDomain        sql.NullString
		createdAt       time.Time
		updatedAt       time.Time
		lastSeenAt      time.Time
	)

	err := scan(
		&idStr, &hostname, &owner, &localIP, &hostGroups,
		&cloudAccountID, &cloudInstanceID, &osVersion, &adDomain,
		&createdAt, &updatedAt, &lastSeenAt,
	)
	if err != nil {
		return nil, err
	}

	id, err := shared.IDFromString(idStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse asset id: %w", err)
	}

	return asset.Reconstitute(asset.Data{
		ID:              id,
		Hostname:        hostname,
		Owner:           nullStringValue(owner),
		LocalIP:         nullStringValue(localIP),
		HostGroups:      []string(hostGroups),
		CloudAccountID:  nullStringValue(cloudAccountID),
		CloudInstanceID: nullStringValue(cloudInstanceID),
		OSVersion:       nullStringValue(osVersion),
		ADDomain:        nullStringValue(adDomain),
		CreatedAt:       createdAt,
		UpdatedAt:       updatedAt,
		LastSeenAt:      lastSeenAt,
	}), nil
}

func (r *AssetRepository) buildWhereClause(filter asset.Filter) (string, []any) {
	var conditions []string
	var args []any
	argIndex := 1

	// Hostname filter (partial match)
	if filter.Hostname != nil && *filter.Hostname != "" {
		conditions = append(conditions, fmt.Sprintf("a.hostname ILIKE $%d", argIndex))
		args = append(args, wrapLikePattern(*filter.Hostname))
		argIndex++
	}

	// Owner filter (exact match)
	if filter.Owner != nil && *filter.Owner != "" {
		conditions = append(conditions, fmt.Sprintf("a.owner = $%d", argIndex))
		args = append(args, *filter.Owner)
		argIndex++
	}

	// Host group membership filter
	if filter.HostGroup != nil && *filter.HostGroup != "" {
		conditions = append(conditions, fmt.Sprintf("$%d = ANY(a.host_groups)", argIndex))
		args = append(args, *filter.HostGroup)
		argIndex++
	}

	// AD domain filter (exact match)
	if filter.ADDomain != nil && *filter.ADDomain != "" {
		conditions = append(conditions, fmt.Sprintf("a.ad_domain = $%d", argIndex))
		args = append(args, *filter.ADDomain)
		argIndex++
	}

	return strings.Join(conditions, " AND "), args
}
