package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/vulntrack/api/pkg/domain/asset"
	"github.com/vulntrack/api/pkg/domain/shared"
	"github.com/vulntrack/api/pkg/domain/vulnerability"
)

// vulnInsertColumns is the column count of one vulnerability row; chunk
// sizing keeps multi-row inserts under the lib/pq limit of 65535 bind
// parameters per statement.
const (
	vulnInsertColumns = 10
	vulnInsertChunk   = 1000
)

// ReconcileStore persists the importer's per-asset reconciliation. The asset
// upsert, prior-set capture, delete and bulk insert share one transaction so
// a failure leaves the asset's stored state untouched.
type ReconcileStore struct {
	db *DB
}

// NewReconcileStore creates a new ReconcileStore.
func NewReconcileStore(db *DB) *ReconcileStore {
	return &ReconcileStore{db: db}
}

// ReconcileAsset replaces an asset's stored vulnerability set and upserts the
// asset row. It returns the CVE IDs stored before the replace so the caller
// can derive remediations.
func (s *ReconcileStore) ReconcileAsset(
	ctx context.Context,
	a *asset.Asset,
	isNew bool,
	vulns []*vulnerability.Vulnerability,
) ([]string, error) {
	var priorCVEs []string

	err := s.db.Transaction(ctx, func(tx *sql.Tx) error {
		if isNew {
			if err := s.insertAsset(ctx, tx, a); err != nil {
				return err
			}
		} else if err := s.updateAsset(ctx, tx, a); err != nil {
			return err
		}

		var err error
		priorCVEs, err = s.storedCVEs(ctx, tx, a.ID())
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM vulnerabilities WHERE asset_id = $1`, a.ID().String()); err != nil {
			return storageErr("failed to clear vulnerabilities", err)
		}

		return s.insertVulnerabilities(ctx, tx, vulns)
	})
	if err != nil {
		return nil, err
	}

	return priorCVEs, nil
}

func (s *ReconcileStore) insertAsset(ctx context.Context, tx *sql.Tx, a *asset.Asset) error {
	query := `
		INSERT INTO assets (
			id, hostname, owner, local_ip, host_groups,
			cloud_account_id, cloud_instance_id, os_version, ad_domain,
			created_at, updated_at, last_seen_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := tx.ExecContext(ctx, query,
		a.ID().String(),
		a.Hostname(),
		nullString(a.Owner()),
		nullString(a.LocalIP()),
		pq.Array(a.HostGroups()),
		nullString(a.CloudAccountID()),
		nullString(a.CloudInstanceID()),
		nullString(a.OSVersion()),
		nullString(a.ADDomain()),
		a.CreatedAt(),
		a.UpdatedAt(),
		a.LastSeenAt(),
	)

	if err != nil {
		if isUniqueViolation(err) {
			return asset.AlreadyExistsError(a.Hostname())
		}
		return storageErr("failed to create asset", err)
	}

	return nil
}

func (s *ReconcileStore) updateAsset(ctx context.Context, tx *sql.Tx, a *asset.Asset) error {
	query := `
		UPDATE assets
		SET owner = $2, local_ip = $3, host_groups = $4,
		    cloud_account_id = $5, cloud_instance_id = $6, os_version = $7, ad_domain = $8,
		    updated_at = $9, last_seen_at = $10
		WHERE id = $1
	`

	result, err := tx.ExecContext(ctx, query,
		a.ID().String(),
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

func (s *ReconcileStore) storedCVEs(ctx context.Context, tx *sql.Tx, assetID shared.ID) ([]string, error) {
	rows, err := tx.QueryContext(ctx, `SELECT cve_id FROM vulnerabilities WHERE asset_id = $1`, assetID.String())
	if err != nil {
		return nil, storageErr("failed to read stored cves", err)
	}
	defer rows.Close()

	var cves []string
	for rows.Next() {
		var cve string
		if err := rows.Scan(&cve); err != nil {
			return nil, storageErr("failed to scan stored cve", err)
		}
		cves = append(cves, cve)
	}

	if err := rows.Err(); err != nil {
		return nil, storageErr("failed to iterate stored cves", err)
	}

	return cves, nil
}

func (s *ReconcileStore) insertVulnerabilities(ctx context.Context, tx *sql.Tx, vulns []*vulnerability.Vulnerability) error {
	for start := 0; start < len(vulns); start += vulnInsertChunk {
		end := start + vulnInsertChunk
		if end > len(vulns) {
			end = len(vulns)
		}
		if err := s.insertVulnerabilityChunk(ctx, tx, vulns[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (s *ReconcileStore) insertVulnerabilityChunk(ctx context.Context, tx *sql.Tx, vulns []*vulnerability.Vulnerability) error {
	if len(vulns) == 0 {
		return nil
	}

	valueStrings := make([]string, 0, len(vulns))
	valueArgs := make([]any, 0, len(vulns)*vulnInsertColumns)
	argIndex := 1

	for _, v := range vulns {
		placeholders := make([]string, vulnInsertColumns)
		for i := 0; i < vulnInsertColumns; i++ {
			placeholders[i] = fmt.Sprintf("$%d", argIndex+i)
		}
		valueStrings = append(valueStrings, "("+strings.Join(placeholders, ", ")+")")

		valueArgs = append(valueArgs,
			v.ID().String(),
			v.AssetID().String(),
			v.CVEID(),
			v.Severity().String(),
			v.CVSSScore(),
			nullString(v.RawSeverity()),
			nullString(v.ProductVersions()),
			v.DiscoveredAt(),
			nullTime(v.PatchPublishedAt()),
			v.CreatedAt(),
		)

		argIndex += vulnInsertColumns
	}

	query := `
		INSERT INTO vulnerabilities (
			id, asset_id, cve_id, severity, cvss_score,
			raw_severity, product_versions,
			discovered_at, patch_published_at, created_at
		)
		VALUES ` + strings.Join(valueStrings, ", ")

	if _, err := tx.ExecContext(ctx, query, valueArgs...); err != nil {
		return storageErr("failed to insert vulnerabilities", err)
	}

	return nil
}
