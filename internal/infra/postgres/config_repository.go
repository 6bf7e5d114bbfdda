package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vulntrack/api/pkg/domain/shared"
	"github.com/vulntrack/api/pkg/domain/vulnconfig"
)

// ConfigRepository implements vulnconfig.Repository using PostgreSQL. The
// configuration is a single row; the table's check constraint keeps it that
// way.
type ConfigRepository struct {
	db *DB
}

// NewConfigRepository creates a new ConfigRepository.
func NewConfigRepository(db *DB) *ConfigRepository {
	return &ConfigRepository{db: db}
}

// Get returns the stored configuration. Before the first write it returns
// an error unwrapping to shared.ErrNotFound.
func (r *ConfigRepository) Get(ctx context.Context) (*vulnconfig.Config, error) {
	query := `
		SELECT critical_days, high_days, medium_days, low_days,
			   import_mode, updated_by, updated_at
		FROM vuln_config
		WHERE id = 1
	`

	var (
		criticalDays int
		highDays     int
		mediumDays   int
		lowDays      int
		importMode   string
		updatedBy    sql.NullString
		updatedAt    time.Time
	)

	err := r.db.QueryRowContext(ctx, query).Scan(
		&criticalDays, &highDays, &mediumDays, &lowDays,
		&importMode, &updatedBy, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: vulnerability configuration not set", shared.ErrNotFound)
		}
		return nil, storageErr("failed to scan configuration", err)
	}

	return vulnconfig.Reconstitute(vulnconfig.Data{
		CriticalDays: criticalDays,
		HighDays:     highDays,
		MediumDays:   mediumDays,
		LowDays:      lowDays,
		ImportMode:   vulnconfig.ImportMode(importMode),
		UpdatedBy:    nullStringValue(updatedBy),
		UpdatedAt:    updatedAt,
	}), nil
}

// Save upserts the singleton row.
func (r *ConfigRepository) Save(ctx context.Context, cfg *vulnconfig.Config) error {
	query := `
		INSERT INTO vuln_config (
			id, critical_days, high_days, medium_days, low_days,
			import_mode, updated_by, updated_at
		)
		VALUES (1, $1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE
		SET critical_days = EXCLUDED.critical_days,
		    high_days = EXCLUDED.high_days,
		    medium_days = EXCLUDED.medium_days,
		    low_days = EXCLUDED.low_days,
		    import_mode = EXCLUDED.import_mode,
		    updated_by = EXCLUDED.updated_by,
		    updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.ExecContext(ctx, query,
		cfg.CriticalDays(),
		cfg.HighDays(),
		cfg.MediumDays(),
		cfg.LowDays(),
		cfg.ImportMode().String(),
		nullString(cfg.UpdatedBy()),
		cfg.UpdatedAt(),
	)
	if err != nil {
		return storageErr("failed to save configuration", err)
	}

	return nil
}

// RecordAudit records a configuration change.
func (r *ConfigRepository) RecordAudit(ctx context.Context, actor string, details map[string]any) error {
	detailsJSON, err := toJSONB(details)
	if err != nil {
		return fmt.Errorf("failed to marshal audit details: %w", err)
	}

	query := `
		INSERT INTO audit_log (entity_type, entity_id, action, actor, details)
		VALUES ('vuln_config', '1', 'updated', $1, $2)
	`

	if _, err := r.db.ExecContext(ctx, query, actor, detailsJSON); err != nil {
		return storageErr("failed to record audit entry", err)
	}

	return nil
}
