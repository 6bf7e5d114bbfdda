package vulnconfig

import "context"

// Repository defines persistence for the singleton configuration row.
type Repository interface {
	// Get returns the stored configuration. Before the first write it
	// returns an error unwrapping to shared.ErrNotFound; callers fall back
	// to DefaultConfig.
	Get(ctx context.Context) (*Config, error)

	// Save upserts the singleton row.
	Save(ctx context.Context, cfg *Config) error

	// RecordAudit records a configuration change.
	RecordAudit(ctx context.Context, actor string, details map[string]any) error
}
