// Package vulnconfig holds the singleton service configuration: per-severity
// reminder thresholds consumed by overdue evaluation and the import-mode flag
// consumed by the importer when it derives discovery timestamps.
package vulnconfig

import (
	"fmt"
	"strings"
	"time"

	"github.com/vulntrack/api/pkg/domain/shared"
	"github.com/vulntrack/api/pkg/domain/vulnerability"
)

// ImportMode selects how the importer derives a row's discovery timestamp.
type ImportMode string

const (
	// ImportModeDaysOpen derives discovery as now minus the reported
	// days-open count.
	ImportModeDaysOpen ImportMode = "days_open"
	// ImportModePatchPublished uses the feed's patch publication date when a
	// row carries one, falling back to days-open otherwise.
	ImportModePatchPublished ImportMode = "patch_publication_date"
)

// IsValid checks if the import mode is valid.
func (m ImportMode) IsValid() bool {
	switch m {
	case ImportModeDaysOpen, ImportModePatchPublished:
		return true
	default:
		return false
	}
}

// String returns the string representation.
func (m ImportMode) String() string {
	return string(m)
}

// ParseImportMode parses an import mode, accepting hyphenated spellings.
func ParseImportMode(s string) (ImportMode, bool) {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
	mode := ImportMode(normalized)
	if !mode.IsValid() {
		return "", false
	}
	return mode, true
}

// Config is the singleton configuration record. Instances are immutable;
// updates replace the whole record.
type Config struct {
	criticalDays int
	highDays     int
	mediumDays   int
	lowDays      int
	importMode   ImportMode
	updatedBy    string
	updatedAt    time.Time
}

// NewConfig creates a configuration after validating every threshold.
func NewConfig(criticalDays, highDays, mediumDays, lowDays int, mode ImportMode, updatedBy string) (*Config, error) {
	if criticalDays < 1 || highDays < 1 || mediumDays < 1 || lowDays < 1 {
		return nil, fmt.Errorf("%w: reminder thresholds must be at least 1 day", shared.ErrValidation)
	}
	if !mode.IsValid() {
		return nil, fmt.Errorf("%w: invalid import mode %q", shared.ErrValidation, mode)
	}

	return &Config{
		criticalDays: criticalDays,
		highDays:     highDays,
		mediumDays:   mediumDays,
		lowDays:      lowDays,
		importMode:   mode,
		updatedBy:    strings.TrimSpace(updatedBy),
		updatedAt:    time.Now().UTC(),
	}, nil
}

// DefaultConfig returns the out-of-box configuration: every severity reminds
// after the default number of days and ages are derived from days-open.
func DefaultConfig() *Config {
	return &Config{
		criticalDays: vulnerability.DefaultReminderDays,
		highDays:     vulnerability.DefaultReminderDays,
		mediumDays:   vulnerability.DefaultReminderDays,
		lowDays:      vulnerability.DefaultReminderDays,
		importMode:   ImportModeDaysOpen,
		updatedAt:    time.Time{},
	}
}

// Data is used to reconstitute a Config from persistence.
type Data struct {
	CriticalDays int
	HighDays     int
	MediumDays   int
	LowDays      int
	ImportMode   ImportMode
	UpdatedBy    string
	UpdatedAt    time.Time
}

// Reconstitute recreates a Config from stored data.
func Reconstitute(data Data) *Config {
	return &Config{
		criticalDays: data.CriticalDays,
		highDays:     data.HighDays,
		mediumDays:   data.MediumDays,
		lowDays:      data.LowDays,
		importMode:   data.ImportMode,
		updatedBy:    data.UpdatedBy,
		updatedAt:    data.UpdatedAt,
	}
}

// Getters

func (c *Config) CriticalDays() int      { return c.criticalDays }
func (c *Config) HighDays() int          { return c.highDays }
func (c *Config) MediumDays() int        { return c.mediumDays }
func (c *Config) LowDays() int           { return c.lowDays }
func (c *Config) ImportMode() ImportMode { return c.importMode }
func (c *Config) UpdatedBy() string      { return c.updatedBy }
func (c *Config) UpdatedAt() time.Time   { return c.updatedAt }

// DaysForSeverity returns the reminder threshold for a severity. Unknown
// severities fall back to the default so evaluation never divides by a
// missing threshold.
func (c *Config) DaysForSeverity(severity vulnerability.Severity) int {
	switch severity {
	case vulnerability.SeverityCritical:
		return c.criticalDays
	case vulnerability.SeverityHigh:
		return c.highDays
	case vulnerability.SeverityMedium:
		return c.mediumDays
	case vulnerability.SeverityLow:
		return c.lowDays
	default:
		return vulnerability.DefaultReminderDays
	}
}

var _ vulnerability.Thresholds = (*Config)(nil)
