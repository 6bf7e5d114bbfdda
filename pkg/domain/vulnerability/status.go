package vulnerability

import (
	"time"

	"github.com/vulntrack/api/pkg/domain/shared"
)

// Status is the compliance status of a vulnerability at evaluation time.
type Status string

const (
	StatusOK       Status = "OK"
	StatusOverdue  Status = "OVERDUE"
	StatusExcepted Status = "EXCEPTED"
)

// DefaultReminderDays is the threshold applied when no configured value
// exists for a severity.
const DefaultReminderDays = 30

// Thresholds supplies the per-severity reminder threshold in days.
// Implemented by the vulnerability config; a nil Thresholds means defaults.
type Thresholds interface {
	DaysForSeverity(severity Severity) int
}

// ExceptionCheck is the evaluator's view of an active exception. Implemented
// by the exception domain; defined here so evaluation stays free of a
// dependency on the exception package.
type ExceptionCheck interface {
	// Covers reports whether the exception applies to the given CVE on the
	// given asset (single scope: exact asset and CVE; pattern scope: the CVE
	// on any asset).
	Covers(assetID shared.ID, cveID string) bool

	// ExpiresAt returns the exception's expiration date.
	ExpiresAt() time.Time
}

// EvaluateStatus derives the compliance status of a vulnerability. Pure and
// read-only: it consults only its arguments.
//
// An unexpired exception covering the vulnerability wins outright, however
// overdue the vulnerability would otherwise be. Otherwise the age in whole
// days is compared against the severity threshold; age exactly at the
// threshold is still OK, one day past is OVERDUE.
func EvaluateStatus(v *Vulnerability, cfg Thresholds, exceptions []ExceptionCheck, now time.Time) Status {
	for _, ex := range exceptions {
		if ex == nil {
			continue
		}
		if ex.ExpiresAt().After(now) && ex.Covers(v.assetID, v.cveID) {
			return StatusExcepted
		}
	}

	threshold := DefaultReminderDays
	if cfg != nil {
		if days := cfg.DaysForSeverity(v.severity); days > 0 {
			threshold = days
		}
	}

	if v.AgeDays(now) > threshold {
		return StatusOverdue
	}
	return StatusOK
}
