// Package vulnerability provides the vulnerability domain model and the
// overdue status evaluation rules.
package vulnerability

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/vulntrack/api/pkg/domain/shared"
)

// Severity classifies a vulnerability, ordered LOW < MEDIUM < HIGH < CRITICAL.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// IsValid checks if the severity is valid.
func (s Severity) IsValid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	default:
		return false
	}
}

// String returns the string representation.
func (s Severity) String() string {
	return string(s)
}

// Rank returns the ordering position: LOW=1 .. CRITICAL=4.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

// ParseSeverity parses a severity label case-insensitively.
func ParseSeverity(s string) (Severity, error) {
	sev := Severity(strings.ToLower(strings.TrimSpace(s)))
	if !sev.IsValid() {
		return "", fmt.Errorf("%w: invalid severity %q", shared.ErrValidation, s)
	}
	return sev, nil
}

// SeverityFromScore maps a CVSS base score onto a severity using the
// standard CVSS v3 bands.
func SeverityFromScore(score float64) Severity {
	switch {
	case score >= 9.0:
		return SeverityCritical
	case score >= 7.0:
		return SeverityHigh
	case score >= 4.0:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// cveIDRegex validates CVE IDs: CVE-YYYY-NNNN (4+ digits).
var cveIDRegex = regexp.MustCompile(`^CVE-\d{4}-\d{4,}$`)

// IsValidCVEID reports whether s is a well-formed CVE identifier.
func IsValidCVEID(s string) bool {
	return cveIDRegex.MatchString(s)
}

// NormalizeCVEID returns the canonical uppercase form of a CVE identifier.
func NormalizeCVEID(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// Vulnerability represents one CVE observed on one asset. The importer owns
// the full set per asset and replaces it wholesale on every import; rows are
// never patched in place.
type Vulnerability struct {
	id               shared.ID
	assetID          shared.ID
	cveID            string
	severity         Severity
	cvssScore        float64
	rawSeverity      string
	productVersions  string
	discoveredAt     time.Time
	patchPublishedAt *time.Time
	createdAt        time.Time
}

// NewVulnerability creates a new Vulnerability.
// discoveredAt is the computed first-observation date, not the import time.
func NewVulnerability(assetID shared.ID, cveID string, severity Severity, discoveredAt time.Time) (*Vulnerability, error) {
	if assetID.IsZero() {
		return nil, fmt.Errorf("%w: asset id is required", shared.ErrValidation)
	}
	cveID = NormalizeCVEID(cveID)
	if cveID == "" {
		return nil, fmt.Errorf("%w: cve id is required", shared.ErrValidation)
	}
	if !IsValidCVEID(cveID) {
		return nil, fmt.Errorf("%w: malformed cve id %q", shared.ErrValidation, cveID)
	}
	if !severity.IsValid() {
		return nil, fmt.Errorf("%w: invalid severity %q", shared.ErrValidation, severity)
	}
	if discoveredAt.IsZero() {
		return nil, fmt.Errorf("%w: discovery timestamp is required", shared.ErrValidation)
	}

	return &Vulnerability{
		id:           shared.NewID(),
		assetID:      assetID,
		cveID:        cveID,
		severity:     severity,
		discoveredAt: discoveredAt.UTC(),
		createdAt:    time.Now().UTC(),
	}, nil
}

// Data holds the raw fields needed to reconstitute a Vulnerability.
type Data struct {
	ID               shared.ID
	AssetID          shared.ID
	CVEID            string
	Severity         Severity
	CVSSScore        float64
	RawSeverity      string
	ProductVersions  string
	DiscoveredAt     time.Time
	PatchPublishedAt *time.Time
	CreatedAt        time.Time
}

// Reconstitute recreates a Vulnerability from persistence.
func Reconstitute(data Data) *Vulnerability {
	return &Vulnerability{
		id:               data.ID,
		assetID:          data.AssetID,
		cveID:            data.CVEID,
		severity:         data.Severity,
		cvssScore:        data.CVSSScore,
		rawSeverity:      data.RawSeverity,
		productVersions:  data.ProductVersions,
		discoveredAt:     data.DiscoveredAt,
		patchPublishedAt: data.PatchPublishedAt,
		createdAt:        data.CreatedAt,
	}
}

// Getters

func (v *Vulnerability) ID() shared.ID          { return v.id }
func (v *Vulnerability) AssetID() shared.ID     { return v.assetID }
func (v *Vulnerability) CVEID() string          { return v.cveID }
func (v *Vulnerability) Severity() Severity     { return v.severity }
func (v *Vulnerability) CVSSScore() float64     { return v.cvssScore }
func (v *Vulnerability) RawSeverity() string    { return v.rawSeverity }
func (v *Vulnerability) ProductVersions() string { return v.productVersions }
func (v *Vulnerability) DiscoveredAt() time.Time { return v.discoveredAt }
func (v *Vulnerability) CreatedAt() time.Time   { return v.createdAt }

// PatchPublishedAt returns the patch publication date, nil if unknown.
func (v *Vulnerability) PatchPublishedAt() *time.Time {
	if v.patchPublishedAt == nil {
		return nil
	}
	t := *v.patchPublishedAt
	return &t
}

// Pre-persistence setters used by the importer while building a row.

func (v *Vulnerability) SetCVSSScore(score float64) {
	if score < 0 {
		score = 0
	}
	if score > 10 {
		score = 10
	}
	v.cvssScore = score
}

func (v *Vulnerability) SetRawSeverity(raw string) {
	v.rawSeverity = strings.TrimSpace(raw)
}

func (v *Vulnerability) SetProductVersions(versions string) {
	v.productVersions = strings.TrimSpace(versions)
}

func (v *Vulnerability) SetPatchPublishedAt(t time.Time) {
	utc := t.UTC()
	v.patchPublishedAt = &utc
}

// AgeDays returns the floor of the elapsed duration since discovery in whole
// days. A vulnerability discovered less than 24 hours ago has age 0; future
// discovery timestamps clamp to 0.
func (v *Vulnerability) AgeDays(now time.Time) int {
	if now.Before(v.discoveredAt) {
		return 0
	}
	return int(now.Sub(v.discoveredAt).Hours() / 24)
}
