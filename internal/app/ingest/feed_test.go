package ingest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vulntrack/api/pkg/domain/shared"
	"github.com/vulntrack/api/pkg/domain/vulnconfig"
	"github.com/vulntrack/api/pkg/domain/vulnerability"
)

// TestParseFeedSeverity tests mapping scanner severity cells onto tiers.
func TestParseFeedSeverity(t *testing.T) {
	testCases := []struct {
		name     string
		raw      string
		expected vulnerability.Severity
		score    float64
		hasScore bool
	}{
		{"score and label", "9.8 Critical", vulnerability.SeverityCritical, 9.8, true},
		{"label before score", "Low 2.1", vulnerability.SeverityLow, 2.1, true},
		{"bare label", "Critical", vulnerability.SeverityCritical, 0, false},
		{"bare critical score", "9.8", vulnerability.SeverityCritical, 9.8, true},
		{"bare high score", "7.5", vulnerability.SeverityHigh, 7.5, true},
		{"bare medium score", "5.0", vulnerability.SeverityMedium, 5.0, true},
		{"bare low score", "3.9", vulnerability.SeverityLow, 3.9, true},
		{"zero score", "0.0", vulnerability.SeverityLow, 0, true},
		{"label wins over score", "2.1 Critical", vulnerability.SeverityCritical, 2.1, true},
		{"unknown label with score", "9.8 Urgent", vulnerability.SeverityCritical, 9.8, true},
		{"unknown label without score", "Important", vulnerability.SeverityMedium, 0, false},
		{"empty cell", "", vulnerability.SeverityMedium, 0, false},
		{"whitespace only", "   ", vulnerability.SeverityMedium, 0, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			severity, score, hasScore := parseFeedSeverity(tc.raw)
			assert.Equal(t, tc.expected, severity)
			assert.Equal(t, tc.hasScore, hasScore)
			if tc.hasScore {
				assert.InDelta(t, tc.score, score, 0.001)
			}
		})
	}
}

// TestDiscoveryTime tests discovery timestamp derivation per import mode.
func TestDiscoveryTime(t *testing.T) {
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

	testCases := []struct {
		name     string
		row      VulnerabilityRow
		mode     vulnconfig.ImportMode
		expected time.Time
	}{
		{
			name:     "days open counted back from now",
			row:      VulnerabilityRow{DaysOpen: 30},
			mode:     vulnconfig.ImportModeDaysOpen,
			expected: now.AddDate(0, 0, -30),
		},
		{
			name:     "zero days open is now",
			row:      VulnerabilityRow{},
			mode:     vulnconfig.ImportModeDaysOpen,
			expected: now,
		},
		{
			name:     "negative days open clamps to now",
			row:      VulnerabilityRow{DaysOpen: -5},
			mode:     vulnconfig.ImportModeDaysOpen,
			expected: now,
		},
		{
			name:     "patch date ignored in days open mode",
			row:      VulnerabilityRow{DaysOpen: 10, PatchPublicationDate: "2026-01-15"},
			mode:     vulnconfig.ImportModeDaysOpen,
			expected: now.AddDate(0, 0, -10),
		},
		{
			name:     "patch date authoritative in patch mode",
			row:      VulnerabilityRow{DaysOpen: 10, PatchPublicationDate: "2026-01-15"},
			mode:     vulnconfig.ImportModePatchPublished,
			expected: time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC),
		},
		{
			name:     "rfc3339 patch date accepted",
			row:      VulnerabilityRow{PatchPublicationDate: "2026-01-15T10:30:00Z"},
			mode:     vulnconfig.ImportModePatchPublished,
			expected: time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC),
		},
		{
			name:     "unparseable patch date falls back to days open",
			row:      VulnerabilityRow{DaysOpen: 7, PatchPublicationDate: "01/15/2026"},
			mode:     vulnconfig.ImportModePatchPublished,
			expected: now.AddDate(0, 0, -7),
		},
		{
			name:     "missing patch date falls back to days open",
			row:      VulnerabilityRow{DaysOpen: 7},
			mode:     vulnconfig.ImportModePatchPublished,
			expected: now.AddDate(0, 0, -7),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, discoveryTime(tc.row, tc.mode, now))
		})
	}
}

// TestBuildVulnerabilities tests converting feed rows into entities.
func TestBuildVulnerabilities(t *testing.T) {
	assetID := shared.NewID()
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

	rows := []VulnerabilityRow{
		{CVE: "CVE-2024-0001", Severity: "9.8 Critical", DaysOpen: 3, ProductVersions: "openssl 3.0.1"},
		{CVE: "cve-2021-44228", Severity: "Critical", DaysOpen: 40},
		{CVE: "", Severity: "High"},
		{CVE: "GHSA-xxxx-yyyy", Severity: "High"},
		{CVE: "CVE-2023-9999", Severity: "Low", DaysOpen: 1},
	}

	vulns, skipped, warnings := buildVulnerabilities(assetID, "web01", rows, vulnconfig.ImportModeDaysOpen, now)

	require.Len(t, vulns, 3)
	assert.Equal(t, 2, skipped)
	assert.Empty(t, warnings)

	assert.Equal(t, "CVE-2024-0001", vulns[0].CVEID())
	assert.Equal(t, vulnerability.SeverityCritical, vulns[0].Severity())
	assert.Equal(t, "9.8 Critical", vulns[0].RawSeverity())
	assert.InDelta(t, 9.8, vulns[0].CVSSScore(), 0.001)
	assert.Equal(t, "openssl 3.0.1", vulns[0].ProductVersions())
	assert.Equal(t, now.AddDate(0, 0, -3), vulns[0].DiscoveredAt())

	// Lowercase ids are normalized before storage.
	assert.Equal(t, "CVE-2021-44228", vulns[1].CVEID())
	assert.Equal(t, "CVE-2023-9999", vulns[2].CVEID())
}

// TestBuildVulnerabilities_DuplicateCVE tests last-occurrence-wins within
// one asset entry.
func TestBuildVulnerabilities_DuplicateCVE(t *testing.T) {
	assetID := shared.NewID()
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

	rows := []VulnerabilityRow{
		{CVE: "CVE-2024-0001", Severity: "Low", DaysOpen: 1},
		{CVE: "CVE-2024-0002", Severity: "High", DaysOpen: 2},
		{CVE: "cve-2024-0001", Severity: "Critical", DaysOpen: 9},
	}

	vulns, skipped, warnings := buildVulnerabilities(assetID, "web01", rows, vulnconfig.ImportModeDaysOpen, now)

	require.Len(t, vulns, 2)
	assert.Equal(t, 0, skipped)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "CVE-2024-0001")

	// The duplicate keeps its original position but the last row's data.
	assert.Equal(t, "CVE-2024-0001", vulns[0].CVEID())
	assert.Equal(t, vulnerability.SeverityCritical, vulns[0].Severity())
	assert.Equal(t, now.AddDate(0, 0, -9), vulns[0].DiscoveredAt())
	assert.Equal(t, "CVE-2024-0002", vulns[1].CVEID())
}
