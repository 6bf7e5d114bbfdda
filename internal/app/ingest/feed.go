package ingest

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/vulntrack/api/pkg/domain/shared"
	"github.com/vulntrack/api/pkg/domain/vulnconfig"
	"github.com/vulntrack/api/pkg/domain/vulnerability"
)

// =============================================================================
// Severity Parsing
// =============================================================================

// parseFeedSeverity maps a scanner severity cell onto a severity tier and
// extracts the CVSS score when one is present. Cells combine a score and a
// label in either order ("9.8 Critical", "Critical", "9.8"). A
// recognizable label wins over the score; a bare score falls back to CVSS
// bands; anything else lands on medium.
func parseFeedSeverity(raw string) (vulnerability.Severity, float64, bool) {
	var (
		score      float64
		hasScore   bool
		labelParts []string
	)
	for _, field := range strings.Fields(raw) {
		if v, err := strconv.ParseFloat(field, 64); err == nil && !hasScore {
			score = v
			hasScore = true
			continue
		}
		labelParts = append(labelParts, field)
	}

	if label := strings.Join(labelParts, " "); label != "" {
		if sev, err := vulnerability.ParseSeverity(label); err == nil {
			return sev, score, hasScore
		}
	}
	if hasScore {
		return vulnerability.SeverityFromScore(score), score, true
	}
	return vulnerability.SeverityMedium, 0, false
}

// =============================================================================
// Discovery Dating
// =============================================================================

// patchDateLayouts are the accepted forms for patch publication dates.
var patchDateLayouts = []string{time.RFC3339, "2006-01-02"}

// parsePatchDate parses a feed patch publication date cell.
func parsePatchDate(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range patchDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// discoveryTime derives a row's discovery timestamp. In patch publication
// mode a parseable published date is authoritative; otherwise the feed's
// elapsed open days are counted back from now. Negative day counts clamp
// to zero.
func discoveryTime(row VulnerabilityRow, mode vulnconfig.ImportMode, now time.Time) time.Time {
	if mode == vulnconfig.ImportModePatchPublished {
		if t, ok := parsePatchDate(row.PatchPublicationDate); ok {
			return t
		}
	}
	days := row.DaysOpen
	if days < 0 {
		days = 0
	}
	return now.AddDate(0, 0, -days)
}

// =============================================================================
// Row Conversion
// =============================================================================

// buildVulnerabilities converts the feed rows of one resolved asset into
// vulnerability entities. Rows without a usable CVE id are counted as
// skipped; a CVE repeated within the same asset entry keeps its last
// occurrence and records a warning.
func buildVulnerabilities(assetID shared.ID, hostname string, rows []VulnerabilityRow, mode vulnconfig.ImportMode, now time.Time) ([]*vulnerability.Vulnerability, int, []string) {
	out := make([]*vulnerability.Vulnerability, 0, len(rows))
	index := make(map[string]int, len(rows))

	var (
		skipped  int
		warnings []string
	)
	for _, row := range rows {
		cve := vulnerability.NormalizeCVEID(row.CVE)
		if !vulnerability.IsValidCVEID(cve) {
			skipped++
			continue
		}

		severity, score, hasScore := parseFeedSeverity(row.Severity)
		v, err := vulnerability.NewVulnerability(assetID, cve, severity, discoveryTime(row, mode, now))
		if err != nil {
			skipped++
			continue
		}
		v.SetRawSeverity(row.Severity)
		v.SetProductVersions(row.ProductVersions)
		if hasScore {
			v.SetCVSSScore(score)
		}
		if t, ok := parsePatchDate(row.PatchPublicationDate); ok {
			v.SetPatchPublishedAt(t)
		}

		if i, ok := index[cve]; ok {
			warnings = append(warnings, fmt.Sprintf("%s: duplicate %s, keeping the last occurrence", hostname, cve))
			out[i] = v
			continue
		}
		index[cve] = len(out)
		out = append(out, v)
	}
	return out, skipped, warnings
}
