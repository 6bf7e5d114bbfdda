// Package ingest reconciles scanner feed batches into the asset and
// vulnerability stores. A batch is a full statement of each asset's
// currently open vulnerabilities; reconciliation replaces the stored set
// rather than merging it, so a CVE missing from the feed is a remediation.
package ingest

// =============================================================================
// Constants
// =============================================================================

const (
	// MaxErrorsToReturn caps the per-asset errors echoed in a result.
	MaxErrorsToReturn = 100

	// MaxAssetsPerBatch bounds the asset entries in a single import call.
	MaxAssetsPerBatch = 10000

	// MaxRowsPerAsset bounds the vulnerability rows for one asset entry.
	MaxRowsPerAsset = 50000

	// DefaultParallelism is the concurrent asset limit when the
	// configuration does not set one.
	DefaultParallelism = 4
)

// =============================================================================
// Input Types
// =============================================================================

// Batch is the wire form of one scanner export.
type Batch struct {
	// Source names the scanner integration that produced the batch.
	// Informational only.
	Source string `json:"source,omitempty"`

	Assets []AssetRow `json:"assets"`
}

// AssetRow is one asset entry together with every vulnerability the
// scanner currently reports open on it.
type AssetRow struct {
	Hostname        string   `json:"hostname"`
	LocalIP         string   `json:"local_ip,omitempty"`
	HostGroups      []string `json:"host_groups,omitempty"`
	CloudAccountID  string   `json:"cloud_account_id,omitempty"`
	CloudInstanceID string   `json:"cloud_instance_id,omitempty"`
	OSVersion       string   `json:"os_version,omitempty"`
	ADDomain        string   `json:"ad_domain,omitempty"`

	Vulnerabilities []VulnerabilityRow `json:"vulnerabilities"`
}

// VulnerabilityRow is one open vulnerability as reported by the scanner.
// Severity arrives as the scanner prints it ("9.8 Critical", a bare label,
// or a bare CVSS score); the raw cell is preserved for display. DaysOpen
// and PatchPublicationDate are alternative ways to date the finding; which
// one counts is decided by the configured import mode.
type VulnerabilityRow struct {
	CVE                  string `json:"cve"`
	Severity             string `json:"severity,omitempty"`
	ProductVersions      string `json:"product_versions,omitempty"`
	DaysOpen             int    `json:"days_open,omitempty"`
	PatchPublicationDate string `json:"patch_publication_date,omitempty"`
}

// =============================================================================
// Output Types
// =============================================================================

// Result reports the outcome of one import batch.
type Result struct {
	AssetsCreated int `json:"assets_created"`
	AssetsUpdated int `json:"assets_updated"`

	// Imported counts vulnerability rows written; Skipped counts rows
	// dropped for a missing or malformed CVE id or hostname; Remediated
	// counts CVEs present before the import and absent after it.
	Imported   int `json:"imported"`
	Skipped    int `json:"skipped"`
	Remediated int `json:"remediated"`

	Errors   []AssetError `json:"errors,omitempty"`
	Warnings []string     `json:"warnings,omitempty"`
}

// AssetError reports one failed asset reconciliation within a batch. The
// named asset's stored state is untouched; other assets in the batch
// commit independently.
type AssetError struct {
	Hostname string `json:"hostname"`
	Error    string `json:"error"`
}
