package ingest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vulntrack/api/internal/metrics"
	"github.com/vulntrack/api/pkg/domain/asset"
	"github.com/vulntrack/api/pkg/domain/shared"
	"github.com/vulntrack/api/pkg/domain/vulnconfig"
	"github.com/vulntrack/api/pkg/domain/vulnerability"
	"github.com/vulntrack/api/pkg/logger"
)

// ReconcileStore executes the storage half of one asset reconciliation as
// a single transaction: upsert the asset, capture its prior CVE set,
// delete its vulnerability rows, and bulk-insert the new set. Any failure
// rolls the whole transaction back, leaving the asset's stored state
// exactly as it was.
type ReconcileStore interface {
	ReconcileAsset(ctx context.Context, a *asset.Asset, isNew bool, vulns []*vulnerability.Vulnerability) (priorCVEs []string, err error)
}

// Publisher receives remediated CVEs after a successful commit.
type Publisher interface {
	PublishRemediated(ctx context.Context, hostname string, cves []string) error
}

// AssetReader resolves existing assets by hostname during reconciliation.
type AssetReader interface {
	GetByHostname(ctx context.Context, hostname string) (*asset.Asset, error)
}

// Service reconciles import batches against the stores.
type Service struct {
	store     ReconcileStore
	assets    AssetReader
	config    vulnconfig.Provider
	publisher Publisher

	parallelism int
	logger      *logger.Logger

	// resultMu protects concurrent result updates
	resultMu sync.Mutex
}

// NewService creates an import service. parallelism bounds the concurrent
// per-asset transactions; values below one fall back to the default. The
// publisher may be nil, in which case remediation events are not emitted.
func NewService(store ReconcileStore, assets AssetReader, config vulnconfig.Provider, publisher Publisher, parallelism int, log *logger.Logger) *Service {
	if parallelism < 1 {
		parallelism = DefaultParallelism
	}
	return &Service{
		store:       store,
		assets:      assets,
		config:      config,
		publisher:   publisher,
		parallelism: parallelism,
		logger:      log.With("service", "ingest"),
	}
}

// =============================================================================
// Batch Reconciliation
// =============================================================================

// ImportBatch reconciles one scanner batch. Asset groups run concurrently,
// each inside its own transaction; a failed asset is reported in the
// result's errors and never rolls back or blocks the other assets.
// Importing the identical batch twice yields an identical stored set.
func (s *Service) ImportBatch(ctx context.Context, batch Batch) (*Result, error) {
	start := time.Now()

	if len(batch.Assets) > MaxAssetsPerBatch {
		return nil, fmt.Errorf("%w: batch exceeds %d asset entries", shared.ErrValidation, MaxAssetsPerBatch)
	}

	cfg, err := s.config.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("load import configuration: %w", err)
	}

	result := &Result{}
	groups := s.groupAssets(batch.Assets, result)

	// One clock reading for the whole batch keeps discovery timestamps
	// consistent across asset groups.
	now := time.Now().UTC()

	var g errgroup.Group
	g.SetLimit(s.parallelism)
	for _, row := range groups {
		g.Go(func() error {
			s.reconcileGroup(ctx, row, cfg.ImportMode(), now, result)
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(result.Errors, func(i, j int) bool { return result.Errors[i].Hostname < result.Errors[j].Hostname })
	sort.Strings(result.Warnings)

	outcome := "completed"
	if len(result.Errors) > 0 {
		outcome = "partial"
	}
	metrics.ImportRunsTotal.WithLabelValues(outcome).Inc()
	metrics.ImportRunDuration.Observe(time.Since(start).Seconds())
	metrics.ImportRowsTotal.WithLabelValues("imported").Add(float64(result.Imported))
	metrics.ImportRowsTotal.WithLabelValues("skipped").Add(float64(result.Skipped))
	metrics.ImportAssetsTotal.WithLabelValues("created").Add(float64(result.AssetsCreated))
	metrics.ImportAssetsTotal.WithLabelValues("updated").Add(float64(result.AssetsUpdated))
	metrics.ImportAssetsTotal.WithLabelValues("failed").Add(float64(len(result.Errors)))
	metrics.RemediationsTotal.Add(float64(result.Remediated))

	s.logger.Info("import batch reconciled",
		"source", batch.Source,
		"assets", len(groups),
		"created", result.AssetsCreated,
		"updated", result.AssetsUpdated,
		"imported", result.Imported,
		"skipped", result.Skipped,
		"remediated", result.Remediated,
		"failed", len(result.Errors),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}

// groupAssets keys asset entries by normalized hostname. A hostname
// repeated within one batch keeps only its last entry. Entries without a
// usable hostname have their rows counted as skipped.
func (s *Service) groupAssets(rows []AssetRow, result *Result) []AssetRow {
	index := make(map[string]int, len(rows))
	groups := make([]AssetRow, 0, len(rows))
	for _, row := range rows {
		key := asset.NormalizeHostname(row.Hostname)
		if key == "" {
			result.Skipped += len(row.Vulnerabilities)
			result.Warnings = append(result.Warnings, fmt.Sprintf("entry without hostname skipped (%d rows)", len(row.Vulnerabilities)))
			continue
		}
		if i, ok := index[key]; ok {
			result.Warnings = append(result.Warnings, fmt.Sprintf("%s: duplicate entry, keeping the last occurrence", key))
			s.logger.Warn("duplicate hostname in batch", "hostname", key)
			groups[i] = row
			continue
		}
		index[key] = len(groups)
		groups = append(groups, row)
	}
	return groups
}

// reconcileGroup replaces one asset's stored vulnerability set with the
// feed's rows. Failures are recorded against the asset and do not touch
// the rest of the batch.
func (s *Service) reconcileGroup(ctx context.Context, row AssetRow, mode vulnconfig.ImportMode, now time.Time, result *Result) {
	hostname := asset.NormalizeHostname(row.Hostname)

	if len(row.Vulnerabilities) > MaxRowsPerAsset {
		s.recordAssetError(result, hostname, fmt.Errorf("%w: entry exceeds %d vulnerability rows", shared.ErrValidation, MaxRowsPerAsset))
		return
	}

	a, isNew, err := s.resolveAsset(ctx, row)
	if err != nil {
		s.recordAssetError(result, hostname, err)
		return
	}

	vulns, skipped, warnings := buildVulnerabilities(a.ID(), hostname, row.Vulnerabilities, mode, now)

	prior, err := s.store.ReconcileAsset(ctx, a, isNew, vulns)
	if err != nil {
		s.recordAssetError(result, hostname, err)
		return
	}

	remediated := diffRemediated(prior, vulns)

	s.resultMu.Lock()
	if isNew {
		result.AssetsCreated++
	} else {
		result.AssetsUpdated++
	}
	result.Imported += len(vulns)
	result.Skipped += skipped
	result.Remediated += len(remediated)
	result.Warnings = append(result.Warnings, warnings...)
	s.resultMu.Unlock()

	if len(remediated) > 0 {
		s.publishRemediated(ctx, hostname, remediated)
	}
}

// resolveAsset loads or creates the asset for a feed entry and merges the
// feed's scan attributes into it. Owner and other manual annotations are
// never touched by imports.
func (s *Service) resolveAsset(ctx context.Context, row AssetRow) (*asset.Asset, bool, error) {
	attrs := asset.ScanAttributes{
		LocalIP:         row.LocalIP,
		HostGroups:      row.HostGroups,
		CloudAccountID:  row.CloudAccountID,
		CloudInstanceID: row.CloudInstanceID,
		OSVersion:       row.OSVersion,
		ADDomain:        row.ADDomain,
	}

	existing, err := s.assets.GetByHostname(ctx, row.Hostname)
	switch {
	case err == nil:
		existing.MergeScanAttributes(attrs)
		return existing, false, nil
	case shared.IsNotFound(err):
		created, cerr := asset.NewAsset(row.Hostname)
		if cerr != nil {
			return nil, false, cerr
		}
		created.MergeScanAttributes(attrs)
		return created, true, nil
	default:
		return nil, false, err
	}
}

// diffRemediated returns prior CVEs absent from the imported set. The
// absence itself is the remediation signal; nothing else is stored.
func diffRemediated(prior []string, current []*vulnerability.Vulnerability) []string {
	if len(prior) == 0 {
		return nil
	}
	keep := make(map[string]struct{}, len(current))
	for _, v := range current {
		keep[v.CVEID()] = struct{}{}
	}
	var gone []string
	for _, cve := range prior {
		if _, ok := keep[cve]; !ok {
			gone = append(gone, cve)
		}
	}
	sort.Strings(gone)
	return gone
}

// publishRemediated emits remediation events after a commit. Failures are
// logged and dropped; the stored state is already authoritative.
func (s *Service) publishRemediated(ctx context.Context, hostname string, cves []string) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishRemediated(ctx, hostname, cves); err != nil {
		metrics.RemediationPublishFailures.Inc()
		s.logger.Warn("remediation publish failed", "hostname", hostname, "count", len(cves), "error", err)
	}
}

func (s *Service) recordAssetError(result *Result, hostname string, err error) {
	s.logger.Error("asset reconciliation failed", "hostname", hostname, "error", err)
	s.resultMu.Lock()
	defer s.resultMu.Unlock()
	if len(result.Errors) < MaxErrorsToReturn {
		result.Errors = append(result.Errors, AssetError{Hostname: hostname, Error: err.Error()})
	}
}
