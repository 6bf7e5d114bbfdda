package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vulntrack/api/pkg/domain/asset"
	"github.com/vulntrack/api/pkg/domain/shared"
	"github.com/vulntrack/api/pkg/domain/vulnconfig"
	"github.com/vulntrack/api/pkg/domain/vulnerability"
	"github.com/vulntrack/api/pkg/logger"
)

// =============================================================================
// Mocks
// =============================================================================

type mockAssetRepo struct {
	mu     sync.Mutex
	byHost map[string]*asset.Asset
}

func newMockAssetRepo() *mockAssetRepo {
	return &mockAssetRepo{byHost: make(map[string]*asset.Asset)}
}

func (m *mockAssetRepo) put(a *asset.Asset) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byHost[a.Hostname()] = a
}

func (m *mockAssetRepo) GetByHostname(_ context.Context, hostname string) (*asset.Asset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.byHost[asset.NormalizeHostname(hostname)]; ok {
		return a, nil
	}
	return nil, asset.NotFoundByHostnameError(hostname)
}

// mockStore keeps vulnerability sets per asset and mirrors committed
// assets into the asset repo, the way the real transaction does.
type mockStore struct {
	mu        sync.Mutex
	repo      *mockAssetRepo
	vulns     map[string][]*vulnerability.Vulnerability
	failHosts map[string]error
	calls     int
}

func newMockStore(repo *mockAssetRepo) *mockStore {
	return &mockStore{
		repo:      repo,
		vulns:     make(map[string][]*vulnerability.Vulnerability),
		failHosts: make(map[string]error),
	}
}

func (m *mockStore) ReconcileAsset(_ context.Context, a *asset.Asset, _ bool, vulns []*vulnerability.Vulnerability) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if err, ok := m.failHosts[a.Hostname()]; ok {
		return nil, err
	}
	var prior []string
	for _, v := range m.vulns[a.ID().String()] {
		prior = append(prior, v.CVEID())
	}
	m.repo.put(a)
	m.vulns[a.ID().String()] = vulns
	return prior, nil
}

func (m *mockStore) storedCVEs(a *asset.Asset) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var cves []string
	for _, v := range m.vulns[a.ID().String()] {
		cves = append(cves, v.CVEID())
	}
	return cves
}

type stubProvider struct {
	cfg *vulnconfig.Config
	err error
}

func (p *stubProvider) Get(_ context.Context) (*vulnconfig.Config, error) { return p.cfg, p.err }
func (p *stubProvider) Invalidate(_ context.Context)                      {}

type mockPublisher struct {
	mu     sync.Mutex
	events map[string][]string
	err    error
}

func (m *mockPublisher) PublishRemediated(_ context.Context, hostname string, cves []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if m.events == nil {
		m.events = make(map[string][]string)
	}
	m.events[hostname] = append(m.events[hostname], cves...)
	return nil
}

func newTestService(repo *mockAssetRepo, store *mockStore, pub *mockPublisher) *Service {
	return NewService(store, repo, &stubProvider{cfg: vulnconfig.DefaultConfig()}, pub, 2, logger.NewNop())
}

// =============================================================================
// Tests
// =============================================================================

// TestImportBatch_CreatesAndUpdates tests resolving new and known assets.
func TestImportBatch_CreatesAndUpdates(t *testing.T) {
	repo := newMockAssetRepo()
	store := newMockStore(repo)
	svc := newTestService(repo, store, &mockPublisher{})

	existing, err := asset.NewAsset("web01.example.com")
	require.NoError(t, err)
	repo.put(existing)

	result, err := svc.ImportBatch(context.Background(), Batch{Assets: []AssetRow{
		{
			Hostname: "WEB01.example.com",
			LocalIP:  "10.0.0.5",
			Vulnerabilities: []VulnerabilityRow{
				{CVE: "CVE-2024-0001", Severity: "9.8 Critical", DaysOpen: 3},
				{CVE: "CVE-2024-0002", Severity: "High", DaysOpen: 12},
			},
		},
		{
			Hostname: "db01.example.com",
			Vulnerabilities: []VulnerabilityRow{
				{CVE: "CVE-2023-5555", Severity: "Medium", DaysOpen: 60},
			},
		},
	}})

	require.NoError(t, err)
	assert.Equal(t, 1, result.AssetsCreated)
	assert.Equal(t, 1, result.AssetsUpdated)
	assert.Equal(t, 3, result.Imported)
	assert.Equal(t, 0, result.Skipped)
	assert.Empty(t, result.Errors)

	// The known asset picked up the feed's attributes without losing identity.
	assert.Equal(t, "10.0.0.5", existing.LocalIP())
	assert.ElementsMatch(t, []string{"CVE-2024-0001", "CVE-2024-0002"}, store.storedCVEs(existing))

	created, err := repo.GetByHostname(context.Background(), "db01.example.com")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"CVE-2023-5555"}, store.storedCVEs(created))
}

// TestImportBatch_Idempotent tests that importing the identical batch
// twice yields an identical stored set.
func TestImportBatch_Idempotent(t *testing.T) {
	repo := newMockAssetRepo()
	store := newMockStore(repo)
	svc := newTestService(repo, store, &mockPublisher{})

	batch := Batch{Assets: []AssetRow{
		{
			Hostname: "web01",
			Vulnerabilities: []VulnerabilityRow{
				{CVE: "CVE-2024-0001", Severity: "Critical", DaysOpen: 3},
				{CVE: "CVE-2024-0002", Severity: "High", DaysOpen: 12},
			},
		},
	}}

	first, err := svc.ImportBatch(context.Background(), batch)
	require.NoError(t, err)
	assert.Equal(t, 1, first.AssetsCreated)
	assert.Equal(t, 2, first.Imported)

	second, err := svc.ImportBatch(context.Background(), batch)
	require.NoError(t, err)
	assert.Equal(t, 0, second.AssetsCreated)
	assert.Equal(t, 1, second.AssetsUpdated)
	assert.Equal(t, 2, second.Imported)
	assert.Equal(t, 0, second.Remediated)

	a, err := repo.GetByHostname(context.Background(), "web01")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"CVE-2024-0001", "CVE-2024-0002"}, store.storedCVEs(a))
}

// TestImportBatch_Remediation tests that a CVE absent from the current
// feed disappears from storage and is published as remediated.
func TestImportBatch_Remediation(t *testing.T) {
	repo := newMockAssetRepo()
	store := newMockStore(repo)
	pub := &mockPublisher{}
	svc := newTestService(repo, store, pub)

	rows := func(cves ...string) []VulnerabilityRow {
		out := make([]VulnerabilityRow, 0, len(cves))
		for _, cve := range cves {
			out = append(out, VulnerabilityRow{CVE: cve, Severity: "High", DaysOpen: 5})
		}
		return out
	}

	_, err := svc.ImportBatch(context.Background(), Batch{Assets: []AssetRow{
		{Hostname: "web01", Vulnerabilities: rows("CVE-2024-0001", "CVE-2024-0002", "CVE-2024-0003")},
	}})
	require.NoError(t, err)

	result, err := svc.ImportBatch(context.Background(), Batch{Assets: []AssetRow{
		{Hostname: "web01", Vulnerabilities: rows("CVE-2024-0001", "CVE-2024-0003")},
	}})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Remediated)

	a, err := repo.GetByHostname(context.Background(), "web01")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"CVE-2024-0001", "CVE-2024-0003"}, store.storedCVEs(a))
	assert.Equal(t, []string{"CVE-2024-0002"}, pub.events["web01"])
}

// TestImportBatch_PerAssetIsolation tests that one failing asset does not
// roll back the others.
func TestImportBatch_PerAssetIsolation(t *testing.T) {
	repo := newMockAssetRepo()
	store := newMockStore(repo)
	store.failHosts["bad01"] = errors.New("deadlock detected")
	svc := newTestService(repo, store, &mockPublisher{})

	result, err := svc.ImportBatch(context.Background(), Batch{Assets: []AssetRow{
		{Hostname: "bad01", Vulnerabilities: []VulnerabilityRow{{CVE: "CVE-2024-0001", DaysOpen: 1}}},
		{Hostname: "good01", Vulnerabilities: []VulnerabilityRow{{CVE: "CVE-2024-0002", DaysOpen: 1}}},
	}})

	require.NoError(t, err)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "bad01", result.Errors[0].Hostname)
	assert.Contains(t, result.Errors[0].Error, "deadlock")
	assert.Equal(t, 1, result.AssetsCreated)
	assert.Equal(t, 1, result.Imported)

	good, err := repo.GetByHostname(context.Background(), "good01")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"CVE-2024-0002"}, store.storedCVEs(good))

	_, err = repo.GetByHostname(context.Background(), "bad01")
	assert.True(t, shared.IsNotFound(err))
}

// TestImportBatch_FailureKeepsPriorSet tests that a failed reconciliation
// leaves the asset's previously stored vulnerability set untouched and
// publishes no remediations for it.
func TestImportBatch_FailureKeepsPriorSet(t *testing.T) {
	repo := newMockAssetRepo()
	store := newMockStore(repo)
	pub := &mockPublisher{}
	svc := newTestService(repo, store, pub)

	_, err := svc.ImportBatch(context.Background(), Batch{Assets: []AssetRow{
		{Hostname: "web01", Vulnerabilities: []VulnerabilityRow{
			{CVE: "CVE-2024-0001", DaysOpen: 5},
			{CVE: "CVE-2024-0002", DaysOpen: 5},
		}},
	}})
	require.NoError(t, err)

	store.failHosts["web01"] = errors.New("connection reset")
	result, err := svc.ImportBatch(context.Background(), Batch{Assets: []AssetRow{
		{Hostname: "web01", Vulnerabilities: []VulnerabilityRow{{CVE: "CVE-2024-0003", DaysOpen: 1}}},
	}})
	require.NoError(t, err)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, 0, result.Imported)
	assert.Equal(t, 0, result.Remediated)

	a, err := repo.GetByHostname(context.Background(), "web01")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"CVE-2024-0001", "CVE-2024-0002"}, store.storedCVEs(a))
	assert.Empty(t, pub.events["web01"])
}

// TestImportBatch_DuplicateHostname tests last-occurrence-wins for a
// hostname repeated within one batch.
func TestImportBatch_DuplicateHostname(t *testing.T) {
	repo := newMockAssetRepo()
	store := newMockStore(repo)
	svc := newTestService(repo, store, &mockPublisher{})

	result, err := svc.ImportBatch(context.Background(), Batch{Assets: []AssetRow{
		{Hostname: "web01", Vulnerabilities: []VulnerabilityRow{{CVE: "CVE-2024-0001", DaysOpen: 1}}},
		{Hostname: "WEB01", Vulnerabilities: []VulnerabilityRow{{CVE: "CVE-2024-0002", DaysOpen: 1}}},
	}})

	require.NoError(t, err)
	assert.Equal(t, 1, result.AssetsCreated)
	assert.Equal(t, 1, result.Imported)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "web01")
	assert.Equal(t, 1, store.calls)

	a, err := repo.GetByHostname(context.Background(), "web01")
	require.NoError(t, err)
	assert.Equal(t, []string{"CVE-2024-0002"}, store.storedCVEs(a))
}

// TestImportBatch_SkipsUnusableRows tests skip counting for entries
// without a hostname and rows without a CVE id.
func TestImportBatch_SkipsUnusableRows(t *testing.T) {
	repo := newMockAssetRepo()
	store := newMockStore(repo)
	svc := newTestService(repo, store, &mockPublisher{})

	result, err := svc.ImportBatch(context.Background(), Batch{Assets: []AssetRow{
		{
			Hostname: "   ",
			Vulnerabilities: []VulnerabilityRow{
				{CVE: "CVE-2024-0001", DaysOpen: 1},
				{CVE: "CVE-2024-0002", DaysOpen: 1},
			},
		},
		{
			Hostname: "web01",
			Vulnerabilities: []VulnerabilityRow{
				{CVE: "", Severity: "High"},
				{CVE: "not-a-cve", Severity: "High"},
				{CVE: "CVE-2024-0003", DaysOpen: 1},
			},
		},
	}})

	require.NoError(t, err)
	assert.Equal(t, 4, result.Skipped)
	assert.Equal(t, 1, result.Imported)
	assert.Equal(t, 1, result.AssetsCreated)
}

// TestImportBatch_PublishFailureIsSwallowed tests that a failing publisher
// never fails the batch.
func TestImportBatch_PublishFailureIsSwallowed(t *testing.T) {
	repo := newMockAssetRepo()
	store := newMockStore(repo)
	pub := &mockPublisher{err: errors.New("broker unavailable")}
	svc := newTestService(repo, store, pub)

	seed := Batch{Assets: []AssetRow{
		{Hostname: "web01", Vulnerabilities: []VulnerabilityRow{{CVE: "CVE-2024-0001", DaysOpen: 1}}},
	}}
	_, err := svc.ImportBatch(context.Background(), seed)
	require.NoError(t, err)

	result, err := svc.ImportBatch(context.Background(), Batch{Assets: []AssetRow{
		{Hostname: "web01", Vulnerabilities: []VulnerabilityRow{{CVE: "CVE-2024-0002", DaysOpen: 1}}},
	}})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Remediated)
	assert.Empty(t, result.Errors)
}

// TestImportBatch_PatchPublicationMode tests that the configured import
// mode drives discovery dating.
func TestImportBatch_PatchPublicationMode(t *testing.T) {
	repo := newMockAssetRepo()
	store := newMockStore(repo)

	cfg, err := vulnconfig.NewConfig(7, 14, 30, 90, vulnconfig.ImportModePatchPublished, "admin")
	require.NoError(t, err)
	svc := NewService(store, repo, &stubProvider{cfg: cfg}, &mockPublisher{}, 2, logger.NewNop())

	_, err = svc.ImportBatch(context.Background(), Batch{Assets: []AssetRow{
		{Hostname: "web01", Vulnerabilities: []VulnerabilityRow{
			{CVE: "CVE-2024-0001", DaysOpen: 3, PatchPublicationDate: "2026-01-15"},
		}},
	}})
	require.NoError(t, err)

	a, err := repo.GetByHostname(context.Background(), "web01")
	require.NoError(t, err)
	stored := store.vulns[a.ID().String()]
	require.Len(t, stored, 1)
	assert.Equal(t, time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC), stored[0].DiscoveredAt())
}

// TestImportBatch_ConfigLoadFailure tests that an unreadable configuration
// aborts the batch before any asset is touched.
func TestImportBatch_ConfigLoadFailure(t *testing.T) {
	repo := newMockAssetRepo()
	store := newMockStore(repo)
	svc := NewService(store, repo, &stubProvider{err: errors.New("connection refused")}, &mockPublisher{}, 2, logger.NewNop())

	_, err := svc.ImportBatch(context.Background(), Batch{Assets: []AssetRow{
		{Hostname: "web01", Vulnerabilities: []VulnerabilityRow{{CVE: "CVE-2024-0001", DaysOpen: 1}}},
	}})
	require.Error(t, err)
	assert.Equal(t, 0, store.calls)
}

// TestImportBatch_RejectsOversizedBatch tests the batch size guard.
func TestImportBatch_RejectsOversizedBatch(t *testing.T) {
	repo := newMockAssetRepo()
	store := newMockStore(repo)
	svc := newTestService(repo, store, &mockPublisher{})

	_, err := svc.ImportBatch(context.Background(), Batch{Assets: make([]AssetRow, MaxAssetsPerBatch+1)})
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrValidation))
}
