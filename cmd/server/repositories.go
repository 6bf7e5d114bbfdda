package main

import (
	"github.com/vulntrack/api/internal/infra/postgres"
)

// Repositories holds all repository instances.
type Repositories struct {
	Asset         *postgres.AssetRepository
	Vulnerability *postgres.VulnerabilityRepository
	Exception     *postgres.ExceptionRepository
	Config        *postgres.ConfigRepository

	// Reconcile is the transactional store behind the importer. It spans the
	// asset and vulnerability tables, so it lives outside the per-table
	// repositories.
	Reconcile *postgres.ReconcileStore
}

// NewRepositories initializes all repositories.
func NewRepositories(db *postgres.DB) *Repositories {
	return &Repositories{
		Asset:         postgres.NewAssetRepository(db),
		Vulnerability: postgres.NewVulnerabilityRepository(db),
		Exception:     postgres.NewExceptionRepository(db),
		Config:        postgres.NewConfigRepository(db),
		Reconcile:     postgres.NewReconcileStore(db),
	}
}
