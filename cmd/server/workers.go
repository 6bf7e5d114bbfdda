package main

import (
	"github.com/vulntrack/api/internal/config"
	"github.com/vulntrack/api/internal/infra/jobs"
	"github.com/vulntrack/api/pkg/logger"
)

// Workers holds all background worker instances.
type Workers struct {
	ExpirySweeper *jobs.ExpirySweeper
}

// WorkerDeps contains dependencies needed to create workers.
type WorkerDeps struct {
	Config   *config.Config
	Log      *logger.Logger
	Services *Services
}

// NewWorkers initializes all background workers.
func NewWorkers(deps *WorkerDeps) (*Workers, error) {
	sweeper, err := jobs.NewExpirySweeper(deps.Services.Exception, &deps.Config.Sweep, deps.Log)
	if err != nil {
		return nil, err
	}

	return &Workers{ExpirySweeper: sweeper}, nil
}

// Start starts all background workers.
func (w *Workers) Start() {
	w.ExpirySweeper.Start()
}

// Stop stops all background workers gracefully.
func (w *Workers) Stop() {
	w.ExpirySweeper.Stop()
}
