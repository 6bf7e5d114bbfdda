package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/vulntrack/api/internal/config"
	"github.com/vulntrack/api/internal/metrics"
	"github.com/vulntrack/api/pkg/logger"
)

// SweepService materializes expired exception request statuses.
type SweepService interface {
	SweepExpired(ctx context.Context) (int64, error)
}

// ExpirySweeper runs the expiration sweep on a cron schedule. Suppression
// already ends at the expiry instant during status evaluation; the sweep only
// updates stored request state for reporting.
type ExpirySweeper struct {
	svc      SweepService
	config   *config.SweepConfig
	schedule cron.Schedule
	logger   *logger.Logger
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewExpirySweeper creates a new ExpirySweeper. The schedule is a standard
// five-field cron expression; an empty schedule falls back to hourly.
func NewExpirySweeper(svc SweepService, cfg *config.SweepConfig, log *logger.Logger) (*ExpirySweeper, error) {
	spec := cfg.Schedule
	if spec == "" {
		spec = "0 * * * *"
	}

	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", spec, err)
	}

	return &ExpirySweeper{
		svc:      svc,
		config:   cfg,
		schedule: schedule,
		logger:   log.With("component", "expiry-sweeper"),
		stopCh:   make(chan struct{}),
	}, nil
}

// Start starts the sweeper in a background goroutine.
func (s *ExpirySweeper) Start() {
	if !s.config.Enabled {
		s.logger.Info("expiry sweeper is disabled")
		return
	}

	s.logger.Info("starting expiry sweeper", "schedule", s.config.Schedule)

	s.wg.Add(1)
	go s.run()
}

// Stop stops the sweeper gracefully.
func (s *ExpirySweeper) Stop() {
	close(s.stopCh)
	s.wg.Wait()
	s.logger.Info("expiry sweeper stopped")
}

func (s *ExpirySweeper) run() {
	defer s.wg.Done()

	// Sweep immediately on start so a restarted service catches up without
	// waiting for the next scheduled slot.
	s.sweep()

	for {
		timer := time.NewTimer(time.Until(s.schedule.Next(time.Now())))
		select {
		case <-timer.C:
			s.sweep()
		case <-s.stopCh:
			timer.Stop()
			return
		}
	}
}

func (s *ExpirySweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	count, err := s.svc.SweepExpired(ctx)
	if err != nil {
		metrics.ExceptionSweepRunsTotal.WithLabelValues("error").Inc()
		s.logger.Error("expiration sweep failed", "error", err)
		return
	}

	metrics.ExceptionSweepRunsTotal.WithLabelValues("success").Inc()
	metrics.ExceptionSweepExpiredTotal.Add(float64(count))
	if count > 0 {
		s.logger.Info("expiration sweep completed", "expired", count)
	}
}
