package server

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"

	"github.com/nicktill/tinynotes/pkg/config"
	"github.com/nicktill/tinynotes/pkg/server/monitor"
	"github.com/nicktill/tinynotes/pkg/storage"
)

// Maintenance runs storage upkeep on a fixed interval.
type Maintenance struct {
	scheduler gocron.Scheduler
	target    storage.Maintainer
	monitor   *monitor.JobMonitor
	logger    zerolog.Logger
}

// NewMaintenance schedules target.Maintain every interval. Call Start to begin.
func NewMaintenance(target storage.Maintainer, jm *monitor.JobMonitor, logger zerolog.Logger, interval time.Duration) (*Maintenance, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}

	m := &Maintenance{
		scheduler: s,
		target:    target,
		monitor:   jm,
		logger:    logger.With().Str("component", "maintenance").Logger(),
	}

	_, err = s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(m.RunOnce),
		gocron.WithName("storage-maintenance"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = s.Shutdown()
		return nil, fmt.Errorf("failed to create maintenance job: %w", err)
	}
	return m, nil
}

// Start begins the schedule.
func (m *Maintenance) Start() {
	m.logger.Info().Msg("Maintenance scheduler started")
	m.scheduler.Start()
}

// Stop waits for a running job and stops the schedule.
func (m *Maintenance) Stop() error {
	m.logger.Info().Msg("Stopping maintenance scheduler")
	return m.scheduler.Shutdown()
}

// RunOnce performs one maintenance pass and records the outcome.
func (m *Maintenance) RunOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), config.MaintenanceTimeout)
	defer cancel()

	start := time.Now()
	err := m.target.Maintain(ctx)
	m.monitor.Record(err)

	if err != nil {
		status := m.monitor.Status()
		m.logger.Error().Err(err).Int("consecutive_errors", status.ConsecutiveErrors).Msg("Storage maintenance failed")
		return
	}
	m.logger.Debug().Dur("took", time.Since(start).Round(time.Millisecond)).Msg("Storage maintenance completed")
}
