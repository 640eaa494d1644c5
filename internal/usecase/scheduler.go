package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"AvitoMonitor/internal/ports"
)

// Scheduler wires the interval driver with the poller.
type Scheduler struct {
	driver ports.Scheduler
	poller *Poller
	logger *slog.Logger
}

// NewScheduler returns a helper to start/stop recurring ticks.
func NewScheduler(driver ports.Scheduler, poller *Poller, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{driver: driver, poller: poller, logger: logger}
}

// Start registers the poller with the provided scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.poller == nil {
		return nil
	}

	job := func(trigger time.Time) {
		if _, err := s.poller.Tick(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				s.logger.Info("tick interrupted by shutdown")
				return
			}
			s.logger.Error("tick failed", "trigger", trigger.UTC().Format(time.RFC3339), "error", err)
		}
	}

	return s.driver.Start(ctx, job)
}

// Stop gracefully tears down the underlying scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	return s.driver.Stop(ctx)
}
