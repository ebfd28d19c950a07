package application

import (
	"context"
	"log/slog"
	"time"
)

// Runner is what the scheduler drives; implemented by Orchestrator.
type Runner interface {
	Run(ctx context.Context, scope Scope) (*RunSummary, error)
}

// Scheduler re-runs the full default-first scope on a fixed interval. Used
// by the serve command so the API keeps serving fresh data unattended.
type Scheduler struct {
	runner   Runner
	service  *PriceService
	interval time.Duration
	stopChan chan struct{}
}

func NewScheduler(runner Runner, service *PriceService, interval time.Duration) *Scheduler {
	return &Scheduler{
		runner:   runner,
		service:  service,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	slog.Info("Scrape scheduler started", "interval", s.interval)

	for {
		select {
		case <-ticker.C:
			summary, err := s.runner.Run(ctx, Scope{Instrument: ScopeAll()})
			if err != nil {
				slog.Error("Scheduled run failed", "error", err)
				continue
			}
			if s.service != nil && len(summary.Successes) > 0 {
				s.service.InvalidateCache()
			}
		case <-s.stopChan:
			slog.Info("Scrape scheduler stopped")
			return
		case <-ctx.Done():
			slog.Info("Scrape scheduler stopped due to context cancellation")
			return
		}
	}
}

func (s *Scheduler) Stop() {
	close(s.stopChan)
}
