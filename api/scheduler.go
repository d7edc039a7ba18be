/*
scheduler.go - Automated expiry sweep scheduler

PURPOSE:
  Periodically runs the expiry sweep so EXPIRED and EXPIRING_SOON alerts
  appear even for ingredients nobody has touched today.

DESIGN:
  - Runs in the caller's goroutine until the context is cancelled, so the
    server can supervise it next to the HTTP listener
  - Sweeps immediately on start, then every Interval
  - A failed sweep is logged and retried on the next tick
  - The last report is kept for GET /api/alerts/sweep

CONFIGURATION:
  - Interval: How often to sweep (default: 1 hour)
  - Enabled: Whether the scheduler is active (default: true)

USAGE:
  scheduler := api.NewSweepScheduler(service, logger)
  g.Go(func() error { return scheduler.Run(ctx) })

SEE ALSO:
  - handlers.go: RunSweep endpoint (manual sweep)
  - stock/sweep.go: The sweep itself
*/
package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/warp/stock-engine/kitchen"
	"github.com/warp/stock-engine/stock"
	"go.uber.org/zap"
)

// SweepScheduler runs the expiry sweep on a fixed interval.
type SweepScheduler struct {
	Service  *kitchen.Service
	Interval time.Duration
	Enabled  bool

	logger *zap.Logger

	mu      sync.Mutex
	last    *stock.SweepReport
	lastRun time.Time
}

// NewSweepScheduler creates a scheduler with the default interval.
func NewSweepScheduler(svc *kitchen.Service, logger *zap.Logger) *SweepScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SweepScheduler{
		Service:  svc,
		Interval: time.Hour,
		Enabled:  true,
		logger:   logger.Named("sweep"),
	}
}

// Run sweeps until ctx is cancelled. It always returns nil so a failed
// sweep never brings the server down.
func (s *SweepScheduler) Run(ctx context.Context) error {
	if !s.Enabled {
		s.logger.Info("disabled, not starting")
		return nil
	}

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	s.logger.Info("started", zap.Duration("interval", s.Interval))

	s.RunNow(ctx)
	for {
		select {
		case <-ticker.C:
			s.RunNow(ctx)
		case <-ctx.Done():
			s.logger.Info("stopped")
			return nil
		}
	}
}

// RunNow sweeps once as of today.
func (s *SweepScheduler) RunNow(ctx context.Context) {
	start := time.Now()
	report, err := s.Service.RunExpirySweep(ctx, s.Service.Today())
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Error("sweep failed", zap.Error(err))
		}
		return
	}

	s.mu.Lock()
	s.last = &report
	s.lastRun = start
	s.mu.Unlock()

	if len(report.Raised) > 0 || report.Failed > 0 {
		s.logger.Info("sweep completed",
			zap.Stringer("as_of", report.AsOf),
			zap.Int("scanned", report.Scanned),
			zap.Int("raised", len(report.Raised)),
			zap.Int("failed", report.Failed),
			zap.Duration("elapsed", time.Since(start)))
	}
}

// LastReport returns the most recent successful sweep, if any.
func (s *SweepScheduler) LastReport() (stock.SweepReport, time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return stock.SweepReport{}, time.Time{}, false
	}
	return *s.last, s.lastRun, true
}

// NextRunTime returns when the next scheduled sweep will occur.
func (s *SweepScheduler) NextRunTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastRun.IsZero() {
		return time.Now()
	}
	return s.lastRun.Add(s.Interval)
}

// SweepStatusDTO is the body of GET /api/alerts/sweep.
type SweepStatusDTO struct {
	LastRun *string         `json:"last_run,omitempty"`
	NextRun string          `json:"next_run"`
	Report  *SweepReportDTO `json:"report,omitempty"`
}

// Status serves the scheduler's last report.
func (s *SweepScheduler) Status(w http.ResponseWriter, r *http.Request) {
	status := SweepStatusDTO{NextRun: formatTime(s.NextRunTime())}
	if report, at, ok := s.LastReport(); ok {
		lastRun := formatTime(at)
		dto := toSweepReportDTO(report)
		status.LastRun = &lastRun
		status.Report = &dto
	}
	writeJSON(w, http.StatusOK, status)
}
