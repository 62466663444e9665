package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
)

// Executor runs one processing run.
type Executor interface {
	Run(ctx context.Context) (Result, error)
}

// Scheduler repeats runs at a fixed interval. The first run starts
// immediately; a run that outlasts the interval delays the next one, so runs
// never overlap. Failed runs are retried whole at the next tick.
type Scheduler struct {
	exec     Executor
	clock    clockwork.Clock
	interval time.Duration
	logger   *slog.Logger
	ready    atomic.Bool
	last     atomic.Pointer[RunStatus]
}

// RunStatus summarizes the latest finished run for the status endpoint.
type RunStatus struct {
	RunID      string    `json:"run_id"`
	Outcome    string    `json:"outcome"`
	Computed   int       `json:"computed"`
	Skipped    int       `json:"skipped"`
	Failed     int       `json:"failed"`
	Alerts     int       `json:"alerts"`
	Error      string    `json:"error,omitempty"`
	FinishedAt time.Time `json:"finished_at"`
}

// NewScheduler creates a Scheduler. A nil clock uses the real clock.
func NewScheduler(exec Executor, clock clockwork.Clock, interval time.Duration, logger *slog.Logger) *Scheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Scheduler{exec: exec, clock: clock, interval: interval, logger: logger}
}

// CheckReadiness returns nil once a run has completed without error.
func (s *Scheduler) CheckReadiness(_ context.Context) error {
	if !s.ready.Load() {
		return errors.New("no run has completed yet")
	}
	return nil
}

// LastRun returns the status of the latest finished run, if any.
func (s *Scheduler) LastRun() (RunStatus, bool) {
	st := s.last.Load()
	if st == nil {
		return RunStatus{}, false
	}
	return *st, true
}

// Run executes runs until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started", "interval", s.interval.String())
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	s.runOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopping", "reason", ctx.Err())
			return nil
		case <-ticker.Chan():
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	res, err := s.exec.Run(ctx)
	if err != nil && ctx.Err() != nil {
		return
	}
	st := &RunStatus{
		RunID:      res.Run.String(),
		Outcome:    res.Outcome,
		Computed:   res.Computed,
		Skipped:    res.Skipped,
		Failed:     res.Failed,
		Alerts:     len(res.Alerts),
		FinishedAt: s.clock.Now().UTC(),
	}
	if err != nil {
		st.Error = err.Error()
		s.last.Store(st)
		s.logger.Error("run failed", "run_id", st.RunID, "error", err)
		return
	}
	s.last.Store(st)
	s.ready.Store(true)
}
