package exports

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
)

// runLayout names the directory each scheduled run writes into.
const runLayout = "20060102T150405Z"

// Scheduler writes a dated export on a cron schedule. Runs never overlap.
type Scheduler struct {
	cron   *cron.Cron
	dir    string
	ledger Ledger
	now    func() time.Time
	logger *slog.Logger
}

// NewScheduler parses spec with the standard five field cron syntax or a
// descriptor such as "@daily" or "@every 6h".
func NewScheduler(spec, dir string, ledger Ledger, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		cron:   cron.New(cron.WithLocation(time.UTC), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		dir:    dir,
		ledger: ledger,
		now:    time.Now,
		logger: logger,
	}
	if _, err := s.cron.AddFunc(spec, func() { _, _ = s.RunOnce() }); err != nil {
		return nil, fmt.Errorf("exports: schedule %q: %w", spec, err)
	}
	return s, nil
}

// Start runs the schedule in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the schedule and waits for a running export to finish or ctx
// to expire.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		s.logger.Warn("export still running at shutdown")
	}
}

// RunOnce writes a single export into a new directory under dir and returns
// its path.
func (s *Scheduler) RunOnce() (string, error) {
	target := filepath.Join(s.dir, s.now().UTC().Format(runLayout))
	loans, lenders, err := WriteAll(target, s.ledger)
	if err != nil {
		s.logger.Error("scheduled export failed", slog.String("dir", target), slog.Any("error", err))
		return "", err
	}
	s.logger.Info("scheduled export written",
		slog.String("dir", target),
		slog.Int("loans", loans),
		slog.Int("lenders", lenders))
	return target, nil
}
