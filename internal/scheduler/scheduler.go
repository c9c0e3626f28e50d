package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	appLog "todocal/internal/log"
	"todocal/internal/reconcile"
)

// Importer is the job the scheduler runs. *reconcile.Syncer implements it.
type Importer interface {
	Import(ctx context.Context) (reconcile.ImportResult, error)
}

// Scheduler runs periodic cloud imports on a cron schedule. Runs never
// overlap: a tick that fires while the previous import is still going is
// skipped.
type Scheduler struct {
	cron *cron.Cron
	spec string
	job  Importer

	mu      sync.Mutex
	lastErr error
	lastRun time.Time
}

// New validates spec (standard 5-field syntax or a descriptor such as
// "@every 30m") and returns a stopped Scheduler.
func New(spec string, loc *time.Location, job Importer) (*Scheduler, error) {
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("sync cron %q: %w", spec, err)
	}
	if loc == nil {
		loc = time.UTC
	}
	logger := cronLogger{}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	return &Scheduler{cron: c, spec: spec, job: job}, nil
}

// Start registers the import job and blocks until ctx is done. The
// scheduler is stopped (waiting for a running import) before it returns.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.spec, func() { _ = s.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("add import job: %w", err)
	}

	s.cron.Start()
	appLog.Info("scheduler started", "spec", s.spec, "tz", s.cron.Location().String())

	<-ctx.Done()
	s.Stop()
	return nil
}

func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	appLog.Info("scheduler stopped")
}

// RunOnce performs a single import immediately and records its outcome.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	started := time.Now()
	res, err := s.job.Import(ctx)

	s.mu.Lock()
	s.lastRun = started
	s.lastErr = err
	s.mu.Unlock()

	if err != nil {
		appLog.Error("scheduled import failed", err, "spec", s.spec)
		return err
	}
	appLog.Info("scheduled import done",
		"events_changed", res.Events.Changed(),
		"todos_changed", res.Todos.Changed(),
		"took", time.Since(started).String(),
	)
	return nil
}

// Last reports when the most recent import started and how it ended.
func (s *Scheduler) Last() (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun, s.lastErr
}

// cronLogger routes cron's internal logging through the app logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	appLog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	appLog.Error("cron: "+msg, err, keysAndValues...)
}
