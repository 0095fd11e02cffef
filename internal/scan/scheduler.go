package scan

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// cronLogger routes cron's own messages to zap
type cronLogger struct {
	sugar *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, append(keysAndValues, "error", err)...)
}

// Scheduler runs the batch on a cron schedule
type Scheduler struct {
	batch  *Batch
	cron   *cron.Cron
	entry  cron.EntryID
	mu     sync.Mutex
	ctx    context.Context
	logger *zap.Logger
}

// NewScheduler parses the standard five-field cron spec and registers the batch job.
// Overlapping runs are skipped.
func NewScheduler(batch *Batch, spec string, logger *zap.Logger) (*Scheduler, error) {
	cl := cronLogger{sugar: logger.Sugar()}
	s := &Scheduler{
		batch:  batch,
		ctx:    context.Background(),
		logger: logger,
	}
	s.cron = cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	entry, err := s.cron.AddFunc(spec, s.run)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	s.entry = entry
	return s, nil
}

// Start begins running jobs; ctx bounds every batch started by the schedule
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("Scheduler started", zap.Time("next_run", s.Next()))
}

// Stop prevents new runs and waits for a running batch to finish
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("Scheduler stopped")
}

// Next returns the time of the next scheduled run
func (s *Scheduler) Next() time.Time {
	return s.cron.Entry(s.entry).Next
}

func (s *Scheduler) run() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	if ctx.Err() != nil {
		return
	}
	if _, err := s.batch.Run(ctx); err != nil {
		s.logger.Error("Scheduled batch failed", zap.Error(err))
	}
}
