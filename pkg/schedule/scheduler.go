// Package schedule triggers application passes on cron expressions.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
)

var ErrNoEntries = errors.New("no schedule entries configured")

// Job runs one pass. It receives the scheduler context.
type Job func(ctx context.Context)

// Entry is a named cron expression.
type Entry struct {
	Name     string `json:"name"`
	CronExpr string `json:"cron"`
	Enabled  bool   `json:"enabled"`
}

// Scheduler runs a job on every entry. A firing that arrives while the job is
// still running is skipped.
type Scheduler struct {
	job     Job
	entries []Entry
	logger  *slog.Logger
	cron    *cron.Cron
	jobs    map[string]cron.EntryID
	mutex   sync.RWMutex
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewScheduler(job Job, logger *slog.Logger, entries ...Entry) *Scheduler {
	return &Scheduler{
		job:     job,
		entries: entries,
		logger:  logger.With("module", "scheduler"),
		jobs:    make(map[string]cron.EntryID),
	}
}

func (s *Scheduler) Validate() error {
	if len(s.entries) == 0 {
		return ErrNoEntries
	}

	for _, entry := range s.entries {
		if entry.Name == "" {
			return errors.New("schedule entry name is required")
		}

		if _, err := cron.ParseStandard(entry.CronExpr); err != nil {
			return fmt.Errorf("invalid cron expression '%s' for entry %s: %w", entry.CronExpr, entry.Name, err)
		}
	}

	return nil
}

func (s *Scheduler) Start(ctx context.Context) error {
	err := s.Validate()
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "Starting scheduler", "entries", len(s.entries))
	s.ctx, s.cancel = context.WithCancel(ctx)

	logger := cronLogger{logger: s.logger}
	s.cron = cron.New(
		cron.WithLogger(logger),
		cron.WithChain(
			cron.SkipIfStillRunning(logger),
			cron.Recover(logger),
		),
	)

	for _, entry := range s.entries {
		if err := s.add(entry); err != nil {
			return err
		}
	}

	s.cron.Start()

	return nil
}

func (s *Scheduler) add(entry Entry) error {
	logger := s.logger.With("entry", entry.Name)

	if !entry.Enabled {
		logger.Info("Schedule entry is disabled, skipping")

		return nil
	}

	entryID, err := s.cron.AddFunc(entry.CronExpr, func() {
		logger.DebugContext(s.ctx, "Schedule fired")
		s.job(s.ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to add cron job for entry %s: %w", entry.Name, err)
	}

	s.mutex.Lock()
	s.jobs[entry.Name] = entryID
	s.mutex.Unlock()

	logger.Info("Added cron job", "cron", entry.CronExpr, "entry_id", entryID)

	return nil
}

// Entries returns the names of the active entries.
func (s *Scheduler) Entries() []string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}

	return names
}

// Stop cancels the job context and waits for a running job to return.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.logger.InfoContext(ctx, "Stopping scheduler")

	if s.cancel != nil {
		s.cancel()
	}

	if s.cron != nil {
		select {
		case <-s.cron.Stop().Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	s.mutex.Lock()
	s.jobs = make(map[string]cron.EntryID)
	s.mutex.Unlock()

	return nil
}

// cronLogger routes cron's logging into slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
