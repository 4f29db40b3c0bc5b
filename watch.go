package forumsent

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// WatchOptions configures scheduled ingestion.
type WatchOptions struct {
	// Schedule is a cron expression or descriptor such as "@hourly".
	Schedule string

	// RunAtStart performs one run immediately before waiting for the
	// schedule.
	RunAtStart bool

	Run RunOptions
}

// Watch runs ingestion on a schedule until ctx ends. A run still in
// progress when the next one is due is not overlapped; the late tick is
// skipped.
func (s *Service) Watch(ctx context.Context, opts WatchOptions) error {
	logger := cronLogger{s.logger}
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	job := cron.FuncJob(func() {
		if _, err := s.Run(ctx, opts.Run); err != nil {
			s.logger.Error("scheduled run failed", "err", err)
		}
	})

	if _, err := c.AddJob(opts.Schedule, job); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", opts.Schedule, err)
	}

	s.logger.Info("watch started", "schedule", opts.Schedule)
	c.Start()

	if opts.RunAtStart {
		// Routed through the entry so the skip-if-running chain applies.
		c.Entries()[0].WrappedJob.Run()
	}

	<-ctx.Done()
	s.logger.Info("watch stopping", "err", ctx.Err())
	<-c.Stop().Done()
	return nil
}

// cronLogger adapts slog to the scheduler's logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "err", err)...)
}
