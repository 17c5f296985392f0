package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dukex/opflow/pkg/application"
	"github.com/dukex/opflow/pkg/execution"
	"github.com/dukex/opflow/pkg/schedule"
	cli "github.com/urfave/cli/v3"
)

const shutdownTimeout = 10 * time.Second

func NewServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run scripts on a schedule and expose the control API",
		Flags: append(runtimeFlags(),
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the control API on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:    "schedule",
				Usage:   "Cron expression of the passes over every script",
				Value:   "*/30 * * * *",
				Sources: cli.EnvVars("SCHEDULE"),
			},
			&cli.BoolFlag{
				Name:    "run-on-start",
				Usage:   "Run a pass immediately instead of waiting for the schedule",
				Value:   true,
				Sources: cli.EnvVars("RUN_ON_START"),
			},
		),
		Action: func(ctx context.Context, command *cli.Command) error {
			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger := setupLogger(command).With("module", "opflow", "action", "serve")

			env, err := newEnvironment(ctx, command, logger)
			if err != nil {
				return err
			}
			defer env.Close(context.WithoutCancel(ctx))

			toggles := make(chan os.Signal, 1)
			signal.Notify(toggles, syscall.SIGUSR1)

			defer signal.Stop(toggles)

			go watchToggle(ctx, env.execCtx, toggles)

			pass := newPass(application.NewRunner(logger, env.registry.Applications()...))

			scheduler := schedule.NewScheduler(pass.Run, logger, schedule.Entry{
				Name:     "pass",
				CronExpr: command.String("schedule"),
				Enabled:  true,
			})

			err = scheduler.Start(ctx)
			if err != nil {
				return err
			}

			if command.Bool("run-on-start") {
				go pass.Run(ctx)
			}

			api := NewAPI(logger, env.execCtx, env.persistence, env.registry.Infos())

			serveErr := make(chan error, 1)

			go func() {
				serveErr <- api.Start(command.Int("port"))
			}()

			logger.InfoContext(ctx, "Serving", "port", command.Int("port"), "runId", env.execCtx.RunID())

			select {
			case <-ctx.Done():
			case err = <-serveErr:
			}

			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()

			// unblock a pass waiting at a pause checkpoint
			env.execCtx.Stop()

			return errors.Join(err, scheduler.Stop(shutdownCtx), api.Shutdown(shutdownCtx))
		},
	}
}

// watchToggle flips pause and resume on every signal received.
func watchToggle(ctx context.Context, execCtx *execution.Context, signals <-chan os.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-signals:
			if !ok {
				return
			}

			execCtx.Toggle()
			execCtx.Logger().InfoContext(ctx, "Toggled by signal", "running", execCtx.IsRunning())
		}
	}
}

// pass runs the applications, at most one pass at a time.
type pass struct {
	runner *application.Runner
	mu     sync.Mutex
}

func newPass(runner *application.Runner) *pass {
	return &pass{runner: runner}
}

// Run executes a pass unless another one is in progress.
func (p *pass) Run(ctx context.Context) {
	p.TryRun(ctx)
}

// TryRun is Run reporting the summaries and whether the pass ran.
func (p *pass) TryRun(ctx context.Context) ([]application.Summary, bool) {
	if !p.mu.TryLock() {
		return nil, false
	}
	defer p.mu.Unlock()

	return p.runner.Run(ctx), true
}
