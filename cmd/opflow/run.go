package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/dukex/opflow/pkg/application"
	cli "github.com/urfave/cli/v3"
)

var ErrRunFailed = errors.New("some applications failed")

func NewRunCommand() *cli.Command {
	return &cli.Command{
		Name:    "run",
		Aliases: []string{"r"},
		Usage:   "Run every script once, skipping those already done in their period",
		Flags:   runtimeFlags(),
		Action: func(ctx context.Context, command *cli.Command) error {
			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger := setupLogger(command).With("module", "opflow", "action", "run")

			env, err := newEnvironment(ctx, command, logger)
			if err != nil {
				return err
			}
			defer env.Close(context.WithoutCancel(ctx))

			logger.InfoContext(ctx, "Starting run", "runId", env.execCtx.RunID())

			summaries := application.NewRunner(logger, env.registry.Applications()...).Run(ctx)

			return printSummaries(command.Root().Writer, summaries)
		},
	}
}

// printSummaries writes one line per application and returns ErrRunFailed
// when any of them failed.
func printSummaries(w io.Writer, summaries []application.Summary) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintln(tw, "APP\tRESULT\tSTATUS\tDURATION\tMESSAGE")

	failed := 0

	for _, s := range summaries {
		result := "ok"
		if !s.Result.Success {
			result = "failed"
			failed++
		}

		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", s.AppID, result, s.Result.Status, s.Duration.Round(time.Millisecond), s.Result.Message)
	}

	err := tw.Flush()
	if err != nil {
		return err
	}

	if failed > 0 {
		return fmt.Errorf("%w: %d of %d", ErrRunFailed, failed, len(summaries))
	}

	return nil
}
