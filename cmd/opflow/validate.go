package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/dukex/opflow/pkg/execution"
	"github.com/dukex/opflow/pkg/script"
	cli "github.com/urfave/cli/v3"
)

func NewValidateCommand() *cli.Command {
	return &cli.Command{
		Name:    "validate",
		Aliases: []string{"v"},
		Usage:   "Parse and compile every script without running it",
		Flags:   []cli.Flag{scriptsFlag()},
		Action: func(ctx context.Context, command *cli.Command) error {
			logger := setupLogger(command).With("module", "opflow", "action", "validate")

			return validateScripts(ctx, logger, command.Root().Writer, command.String("scripts"))
		},
	}
}

func validateScripts(ctx context.Context, logger *slog.Logger, w io.Writer, dir string) error {
	docs, err := script.LoadDir(dir)
	if err != nil {
		return err
	}

	execCtx := execution.New(execution.WithLogger(logger))
	defer execCtx.Stop()

	var errs []error

	for _, doc := range docs {
		kind := "steps"
		if doc.Graph != nil {
			kind = "graph"
		}

		_, err := script.Compile(execCtx, doc)
		if err != nil {
			errs = append(errs, err)
			_, _ = fmt.Fprintf(w, "%s\tinvalid\t%v\n", doc.ID, err)

			continue
		}

		_, _ = fmt.Fprintf(w, "%s\tok\t%s\n", doc.ID, kind)
	}

	logger.InfoContext(ctx, "Scripts validated", "count", len(docs), "invalid", len(errs))

	return errors.Join(errs...)
}
