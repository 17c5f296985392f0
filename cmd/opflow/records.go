package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dukex/opflow/pkg/models"
	"github.com/dukex/opflow/pkg/persistence"
	"github.com/dukex/opflow/pkg/web"
	"github.com/go-playground/validator/v10"
	cli "github.com/urfave/cli/v3"
)

var ErrMissingArgument = errors.New("missing argument")

func NewRecordsCommand() *cli.Command {
	return &cli.Command{
		Name:  "records",
		Usage: "Inspect and edit application run records",
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List run records with their status as of now",
				Action: withStore(listRecords),
			},
			{
				Name:      "set",
				Usage:     "Set the status of a run record (wait, success, fail)",
				ArgsUsage: "<app-id> <status>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "reset",
						Usage: "Cron expression of the reset window for a new record",
						Value: models.DailyReset,
					},
				},
				Action: withStore(setRecord),
			},
			{
				Name:      "clear",
				Usage:     "Delete a run record so the application runs again",
				ArgsUsage: "<app-id>",
				Action:    withStore(clearRecord),
			},
		},
	}
}

type storeAction func(ctx context.Context, command *cli.Command, store persistence.Persistence) error

func withStore(action storeAction) cli.ActionFunc {
	return func(ctx context.Context, command *cli.Command) error {
		logger := setupLogger(command).With("module", "opflow", "action", "records")

		store, err := openPersistence(ctx, logger, command)
		if err != nil {
			return err
		}

		defer func() {
			err := store.Close(ctx)
			if err != nil {
				logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
			}
		}()

		return action(ctx, command, store)
	}
}

func listRecords(ctx context.Context, command *cli.Command, store persistence.Persistence) error {
	records, err := store.RunRecordRepository().List(ctx)
	if err != nil {
		return err
	}

	return printRecords(command.Root().Writer, records, time.Now())
}

func printRecords(w io.Writer, records []*models.AppRunRecord, now time.Time) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintln(tw, "APP\tSTATUS\tSTORED\tDATE\tRESET\tUPDATED")

	for _, r := range records {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.AppID, r.StatusAt(now), r.Status, r.Date, r.Reset, r.UpdatedAt.Format(time.RFC3339))
	}

	return tw.Flush()
}

func setRecord(ctx context.Context, command *cli.Command, store persistence.Persistence) error {
	appID, status := command.Args().Get(0), command.Args().Get(1)
	if appID == "" || status == "" {
		return fmt.Errorf("%w: usage: records set <app-id> <status>", ErrMissingArgument)
	}

	req := web.UpdateRecordRequest{Status: models.RunStatus(status)}

	err := validator.New(validator.WithRequiredStructEnabled()).Struct(req)
	if err != nil {
		return fmt.Errorf("invalid status %q: %w", status, err)
	}

	record, err := updateRecord(ctx, store.RunRecordRepository(), appID, command.String("reset"), req.Status, time.Now())
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(command.Root().Writer, "%s: %s\n", record.AppID, record.Status)

	return err
}

// updateRecord sets the status of a record, creating it with reset when missing.
func updateRecord(
	ctx context.Context,
	repo persistence.RunRecordRepository,
	appID, reset string,
	status models.RunStatus,
	now time.Time,
) (*models.AppRunRecord, error) {
	record, err := repo.Get(ctx, appID)

	switch {
	case persistence.IsRunRecordNotFound(err):
		record = models.NewAppRunRecord(appID, reset, now)
	case err != nil:
		return nil, err
	}

	record.Update(status, now)

	err = record.Validate()
	if err != nil {
		return nil, err
	}

	err = repo.Save(ctx, record)
	if err != nil {
		return nil, err
	}

	return record, nil
}

func clearRecord(ctx context.Context, command *cli.Command, store persistence.Persistence) error {
	appID := command.Args().First()
	if appID == "" {
		return fmt.Errorf("%w: usage: records clear <app-id>", ErrMissingArgument)
	}

	err := store.RunRecordRepository().Delete(ctx, appID)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(command.Root().Writer, "%s: cleared\n", appID)

	return err
}
