package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/opflow/pkg/cmd"
	"github.com/dukex/opflow/pkg/dryrun"
	"github.com/dukex/opflow/pkg/eventbus"
	"github.com/dukex/opflow/pkg/execution"
	"github.com/dukex/opflow/pkg/history"
	"github.com/dukex/opflow/pkg/log"
	"github.com/dukex/opflow/pkg/otelhelper"
	"github.com/dukex/opflow/pkg/persistence"
	cli "github.com/urfave/cli/v3"
)

const serviceName = "opflow"

// environment wires everything a run needs: persistence, events, the execution
// context and the compiled scripts.
type environment struct {
	logger      *slog.Logger
	execCtx     *execution.Context
	persistence persistence.Persistence
	eventBus    eventbus.EventBus
	registry    *cmd.Registry
	closers     []func(ctx context.Context) error
}

func setupLogger(command *cli.Command) *slog.Logger {
	return log.Setup(command.String("log-level"), command.String("log-format"))
}

func openPersistence(ctx context.Context, logger *slog.Logger, command *cli.Command) (persistence.Persistence, error) {
	store, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
	if err != nil {
		return nil, fmt.Errorf("failed to open persistence: %w", err)
	}

	return store, nil
}

func newEnvironment(ctx context.Context, command *cli.Command, logger *slog.Logger) (_ *environment, err error) {
	env := &environment{logger: logger}

	defer func() {
		if err != nil {
			env.Close(context.WithoutCancel(ctx))
		}
	}()

	env.persistence, err = openPersistence(ctx, logger, command)
	if err != nil {
		return nil, err
	}

	env.closers = append(env.closers, env.persistence.Close)

	env.eventBus, err = cmd.NewEventBus(command.String("event-bus"), command.String("kafka-brokers"), logger)
	if err != nil {
		return nil, err
	}

	env.closers = append(env.closers, func(context.Context) error { return env.eventBus.Close() })

	err = history.NewRecorder(env.persistence.OperationRecordRepository(), logger).Register(env.eventBus)
	if err != nil {
		return nil, err
	}

	err = env.eventBus.Subscribe(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to event bus: %w", err)
	}

	opts := []execution.Option{
		execution.WithLogger(logger),
		execution.WithPublisher(env.eventBus),
	}

	if command.Bool("otel") {
		tracer, shutdown, err := otelhelper.NewTracer(ctx, otelhelper.Config{
			ServiceName: serviceName,
			Endpoint:    command.String("otel-endpoint"),
			Insecure:    command.Bool("otel-insecure"),
			SampleRatio: command.Float("otel-sample-ratio"),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize tracer: %w", err)
		}

		env.closers = append(env.closers, shutdown)
		opts = append(opts, execution.WithTracer(tracer))
	}

	if areas := dryrun.ParseAreas(command.String("assume-areas")); len(areas) > 0 {
		logger.WarnContext(ctx, "Using dry-run collaborators", "areas", areas)
		opts = append(opts, dryrun.New(logger, areas...).Options()...)
	} else {
		logger.WarnContext(ctx, "No screen collaborators configured, units will fail with no_collaborator")
	}

	env.execCtx = execution.New(opts...)

	env.registry, err = cmd.NewRegistry(ctx, logger, env.execCtx, env.persistence.RunRecordRepository(),
		command.String("scripts"), command.String("templates"))
	if err != nil {
		return nil, err
	}

	env.closers = append(env.closers, func(context.Context) error {
		env.registry.Close()

		return nil
	})

	return env, nil
}

// Close releases resources in reverse order of acquisition.
func (env *environment) Close(ctx context.Context) {
	if env.execCtx != nil {
		env.execCtx.Stop()
	}

	for i := len(env.closers) - 1; i >= 0; i-- {
		err := env.closers[i](ctx)
		if err != nil {
			env.logger.ErrorContext(ctx, "Failed to close resource", "error", err)
		}
	}
}
