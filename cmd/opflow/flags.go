package main

import (
	cli "github.com/urfave/cli/v3"
)

func scriptsFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:     "scripts",
		Aliases:  []string{"s"},
		Usage:    "Directory containing the routine scripts",
		Required: true,
		Sources:  cli.EnvVars("SCRIPTS_PATH"),
	}
}

func scriptFlags() []cli.Flag {
	return []cli.Flag{
		scriptsFlag(),
		&cli.StringFlag{
			Name:    "templates",
			Usage:   "Directory containing recognition templates to preheat",
			Sources: cli.EnvVars("TEMPLATES_PATH"),
		},
	}
}

func runtimeFlags() []cli.Flag {
	return append(scriptFlags(),
		&cli.StringFlag{
			Name:    "event-bus",
			Usage:   "Event bus type (gochannel, kafka)",
			Value:   "gochannel",
			Sources: cli.EnvVars("EVENT_BUS_TYPE"),
		},
		&cli.StringFlag{
			Name:    "kafka-brokers",
			Usage:   "Comma separated Kafka brokers",
			Value:   "localhost:9092",
			Sources: cli.EnvVars("KAFKA_BROKERS"),
		},
		&cli.StringFlag{
			Name:    "assume-areas",
			Usage:   "Drive routines against a dry-run backend on which these comma separated areas are visible",
			Sources: cli.EnvVars("ASSUME_AREAS"),
		},
		&cli.BoolFlag{
			Name:    "otel",
			Usage:   "Export traces through OTLP/HTTP",
			Sources: cli.EnvVars("OTEL_ENABLED"),
		},
		&cli.StringFlag{
			Name:    "otel-endpoint",
			Usage:   "OTLP/HTTP collector host:port (defaults to the OTEL_EXPORTER_OTLP_* environment)",
			Sources: cli.EnvVars("OTEL_ENDPOINT"),
		},
		&cli.BoolFlag{
			Name:    "otel-insecure",
			Usage:   "Send traces over plain HTTP",
			Sources: cli.EnvVars("OTEL_INSECURE"),
		},
		&cli.FloatFlag{
			Name:    "otel-sample-ratio",
			Usage:   "Fraction of runs to trace, 1 traces all",
			Value:   1,
			Sources: cli.EnvVars("OTEL_SAMPLE_RATIO"),
		},
	)
}
