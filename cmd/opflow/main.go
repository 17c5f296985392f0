package main

import (
	"context"
	"fmt"
	"os"

	cli "github.com/urfave/cli/v3"
)

const (
	defaultPort     = 9091
	defaultDataPath = "./data"
)

func main() {
	err := newCommand().Run(context.Background(), os.Args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newCommand() *cli.Command {
	return &cli.Command{
		Name:                  "opflow",
		Usage:                 "Run and supervise screen automation routines",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.StringFlag{
				Name:    "log-format",
				Usage:   "Log format (text, json)",
				Value:   "text",
				Sources: cli.EnvVars("LOG_FORMAT"),
			},
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Persistence URL (directory, postgres://, redis://)",
				Value:   defaultDataPath,
				Sources: cli.EnvVars("DATABASE_URL"),
			},
		},
		Commands: []*cli.Command{
			NewRunCommand(),
			NewServeCommand(),
			NewRecordsCommand(),
			NewValidateCommand(),
		},
	}
}
