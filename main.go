package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/anicoll/arduino-bridge/cmd"
)

func main() {
	app := &cli.App{
		Name:   "arduino-bridge",
		Usage:  "exposes Arduino IoT Cloud properties as HomeKit accessories",
		Action: cmd.BridgeCommand,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "client-id",
				EnvVars:  []string{"CLIENT_ID"},
				Required: true,
			},
			&cli.StringFlag{
				Name:     "client-secret",
				EnvVars:  []string{"CLIENT_SECRET"},
				Required: true,
			},
			&cli.StringFlag{
				Name:    "bridge-name",
				EnvVars: []string{"BRIDGE_NAME"},
				Value:   "Arduino IoT Cloud",
			},
			&cli.StringFlag{
				Name:    "homekit-pin",
				EnvVars: []string{"HOMEKIT_PIN"},
				Value:   "00102003",
			},
			&cli.StringFlag{
				Name:    "homekit-storage",
				EnvVars: []string{"HOMEKIT_STORAGE"},
				Value:   "./db",
			},
			&cli.StringFlag{
				Name:    "homekit-addr",
				EnvVars: []string{"HOMEKIT_ADDR"},
				Value:   "",
			},
			&cli.StringFlag{
				Name:    "discovery-schedule",
				EnvVars: []string{"DISCOVERY_SCHEDULE"},
				Value:   "@every 5m",
			},
			&cli.StringFlag{
				Name:    "status-addr",
				EnvVars: []string{"STATUS_ADDR"},
				Value:   "0.0.0.0:8000",
			},
			&cli.StringFlag{
				Name:    "status-token",
				EnvVars: []string{"STATUS_TOKEN"},
				Value:   "",
			},
			&cli.StringFlag{
				Name:    "database-url",
				EnvVars: []string{"DATABASE_URL"},
				Value:   "",
			},
			&cli.StringFlag{
				Name:    "migrations-folder",
				EnvVars: []string{"MIGRATIONS_FOLDER"},
				Value:   "./migrations",
			},
			&cli.DurationFlag{
				Name:    "retention",
				EnvVars: []string{"RETENTION"},
				Value:   8 * 24 * time.Hour,
			},
			&cli.StringFlag{
				Name:    "log-level",
				EnvVars: []string{"LOG_LEVEL"},
				Value:   "INFO",
			},
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.RunContext(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
