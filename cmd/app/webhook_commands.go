package main

import (
	"context"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/bowerbird-app/captain-hook-sub004/cmd/app/commands"
	"github.com/bowerbird-app/captain-hook-sub004/internal/app"
	"github.com/bowerbird-app/captain-hook-sub004/internal/config"
)

func formatFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Value:   "text",
		Usage:   "Output format: 'text' or 'json'",
	}
}

func getWebhookCommands() []*cli.Command {
	return []*cli.Command{
		{
			Name:  "sync-providers",
			Usage: "Upsert providers from the webhook config file into the database",
			Flags: []cli.Flag{formatFlag()},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				file, err := container.WebhookFile()
				if err != nil {
					return err
				}

				providerUseCase, err := container.ProviderUseCase()
				if err != nil {
					return err
				}

				return commands.RunSyncProviders(
					ctx,
					providerUseCase,
					file,
					container.WebhookDefaults(),
					container.Logger(),
					commands.DefaultIO().Writer,
					cmd.String("format"),
				)
			},
		},
		{
			Name:  "archive-events",
			Usage: "Archive finished incoming and outgoing events older than specified days",
			Flags: []cli.Flag{
				&cli.IntFlag{
					Name:    "days",
					Aliases: []string{"d"},
					Value:   -1,
					Usage:   "Archive events older than this many days (defaults to ARCHIVE_RETENTION)",
				},
				&cli.BoolFlag{
					Name:    "dry-run",
					Aliases: []string{"n"},
					Value:   false,
					Usage:   "Show how many events would be archived without archiving",
				},
				formatFlag(),
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				maintenanceUseCase, err := container.MaintenanceUseCase()
				if err != nil {
					return err
				}

				days := int(cmd.Int("days"))
				if !cmd.IsSet("days") {
					days = int(cfg.ArchiveRetention / (24 * time.Hour))
				}

				return commands.RunArchiveEvents(
					ctx,
					maintenanceUseCase,
					container.Logger(),
					commands.DefaultIO().Writer,
					days,
					cmd.Bool("dry-run"),
					cmd.String("format"),
				)
			},
		},
		{
			Name:  "sweep-locks",
			Usage: "Release action locks and interrupted deliveries older than the lock timeout",
			Flags: []cli.Flag{
				&cli.DurationFlag{
					Name:  "older-than",
					Usage: "Release locks and deliveries older than this duration (defaults to LOCK_TIMEOUT)",
				},
				&cli.IntFlag{
					Name:  "limit",
					Value: 100,
					Usage: "Maximum number of actions and of deliveries to release",
				},
				formatFlag(),
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				dispatcher, err := container.DispatchUseCase()
				if err != nil {
					return err
				}

				delivery, err := container.DeliveryUseCase()
				if err != nil {
					return err
				}

				olderThan := cmd.Duration("older-than")
				if olderThan == 0 {
					olderThan = cfg.LockTimeout
				}

				return commands.RunSweepLocks(
					ctx,
					dispatcher,
					delivery,
					container.Logger(),
					commands.DefaultIO().Writer,
					olderThan,
					int(cmd.Int("limit")),
					cmd.String("format"),
				)
			},
		},
		{
			Name:  "replay-event",
			Usage: "Re-run every handler bound to an incoming event",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     "id",
					Aliases:  []string{"i"},
					Required: true,
					Usage:    "Incoming event ID (UUID)",
				},
				formatFlag(),
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				eventUseCase, err := container.EventUseCase()
				if err != nil {
					return err
				}

				return commands.RunReplayEvent(
					ctx,
					eventUseCase,
					container.Logger(),
					commands.DefaultIO().Writer,
					cmd.String("id"),
					cmd.String("format"),
				)
			},
		},
	}
}
