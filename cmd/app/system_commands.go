package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/allisson/asherah/cmd/app/commands"
	"github.com/allisson/asherah/internal/app"
	"github.com/allisson/asherah/internal/config"
)

func getSystemCommands() []*cli.Command {
	return []*cli.Command{
		{
			Name:  "migrate",
			Usage: "Create the encryption_key table in the configured SQL database",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  "migrations-dir",
					Value: "migrations",
					Usage: "Directory holding the mysql and postgresql migration sets",
				},
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				return commands.RunMigrations(
					container.Logger(),
					cmd.String("migrations-dir"),
					cfg.SQLDriver,
					cfg.ConnectionString,
				)
			},
		},
		{
			Name:  "create-dynamodb-table",
			Usage: "Create the DynamoDB table used by the dynamodb metastore",
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				metastore, err := container.DynamoDBMetastore(ctx)
				if err != nil {
					return err
				}

				return commands.RunCreateDynamoDBTable(
					ctx,
					metastore,
					container.Logger(),
					commands.DefaultIO().Writer,
				)
			},
		},
		{
			Name:  "create-static-master-key",
			Usage: "Generate a random master key for the static KMS",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:    "format",
					Aliases: []string{"f"},
					Value:   "text",
					Usage:   "Output format: 'text' or 'json'",
				},
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return commands.RunCreateStaticMasterKey(commands.DefaultIO().Writer, cmd.String("format"))
			},
		},
	}
}
