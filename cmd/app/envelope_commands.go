package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/allisson/asherah"
	"github.com/allisson/asherah/cmd/app/commands"
	"github.com/allisson/asherah/internal/config"
)

func getEnvelopeCommands() []*cli.Command {
	return []*cli.Command{
		{
			Name:  "encrypt",
			Usage: "Encrypt data for a partition and print the data row record as JSON",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     "partition",
					Aliases:  []string{"p"},
					Required: true,
					Usage:    "Partition ID",
				},
				&cli.StringFlag{
					Name:    "data",
					Aliases: []string{"d"},
					Usage:   "Plaintext to encrypt (read from stdin when omitted)",
				},
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				handle, err := asherah.Configure(ctx, *config.Load())
				if err != nil {
					return err
				}
				defer func() { _ = handle.Shutdown(ctx) }()

				return commands.RunEncrypt(
					ctx,
					handle,
					commands.DefaultIO(),
					cmd.String("partition"),
					cmd.String("data"),
				)
			},
		},
		{
			Name:  "decrypt",
			Usage: "Decrypt a data row record given as JSON and print the plaintext",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     "partition",
					Aliases:  []string{"p"},
					Required: true,
					Usage:    "Partition ID",
				},
				&cli.StringFlag{
					Name:    "record",
					Aliases: []string{"r"},
					Usage:   "Data row record JSON (read from stdin when omitted)",
				},
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				handle, err := asherah.Configure(ctx, *config.Load())
				if err != nil {
					return err
				}
				defer func() { _ = handle.Shutdown(ctx) }()

				return commands.RunDecrypt(
					ctx,
					handle,
					commands.DefaultIO(),
					cmd.String("partition"),
					cmd.String("record"),
				)
			},
		},
	}
}
