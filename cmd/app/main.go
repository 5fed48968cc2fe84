// Package main provides the asherah command line tool.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"
)

// Build-time version information (injected via ldflags).
var version = "dev"

func main() {
	cmd := &cli.Command{
		Name:     "asherah",
		Usage:    "Envelope encryption with managed key rotation",
		Version:  version,
		Commands: getCommands(),
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.Any("error", err))
		os.Exit(1)
	}
}
