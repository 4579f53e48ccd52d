// campoctl is the operator console for the dependency gateway.
//
// Usage:
//
//	campoctl [global options] <command> [command options]
//
// Global options:
//
//	--mongo-uri      MongoDB connection string (default: mongodb://localhost:27017)
//	--db             database name (default: campotech)
//	--config, -c     gateway config file for budget limits and pricing
//	--timeout, -t    per-command timeout (default: 15s)
//
// Commands:
//
//	records list     list an organization's pending fallback records
//	records count    count an organization's pending fallback records
//	records assign   claim a fallback record for an operator
//	records resolve  close a fallback record with a resolution note
//	records expire   sweep stale pending records to expired
//	usage list       list an organization's usage records for a window
//	usage budget     show an organization's budget posture
//
// Exit codes:
//
//	0: success
//	1: command failed
//	2: usage error (missing/invalid arguments)
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"
)

const defaultTimeout = 15 * time.Second

// Build metadata, injected with -ldflags "-X main.Version=...".
var (
	Version   = "0.1.0-dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

func main() {
	os.Exit(run())
}

func createApp() *cli.Command {
	return &cli.Command{
		Name:    "campoctl",
		Usage:   "operator console for the dependency gateway",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildTime),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "mongo-uri",
				Usage: "MongoDB connection string",
				Value: "mongodb://localhost:27017",
			},
			&cli.StringFlag{
				Name:  "db",
				Usage: "database name",
				Value: "campotech",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "gateway config file (budget limits, pricing)",
			},
			&cli.DurationFlag{
				Name:    "timeout",
				Aliases: []string{"t"},
				Usage:   "per-command timeout",
				Value:   defaultTimeout,
			},
		},
		Commands:       createCommands(),
		DefaultCommand: "help",
		ExitErrHandler: func(_ context.Context, _ *cli.Command, err error) {
			// run() owns exit-code mapping; just surface the message.
			if _, ok := err.(cli.ExitCoder); ok {
				fmt.Fprintln(os.Stderr, err)
			}
		},
	}
}

func run() int {
	app := createApp()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		cancel()
	}()

	if err := app.Run(ctx, os.Args); err != nil {
		var usageErr *usageError
		if errors.As(err, &usageErr) {
			fmt.Fprintf(os.Stderr, "usage error: %v\n", usageErr)
			return 2
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}
