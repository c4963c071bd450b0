// confdrive drives the conferencing application from the command line.
//
// Usage:
//
//	confdrive smoke --url https://localhost --email owner@example.com --password secret
//	confdrive bot --url https://localhost/room/<id> --name bot1 --duration 10m
//
// The smoke command runs the room creation and publishing scenario once and
// exits non-zero on failure. The bot command joins a room as a publishing
// participant until the duration elapses or it is interrupted.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"

	"github.com/thesyncim/confdrive/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	g := newGlobals()

	cmd := &cobra.Command{
		Use:           "confdrive",
		Short:         "Drive the conferencing application through a browser",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := logging.New(g.log, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			g.logger = logger
			return nil
		},
	}
	cmd.SetOut(out)
	cmd.SetArgs(args)
	g.addFlags(cmd)

	cmd.AddCommand(newSmokeCommand(g), newBotCommand(g))
	return cmd.ExecuteContext(ctx)
}

// loggerOrDiscard guards against commands run without the root's pre-run.
func loggerOrDiscard(log logr.Logger) logr.Logger {
	if log.GetSink() == nil {
		return logr.Discard()
	}
	return log
}
