// Conference fixture server
//
// Serves a stand-in for the conferencing application: the UI the
// workflows drive, the room REST API and a receive-only WebRTC endpoint.
// Point confdrive or a browser at it to try scenarios locally.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/thesyncim/confdrive/cmd/conference-fixture/server"
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
	cfg := server.DefaultConfig()
	cfg.Addr = ":8080"
	var (
		secret  string
		logCfg  logging.Config
		timeout = 5 * time.Second
	)

	cmd := &cobra.Command{
		Use:           "conference-fixture",
		Short:         "Serve a stand-in conferencing application",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := logging.New(logCfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			cfg.Logger = logger.WithName("fixture")
			cfg.Secret = []byte(secret)

			srv, err := server.NewServer(cfg)
			if err != nil {
				return err
			}
			if _, err := srv.Start(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Conference fixture ready on %s\n", srv.URL())
			for email := range cfg.Users {
				fmt.Fprintf(cmd.OutOrStdout(), "  user: %s\n", email)
			}

			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			return nil
		},
	}
	cmd.SetOut(out)
	cmd.SetArgs(args)

	flags := cmd.Flags()
	flags.StringVar(&cfg.Addr, "addr", cfg.Addr, "Listen address")
	flags.StringVar(&cfg.Title, "title", cfg.Title, "Document title of the UI pages")
	flags.StringToStringVar(&cfg.Users, "user", cfg.Users, "Login accounts as email=password")
	flags.StringVar(&secret, "secret", "", "Token signing secret; random if empty")
	flags.DurationVar(&timeout, "shutdown-timeout", timeout, "Grace period for open connections on exit")
	logging.LoadConfigFromFlags(flags, &logCfg)

	return cmd.ExecuteContext(ctx)
}
