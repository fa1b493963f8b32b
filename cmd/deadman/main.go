package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"deadman/internal/app"
	logx "deadman/pkg/logx"

	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const stopTimeout = 10 * time.Second

func main() {
	if err := rootCmd().ExecuteContext(context.Background()); err != nil {
		logx.NewConsole("INFO").Error("fatal", logx.Err(err))
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deadman <config-file>",
		Short: "Alert by mail when a host stops answering",
		Long: "deadman probes a host on a fixed cadence and sends the configured alert " +
			"once the host has failed max_fail consecutive probes.",
		Version:       version,
		Args:          cobra.ExactArgs(1),
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), args[0])
		},
	}
}

func run(ctx context.Context, cfgPath string) error {
	a, err := app.New(cfgPath)
	if err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	if err := a.Start(ctx); err != nil {
		_ = a.Stop(context.Background(), app.StopFatalError)
		return err
	}

	reason := app.StopUnknown
	select {
	case sig := <-sigCh:
		reason = app.ReasonForSignal(sig)
	case <-a.Done():
		reason = app.StopFatalError
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	return a.Stop(stopCtx, reason)
}
