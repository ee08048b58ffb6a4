package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"paperlib/internal/app"
	"paperlib/internal/config"
	"paperlib/internal/logger"
	"paperlib/internal/middleware"
)

var verbose bool

func main() {
	root := &cobra.Command{
		Use:           "paperlib",
		Short:         "Research paper library: lifecycle, chunk index sync and cited answers",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			slog.SetDefault(logger.New(os.Stderr, verbose))
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(serveCmd())
	root.AddCommand(askCmd())
	root.AddCommand(mcpCmd())
	root.AddCommand(classifyCmd())
	root.AddCommand(syncCmd())
	root.AddCommand(refreshCmd())
	root.AddCommand(flagsCmd())
	root.AddCommand(exportCmd())
	root.AddCommand(importCmd())

	if err := root.Execute(); err != nil {
		slog.Error("command failed", "command", os.Args[1:], "error", err)
		os.Exit(1)
	}
}

// withApp loads config, bootstraps the backends and hands a wired App to fn.
// Each invocation gets its own correlation ID.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = middleware.WithCorrelationID(ctx, middleware.NewCorrelationID())
	ctx = middleware.WithOperation(ctx, cmd.Name())

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	deps, err := app.Bootstrap(ctx, cfg)
	if err != nil {
		return err
	}
	defer deps.Close()

	a, err := app.New(cfg, deps.DB, deps.Index)
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(ctx, a)
}
