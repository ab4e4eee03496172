package main

import (
	"log/slog"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/memohai/orderbot/cmd/orderbot/modules"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the relay: transports, reconcile loop and HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app := newApp(configPath(cmd))
			if err := app.Err(); err != nil {
				return err
			}
			app.Run()
			return nil
		},
	}
}

func newApp(path string) *fx.App {
	return fx.New(
		fx.Supply(modules.ConfigPath(path)),
		modules.InfraModule,
		modules.DomainModule,
		modules.ChannelModule,
		modules.KitchenModule,
		modules.ServerModule,
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
	)
}
