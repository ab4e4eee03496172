package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/memohai/orderbot/internal/version"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "orderbot",
		Short:         "Chat order relay: dialogue, receipts and kitchen notifications",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().String("config", os.Getenv("CONFIG_PATH"), "Config file path (defaults to $CONFIG_PATH or config.toml).")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newMigrateCmd())
	cmd.AddCommand(newVersionCmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.Detailed())
		},
	}
}

func configPath(cmd *cobra.Command) string {
	path, _ := cmd.Flags().GetString("config")
	return path
}
