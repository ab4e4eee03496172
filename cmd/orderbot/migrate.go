package main

import (
	"fmt"

	"github.com/spf13/cobra"

	dbembed "github.com/memohai/orderbot/db"
	"github.com/memohai/orderbot/internal/config"
	"github.com/memohai/orderbot/internal/db"
	"github.com/memohai/orderbot/internal/logger"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "migrate <up|down|version|force N>",
		Short:     "Run Postgres migrations for the conversation snapshot",
		Args:      cobra.RangeArgs(1, 2),
		ValidArgs: []string{"up", "down", "version", "force"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath(cmd))
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger.Init(cfg.Log.Level, cfg.Log.Format)
			migrations, err := dbembed.Migrations()
			if err != nil {
				return fmt.Errorf("migrations: %w", err)
			}
			return db.RunMigrate(logger.L, cfg.Postgres, migrations, args[0], args[1:])
		},
	}
}
