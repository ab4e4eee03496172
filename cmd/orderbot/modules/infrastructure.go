package modules

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/fx"

	dbembed "github.com/memohai/orderbot/db"
	"github.com/memohai/orderbot/internal/boot"
	"github.com/memohai/orderbot/internal/config"
	"github.com/memohai/orderbot/internal/conversation"
	"github.com/memohai/orderbot/internal/db"
	"github.com/memohai/orderbot/internal/logger"
	"github.com/memohai/orderbot/internal/records"
)

// ConfigPath is the TOML file the application is built from.
type ConfigPath string

var InfraModule = fx.Module(
	"infra",
	fx.Provide(
		provideConfig,
		provideLogger,
		boot.ProvideRuntimeConfig,
		provideConversationStore,
		provideRecords,
	),
)

// ---------------------------------------------------------------------------
// infrastructure providers
// ---------------------------------------------------------------------------

func provideConfig(path ConfigPath) (config.Config, error) {
	cfg, err := config.Load(string(path))
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

// provideConversationStore builds the store on the configured persister and
// loads the saved document on start.
func provideConversationStore(lc fx.Lifecycle, log *slog.Logger, cfg config.Config) (*conversation.Store, error) {
	var persister conversation.Persister
	switch strings.ToLower(strings.TrimSpace(cfg.State.Backend)) {
	case "", "file":
		p, err := conversation.NewFilePersister(cfg.State.Path)
		if err != nil {
			return nil, fmt.Errorf("conversation file: %w", err)
		}
		persister = p
	case "postgres":
		pool, err := provideDBConn(lc, log, cfg)
		if err != nil {
			return nil, err
		}
		p, err := conversation.NewPGPersister(pool, "")
		if err != nil {
			return nil, err
		}
		persister = p
	case "memory":
	default:
		return nil, fmt.Errorf("unsupported state backend: %q", cfg.State.Backend)
	}

	store := conversation.NewStore(log, persister)
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return store.Load(ctx)
		},
		OnStop: func(ctx context.Context) error {
			return store.Flush(ctx)
		},
	})
	return store, nil
}

// provideDBConn opens the pool and brings the snapshot schema up to date.
func provideDBConn(lc fx.Lifecycle, log *slog.Logger, cfg config.Config) (*pgxpool.Pool, error) {
	migrations, err := dbembed.Migrations()
	if err != nil {
		return nil, fmt.Errorf("migrations: %w", err)
	}
	if err := db.RunMigrate(log, cfg.Postgres, migrations, "up", nil); err != nil {
		return nil, err
	}
	conn, err := db.Open(context.Background(), cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			conn.Close()
			return nil
		},
	})
	return conn, nil
}

func provideRecords(lc fx.Lifecycle, log *slog.Logger, cfg config.Config, rc *boot.RuntimeConfig) (records.Store, error) {
	switch rc.RecordsBackend {
	case "sqlite":
		s, err := records.OpenSQLite(cfg.Records.SQLite.Path)
		if err != nil {
			return nil, err
		}
		lc.Append(fx.Hook{
			OnStop: func(context.Context) error {
				return s.Close()
			},
		})
		return s, nil
	default:
		return records.NewAirtable(log, records.AirtableOptions{
			BaseURL: cfg.Records.Airtable.BaseURL,
			APIKey:  rc.AirtableAPIKey,
			BaseID:  rc.AirtableBaseID,
			Table:   cfg.Records.Airtable.Table,
			Timeout: rc.RecordsTimeout,
		})
	}
}
