package modules

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.uber.org/fx"

	"github.com/memohai/orderbot/internal/attachment"
	"github.com/memohai/orderbot/internal/boot"
	"github.com/memohai/orderbot/internal/catalog"
	"github.com/memohai/orderbot/internal/channel"
	"github.com/memohai/orderbot/internal/config"
	"github.com/memohai/orderbot/internal/conversation"
	"github.com/memohai/orderbot/internal/dialogue"
	"github.com/memohai/orderbot/internal/inbound"
	"github.com/memohai/orderbot/internal/llm"
	"github.com/memohai/orderbot/internal/receipt"
	"github.com/memohai/orderbot/internal/records"
	"github.com/memohai/orderbot/internal/reminder"
)

var DomainModule = fx.Module(
	"domain",
	fx.Provide(
		provideCatalog,
		provideLLMClient,
		dialogue.NewPrompts,
		provideReminders,
		provideEngine,
		provideUploader,
		provideIntake,
		provideProcessor,
	),
)

func provideCatalog(cfg config.Config) (*catalog.Catalog, error) {
	return catalog.Load(cfg.Catalog.Path)
}

func provideLLMClient(log *slog.Logger, cfg config.Config, rc *boot.RuntimeConfig) (*llm.Client, error) {
	return llm.NewClient(log, llm.Options{
		BaseURL:       cfg.LLM.BaseURL,
		APIKey:        rc.LLMAPIKey,
		Model:         cfg.LLM.Model,
		MaxTokens:     cfg.LLM.MaxTokens,
		Temperature:   cfg.LLM.Temperature,
		Timeout:       rc.LLMTimeout,
		DisableSearch: cfg.LLM.DisableSearch,
	})
}

// provideReminders sends reminders through the channel manager.
func provideReminders(lc fx.Lifecycle, log *slog.Logger, store *conversation.Store, manager *channel.Manager, rc *boot.RuntimeConfig) *reminder.Service {
	svc := reminder.NewService(log, store, manager, rc.ReminderDelay)
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			svc.Stop()
			return nil
		},
	})
	return svc
}

func provideEngine(log *slog.Logger, store *conversation.Store, client *llm.Client, prompts *dialogue.Prompts, reminders *reminder.Service) (*dialogue.Engine, error) {
	return dialogue.NewEngine(log, store, client, prompts, reminders)
}

// provideUploader returns nil when no durable receipt storage is configured.
func provideUploader(log *slog.Logger, cfg config.Config, rc *boot.RuntimeConfig) (attachment.Uploader, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Attachment.Backend)) {
	case "":
		return nil, nil
	case "dropbox":
		return attachment.NewDropbox(log, attachment.DropboxOptions{
			AccessToken: rc.DropboxToken,
			Folder:      cfg.Attachment.Dropbox.Folder,
		})
	case "s3":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return attachment.NewS3(ctx, attachment.S3Options{
			Bucket:        cfg.Attachment.S3.Bucket,
			Region:        cfg.Attachment.S3.Region,
			Endpoint:      cfg.Attachment.S3.Endpoint,
			Prefix:        cfg.Attachment.S3.Prefix,
			PublicBaseURL: cfg.Attachment.S3.PublicBaseURL,
		})
	default:
		return nil, fmt.Errorf("unsupported attachment backend: %q", cfg.Attachment.Backend)
	}
}

func provideIntake(log *slog.Logger, store *conversation.Store, recs records.Store, uploader attachment.Uploader, rc *boot.RuntimeConfig) (*receipt.Intake, error) {
	opts := receipt.Options{Timeout: rc.RecordsTimeout}
	if uploader != nil {
		opts.Uploader = uploader
		opts.Fetcher = attachment.NewDownloader(30*time.Second, attachment.DefaultMaxBytes)
	}
	return receipt.NewIntake(log, store, recs, opts)
}

func provideProcessor(log *slog.Logger, engine *dialogue.Engine, intake *receipt.Intake, store *conversation.Store, recs records.Store, cfg config.Config) (*inbound.Processor, error) {
	return inbound.NewProcessor(log, engine, intake, store, recs, inbound.Options{
		GateCapacity: cfg.Inbound.GateCapacity,
		Workers:      cfg.Inbound.Workers,
	})
}
