package modules

import (
	"context"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/fx"

	"github.com/memohai/orderbot/internal/boot"
	"github.com/memohai/orderbot/internal/channel"
	"github.com/memohai/orderbot/internal/channel/adapters/telegram"
	"github.com/memohai/orderbot/internal/channel/adapters/whapi"
	"github.com/memohai/orderbot/internal/config"
	"github.com/memohai/orderbot/internal/inbound"
)

var ChannelModule = fx.Module(
	"channel",
	fx.Provide(
		provideTelegramBot,
		provideWhapiAdapter,
		provideChannelManager,
	),
	fx.Invoke(startChannelManager),
)

// provideTelegramBot returns nil when Telegram is not configured. The bot is
// shared by the customer transport and the kitchen notifier.
func provideTelegramBot(log *slog.Logger, rc *boot.RuntimeConfig) (*tgbotapi.BotAPI, error) {
	if strings.TrimSpace(rc.TelegramToken) == "" {
		return nil, nil
	}
	return telegram.NewBot(log, rc.TelegramToken)
}

// provideWhapiAdapter returns nil when WhatsApp is not configured.
func provideWhapiAdapter(log *slog.Logger, cfg config.Config, rc *boot.RuntimeConfig) (*whapi.Adapter, error) {
	if strings.TrimSpace(rc.WhapiToken) == "" {
		return nil, nil
	}
	return whapi.NewAdapter(log, whapi.Options{
		BaseURL:      cfg.Whapi.BaseURL,
		Token:        rc.WhapiToken,
		Poll:         cfg.Whapi.Poll,
		PollInterval: rc.WhapiPollInterval,
	})
}

func provideChannelManager(log *slog.Logger, cfg config.Config, bot *tgbotapi.BotAPI, wa *whapi.Adapter) *channel.Manager {
	manager := channel.NewManager(log, cfg.Inbound.Workers)
	if bot != nil {
		manager.RegisterAdapter(telegram.NewTelegramAdapter(log, bot))
	}
	if wa != nil {
		manager.RegisterAdapter(wa)
	}
	return manager
}

// startChannelManager attaches the processor last: it depends on the manager
// through the reminder service.
func startChannelManager(lc fx.Lifecycle, manager *channel.Manager, processor *inbound.Processor) {
	manager.SetProcessor(processor)
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			manager.Start(context.WithoutCancel(ctx))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return manager.Shutdown(ctx)
		},
	})
}
