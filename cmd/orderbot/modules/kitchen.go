package modules

import (
	"context"
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/fx"

	"github.com/memohai/orderbot/internal/boot"
	"github.com/memohai/orderbot/internal/config"
	"github.com/memohai/orderbot/internal/notify"
	"github.com/memohai/orderbot/internal/reconcile"
	"github.com/memohai/orderbot/internal/records"
)

var KitchenModule = fx.Module(
	"kitchen",
	fx.Provide(
		provideFanout,
		provideReconcileLoop,
	),
	fx.Invoke(startReconcileLoop),
)

// provideFanout builds one notifier per recipient kind in use.
func provideFanout(log *slog.Logger, cfg config.Config, rc *boot.RuntimeConfig, bot *tgbotapi.BotAPI) (*notify.Fanout, error) {
	recipients, err := notify.ParseRecipients(rc.Recipients)
	if err != nil {
		return nil, err
	}
	notifiers := map[string]notify.Notifier{}
	for _, r := range recipients {
		if _, ok := notifiers[r.Kind]; ok {
			continue
		}
		switch r.Kind {
		case notify.KindTelegram:
			if bot == nil {
				return nil, fmt.Errorf("recipient %s needs a telegram bot", r)
			}
			notifiers[r.Kind] = notify.NewTelegram(log, bot)
		case notify.KindSlack:
			notifiers[r.Kind] = notify.NewSlack(rc.SlackToken)
		}
	}
	return notify.NewFanout(recipients, notifiers, cfg.Kitchen.RatePerSec)
}

func provideReconcileLoop(log *slog.Logger, recs records.Store, fanout *notify.Fanout, cfg config.Config, rc *boot.RuntimeConfig) (*reconcile.Loop, error) {
	return reconcile.NewLoop(log, recs, fanout, reconcile.Options{
		Interval:     rc.ReconcileInterval,
		SeenCapacity: cfg.Reconcile.SeenCapacity,
		Timeout:      rc.RecordsTimeout,
	})
}

func startReconcileLoop(lc fx.Lifecycle, loop *reconcile.Loop) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return loop.Start(context.WithoutCancel(ctx))
		},
		OnStop: func(ctx context.Context) error {
			return loop.Stop(ctx)
		},
	})
}
