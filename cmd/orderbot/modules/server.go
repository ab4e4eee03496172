package modules

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"go.uber.org/fx"

	"github.com/memohai/orderbot/internal/boot"
	"github.com/memohai/orderbot/internal/channel"
	"github.com/memohai/orderbot/internal/channel/adapters/whapi"
	"github.com/memohai/orderbot/internal/conversation"
	"github.com/memohai/orderbot/internal/handlers"
	"github.com/memohai/orderbot/internal/records"
	"github.com/memohai/orderbot/internal/server"
	"github.com/memohai/orderbot/internal/version"
)

var ServerModule = fx.Module(
	"server",
	fx.Provide(
		provideServerHandler(handlers.NewPingHandler),
		provideServerHandler(provideWebhookHandler),
		provideServerHandler(provideConversationHandler),
		provideServerHandler(provideOrderHandler),
		provideServer,
	),
	fx.Invoke(startServer),
)

func provideServerHandler(fn any) any {
	return fx.Annotate(
		fn,
		fx.As(new(server.Handler)),
		fx.ResultTags(`group:"server_handlers"`),
	)
}

func provideWebhookHandler(log *slog.Logger, wa *whapi.Adapter, manager *channel.Manager) *handlers.WebhookHandler {
	if wa == nil {
		return handlers.NewWebhookHandler(log, nil, manager)
	}
	return handlers.NewWebhookHandler(log, wa, manager)
}

func provideConversationHandler(log *slog.Logger, store *conversation.Store) *handlers.ConversationHandler {
	return handlers.NewConversationHandler(log, store)
}

func provideOrderHandler(log *slog.Logger, recs records.Store) *handlers.OrderHandler {
	return handlers.NewOrderHandler(log, recs)
}

type serverParams struct {
	fx.In

	Logger         *slog.Logger
	RuntimeConfig  *boot.RuntimeConfig
	ServerHandlers []server.Handler `group:"server_handlers"`
}

func provideServer(params serverParams) *server.Server {
	return server.NewServer(params.Logger, params.RuntimeConfig.ServerAddr, params.RuntimeConfig.AdminToken, params.ServerHandlers...)
}

func startServer(lc fx.Lifecycle, logger *slog.Logger, srv *server.Server, shutdowner fx.Shutdowner) {
	fmt.Printf("Starting orderbot %s\n", version.GetInfo())

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Stop(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}
