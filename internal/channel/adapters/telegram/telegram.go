// Package telegram is the Telegram transport: long polling for customer
// messages and plain-text replies.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/memohai/orderbot/internal/channel"
	"github.com/memohai/orderbot/internal/channel/adapters/adapterutil"
)

const Type = channel.Telegram

// BotAPI is the part of *tgbotapi.BotAPI the adapter uses.
type BotAPI interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
}

// NewBot authenticates token and routes library logs through log.
func NewBot(log *slog.Logger, token string) (*tgbotapi.BotAPI, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("telegram bot token is required")
	}
	if log == nil {
		log = slog.Default()
	}
	if err := tgbotapi.SetLogger(botLogger{log: log.With(slog.String("lib", "tgbotapi"))}); err != nil {
		return nil, err
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return bot, nil
}

type TelegramAdapter struct {
	bot    BotAPI
	logger *slog.Logger
}

func NewTelegramAdapter(log *slog.Logger, bot BotAPI) *TelegramAdapter {
	if log == nil {
		log = slog.Default()
	}
	return &TelegramAdapter{
		bot:    bot,
		logger: log.With(slog.String("adapter", "telegram")),
	}
}

func (a *TelegramAdapter) Type() channel.ChannelType {
	return Type
}

// Connect starts long polling. Updates already queued when one arrives are
// handed over together as one batch.
func (a *TelegramAdapter) Connect(ctx context.Context, handler channel.InboundHandler) (channel.Connection, error) {
	if a.bot == nil {
		return nil, errors.New("telegram bot not configured")
	}
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 30
	updates := a.bot.GetUpdatesChan(updateConfig)
	connCtx, cancel := context.WithCancel(ctx)

	go func() {
		for {
			select {
			case <-connCtx.Done():
				a.bot.StopReceivingUpdates()
				return
			case update, ok := <-updates:
				if !ok {
					a.logger.Info("updates channel closed")
					return
				}
				batch := a.appendUpdate(nil, update)
			drain:
				for {
					select {
					case more, ok := <-updates:
						if !ok {
							break drain
						}
						batch = a.appendUpdate(batch, more)
					default:
						break drain
					}
				}
				if len(batch) == 0 {
					continue
				}
				if err := handler(connCtx, batch); err != nil {
					a.logger.Error("handle inbound failed", slog.Any("error", err))
				}
			}
		}
	}()

	stop := func(context.Context) error {
		a.logger.Info("stop")
		cancel()
		return nil
	}
	return channel.NewConnection(Type, stop), nil
}

func (a *TelegramAdapter) appendUpdate(batch []channel.InboundEvent, update tgbotapi.Update) []channel.InboundEvent {
	event, ok := toEvent(update)
	if !ok {
		return batch
	}
	a.logger.Info("inbound received",
		slog.String("chat_id", event.ReplyTarget),
		slog.String("kind", string(event.Kind)),
		slog.String("text", adapterutil.SummarizeText(event.Text)),
	)
	return append(batch, event)
}

// toEvent converts private-chat messages; everything else is dropped.
func toEvent(update tgbotapi.Update) (channel.InboundEvent, bool) {
	msg := update.Message
	if msg == nil || msg.Chat == nil || !msg.Chat.IsPrivate() {
		return channel.InboundEvent{}, false
	}
	chatID := strconv.FormatInt(msg.Chat.ID, 10)
	event := channel.InboundEvent{
		ID:          strconv.Itoa(update.UpdateID),
		Channel:     Type,
		ReplyTarget: chatID,
		ReceivedAt:  time.Unix(int64(msg.Date), 0).UTC(),
		Sender:      channel.Identity{ExternalID: chatID},
	}
	if msg.From != nil {
		event.Sender = channel.Identity{
			ExternalID:   strconv.FormatInt(msg.From.ID, 10),
			DisplayName:  strings.TrimSpace(msg.From.FirstName),
			LanguageHint: msg.From.LanguageCode,
		}
		if event.Sender.DisplayName == "" {
			event.Sender.DisplayName = strings.TrimSpace(msg.From.UserName)
		}
	}
	switch {
	case len(msg.Photo) > 0:
		photo := pickTelegramPhoto(msg.Photo)
		event.Kind = channel.KindImage
		event.FileID = photo.FileID
		event.Mime = "image/jpeg"
		event.Text = strings.TrimSpace(msg.Caption)
	case msg.Document != nil:
		event.Kind = channel.KindDocument
		event.FileID = msg.Document.FileID
		event.FileName = msg.Document.FileName
		event.Mime = msg.Document.MimeType
		event.Text = strings.TrimSpace(msg.Caption)
	case strings.TrimSpace(msg.Text) != "":
		event.Kind = channel.KindText
		event.Text = strings.TrimSpace(msg.Text)
	default:
		event.Kind = channel.KindUnsupported
	}
	return event, true
}

func (a *TelegramAdapter) Send(_ context.Context, msg channel.OutboundMessage) error {
	chatID, err := strconv.ParseInt(strings.TrimSpace(msg.Target), 10, 64)
	if err != nil {
		return fmt.Errorf("telegram target must be a chat id")
	}
	if strings.TrimSpace(msg.Text) == "" {
		return errors.New("message is required")
	}
	_, err = a.bot.Send(tgbotapi.NewMessage(chatID, msg.Text))
	return err
}

func (a *TelegramAdapter) Typing(_ context.Context, target string) error {
	chatID, err := strconv.ParseInt(strings.TrimSpace(target), 10, 64)
	if err != nil {
		return fmt.Errorf("telegram target must be a chat id")
	}
	_, err = a.bot.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping))
	return err
}

func (a *TelegramAdapter) FileURL(_ context.Context, fileID string) (string, error) {
	if strings.TrimSpace(fileID) == "" {
		return "", errors.New("file id is required")
	}
	return a.bot.GetFileDirectURL(fileID)
}

func pickTelegramPhoto(items []tgbotapi.PhotoSize) tgbotapi.PhotoSize {
	if len(items) == 0 {
		return tgbotapi.PhotoSize{}
	}
	best := items[0]
	for _, item := range items[1:] {
		if item.FileSize > best.FileSize {
			best = item
			continue
		}
		if item.Width*item.Height > best.Width*best.Height {
			best = item
		}
	}
	return best
}

// botLogger routes library output through slog; the library only logs
// polling failures and debug traces.
type botLogger struct {
	log *slog.Logger
}

func (l botLogger) Println(v ...any) {
	l.log.Warn(strings.TrimSpace(fmt.Sprintln(v...)))
}

func (l botLogger) Printf(format string, v ...any) {
	l.log.Warn(fmt.Sprintf(format, v...))
}
