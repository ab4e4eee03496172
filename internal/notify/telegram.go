package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/memohai/orderbot/internal/records"
)

// TelegramAPI is the part of the bot client used for notifications.
type TelegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram sends notifications to staff chats and forwards the receipt.
type Telegram struct {
	bot    TelegramAPI
	logger *slog.Logger
}

// NewTelegram wraps bot.
func NewTelegram(log *slog.Logger, bot TelegramAPI) *Telegram {
	if log == nil {
		log = slog.Default()
	}
	return &Telegram{bot: bot, logger: log.With(slog.String("notifier", KindTelegram))}
}

// Notify sends the HTML text, then the receipt file. The notification counts
// as delivered once the text is sent.
func (t *Telegram) Notify(ctx context.Context, target string, p Payload) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	chatID, err := strconv.ParseInt(strings.TrimSpace(target), 10, 64)
	if err != nil {
		return fmt.Errorf("telegram recipient must be a chat id: %s", target)
	}
	msg := tgbotapi.NewMessage(chatID, p.Text)
	msg.ParseMode = tgbotapi.ModeHTML
	if _, err := t.bot.Send(msg); err != nil {
		return err
	}
	if receipt := t.receipt(chatID, p); receipt != nil {
		if _, err := t.bot.Send(receipt); err != nil {
			t.logger.Warn("forward receipt failed", slog.String("record_id", p.RecordID), slog.Any("error", err))
		}
	}
	return nil
}

func (t *Telegram) receipt(chatID int64, p Payload) tgbotapi.Chattable {
	var file tgbotapi.RequestFileData
	ref, ok := records.ParseReceiptReference(p.ReceiptRef)
	switch {
	case ok && ref.Channel == KindTelegram:
		file = tgbotapi.FileID(ref.FileID)
	case p.ReceiptURL != "":
		file = tgbotapi.FileURL(p.ReceiptURL)
	default:
		return nil
	}
	caption := "Чек к заказу №" + p.Number
	if p.ReceiptKind == "image" {
		photo := tgbotapi.NewPhoto(chatID, file)
		photo.Caption = caption
		return photo
	}
	doc := tgbotapi.NewDocument(chatID, file)
	doc.Caption = caption
	return doc
}
