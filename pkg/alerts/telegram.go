package alerts

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/keralanet/floodwatch/pkg/model"
)

// telegramSender is the subset of the bot API used by TelegramNotifier.
type telegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier sends alerts to a Telegram chat.
type TelegramNotifier struct {
	bot    telegramSender
	chatID int64
}

// NewTelegramNotifier creates a Telegram notifier from a bot token and chat ID.
func NewTelegramNotifier(token string, chatID int64) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &TelegramNotifier{bot: bot, chatID: chatID}, nil
}

func (t *TelegramNotifier) Name() string { return "telegram" }

func (t *TelegramNotifier) Send(ctx context.Context, alert model.Alert) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	emoji := "🟡"
	switch alert.Level {
	case model.LevelOrange:
		emoji = "🟠"
	case model.LevelRed:
		emoji = "🔴"
	}

	text := fmt.Sprintf(
		"%s *Flood Alert: %s*\n\nDistrict: %s\nLevel: %s\nConfidence: %.1f%%\nDate: %s\nLocation: %.4f, %.4f",
		emoji,
		alert.Level,
		alert.District,
		alert.Level,
		alert.Confidence*100,
		alert.AsOfDate.Format("2006-01-02"),
		alert.Latitude,
		alert.Longitude,
	)

	msg := tgbotapi.NewMessage(t.chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown

	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("send telegram alert: %w", err)
	}
	return nil
}
