package notify

import (
	"fmt"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/seyone-projects/reda-backend/internal/metrics"
)

type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// ManagerAlerts broadcasts plain-text alerts to the configured manager chats.
type ManagerAlerts struct {
	bot      TelegramSender
	managers []int64
	logger   *zerolog.Logger
}

const telegramTimeout = 10 * time.Second

func NewTelegramBot(token string, debug bool) (*tgbotapi.BotAPI, error) {
	client := &http.Client{Timeout: telegramTimeout}
	bot, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, client)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	bot.Debug = debug
	return bot, nil
}

func NewManagerAlerts(bot TelegramSender, managers []int64, logger *zerolog.Logger) *ManagerAlerts {
	l := logger.With().Str("component", "telegram").Logger()
	return &ManagerAlerts{bot: bot, managers: managers, logger: &l}
}

// Broadcast sends text to every manager and returns the first error.
func (a *ManagerAlerts) Broadcast(text string) error {
	var firstErr error
	for _, chatID := range a.managers {
		msg := tgbotapi.NewMessage(chatID, text)
		msg.DisableWebPagePreview = true
		if _, err := a.bot.Send(msg); err != nil {
			a.logger.Warn().Err(err).Int64("chat_id", chatID).Msg("Failed to send manager alert")
			metrics.IncNotification("telegram", "failed")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		metrics.IncNotification("telegram", "sent")
	}
	return firstErr
}
