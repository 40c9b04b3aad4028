// Package notify delivers run outcomes to an operator channel. Delivery
// is best effort; a failed notification never affects the run result.
package notify

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Kcubez/crypto-predictor/internal/model"
)

// Telegram posts run summaries to a single chat.
type Telegram struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	logger zerolog.Logger
}

// NewTelegram creates a notifier for the given bot token and chat.
func NewTelegram(token string, chatID int64) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("initializing telegram bot: %w", err)
	}
	return &Telegram{
		bot:    bot,
		chatID: chatID,
		logger: log.With().Str("component", "telegram_notifier").Logger(),
	}, nil
}

// NotifyRun sends a summary of one orchestrator run. Either record may be
// nil when the corresponding step had nothing to do.
func (t *Telegram) NotifyRun(_ context.Context, reconciled, created *model.PredictionRecord) {
	var sb strings.Builder
	sb.WriteString("📊 Daily BTC forecast run\n\n")

	if reconciled != nil && reconciled.ActualPrice != nil {
		fmt.Fprintf(&sb, "Reconciled %s: predicted $%.2f, actual $%.2f (%+.2f%%)\n",
			reconciled.TargetDate, reconciled.PredictedPrice,
			*reconciled.ActualPrice, *reconciled.PercentageError)
	} else {
		sb.WriteString("No prior forecast to reconcile\n")
	}

	if created != nil {
		fmt.Fprintf(&sb, "New forecast for %s: $%.2f (%s, confidence %d%%, %s)",
			created.TargetDate, created.PredictedPrice,
			created.Trend, created.Confidence, created.Source)
	}

	msg := tgbotapi.NewMessage(t.chatID, sb.String())
	if _, err := t.bot.Send(msg); err != nil {
		t.logger.Error().Err(err).Msg("Failed to send notification")
	}
}
