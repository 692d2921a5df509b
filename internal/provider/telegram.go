package provider

import (
	"context"
	"log/slog"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/oddswatch/engine/internal/domain"
	"github.com/oddswatch/engine/internal/infra"
)

// Telegram caps bots around 30 messages/min per chat; spacing sends keeps
// a busy checkpoint tick under that.
const telegramSendInterval = time.Second

// TelegramNotifier delivers rendered verdict reports to a single chat.
// With notifications disabled it swallows sends so the pipeline still
// computes and logs verdicts.
type TelegramNotifier struct {
	bot        *tgbotapi.BotAPI
	chatID     int64
	logger     *slog.Logger
	maxRetries int

	mu       sync.Mutex
	lastSend time.Time
}

// NewTelegramNotifier validates the bot token against the API unless
// notifications are disabled, in which case no connection is made.
func NewTelegramNotifier(cfg *infra.Config, logger *slog.Logger) (*TelegramNotifier, error) {
	n := &TelegramNotifier{
		chatID:     cfg.TelegramChatID,
		logger:     logger,
		maxRetries: cfg.MaxRetries,
	}
	if !cfg.NotificationsEnabled {
		logger.Info("notifications disabled, verdicts will be logged only")
		return n, nil
	}

	bot, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		return nil, domain.ErrConfig("telegram bot token rejected", err)
	}
	bot.Debug = false
	n.bot = bot
	logger.Info("telegram notifier ready", "bot", bot.Self.UserName, "chat_id", cfg.TelegramChatID)
	return n, nil
}

// Enabled reports whether sends actually reach Telegram.
func (n *TelegramNotifier) Enabled() bool { return n != nil && n.bot != nil }

// Send delivers one HTML message, retrying transient failures with the
// same backoff policy as the upstream client. Callers treat a returned
// error as log-and-drop; a failed alert never fails its tick.
func (n *TelegramNotifier) Send(ctx context.Context, html string) error {
	if !n.Enabled() {
		return nil
	}

	msg := tgbotapi.NewMessage(n.chatID, html)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true

	var lastErr error
	backoff := initialBackoff
	for attempt := 0; attempt <= n.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}

		n.pace(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if _, err := n.bot.Send(msg); err != nil {
			lastErr = err
			n.logger.Warn("telegram send failed", "attempt", attempt+1, "error", err)
			continue
		}
		return nil
	}

	return domain.ErrNotifier("telegram delivery failed", lastErr)
}

// pace enforces the minimum spacing between consecutive sends.
func (n *TelegramNotifier) pace(ctx context.Context) {
	n.mu.Lock()
	wait := telegramSendInterval - time.Since(n.lastSend)
	if wait > 0 {
		n.mu.Unlock()
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
		n.mu.Lock()
	}
	n.lastSend = time.Now()
	n.mu.Unlock()
}
