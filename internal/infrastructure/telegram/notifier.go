package telegram

import (
	"context"
	"fmt"
	"html"
	"strconv"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"ImpactWatcher/internal/config"
	"ImpactWatcher/internal/domain"
	"ImpactWatcher/internal/ports"
)

type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Notifier sends alerts to a Telegram chat via bot API.
type Notifier struct {
	token  string
	chatID int64
	newBot func(token string) (botAPI, error)

	mu  sync.Mutex
	api botAPI
}

var _ ports.AlertSender = (*Notifier)(nil)

// NewNotifier validates the bot token and chat identifier. The bot is
// authenticated on the first send, so a Telegram outage does not block startup.
func NewNotifier(cfg config.TelegramConfig) (*Notifier, error) {
	if cfg.BotToken == "" || cfg.ChatID == "" {
		return nil, fmt.Errorf("telegram notifier misconfigured")
	}
	chatID, err := strconv.ParseInt(cfg.ChatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("telegram chat id: %w", err)
	}
	return &Notifier{token: cfg.BotToken, chatID: chatID, newBot: dialBot}, nil
}

func dialBot(token string) (botAPI, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return api, nil
}

func (n *Notifier) bot() (botAPI, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.api != nil {
		return n.api, nil
	}
	api, err := n.newBot(n.token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	n.api = api
	return api, nil
}

// Destination renders the chat for the startup banner.
func (n *Notifier) Destination() string {
	return "telegram chat " + strconv.FormatInt(n.chatID, 10)
}

// Send posts an HTML message; the bot API call is not retried.
func (n *Notifier) Send(ctx context.Context, alert domain.Alert) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	api, err := n.bot()
	if err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(n.chatID, formatMessage(alert))
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if _, err := api.Send(msg); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

// formatMessage bolds the headline. Bodies built for alerts already open with the
// title line, so the title is only prepended when the body lacks it.
func formatMessage(alert domain.Alert) string {
	var b strings.Builder
	head, rest, _ := strings.Cut(alert.Body, "\n")
	if alert.Title != "" && !strings.Contains(head, alert.Title) {
		head, rest = alert.Title, alert.Body
	}
	b.WriteString("<b>")
	b.WriteString(html.EscapeString(head))
	b.WriteString("</b>")
	if rest != "" {
		b.WriteByte('\n')
		b.WriteString(html.EscapeString(rest))
	}
	if len(alert.Tags) > 0 {
		b.WriteString("\n\n")
		for i, tag := range alert.Tags {
			if i > 0 {
				b.WriteByte(' ')
			}
			b.WriteString("#" + html.EscapeString(tag))
		}
	}
	return b.String()
}
