// Package telegram posts a short headline digest of the ranked items to a
// chat through the Bot API.
package telegram

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/deusflow/ainews/internal/logger"
	"github.com/deusflow/ainews/internal/metrics"
	"github.com/deusflow/ainews/internal/news"
	"github.com/deusflow/ainews/internal/retry"
)

// Telegram rejects messages over 4096 characters; stay below it.
const maxMessageRunes = 4000

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type Notifier struct {
	api     sender
	chatID  int64
	retry   retry.RetryConfig
	metrics *metrics.Metrics
	log     *slog.Logger
}

// NewNotifier checks the token against the Bot API and returns a notifier
// for chatID.
func NewNotifier(token string, chatID int64) (*Notifier, error) {
	if token == "" || chatID == 0 {
		return nil, fmt.Errorf("telegram token and chat_id are required")
	}
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("creating telegram bot: %w", err)
	}
	return newNotifier(api, chatID), nil
}

func newNotifier(api sender, chatID int64) *Notifier {
	return &Notifier{
		api:    api,
		chatID: chatID,
		retry: retry.RetryConfig{
			MaxAttempts: 3,
			Delay:       2 * time.Second,
			Backoff:     true,
		},
		metrics: metrics.Global,
		log:     logger.With("component", "telegram"),
	}
}

// FormatHeadlines renders the first max items as numbered HTML links, split
// into as many messages as the length limit requires.
func FormatHeadlines(items []news.Item, max int, day time.Time) []string {
	if max > 0 && len(items) > max {
		items = items[:max]
	}
	if len(items) == 0 {
		return nil
	}

	header := fmt.Sprintf("<b>AI News Headlines - %s</b>\n\n", day.Format("2006-01-02"))

	var msgs []string
	var b strings.Builder
	b.WriteString(header)
	for i, it := range items {
		line := headline(i+1, it)
		if utf8.RuneCountInString(b.String())+utf8.RuneCountInString(line) > maxMessageRunes && b.Len() > len(header) {
			msgs = append(msgs, strings.TrimRight(b.String(), "\n"))
			b.Reset()
		}
		b.WriteString(line)
	}
	msgs = append(msgs, strings.TrimRight(b.String(), "\n"))
	return msgs
}

func headline(n int, it news.Item) string {
	title := html.EscapeString(news.Truncate(it.Title, 300))
	if it.URL != "" {
		title = fmt.Sprintf(`<a href="%s">%s</a>`, html.EscapeString(it.URL), title)
	}
	source := ""
	if it.Source != "" {
		source = " <i>(" + html.EscapeString(it.Source) + ")</i>"
	}
	return fmt.Sprintf("%d. %s%s\n", n, title, source)
}

// SendHeadlines posts the digest. Each message is retried before giving up.
func (n *Notifier) SendHeadlines(ctx context.Context, items []news.Item, max int) error {
	msgs := FormatHeadlines(items, max, time.Now())
	if len(msgs) == 0 {
		n.log.Info("no headlines to send")
		return nil
	}

	for i, text := range msgs {
		msg := tgbotapi.NewMessage(n.chatID, text)
		msg.ParseMode = tgbotapi.ModeHTML
		msg.DisableWebPagePreview = true

		err := retry.WithRetry(ctx, n.retry, func() error {
			_, err := n.api.Send(msg)
			return err
		})
		if err != nil {
			return fmt.Errorf("sending telegram message %d/%d: %w", i+1, len(msgs), err)
		}
		n.metrics.IncrementTelegramMessagesSent()
	}
	n.log.Info("headlines sent to Telegram", "messages", len(msgs))
	return nil
}
