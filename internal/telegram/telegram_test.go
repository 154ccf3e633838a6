package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/deusflow/ainews/internal/metrics"
	"github.com/deusflow/ainews/internal/news"
	"github.com/deusflow/ainews/internal/retry"
)

var day = time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

func TestFormatHeadlines(t *testing.T) {
	items := []news.Item{
		{Title: "GPT <next> & friends", URL: "https://x.com/a?b=1&c=2", Source: "@openai"},
		{Title: "Discord note", Source: "Discord #news"},
		{Title: "Dropped", URL: "https://x.com/c"},
	}
	msgs := FormatHeadlines(items, 2, day)
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	want := "<b>AI News Headlines - 2025-06-02</b>\n\n" +
		`1. <a href="https://x.com/a?b=1&amp;c=2">GPT &lt;next&gt; &amp; friends</a> <i>(@openai)</i>` + "\n" +
		"2. Discord note <i>(Discord #news)</i>"
	if msgs[0] != want {
		t.Errorf("got:\n%s\nwant:\n%s", msgs[0], want)
	}
}

func TestFormatHeadlinesEmpty(t *testing.T) {
	if msgs := FormatHeadlines(nil, 10, day); msgs != nil {
		t.Errorf("expected no messages, got %v", msgs)
	}
}

func TestFormatHeadlinesSplits(t *testing.T) {
	var items []news.Item
	for i := 0; i < 60; i++ {
		items = append(items, news.Item{Title: strings.Repeat("t", 200), URL: fmt.Sprintf("https://x.com/%d", i)})
	}
	msgs := FormatHeadlines(items, 0, day)
	if len(msgs) < 2 {
		t.Fatalf("expected the digest to be split, got %d message(s)", len(msgs))
	}
	total := 0
	for _, m := range msgs {
		if utf8.RuneCountInString(m) > maxMessageRunes {
			t.Errorf("message too long: %d runes", utf8.RuneCountInString(m))
		}
		total += strings.Count(m, "<a href=")
	}
	if total != 60 {
		t.Errorf("expected 60 headlines across messages, got %d", total)
	}
}

type fakeAPI struct {
	sent  []tgbotapi.MessageConfig
	fails int
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if f.fails > 0 {
		f.fails--
		return tgbotapi.Message{}, errors.New("Too Many Requests")
	}
	f.sent = append(f.sent, c.(tgbotapi.MessageConfig))
	return tgbotapi.Message{MessageID: len(f.sent)}, nil
}

func newTestNotifier(api *fakeAPI, m *metrics.Metrics) *Notifier {
	n := newNotifier(api, 42)
	n.retry = retry.RetryConfig{MaxAttempts: 2}
	n.metrics = m
	n.log = slog.New(slog.NewTextHandler(io.Discard, nil))
	return n
}

func TestSendHeadlines(t *testing.T) {
	api := &fakeAPI{fails: 1}
	m := metrics.New()
	n := newTestNotifier(api, m)

	items := []news.Item{{Title: "One", URL: "https://x.com/1", Source: "feed"}}
	if err := n.SendHeadlines(context.Background(), items, 10); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(api.sent) != 1 {
		t.Fatalf("expected 1 message, got %d", len(api.sent))
	}
	msg := api.sent[0]
	if msg.ChatID != 42 || msg.ParseMode != tgbotapi.ModeHTML || !msg.DisableWebPagePreview {
		t.Errorf("unexpected message config %+v", msg)
	}
	if got := m.GetStats()["telegram_messages_sent"]; got != int64(1) {
		t.Errorf("telegram_messages_sent = %v", got)
	}
}

func TestSendHeadlinesGivesUp(t *testing.T) {
	api := &fakeAPI{fails: 5}
	n := newTestNotifier(api, metrics.New())
	err := n.SendHeadlines(context.Background(), []news.Item{{Title: "x"}}, 10)
	if err == nil {
		t.Fatal("expected an error")
	}
	if api.fails != 3 {
		t.Errorf("expected 2 attempts, %d failures left", api.fails)
	}
}

func TestSendHeadlinesNothingToSend(t *testing.T) {
	api := &fakeAPI{}
	if err := newTestNotifier(api, metrics.New()).SendHeadlines(context.Background(), nil, 10); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if len(api.sent) != 0 {
		t.Error("nothing should be sent for an empty list")
	}
}

func TestNewNotifierValidates(t *testing.T) {
	if _, err := NewNotifier("", 1); err == nil {
		t.Error("expected error without token")
	}
	if _, err := NewNotifier("123:abc", 0); err == nil {
		t.Error("expected error without chat id")
	}
}
