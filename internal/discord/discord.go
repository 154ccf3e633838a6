// Package discord turns recent messages in Discord channels into news items
// using a bot token against the REST API.
package discord

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/deusflow/ainews/internal/logger"
	"github.com/deusflow/ainews/internal/news"
)

const (
	DefaultAPIBase = "https://discord.com/api/v10"
	UserAgent      = "AINewsAgent/0.1 (discord-fetcher)"

	titleMaxRunes   = 120
	summaryMaxRunes = 500
)

type channel struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	GuildID string `json:"guild_id"`
}

type message struct {
	ID        string `json:"id"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

type Client struct {
	apiBase string
	token   string
	client  *http.Client
	log     *slog.Logger
}

func NewClient(botToken string, timeout time.Duration) *Client {
	return &Client{
		apiBase: DefaultAPIBase,
		token:   botToken,
		client:  &http.Client{Timeout: timeout},
		log:     logger.With("fetcher", "discord"),
	}
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiBase+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bot "+c.token)
	req.Header.Set("User-Agent", UserAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("discord returned status %d for %s", resp.StatusCode, path)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// FetchChannel returns items for the last limit messages of one channel.
// Channel info is optional: without it the source is plain "Discord" and
// items carry no jump URL.
func (c *Client) FetchChannel(ctx context.Context, channelID string, limit int) ([]news.Item, error) {
	var info channel
	if err := c.get(ctx, "/channels/"+channelID, &info); err != nil {
		c.log.Debug("channel info unavailable", "channel", channelID, "error", err)
		info = channel{}
	}

	var msgs []message
	if err := c.get(ctx, fmt.Sprintf("/channels/%s/messages?limit=%d", channelID, limit), &msgs); err != nil {
		return nil, fmt.Errorf("reading messages of channel %s: %w", channelID, err)
	}

	source := "Discord"
	if info.Name != "" {
		source = "Discord #" + info.Name
	}

	items := make([]news.Item, 0, len(msgs))
	for _, m := range msgs {
		if it, ok := convertMessage(m, source, info.GuildID, channelID); ok {
			items = append(items, it)
		}
	}
	return items, nil
}

func convertMessage(m message, source, guildID, channelID string) (news.Item, bool) {
	content := strings.TrimSpace(m.Content)
	if content == "" {
		return news.Item{}, false
	}

	title := news.Truncate(news.FirstLine(content), titleMaxRunes)
	if title == "" {
		title = "Discord message"
	}

	link := ""
	if guildID != "" && m.ID != "" {
		link = fmt.Sprintf("https://discord.com/channels/%s/%s/%s", guildID, channelID, m.ID)
	}

	var published *time.Time
	if ts, err := time.Parse(time.RFC3339Nano, m.Timestamp); err == nil {
		published = news.TimePtr(ts.UTC())
	}

	return news.Item{
		Title:       title,
		URL:         link,
		Source:      source,
		Kind:        news.KindOther,
		PublishedAt: published,
		Summary:     news.Truncate(content, summaryMaxRunes),
	}, true
}

// FetchAll reads every channel. It returns nothing without a token or
// channel list, and skips channels that fail.
func (c *Client) FetchAll(ctx context.Context, channelIDs []string, perChannel int) []news.Item {
	if c.token == "" || len(channelIDs) == 0 {
		c.log.Warn("discord enabled but missing bot token or channel ids; skipping")
		return nil
	}

	var items []news.Item
	for _, id := range channelIDs {
		got, err := c.FetchChannel(ctx, id, perChannel)
		if err != nil {
			c.log.Warn("channel failed", "channel", id, "error", err)
			continue
		}
		items = append(items, got...)
	}
	c.log.Info("fetched discord messages", "items", len(items), "channels", len(channelIDs))
	return items
}
