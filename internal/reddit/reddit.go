// Package reddit reads the hot listing of subreddits through the public
// JSON endpoint.
package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/deusflow/ainews/internal/logger"
	"github.com/deusflow/ainews/internal/news"
)

const (
	DefaultBaseURL = "https://www.reddit.com"
	UserAgent      = "AINewsAgent/0.1 (reddit-fetcher)"

	summaryMaxRunes = 500
)

type listing struct {
	Data struct {
		Children []struct {
			Data post `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type post struct {
	Title      string  `json:"title"`
	URL        string  `json:"url"`
	Permalink  string  `json:"permalink"`
	Selftext   string  `json:"selftext"`
	Thumbnail  string  `json:"thumbnail"`
	Ups        int     `json:"ups"`
	CreatedUTC float64 `json:"created_utc"`
	Stickied   bool    `json:"stickied"`
}

type Client struct {
	baseURL string
	client  *http.Client
	log     *slog.Logger
}

func NewClient(timeout time.Duration) *Client {
	return &Client{
		baseURL: DefaultBaseURL,
		client:  &http.Client{Timeout: timeout},
		log:     logger.With("fetcher", "reddit"),
	}
}

// FetchSubreddit returns up to limit hot posts. Upvotes become the item's
// base score.
func (c *Client) FetchSubreddit(ctx context.Context, sub string, limit int) ([]news.Item, error) {
	sub = strings.TrimPrefix(strings.TrimSpace(sub), "r/")
	if sub == "" {
		return nil, fmt.Errorf("empty subreddit name")
	}

	endpoint := fmt.Sprintf("%s/r/%s/hot.json?limit=%d", c.baseURL, url.PathEscape(sub), limit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", UserAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching r/%s: %w", sub, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("reddit returned status %d for r/%s", resp.StatusCode, sub)
	}

	var l listing
	if err := json.NewDecoder(resp.Body).Decode(&l); err != nil {
		return nil, fmt.Errorf("decoding r/%s: %w", sub, err)
	}

	items := make([]news.Item, 0, len(l.Data.Children))
	for _, child := range l.Data.Children {
		p := child.Data
		if p.Stickied || strings.TrimSpace(p.Title) == "" {
			continue
		}
		if limit > 0 && len(items) >= limit {
			break
		}
		items = append(items, c.convert(sub, p))
	}
	return items, nil
}

func (c *Client) convert(sub string, p post) news.Item {
	link := p.URL
	if link == "" && p.Permalink != "" {
		link = DefaultBaseURL + p.Permalink
	}

	var published *time.Time
	if p.CreatedUTC > 0 {
		sec := int64(p.CreatedUTC)
		published = news.TimePtr(time.Unix(sec, 0).UTC())
	}

	image := ""
	if strings.HasPrefix(p.Thumbnail, "http://") || strings.HasPrefix(p.Thumbnail, "https://") {
		image = p.Thumbnail
	}

	return news.Item{
		Title:       strings.TrimSpace(p.Title),
		URL:         link,
		Source:      "r/" + sub,
		Kind:        news.KindCommunity,
		PublishedAt: published,
		Summary:     news.Truncate(strings.TrimSpace(p.Selftext), summaryMaxRunes),
		ImageURL:    image,
		Score:       float64(p.Ups),
	}
}

// FetchAll reads each subreddit in turn. Failures are logged and skipped.
func (c *Client) FetchAll(ctx context.Context, subs []string, limit int) []news.Item {
	var items []news.Item
	for _, sub := range subs {
		got, err := c.FetchSubreddit(ctx, sub, limit)
		if err != nil {
			c.log.Warn("subreddit failed", "subreddit", sub, "error", err)
			continue
		}
		items = append(items, got...)
	}
	c.log.Info("fetched reddit posts", "items", len(items), "subreddits", len(subs))
	return items
}
