// Package rss fetches news items from RSS/Atom feeds and from Nitter
// mirrors of Twitter timelines.
package rss

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"golang.org/x/sync/errgroup"

	"github.com/deusflow/ainews/internal/logger"
	"github.com/deusflow/ainews/internal/news"
)

const (
	UserAgent = "AINewsAgent/0.1 (+https://github.com/deusflow/ainews)"

	summaryMaxRunes = 500
	maxConcurrent   = 8
)

func newParser(timeout time.Duration) *gofeed.Parser {
	p := gofeed.NewParser()
	p.UserAgent = UserAgent
	p.Client = &http.Client{Timeout: timeout}
	return p
}

// Fetcher reads plain RSS/Atom feeds.
type Fetcher struct {
	parser *gofeed.Parser
	log    *slog.Logger
}

func NewFetcher(timeout time.Duration) *Fetcher {
	return &Fetcher{parser: newParser(timeout), log: logger.With("fetcher", "rss")}
}

// FetchFeed returns at most max items from one feed. max <= 0 means no cap.
func (f *Fetcher) FetchFeed(ctx context.Context, feedURL string, max int) ([]news.Item, error) {
	feed, err := f.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("parsing feed %s: %w", feedURL, err)
	}

	source := strings.TrimSpace(feed.Title)
	if source == "" {
		source = hostOf(feedURL)
	}

	items := make([]news.Item, 0, len(feed.Items))
	for _, entry := range feed.Items {
		if max > 0 && len(items) >= max {
			break
		}
		items = append(items, convertEntry(entry, source))
	}
	return items, nil
}

// FetchAll fetches every feed concurrently. Failing feeds are logged and
// skipped; the result keeps the order of urls.
func (f *Fetcher) FetchAll(ctx context.Context, urls []string, maxPerFeed int) []news.Item {
	results := make([][]news.Item, len(urls))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrent)
	for i, u := range urls {
		g.Go(func() error {
			items, err := f.FetchFeed(gctx, u, maxPerFeed)
			if err != nil {
				f.log.Warn("feed failed", "url", u, "error", err)
				return nil
			}
			f.log.Debug("feed loaded", "url", u, "items", len(items))
			results[i] = items
			return nil
		})
	}
	_ = g.Wait()

	var all []news.Item
	ok := 0
	for _, r := range results {
		if r != nil {
			ok++
		}
		all = append(all, r...)
	}
	f.log.Info("processed RSS feeds", "ok", ok, "total", len(urls), "items", len(all))
	return all
}

func convertEntry(entry *gofeed.Item, source string) news.Item {
	it := news.Item{
		Title:       strings.TrimSpace(entry.Title),
		URL:         strings.TrimSpace(entry.Link),
		Source:      source,
		Kind:        news.KindFeed,
		PublishedAt: entryTime(entry),
		ImageURL:    entryImage(entry),
	}

	desc := entry.Description
	if desc == "" {
		desc = entry.Content
	}
	it.Summary = news.Truncate(news.StripHTML(desc), summaryMaxRunes)
	return it
}

func entryTime(entry *gofeed.Item) *time.Time {
	switch {
	case entry.PublishedParsed != nil:
		return news.TimePtr(entry.PublishedParsed.UTC())
	case entry.UpdatedParsed != nil:
		return news.TimePtr(entry.UpdatedParsed.UTC())
	}
	return nil
}

func entryImage(entry *gofeed.Item) string {
	if entry.Image != nil && entry.Image.URL != "" {
		return entry.Image.URL
	}
	for _, enc := range entry.Enclosures {
		if enc != nil && strings.HasPrefix(enc.Type, "image/") {
			return enc.URL
		}
	}
	return ""
}

func hostOf(raw string) string {
	if u, err := url.Parse(raw); err == nil && u.Host != "" {
		return u.Host
	}
	return raw
}
