package rss

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/deusflow/ainews/internal/logger"
	"github.com/deusflow/ainews/internal/news"
)

var handleRE = regexp.MustCompile(`^@?([A-Za-z0-9_]{1,15})$`)

// ExtractHandle accepts "@name", "name" or a profile URL and returns the
// bare handle.
func ExtractHandle(account string) (string, bool) {
	text := strings.TrimSpace(account)
	if text == "" {
		return "", false
	}
	if m := handleRE.FindStringSubmatch(text); m != nil {
		return m[1], true
	}

	u, err := url.Parse(text)
	if err != nil {
		return "", false
	}
	path := strings.Trim(u.Path, "/")
	if path == "" {
		return "", false
	}
	first, _, _ := strings.Cut(path, "/")
	if m := handleRE.FindStringSubmatch(first); m != nil {
		return m[1], true
	}
	return "", false
}

// NitterFetcher reads Twitter timelines through public Nitter RSS mirrors.
type NitterFetcher struct {
	parser    *gofeed.Parser
	instances []string
	shuffle   func([]string)
	now       func() time.Time
	log       *slog.Logger
}

func NewNitterFetcher(instances []string, timeout time.Duration) *NitterFetcher {
	return &NitterFetcher{
		parser:    newParser(timeout),
		instances: append([]string(nil), instances...),
		shuffle: func(s []string) {
			rand.Shuffle(len(s), func(i, j int) { s[i], s[j] = s[j], s[i] })
		},
		now: time.Now,
		log: logger.With("fetcher", "twitter"),
	}
}

// FetchAll reads each account from the first mirror that returns entries.
// Mirrors are tried in a random order shared by all accounts.
func (f *NitterFetcher) FetchAll(ctx context.Context, accounts []string, maxPerAccount int) []news.Item {
	instances := append([]string(nil), f.instances...)
	f.shuffle(instances)

	var items []news.Item
	for _, account := range accounts {
		handle, ok := ExtractHandle(account)
		if !ok {
			f.log.Warn("invalid handle", "account", account)
			continue
		}
		got := f.fetchAccount(ctx, instances, handle, maxPerAccount)
		if len(got) == 0 {
			f.log.Warn("no entries found", "handle", "@"+handle)
			continue
		}
		items = append(items, got...)
	}
	f.log.Info("fetched tweets", "items", len(items), "accounts", len(accounts))
	return items
}

func (f *NitterFetcher) fetchAccount(ctx context.Context, instances []string, handle string, max int) []news.Item {
	for _, base := range instances {
		if ctx.Err() != nil {
			return nil
		}
		feedURL := strings.TrimRight(base, "/") + "/" + handle + "/rss"
		feed, err := f.parser.ParseURLWithContext(feedURL, ctx)
		if err != nil {
			f.log.Debug("mirror failed", "handle", handle, "instance", base, "error", err)
			continue
		}
		if len(feed.Items) == 0 {
			continue
		}
		return f.convert(feed, handle, max)
	}
	return nil
}

func (f *NitterFetcher) convert(feed *gofeed.Feed, handle string, max int) []news.Item {
	source := strings.TrimSpace(feed.Title)
	if source == "" {
		source = "@" + handle
	}

	items := make([]news.Item, 0, len(feed.Items))
	for _, entry := range feed.Items {
		if max > 0 && len(items) >= max {
			break
		}

		title := strings.TrimSpace(entry.Title)
		if title == "" {
			title = news.StripHTML(entry.Description)
		}
		if title == "" {
			title = "Tweet by @" + handle
		}

		// Undated tweets are stamped with the fetch time so a lookback
		// window does not drop them.
		published := entryTime(entry)
		if published == nil {
			published = news.TimePtr(f.now().UTC())
		}

		items = append(items, news.Item{
			Title:       title,
			URL:         strings.TrimSpace(entry.Link),
			Source:      source,
			Kind:        news.KindSocial,
			PublishedAt: published,
		})
	}
	return items
}
