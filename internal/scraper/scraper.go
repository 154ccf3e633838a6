// Package scraper enriches items with a preview image taken from the
// linked page's og:image or twitter:image meta tags.
package scraper

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"

	"github.com/deusflow/ainews/internal/cache"
	"github.com/deusflow/ainews/internal/logger"
	"github.com/deusflow/ainews/internal/news"
)

const (
	UserAgent = "Mozilla/5.0 (compatible; AINewsAgent/0.1)"

	// Pages are read up to this size; meta tags live in <head>.
	maxPageBytes  = 2 << 20
	maxConcurrent = 8
	cacheTTL      = 24 * time.Hour
)

// Meta selectors in order of preference.
var imageSelectors = []string{
	`meta[property="og:image"]`,
	`meta[name="og:image"]`,
	`meta[property="og:image:url"]`,
	`meta[name="twitter:image"]`,
	`meta[property="twitter:image"]`,
	`meta[name="twitter:image:src"]`,
}

type ImageFetcher struct {
	client *http.Client
	cache  *cache.Cache[string]
	log    *slog.Logger
}

func NewImageFetcher(timeout time.Duration) *ImageFetcher {
	return &ImageFetcher{
		client: &http.Client{Timeout: timeout},
		cache:  cache.New[string](),
		log:    logger.With("component", "images"),
	}
}

// ImageFor returns the absolute preview image URL of a page, or "" when the
// page has none. Results, including misses, are cached per URL.
func (f *ImageFetcher) ImageFor(ctx context.Context, pageURL string) (string, error) {
	key := cache.Key(pageURL)
	if v, ok := f.cache.Get(key); ok {
		return v, nil
	}

	img, err := f.fetch(ctx, pageURL)
	if err != nil {
		return "", err
	}
	f.cache.Set(key, img, cacheTTL)
	return img, nil
}

func (f *ImageFetcher) fetch(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("error loading page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP error: %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "html") {
		return "", nil
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", fmt.Errorf("error parsing HTML: %w", err)
	}
	return resolve(pageURL, extractImage(doc)), nil
}

func extractImage(doc *goquery.Document) string {
	for _, sel := range imageSelectors {
		if content, ok := doc.Find(sel).First().Attr("content"); ok {
			if content = strings.TrimSpace(content); content != "" {
				return content
			}
		}
	}
	return ""
}

// resolve makes img absolute relative to the page it came from.
func resolve(pageURL, img string) string {
	if img == "" {
		return ""
	}
	ref, err := url.Parse(img)
	if err != nil {
		return ""
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return img
	}
	abs := base.ResolveReference(ref)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return ""
	}
	return abs.String()
}

// AttachImages fills ImageURL in place for items that have a web URL and no
// image yet. Lookup failures leave the item unchanged.
func (f *ImageFetcher) AttachImages(ctx context.Context, items []news.Item) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrent)

	attached := 0
	results := make([]string, len(items))
	for i := range items {
		it := items[i]
		if it.ImageURL != "" || !isWebURL(it.URL) {
			continue
		}
		g.Go(func() error {
			img, err := f.ImageFor(gctx, it.URL)
			if err != nil {
				f.log.Debug("image lookup failed", "url", it.URL, "error", err)
				return nil
			}
			results[i] = img
			return nil
		})
	}
	_ = g.Wait()

	for i, img := range results {
		if img != "" {
			items[i].ImageURL = img
			attached++
		}
	}
	f.log.Info("attached preview images", "count", attached, "items", len(items))
}

func isWebURL(raw string) bool {
	return strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://")
}
