// Package consolidate merges fetched items into one report: dedupe, rank,
// then either an LLM-written report or a plain fallback list.
package consolidate

import (
	"strings"

	"github.com/deusflow/ainews/internal/news"
)

// NormalizeURL trims, lower-cases and strips a single trailing slash.
func NormalizeURL(u string) string {
	u = strings.ToLower(strings.TrimSpace(u))
	return strings.TrimSuffix(u, "/")
}

// NormalizeTitle trims and lower-cases.
func NormalizeTitle(title string) string {
	return strings.ToLower(strings.TrimSpace(title))
}

// Key identifies an item for deduplication.
type Key struct {
	URL   string
	Title string
}

func KeyOf(it news.Item) Key {
	return Key{URL: NormalizeURL(it.URL), Title: NormalizeTitle(it.Title)}
}

// Dedupe keeps the first item per Key, preserving input order.
func Dedupe(items []news.Item) []news.Item {
	seen := make(map[Key]struct{}, len(items))
	out := make([]news.Item, 0, len(items))
	for _, it := range items {
		k := KeyOf(it)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, it)
	}
	return out
}
