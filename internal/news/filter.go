package news

import (
	"sort"
	"strings"
	"time"
)

// FilterWindow drops items published before now-lookback. Undated items are
// kept only when keepUndated is set. A non-positive lookback disables the filter.
func FilterWindow(items []Item, now time.Time, lookback time.Duration, keepUndated bool) []Item {
	if lookback <= 0 {
		return items
	}
	start := now.Add(-lookback)
	out := make([]Item, 0, len(items))
	for _, it := range items {
		if it.PublishedAt == nil {
			if keepUndated {
				out = append(out, it)
			}
			continue
		}
		if !it.PublishedAt.Before(start) {
			out = append(out, it)
		}
	}
	return out
}

// FilterKeywords drops items whose URL contains an excluded domain and, when
// include keywords are given, items whose title+summary matches none of them.
func FilterKeywords(items []Item, include, excludeDomains []string) []Item {
	if len(include) == 0 && len(excludeDomains) == 0 {
		return items
	}

	keywords := lowerAll(include)
	domains := lowerAll(excludeDomains)

	out := make([]Item, 0, len(items))
	for _, it := range items {
		link := strings.ToLower(it.URL)
		if containsAny(link, domains) {
			continue
		}
		if len(keywords) > 0 {
			text := strings.ToLower(it.Title + " " + it.Summary)
			if !containsAny(text, keywords) {
				continue
			}
		}
		out = append(out, it)
	}
	return out
}

// SortByRecency orders items newest first, then by base score. Used for the
// console preview; the report itself is ordered by the ranker.
func SortByRecency(items []Item) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i].PublishedAt, items[j].PublishedAt
		switch {
		case a != nil && b != nil && !a.Equal(*b):
			return a.After(*b)
		case a != nil && b == nil:
			return true
		case a == nil && b != nil:
			return false
		}
		return items[i].Score > items[j].Score
	})
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func containsAny(text string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(text, n) {
			return true
		}
	}
	return false
}
