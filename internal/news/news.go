package news

import (
	"strings"
	"time"
)

// SourceKind tells the ranker which weight bucket an item belongs to.
// Fetchers set it explicitly; KindUnknown falls back to the source label.
type SourceKind int

const (
	KindUnknown SourceKind = iota
	KindSocial
	KindCommunity
	KindFeed
	KindOther
)

func (k SourceKind) String() string {
	switch k {
	case KindSocial:
		return "social"
	case KindCommunity:
		return "community"
	case KindFeed:
		return "feed"
	case KindOther:
		return "other"
	default:
		return "unknown"
	}
}

// Item is a single piece of content pulled from any source.
type Item struct {
	Title       string
	URL         string
	Source      string
	Kind        SourceKind
	PublishedAt *time.Time
	Summary     string
	ImageURL    string
	Score       float64
}

// KindFromLabel maps the legacy source label convention to a kind:
// "@handle" is social, "r/sub" is community, everything else is a feed.
func KindFromLabel(source string) SourceKind {
	s := strings.ToLower(strings.TrimSpace(source))
	switch {
	case strings.HasPrefix(s, "@"):
		return KindSocial
	case strings.HasPrefix(s, "r/"):
		return KindCommunity
	default:
		return KindFeed
	}
}

// ResolvedKind returns the explicit kind, or the label-derived one when unset.
func (it Item) ResolvedKind() SourceKind {
	if it.Kind != KindUnknown {
		return it.Kind
	}
	return KindFromLabel(it.Source)
}

// PublishedISO formats the publish time as RFC 3339, or "" when unknown.
func (it Item) PublishedISO() string {
	if it.PublishedAt == nil {
		return ""
	}
	return it.PublishedAt.Format(time.RFC3339)
}

// TimePtr is a small helper for fetchers building items from parsed values.
func TimePtr(t time.Time) *time.Time {
	return &t
}
