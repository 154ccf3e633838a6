package consolidate

import (
	"math"
	"sort"
	"time"

	"github.com/deusflow/ainews/internal/news"
)

// RecencyWindowHours is the age at which the recency bonus reaches zero.
const RecencyWindowHours = 48.0

// Weight bucket names as they appear in configuration.
const (
	BucketTwitter = "twitter"
	BucketReddit  = "reddit"
	BucketRSS     = "rss"
	BucketOther   = "other"
)

// SourceWeights maps a bucket name to its score boost. Missing keys weigh 0.
type SourceWeights map[string]float64

// For returns the weight of the bucket a kind falls into. KindOther uses the
// "other" bucket when configured and the "rss" bucket otherwise.
func (w SourceWeights) For(kind news.SourceKind) float64 {
	switch kind {
	case news.KindSocial:
		return w[BucketTwitter]
	case news.KindCommunity:
		return w[BucketReddit]
	case news.KindOther:
		if v, ok := w[BucketOther]; ok {
			return v
		}
		return w[BucketRSS]
	default:
		return w[BucketRSS]
	}
}

type rankConfig struct {
	undatedBonus float64
}

type RankOption func(*rankConfig)

// WithUndatedBonus sets the recency bonus given to items without a timestamp.
// The default is 0: no bonus and no penalty.
func WithUndatedBonus(bonus float64) RankOption {
	return func(c *rankConfig) { c.undatedBonus = bonus }
}

// RecencyBonus decays linearly from 48 at age zero to 0 at 48 hours.
// Future timestamps count as age zero.
func RecencyBonus(published, now time.Time) float64 {
	age := math.Max(0, now.Sub(published).Hours())
	return math.Max(0, RecencyWindowHours-age)
}

// Score is base score + recency bonus + source weight.
func Score(it news.Item, weights SourceWeights, now time.Time, opts ...RankOption) float64 {
	var cfg rankConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	return score(it, weights, now, cfg)
}

func score(it news.Item, weights SourceWeights, now time.Time, cfg rankConfig) float64 {
	recency := cfg.undatedBonus
	if it.PublishedAt != nil {
		recency = RecencyBonus(*it.PublishedAt, now)
	}
	return it.Score + recency + weights.For(it.ResolvedKind())
}

// Rank returns a new slice ordered by descending Score. Equal scores keep
// their input order. NaN scores sort last.
func Rank(items []news.Item, weights SourceWeights, now time.Time, opts ...RankOption) []news.Item {
	var cfg rankConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	type scored struct {
		item  news.Item
		score float64
	}
	ranked := make([]scored, len(items))
	for i, it := range items {
		s := score(it, weights, now, cfg)
		if math.IsNaN(s) {
			s = math.Inf(-1)
		}
		ranked[i] = scored{item: it, score: s}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})

	out := make([]news.Item, len(ranked))
	for i, r := range ranked {
		out[i] = r.item
	}
	return out
}
