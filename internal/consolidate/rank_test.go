package consolidate

import (
	"math"
	"testing"
	"time"

	"github.com/deusflow/ainews/internal/news"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func hoursAgo(h float64) *time.Time {
	t := testNow.Add(-time.Duration(h * float64(time.Hour)))
	return &t
}

func titles(items []news.Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Title
	}
	return out
}

func TestRecencyBonus(t *testing.T) {
	tests := []struct {
		age  float64
		want float64
	}{
		{0, 48},
		{1, 47},
		{24, 24},
		{48, 0},
		{100, 0},
		{-5, 48}, // future timestamps count as age zero
	}
	for _, tt := range tests {
		got := RecencyBonus(*hoursAgo(tt.age), testNow)
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("RecencyBonus(age=%vh) = %v, want %v", tt.age, got, tt.want)
		}
	}
}

func TestRankRecencyMonotonicity(t *testing.T) {
	for _, ages := range [][2]float64{{1, 2}, {0, 47}, {10, 11}, {30, 47.5}} {
		newer := news.Item{Title: "newer", Source: "feed", PublishedAt: hoursAgo(ages[0])}
		older := news.Item{Title: "older", Source: "feed", PublishedAt: hoursAgo(ages[1])}

		got := Rank([]news.Item{older, newer}, nil, testNow)
		if got[0].Title != "newer" {
			t.Errorf("ages %v: newer item ranked below older: %v", ages, titles(got))
		}
	}
}

func TestRankUndatedNeutrality(t *testing.T) {
	undated := news.Item{Title: "undated", Source: "feed"}
	recent := news.Item{Title: "recent", Source: "feed", PublishedAt: hoursAgo(1)}
	stale := news.Item{Title: "stale", Source: "feed", PublishedAt: hoursAgo(50)}

	got := Rank([]news.Item{undated, recent}, nil, testNow)
	if got[0].Title != "recent" {
		t.Errorf("undated item should rank below a 1h old item: %v", titles(got))
	}

	// Equal scores: the undated item keeps its position and is not pushed down.
	got = Rank([]news.Item{undated, stale}, nil, testNow)
	if got[0].Title != "undated" {
		t.Errorf("undated item should not be penalised relative to a stale item: %v", titles(got))
	}
	if s := Score(undated, nil, testNow); s != 0 {
		t.Errorf("undated score = %v, want 0", s)
	}
}

func TestRankUndatedBonusIsConfigurable(t *testing.T) {
	undated := news.Item{Title: "undated", Source: "feed"}
	recent := news.Item{Title: "recent", Source: "feed", PublishedAt: hoursAgo(1)}

	got := Rank([]news.Item{recent, undated}, nil, testNow, WithUndatedBonus(48))
	if got[0].Title != "undated" {
		t.Errorf("full undated bonus should beat a 1h old item: %v", titles(got))
	}
}

func TestSourceWeightBucketing(t *testing.T) {
	weights := SourceWeights{"twitter": 30, "reddit": 20, "rss": 10}
	social := news.Item{Title: "x", Source: "@openai"}
	feed := news.Item{Title: "x", Source: "TechCrunch"}
	community := news.Item{Title: "x", Source: "r/MachineLearning"}

	if d := Score(social, weights, testNow) - Score(feed, weights, testNow); d != 20 {
		t.Errorf("twitter vs rss delta = %v, want 20", d)
	}
	if s := Score(social, weights, testNow); s != 30 {
		t.Errorf("social score = %v, want 30", s)
	}
	if s := Score(feed, weights, testNow); s != 10 {
		t.Errorf("feed score = %v, want 10", s)
	}
	if s := Score(community, weights, testNow); s != 20 {
		t.Errorf("community score = %v, want 20", s)
	}
}

func TestSourceWeightsExplicitKind(t *testing.T) {
	weights := SourceWeights{"twitter": 30, "rss": 10}
	// Explicit kind wins over the label.
	it := news.Item{Source: "Nitter feed", Kind: news.KindSocial}
	if s := Score(it, weights, testNow); s != 30 {
		t.Errorf("explicit social kind score = %v, want 30", s)
	}

	other := news.Item{Source: "Discord #news", Kind: news.KindOther}
	if s := Score(other, weights, testNow); s != 10 {
		t.Errorf("other without an 'other' weight should use rss, got %v", s)
	}
	weights["other"] = 2
	if s := Score(other, weights, testNow); s != 2 {
		t.Errorf("other bucket weight = %v, want 2", s)
	}
}

func TestRankMissingWeightsDoNotFail(t *testing.T) {
	items := []news.Item{{Title: "a", Source: "@x", Score: 1}, {Title: "b", Source: "r/y", Score: 2}}
	got := Rank(items, SourceWeights{}, testNow)
	if got[0].Title != "b" {
		t.Errorf("unexpected order %v", titles(got))
	}
}

func TestRankStableOnTies(t *testing.T) {
	items := []news.Item{
		{Title: "first", Score: 5},
		{Title: "second", Score: 5},
		{Title: "top", Score: 9},
		{Title: "third", Score: 5},
	}
	got := titles(Rank(items, nil, testNow))
	want := []string{"top", "first", "second", "third"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestRankHandlesOddScores(t *testing.T) {
	items := []news.Item{
		{Title: "nan", Score: math.NaN()},
		{Title: "negative", Score: -10},
		{Title: "inf", Score: math.Inf(1)},
	}
	got := titles(Rank(items, nil, testNow))
	want := []string{"inf", "negative", "nan"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestRankDoesNotMutateInput(t *testing.T) {
	items := []news.Item{{Title: "low", Score: 1}, {Title: "high", Score: 2}}
	Rank(items, nil, testNow)
	if items[0].Title != "low" {
		t.Errorf("input was reordered: %v", titles(items))
	}
}
