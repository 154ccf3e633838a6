package summarizer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/deusflow/ainews/internal/metrics"
	"github.com/deusflow/ainews/internal/ratelimit"
)

type fakeGenerator struct {
	resp   *Response
	err    error
	panic  bool
	closed *int
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt string) (*Response, error) {
	if f.panic {
		panic("backend exploded")
	}
	return f.resp, f.err
}

func (f *fakeGenerator) Close() error {
	if f.closed != nil {
		*f.closed++
	}
	return nil
}

// scripted returns a factory that yields gens in order and counts calls.
func scripted(calls *int, gens ...*fakeGenerator) Factory {
	return func(ctx context.Context, cfg GenerationConfig) (Generator, error) {
		i := *calls
		*calls++
		if i >= len(gens) {
			return gens[len(gens)-1], nil
		}
		return gens[i], nil
	}
}

func newTestGateway(waits *[]time.Duration, opts ...Option) *Gateway {
	opts = append([]Option{
		WithMetrics(metrics.New()),
		WithSleep(func(ctx context.Context, d time.Duration) error {
			*waits = append(*waits, d)
			return nil
		}),
	}, opts...)
	return NewGateway("fake", opts...)
}

func testConfig() GenerationConfig {
	return GenerationConfig{
		Provider:   "fake",
		Model:      "test-model",
		APIKey:     "key",
		MaxRetries: 3,
		Backoff:    5 * time.Second,
	}
}

func TestExtractText(t *testing.T) {
	tests := []struct {
		name string
		resp *Response
		want string
	}{
		{"nil", nil, ""},
		{"direct text", &Response{Text: "hello", Candidates: []Candidate{{Parts: []string{"ignored"}}}}, "hello"},
		{"blank text falls back to parts", &Response{Text: "  ", Candidates: []Candidate{{Parts: []string{"a", "b"}}}}, "a\nb"},
		{"parts across candidates in order", &Response{Candidates: []Candidate{
			{Parts: []string{" first"}},
			{Parts: []string{"second", ""}},
			{Parts: []string{"third "}},
		}}, "first\nsecond\nthird"},
		{"nothing usable", &Response{Candidates: []Candidate{{FinishReason: "SAFETY"}}}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractText(tt.resp); got != tt.want {
				t.Errorf("ExtractText() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSummarizeSucceedsFirstTry(t *testing.T) {
	var waits []time.Duration
	calls, closed := 0, 0
	g := newTestGateway(&waits)
	g.Register("fake", scripted(&calls, &fakeGenerator{resp: &Response{Text: "<html>report</html>"}, closed: &closed}))

	text, ok := g.Summarize(context.Background(), testConfig(), "prompt")
	if !ok || text != "<html>report</html>" {
		t.Fatalf("got (%q, %v)", text, ok)
	}
	if calls != 1 || len(waits) != 0 {
		t.Errorf("expected 1 call and no waits, got %d calls %d waits", calls, len(waits))
	}
	if closed != 1 {
		t.Errorf("expected client to be closed once, got %d", closed)
	}
}

func TestSummarizeRetryBound(t *testing.T) {
	var waits []time.Duration
	calls := 0
	g := newTestGateway(&waits)
	g.Register("fake", scripted(&calls, &fakeGenerator{err: errors.New("503 unavailable")}))

	text, ok := g.Summarize(context.Background(), testConfig(), "prompt")
	if ok || text != "" {
		t.Fatalf("expected no text, got (%q, %v)", text, ok)
	}
	if calls != 3 {
		t.Errorf("expected exactly 3 attempts, got %d", calls)
	}
	if len(waits) != 2 {
		t.Fatalf("expected exactly 2 backoff waits, got %d", len(waits))
	}
	for _, w := range waits {
		if w != 5*time.Second {
			t.Errorf("expected 5s backoff, got %v", w)
		}
	}
}

func TestSummarizeRecoversAfterEmptyAndPanic(t *testing.T) {
	var waits []time.Duration
	calls := 0
	g := newTestGateway(&waits)
	g.Register("fake", scripted(&calls,
		&fakeGenerator{resp: &Response{}},
		&fakeGenerator{panic: true},
		&fakeGenerator{resp: &Response{Candidates: []Candidate{{Parts: []string{"joined", "text"}}}}},
	))

	text, ok := g.Summarize(context.Background(), testConfig(), "prompt")
	if !ok || text != "joined\ntext" {
		t.Fatalf("got (%q, %v)", text, ok)
	}
	if calls != 3 || len(waits) != 2 {
		t.Errorf("expected 3 calls and 2 waits, got %d and %d", calls, len(waits))
	}
}

func TestSummarizeFactoryErrorCountsAsAttempt(t *testing.T) {
	var waits []time.Duration
	calls := 0
	g := newTestGateway(&waits)
	g.Register("fake", func(ctx context.Context, cfg GenerationConfig) (Generator, error) {
		calls++
		return nil, errors.New("bad endpoint")
	})

	cfg := testConfig()
	cfg.MaxRetries = 2
	if _, ok := g.Summarize(context.Background(), cfg, "prompt"); ok {
		t.Fatal("expected failure")
	}
	if calls != 2 || len(waits) != 1 {
		t.Errorf("expected 2 calls and 1 wait, got %d and %d", calls, len(waits))
	}
}

func TestSummarizeMissingKeyShortCircuits(t *testing.T) {
	var waits []time.Duration
	calls := 0
	g := newTestGateway(&waits)
	g.Register("fake", scripted(&calls, &fakeGenerator{resp: &Response{Text: "x"}}))

	cfg := testConfig()
	cfg.APIKey = ""
	if _, ok := g.Summarize(context.Background(), cfg, "prompt"); ok {
		t.Fatal("expected no text without credentials")
	}
	if calls != 0 || len(waits) != 0 {
		t.Errorf("expected no attempts and no waits, got %d and %d", calls, len(waits))
	}
}

func TestSummarizeUnknownProvider(t *testing.T) {
	var waits []time.Duration
	g := newTestGateway(&waits)
	cfg := testConfig()
	cfg.Provider = "nope"
	if _, ok := g.Summarize(context.Background(), cfg, "prompt"); ok {
		t.Fatal("expected failure for unregistered provider")
	}
}

func TestSummarizeDefaultProvider(t *testing.T) {
	var waits []time.Duration
	calls := 0
	g := newTestGateway(&waits)
	g.Register("FAKE", scripted(&calls, &fakeGenerator{resp: &Response{Text: "ok"}}))

	cfg := testConfig()
	cfg.Provider = ""
	if text, ok := g.Summarize(context.Background(), cfg, "prompt"); !ok || text != "ok" {
		t.Fatalf("got (%q, %v)", text, ok)
	}
}

func TestSummarizeZeroRetries(t *testing.T) {
	var waits []time.Duration
	calls := 0
	g := newTestGateway(&waits)
	g.Register("fake", scripted(&calls, &fakeGenerator{resp: &Response{Text: "x"}}))

	cfg := testConfig()
	cfg.MaxRetries = 0
	if _, ok := g.Summarize(context.Background(), cfg, "prompt"); ok {
		t.Fatal("expected no text with zero attempts")
	}
	if calls != 0 {
		t.Errorf("expected no calls, got %d", calls)
	}
}

func TestSummarizeStopsWhenBudgetSpent(t *testing.T) {
	var waits []time.Duration
	calls := 0
	rl := ratelimit.NewAIRateLimiter(map[string]int{"fake": 1}, 0, time.Hour)
	g := newTestGateway(&waits, WithLimiter(rl))
	g.Register("fake", scripted(&calls, &fakeGenerator{err: errors.New("fail")}))

	if _, ok := g.Summarize(context.Background(), testConfig(), "prompt"); ok {
		t.Fatal("expected failure")
	}
	if calls != 1 {
		t.Errorf("expected the budget to allow a single call, got %d", calls)
	}
	if len(waits) != 0 {
		t.Errorf("no backoff expected once the budget is spent, got %v", waits)
	}
}

func TestSummarizeStopsWhenWaitInterrupted(t *testing.T) {
	calls := 0
	g := NewGateway("fake",
		WithMetrics(metrics.New()),
		WithSleep(func(ctx context.Context, d time.Duration) error { return context.Canceled }),
	)
	g.Register("fake", scripted(&calls, &fakeGenerator{err: errors.New("fail")}))

	if _, ok := g.Summarize(context.Background(), testConfig(), "prompt"); ok {
		t.Fatal("expected failure")
	}
	if calls != 1 {
		t.Errorf("expected a single call before the interrupted wait, got %d", calls)
	}
}
