// Package summarizer wraps external text-generation services behind a
// bounded-retry gateway. Callers get either generated text or a clear
// "nothing produced" signal; errors never escape.
package summarizer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/deusflow/ainews/internal/logger"
	"github.com/deusflow/ainews/internal/metrics"
	"github.com/deusflow/ainews/internal/ratelimit"
	"github.com/deusflow/ainews/internal/retry"
)

const (
	DefaultMaxRetries = 3
	DefaultBackoff    = 5 * time.Second
)

// GenerationConfig carries everything a backend needs, credentials included.
type GenerationConfig struct {
	Provider   string
	Model      string
	APIKey     string
	BaseURL    string
	MaxRetries int
	Backoff    time.Duration
}

// Response is the provider-neutral shape of a generation result.
type Response struct {
	Text       string
	Candidates []Candidate
}

type Candidate struct {
	Parts        []string
	FinishReason string
}

// Generator is one backend client. A new one is created for every attempt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (*Response, error)
	Close() error
}

// Factory builds a Generator for a configuration.
type Factory func(ctx context.Context, cfg GenerationConfig) (Generator, error)

// Summarizer is what the report pipeline depends on.
type Summarizer interface {
	Summarize(ctx context.Context, cfg GenerationConfig, prompt string) (string, bool)
}

// ExtractText returns resp.Text when it has content, otherwise every text part
// of every candidate joined by newlines and trimmed.
func ExtractText(resp *Response) string {
	if resp == nil {
		return ""
	}
	if strings.TrimSpace(resp.Text) != "" {
		return resp.Text
	}
	var parts []string
	for _, c := range resp.Candidates {
		for _, p := range c.Parts {
			if p != "" {
				parts = append(parts, p)
			}
		}
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}

// Gateway runs the attempt cycle against a registered provider.
type Gateway struct {
	factories       map[string]Factory
	defaultProvider string
	limiter         *ratelimit.AIRateLimiter
	metrics         *metrics.Metrics
	sleep           func(ctx context.Context, d time.Duration) error
	log             *slog.Logger
}

type Option func(*Gateway)

// WithLimiter makes every attempt consume budget from rl.
func WithLimiter(rl *ratelimit.AIRateLimiter) Option {
	return func(g *Gateway) { g.limiter = rl }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Gateway) { g.metrics = m }
}

// WithSleep replaces the backoff wait (tests count waits through it).
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(g *Gateway) { g.sleep = fn }
}

func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) { g.log = l }
}

// NewGateway creates a gateway; defaultProvider is used when a config names none.
func NewGateway(defaultProvider string, opts ...Option) *Gateway {
	g := &Gateway{
		factories:       make(map[string]Factory),
		defaultProvider: defaultProvider,
		metrics:         metrics.Global,
		sleep:           retry.Sleep,
		log:             logger.Logger,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Register binds a provider name to a backend factory.
func (g *Gateway) Register(provider string, f Factory) {
	g.factories[strings.ToLower(provider)] = f
}

// Summarize sends prompt to the configured provider with bounded retries.
// It returns the generated text and true, or "" and false when nothing usable
// came back (missing key, unknown provider, exhausted retries, spent budget).
func (g *Gateway) Summarize(ctx context.Context, cfg GenerationConfig, prompt string) (string, bool) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" {
		provider = g.defaultProvider
	}
	log := g.log.With("provider", provider, "model", cfg.Model)

	if strings.TrimSpace(cfg.APIKey) == "" {
		log.Error("missing API key for text generation; skipping")
		return "", false
	}
	factory, ok := g.factories[provider]
	if !ok {
		log.Error("unknown text generation provider; skipping")
		return "", false
	}

	m := retry.NewMachine(retry.RetryConfig{
		MaxAttempts: cfg.MaxRetries,
		Delay:       cfg.Backoff,
	})

	var text string
	for !m.Done() {
		if g.limiter != nil {
			if err := g.limiter.Use(provider); err != nil {
				log.Warn("generation budget spent; giving up", "error", err)
				m.Abort()
				break
			}
		}

		attempt := m.Attempt()
		log.Info("sending generation request", "attempt", attempt, "max_attempts", cfg.MaxRetries, "base_url", cfg.BaseURL)
		g.metrics.IncrementGenerationAttempts()

		got, err := g.attempt(ctx, factory, cfg, prompt)
		if err == nil {
			text = got
			m.Succeed()
			g.metrics.IncrementGenerationSuccesses()
			log.Info("generation completed", "attempt", attempt, "chars", len(text))
			break
		}

		g.metrics.IncrementGenerationFailures()
		log.Warn("generation attempt failed", "attempt", attempt, "error", err)

		delay, again := m.Fail()
		if !again {
			log.Warn("max retries reached; giving up", "attempts", attempt)
			break
		}
		if g.limiter != nil && !g.limiter.CanUse(provider) {
			log.Warn("generation budget spent; skipping remaining retries", "attempts", attempt)
			m.Abort()
			break
		}
		log.Info("waiting before retry", "delay", delay)
		if err := g.sleep(ctx, delay); err != nil {
			log.Warn("retry wait interrupted", "error", err)
			m.Abort()
		}
	}

	if m.State() != retry.Succeeded {
		return "", false
	}
	return text, true
}

// attempt runs one independent request. Panics from a backend count as failures.
func (g *Gateway) attempt(ctx context.Context, factory Factory, cfg GenerationConfig, prompt string) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("backend panic: %v", r)
		}
	}()

	gen, err := factory(ctx, cfg)
	if err != nil {
		return "", fmt.Errorf("create client: %w", err)
	}
	defer func() {
		if cerr := gen.Close(); cerr != nil {
			g.log.Debug("closing generation client", "error", cerr)
		}
	}()

	resp, err := gen.Generate(ctx, prompt)
	if err != nil {
		return "", err
	}
	if resp != nil {
		for i, c := range resp.Candidates {
			if c.FinishReason != "" {
				g.log.Debug("candidate finish reason", "candidate", i, "reason", c.FinishReason)
			}
		}
	}

	text = ExtractText(resp)
	if text == "" {
		return "", fmt.Errorf("empty response")
	}
	return text, nil
}
