package consolidate

import (
	"context"
	"log/slog"
	"time"

	"github.com/deusflow/ainews/internal/logger"
	"github.com/deusflow/ainews/internal/metrics"
	"github.com/deusflow/ainews/internal/news"
	"github.com/deusflow/ainews/internal/summarizer"
)

const (
	DefaultMaxItems         = 30
	DefaultFallbackMaxItems = 30
)

// Options is everything the pipeline needs, credentials included. Nothing
// is read from the environment.
type Options struct {
	Weights             SourceWeights
	UndatedRecencyBonus float64

	GenerationEnabled bool
	Generation        summarizer.GenerationConfig

	MaxItems         int // prompt cap
	FallbackMaxItems int // fallback list cap
}

// Result is the report plus the intermediate ranked list.
type Result struct {
	Report    string
	Ranked    []news.Item
	Generated bool
}

type Pipeline struct {
	opts       Options
	summarizer summarizer.Summarizer
	now        func() time.Time
	metrics    *metrics.Metrics
	log        *slog.Logger
}

type PipelineOption func(*Pipeline)

// WithClock fixes the time used for recency scoring.
func WithClock(now func() time.Time) PipelineOption {
	return func(p *Pipeline) { p.now = now }
}

func WithPipelineMetrics(m *metrics.Metrics) PipelineOption {
	return func(p *Pipeline) { p.metrics = m }
}

func WithPipelineLogger(l *slog.Logger) PipelineOption {
	return func(p *Pipeline) { p.log = l }
}

// NewPipeline builds a pipeline. s may be nil when generation is disabled.
func NewPipeline(opts Options, s summarizer.Summarizer, popts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		opts:       opts,
		summarizer: s,
		now:        time.Now,
		metrics:    metrics.Global,
		log:        logger.Logger,
	}
	for _, o := range popts {
		o(p)
	}
	return p
}

// Run dedupes and ranks raw, then returns the generated report or the
// fallback rendering. It always returns a report.
func (p *Pipeline) Run(ctx context.Context, raw []news.Item) Result {
	ranked := p.Prepare(raw)
	res := Result{Ranked: ranked}

	if p.opts.GenerationEnabled && p.summarizer != nil {
		p.log.Info("requesting generated report", "items", len(ranked), "max_items", p.opts.MaxItems)
		prompt := BuildPrompt(ranked, p.opts.MaxItems)
		if text, ok := p.summarize(ctx, prompt); ok {
			p.log.Info("generated report received", "chars", len(text))
			res.Report = text
			res.Generated = true
			return res
		}
		p.log.Warn("no generated report; using fallback rendering")
	}

	p.metrics.IncrementFallbackReports()
	res.Report = RenderFallback(ranked, p.opts.FallbackMaxItems)
	return res
}

// Prepare dedupes and ranks raw without generating anything.
func (p *Pipeline) Prepare(raw []news.Item) []news.Item {
	deduped := Dedupe(raw)
	if n := len(raw) - len(deduped); n > 0 {
		p.metrics.AddDuplicatesFiltered(n)
		p.log.Debug("duplicates removed", "count", n)
	}
	return Rank(deduped, p.opts.Weights, p.now(), WithUndatedBonus(p.opts.UndatedRecencyBonus))
}

func (p *Pipeline) summarize(ctx context.Context, prompt string) (text string, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("summarizer panicked", "panic", r)
			text, ok = "", false
		}
	}()
	return p.summarizer.Summarize(ctx, p.opts.Generation, prompt)
}

// MakeReport runs a one-off pipeline and returns only the report text.
func MakeReport(ctx context.Context, raw []news.Item, opts Options, s summarizer.Summarizer) string {
	return NewPipeline(opts, s).Run(ctx, raw).Report
}
