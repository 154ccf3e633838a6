// Package app wires the fetchers, the report pipeline and the delivery
// channels into a single run.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/deusflow/ainews/internal/config"
	"github.com/deusflow/ainews/internal/consolidate"
	"github.com/deusflow/ainews/internal/discord"
	"github.com/deusflow/ainews/internal/email"
	"github.com/deusflow/ainews/internal/gemini"
	"github.com/deusflow/ainews/internal/logger"
	"github.com/deusflow/ainews/internal/metrics"
	"github.com/deusflow/ainews/internal/news"
	"github.com/deusflow/ainews/internal/openaicompat"
	"github.com/deusflow/ainews/internal/ratelimit"
	"github.com/deusflow/ainews/internal/reddit"
	"github.com/deusflow/ainews/internal/rss"
	"github.com/deusflow/ainews/internal/scraper"
	"github.com/deusflow/ainews/internal/storage"
	"github.com/deusflow/ainews/internal/summarizer"
	"github.com/deusflow/ainews/internal/telegram"
)

const previewItems = 10

// ErrConfig marks failures caused by missing or invalid configuration, as
// opposed to a delivery that failed at run time.
var ErrConfig = errors.New("configuration error")

// Flags select what a run produces.
type Flags struct {
	Once       bool   // print a preview of the fetched items
	ReportPath string // write the report here
	SendEmail  bool
	Telegram   bool
}

func (f Flags) any() bool {
	return f.Once || f.ReportPath != "" || f.SendEmail || f.Telegram
}

type source struct {
	name  string
	fetch func(ctx context.Context) []news.Item
}

type imageAttacher interface {
	AttachImages(ctx context.Context, items []news.Item)
}

type mailer interface {
	Send(ctx context.Context, report string, recipients []string) (int, error)
}

type headlineSender interface {
	SendHeadlines(ctx context.Context, items []news.Item, max int) error
}

type App struct {
	cfg        *config.Config
	out        io.Writer
	sources    []source
	images     imageAttacher
	summarizer summarizer.Summarizer
	metrics    *metrics.Metrics
	now        func() time.Time

	newMailer      func() (mailer, error)
	openRecipients func(ctx context.Context) (storage.RecipientSource, func() error, error)
	newNotifier    func() (headlineSender, error)
}

// New builds an App from configuration. Console output goes to out.
func New(cfg *config.Config, out io.Writer) *App {
	a := &App{
		cfg:        cfg,
		out:        out,
		sources:    buildSources(cfg),
		summarizer: NewGateway(cfg),
		metrics:    metrics.Global,
		now:        time.Now,
	}
	if cfg.Options.FetchImages {
		a.images = scraper.NewImageFetcher(cfg.FetchTimeout())
	}
	a.newMailer = a.defaultMailer
	a.openRecipients = a.defaultRecipients
	a.newNotifier = a.defaultNotifier
	return a
}

// NewGateway returns a summarizer with every supported backend registered
// and the per-run request budget from cfg. Budget usage shows up on /metrics.
func NewGateway(cfg *config.Config) *summarizer.Gateway {
	provider := cfg.LLM.Provider
	limiter := ratelimit.NewAIRateLimiter(
		map[string]int{provider: cfg.LLM.MaxRequests},
		cfg.LLM.MaxRequests,
		24*time.Hour,
	)
	metrics.Global.Attach("ai_rate_limit", limiter.GetStats)

	g := summarizer.NewGateway(provider, summarizer.WithLimiter(limiter))
	g.Register("gemini", gemini.Factory)
	g.Register("openai", openaicompat.Factory)
	return g
}

// buildSources lists the configured fetchers in a fixed order, which is
// also the first-seen order used by deduplication.
func buildSources(cfg *config.Config) []source {
	timeout := cfg.FetchTimeout()
	opts := cfg.Options
	src := cfg.Sources

	var out []source
	if len(src.RSSURLs) > 0 {
		f := rss.NewFetcher(timeout)
		out = append(out, source{"rss", func(ctx context.Context) []news.Item {
			return f.FetchAll(ctx, src.RSSURLs, opts.RSSMaxPerFeed)
		}})
	}
	if len(src.RedditSubreddits) > 0 {
		c := reddit.NewClient(timeout)
		out = append(out, source{"reddit", func(ctx context.Context) []news.Item {
			return c.FetchAll(ctx, src.RedditSubreddits, opts.RedditLimit)
		}})
	}
	if len(src.TwitterAccounts) > 0 {
		f := rss.NewNitterFetcher(src.NitterInstances, timeout)
		out = append(out, source{"twitter", func(ctx context.Context) []news.Item {
			return f.FetchAll(ctx, src.TwitterAccounts, opts.TwitterMaxPerAccount)
		}})
	}
	if src.Discord.Enabled {
		c := discord.NewClient(src.Discord.BotToken, timeout)
		out = append(out, source{"discord", func(ctx context.Context) []news.Item {
			return c.FetchAll(ctx, src.Discord.ChannelIDs, src.Discord.PerChannelLimit)
		}})
	}
	return out
}

// Collect runs every source concurrently and concatenates the results in
// source order.
func (a *App) Collect(ctx context.Context) []news.Item {
	results := make([][]news.Item, len(a.sources))

	g, gctx := errgroup.WithContext(ctx)
	for i, s := range a.sources {
		g.Go(func() error {
			results[i] = s.fetch(gctx)
			return nil
		})
	}
	_ = g.Wait()

	var items []news.Item
	for _, r := range results {
		items = append(items, r...)
	}
	return items
}

// Run fetches, filters and ranks the items once, then delivers what flags ask for.
func (a *App) Run(ctx context.Context, flags Flags) (err error) {
	if !flags.any() {
		fmt.Fprintln(a.out, "Use --once, --report, --send-email or --telegram.")
		return nil
	}

	log, runID := logger.ForRun()
	start := a.now()
	defer func() {
		a.metrics.RecordProcessingTime(a.now().Sub(start))
		if err != nil {
			a.metrics.SetError(err.Error())
		} else {
			a.metrics.SetLastRun()
		}
	}()

	log.Info("run started", "run_id", runID, "sources", len(a.sources))

	items := a.Collect(ctx)
	a.metrics.AddItemsFetched(len(items))
	log.Info("items fetched", "count", len(items))

	items = a.filter(items)
	log.Info("items after filters", "count", len(items))

	if a.images != nil {
		a.images.AttachImages(ctx, items)
	}
	news.SortByRecency(items)

	if flags.Once {
		a.preview(items)
	}

	pipeline := consolidate.NewPipeline(a.cfg.Consolidate(), a.summarizer,
		consolidate.WithClock(a.now),
		consolidate.WithPipelineMetrics(a.metrics),
		consolidate.WithPipelineLogger(log),
	)

	var errs []error
	var ranked []news.Item

	if flags.ReportPath != "" || flags.SendEmail {
		res := pipeline.Run(ctx, items)
		ranked = res.Ranked
		log.Info("report ready", "generated", res.Generated, "chars", len(res.Report))

		if flags.ReportPath != "" {
			if err := os.WriteFile(flags.ReportPath, []byte(res.Report), 0o644); err != nil {
				errs = append(errs, fmt.Errorf("writing report: %w", err))
			} else {
				fmt.Fprintf(a.out, "Wrote report to %s\n", flags.ReportPath)
			}
		}
		if flags.SendEmail {
			if err := a.sendEmail(ctx, log, res.Report); err != nil {
				errs = append(errs, err)
			}
		}
	}

	if flags.Telegram {
		if ranked == nil {
			ranked = pipeline.Prepare(items)
		}
		if err := a.sendTelegram(ctx, ranked); err != nil {
			errs = append(errs, err)
		}
	}

	log.Info("run finished", "duration", a.now().Sub(start).String())
	return errors.Join(errs...)
}

func (a *App) filter(items []news.Item) []news.Item {
	opts := a.cfg.Options
	if lookback := a.cfg.Lookback(); lookback > 0 {
		items = news.FilterWindow(items, a.now().UTC(), lookback, opts.KeepItemsWithoutTimestamp)
	}
	return news.FilterKeywords(items, a.cfg.Filters.IncludeKeywords, a.cfg.Filters.ExcludeDomains)
}

func (a *App) preview(items []news.Item) {
	fmt.Fprintf(a.out, "Fetched %d items\n", len(items))
	for i, it := range items {
		if i >= previewItems {
			break
		}
		fmt.Fprintf(a.out, "%d. [%s] %s (%s) -> %s\n", i+1, it.Source, it.Title, it.PublishedISO(), it.URL)
	}
}

func (a *App) sendEmail(ctx context.Context, log *slog.Logger, report string) error {
	m, err := a.newMailer()
	if err != nil {
		return err
	}

	store, closeStore, err := a.openRecipients(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	recipients, err := store.Recipients(ctx)
	if err != nil {
		return fmt.Errorf("loading recipients: %w", err)
	}
	if len(recipients) == 0 {
		log.Warn("no recipients found; email not sent")
		return nil
	}

	n, err := m.Send(ctx, report, recipients)
	log.Info("email delivery finished", "sent", n, "recipients", len(recipients))
	if err != nil {
		return fmt.Errorf("sending email: %w", err)
	}
	return nil
}

func (a *App) sendTelegram(ctx context.Context, ranked []news.Item) error {
	n, err := a.newNotifier()
	if err != nil {
		return err
	}
	if err := n.SendHeadlines(ctx, ranked, a.cfg.Telegram.MaxHeadlines); err != nil {
		return fmt.Errorf("sending telegram headlines: %w", err)
	}
	return nil
}

func (a *App) defaultMailer() (mailer, error) {
	if !a.cfg.EmailConfigured() {
		return nil, fmt.Errorf("%w: email needs smtp host, username, password and from", ErrConfig)
	}
	e := a.cfg.Email
	return email.NewSender(email.Config{
		Host:           e.SMTP.Host,
		Port:           e.SMTP.Port,
		UseTLS:         e.SMTP.UseTLS,
		Username:       e.SMTP.Username,
		Password:       e.SMTP.Password,
		From:           e.From,
		SubjectPrefix:  e.SubjectPrefix,
		UnsubscribeURL: e.UnsubscribeURL,
		SecretKey:      e.SecretKey,
	}), nil
}

// OpenRecipients returns the Postgres store when a database URL is set and
// the static list otherwise. The returned func releases the store.
func OpenRecipients(ctx context.Context, cfg *config.Config) (storage.RecipientSource, func() error, error) {
	if cfg.Recipients.DatabaseURL == "" {
		return storage.StaticRecipients(cfg.Recipients.Static), func() error { return nil }, nil
	}
	store, err := storage.NewPostgresRecipients(ctx, cfg.Recipients.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("opening recipient store: %w", err)
	}
	return store, store.Close, nil
}

func (a *App) defaultRecipients(ctx context.Context) (storage.RecipientSource, func() error, error) {
	return OpenRecipients(ctx, a.cfg)
}

func (a *App) defaultNotifier() (headlineSender, error) {
	t := a.cfg.Telegram
	if t.Token == "" || t.ChatID == 0 {
		return nil, fmt.Errorf("%w: telegram needs a token and chat_id", ErrConfig)
	}
	return telegram.NewNotifier(t.Token, t.ChatID)
}
