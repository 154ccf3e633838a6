// Package config loads the YAML configuration, resolves secrets from the
// environment and applies defaults.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"

	"github.com/deusflow/ainews/internal/consolidate"
	"github.com/deusflow/ainews/internal/summarizer"
)

var DefaultNitterInstances = []string{
	"https://nitter.net",
	"https://nitter.fdn.fr",
	"https://nitter.unixfox.eu",
	"https://nitter.poast.org",
}

type Discord struct {
	Enabled         bool     `yaml:"enabled"`
	BotToken        string   `yaml:"bot_token"`
	BotTokenEnv     string   `yaml:"bot_token_env"`
	ChannelIDs      []string `yaml:"channel_ids"`
	PerChannelLimit int      `yaml:"per_channel_limit"`
}

type Sources struct {
	RSSURLs          []string `yaml:"rss_urls"`
	RedditSubreddits []string `yaml:"reddit_subreddits"`
	TwitterAccounts  []string `yaml:"twitter_accounts"`
	NitterInstances  []string `yaml:"nitter_instances"`
	Discord          Discord  `yaml:"discord"`
}

type Filters struct {
	IncludeKeywords []string `yaml:"include_keywords"`
	ExcludeDomains  []string `yaml:"exclude_domains"`
}

type Options struct {
	MaxItems                  int  `yaml:"max_items"`
	FallbackMaxItems          int  `yaml:"fallback_max_items"`
	FetchImages               bool `yaml:"fetch_images"`
	FetchTimeoutSec           int  `yaml:"fetch_timeout_sec"`
	LookbackHours             int  `yaml:"lookback_hours"`
	KeepItemsWithoutTimestamp bool `yaml:"keep_items_without_timestamp"`
	RSSMaxPerFeed             int  `yaml:"rss_max_per_feed"`
	RedditLimit               int  `yaml:"reddit_limit"`
	TwitterMaxPerAccount      int  `yaml:"twitter_max_per_account"`
}

type Ranking struct {
	SourceWeights       map[string]float64 `yaml:"source_weights"`
	UndatedRecencyBonus float64            `yaml:"undated_recency_bonus"`
}

type LLM struct {
	Enabled        bool   `yaml:"enabled"`
	Provider       string `yaml:"provider"`
	Model          string `yaml:"model"`
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	APIKeyEnv      string `yaml:"api_key_env"`
	MaxRetries     int    `yaml:"max_retries"`
	BackoffSeconds int    `yaml:"backoff_seconds"`
	MaxRequests    int    `yaml:"max_requests"` // per run, 0 = unlimited
}

type SMTP struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	UseTLS      bool   `yaml:"use_tls"`
	Username    string `yaml:"username"`
	UsernameEnv string `yaml:"username_env"`
	Password    string `yaml:"password"`
	PasswordEnv string `yaml:"password_env"`
}

type Email struct {
	SMTP           SMTP   `yaml:"smtp"`
	From           string `yaml:"from"`
	SubjectPrefix  string `yaml:"subject_prefix"`
	UnsubscribeURL string `yaml:"unsubscribe_url"`
	SecretKey      string `yaml:"secret_key"`
	SecretKeyEnv   string `yaml:"secret_key_env"`
}

type Recipients struct {
	DatabaseURL    string   `yaml:"database_url"`
	DatabaseURLEnv string   `yaml:"database_url_env"`
	Static         []string `yaml:"static"`
}

type Telegram struct {
	Enabled      bool   `yaml:"enabled"`
	Token        string `yaml:"token"`
	TokenEnv     string `yaml:"token_env"`
	ChatID       int64  `yaml:"chat_id"`
	MaxHeadlines int    `yaml:"max_headlines"`
}

// Monitoring serves /health and /metrics for the duration of a run. The
// process exits when the run ends, so a scheduler probing these endpoints
// only sees them while a run is in progress.
type Monitoring struct {
	Enabled bool   `yaml:"enabled"`
	Port    string `yaml:"port"`
}

type Config struct {
	Sources    Sources    `yaml:"sources"`
	Filters    Filters    `yaml:"filters"`
	Options    Options    `yaml:"options"`
	Ranking    Ranking    `yaml:"ranking"`
	LLM        LLM        `yaml:"llm"`
	Email      Email      `yaml:"email"`
	Recipients Recipients `yaml:"recipients"`
	Telegram   Telegram   `yaml:"telegram"`
	Monitoring Monitoring `yaml:"monitoring"`
	Debug      bool       `yaml:"debug"`

	// Path is the file the configuration was read from, empty for defaults.
	Path string `yaml:"-"`
}

// Default returns a configuration with every default filled in.
func Default() *Config {
	return &Config{
		Sources: Sources{
			Discord: Discord{
				BotTokenEnv:     "DISCORD_BOT_TOKEN",
				PerChannelLimit: 50,
			},
		},
		Options: Options{
			MaxItems:                  consolidate.DefaultMaxItems,
			FallbackMaxItems:          consolidate.DefaultFallbackMaxItems,
			FetchImages:               true,
			FetchTimeoutSec:           15,
			KeepItemsWithoutTimestamp: true,
			RSSMaxPerFeed:             15,
			RedditLimit:               15,
			TwitterMaxPerAccount:      15,
		},
		LLM: LLM{
			Provider:       "gemini",
			APIKeyEnv:      "GEMINI_API_KEY",
			MaxRetries:     summarizer.DefaultMaxRetries,
			BackoffSeconds: int(summarizer.DefaultBackoff / time.Second),
		},
		Email: Email{
			SMTP:          SMTP{Port: 587, UseTLS: true},
			SubjectPrefix: "[AI]",
			SecretKeyEnv:  "SECRET_KEY",
		},
		Recipients: Recipients{DatabaseURLEnv: "DATABASE_URL"},
		Telegram: Telegram{
			TokenEnv:     "TELEGRAM_TOKEN",
			MaxHeadlines: 10,
		},
		Monitoring: Monitoring{Port: "8080"},
	}
}

var defaultModels = map[string]string{
	"gemini": "gemini-2.5-flash",
	"openai": "gpt-4o-mini",
}

func defaultWeights() map[string]float64 {
	return map[string]float64{
		consolidate.BucketTwitter: 30,
		consolidate.BucketReddit:  20,
		consolidate.BucketRSS:     10,
	}
}

// DefaultConfigPath is the per-user location searched last.
func DefaultConfigPath() string {
	return filepath.Join(xdg.ConfigHome, "ainews", "config.yaml")
}

// candidatePaths lists the files Load tries in order.
func candidatePaths(explicit string) []string {
	if explicit != "" {
		return []string{explicit}
	}
	return []string{"config.yaml", "config.example.yaml", DefaultConfigPath()}
}

// Load reads the first existing config file, falling back to defaults when
// none exists. An explicit path that does not exist is an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	for _, p := range candidatePaths(path) {
		data, err := os.ReadFile(p)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) && path == "" {
				continue
			}
			return nil, fmt.Errorf("reading config %s: %w", p, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", p, err)
		}
		cfg.Path = p
		break
	}

	return cfg, cfg.finish()
}

// Parse builds a configuration from YAML bytes without touching the
// filesystem. Secrets and env overrides are resolved as in Load.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, cfg.finish()
}

func (c *Config) finish() error {
	c.applyDefaults()
	c.resolveSecrets()
	c.applyEnvOverrides()
	return c.Validate()
}

// applyDefaults fills values that an explicit YAML entry may have left empty.
func (c *Config) applyDefaults() {
	if c.Ranking.SourceWeights == nil {
		c.Ranking.SourceWeights = defaultWeights()
	}
	if len(c.Sources.NitterInstances) == 0 {
		c.Sources.NitterInstances = append([]string(nil), DefaultNitterInstances...)
	}
	if c.Sources.Discord.PerChannelLimit <= 0 {
		c.Sources.Discord.PerChannelLimit = 50
	}
	if c.LLM.Provider == "" {
		c.LLM.Provider = "gemini"
	}
	c.LLM.Provider = strings.ToLower(c.LLM.Provider)
	if c.LLM.Model == "" {
		c.LLM.Model = defaultModels[c.LLM.Provider]
	}
}

// resolveSecrets copies env-indirected secrets into their value fields.
// A value written directly in the file wins over the env var.
func (c *Config) resolveSecrets() {
	resolve := func(value *string, env string) {
		if *value == "" && env != "" {
			*value = os.Getenv(env)
		}
	}
	resolve(&c.LLM.APIKey, c.LLM.APIKeyEnv)
	resolve(&c.Email.SMTP.Username, c.Email.SMTP.UsernameEnv)
	resolve(&c.Email.SMTP.Password, c.Email.SMTP.PasswordEnv)
	resolve(&c.Email.SecretKey, c.Email.SecretKeyEnv)
	resolve(&c.Sources.Discord.BotToken, c.Sources.Discord.BotTokenEnv)
	resolve(&c.Recipients.DatabaseURL, c.Recipients.DatabaseURLEnv)
	resolve(&c.Telegram.Token, c.Telegram.TokenEnv)
}

func (c *Config) applyEnvOverrides() {
	if c.LLM.Provider == "gemini" {
		c.LLM.APIKey = getEnvOrDefault("GEMINI_API_KEY", c.LLM.APIKey)
	}
	c.Options.MaxItems = getEnvIntOrDefault("MAX_ITEMS", c.Options.MaxItems)
	c.Options.LookbackHours = getEnvIntOrDefault("LOOKBACK_HOURS", c.Options.LookbackHours)
	c.Monitoring.Port = getEnvOrDefault("MONITORING_PORT", c.Monitoring.Port)

	if os.Getenv("ENABLE_HTTP_MONITORING") == "true" {
		c.Monitoring.Enabled = true
	}
	if debug := os.Getenv("DEBUG"); debug == "true" {
		c.Debug = true
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

var knownProviders = map[string]bool{"gemini": true, "openai": true}

func (c *Config) Validate() error {
	if !knownProviders[c.LLM.Provider] {
		return fmt.Errorf("llm.provider must be 'gemini' or 'openai', got %q", c.LLM.Provider)
	}
	if c.LLM.MaxRetries < 0 || c.LLM.BackoffSeconds < 0 || c.LLM.MaxRequests < 0 {
		return fmt.Errorf("llm retry settings must not be negative")
	}

	caps := map[string]int{
		"options.max_items":               c.Options.MaxItems,
		"options.fallback_max_items":      c.Options.FallbackMaxItems,
		"options.fetch_timeout_sec":       c.Options.FetchTimeoutSec,
		"options.lookback_hours":          c.Options.LookbackHours,
		"options.rss_max_per_feed":        c.Options.RSSMaxPerFeed,
		"options.reddit_limit":            c.Options.RedditLimit,
		"options.twitter_max_per_account": c.Options.TwitterMaxPerAccount,
		"telegram.max_headlines":          c.Telegram.MaxHeadlines,
	}
	for name, v := range caps {
		if v < 0 {
			return fmt.Errorf("%s must not be negative, got %d", name, v)
		}
	}

	for _, raw := range c.Sources.RSSURLs {
		if err := validateHTTPURL(raw); err != nil {
			return fmt.Errorf("sources.rss_urls: %w", err)
		}
	}
	for _, raw := range c.Sources.NitterInstances {
		if err := validateHTTPURL(raw); err != nil {
			return fmt.Errorf("sources.nitter_instances: %w", err)
		}
	}
	return nil
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid URL %q: scheme must be http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid URL %q: missing host", raw)
	}
	return nil
}

// FetchTimeout is the per-request timeout for every fetcher.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.Options.FetchTimeoutSec) * time.Second
}

// Lookback is zero when the window filter is off.
func (c *Config) Lookback() time.Duration {
	return time.Duration(c.Options.LookbackHours) * time.Hour
}

// Generation projects the llm section into the gateway's call config.
func (c *Config) Generation() summarizer.GenerationConfig {
	return summarizer.GenerationConfig{
		Provider:   c.LLM.Provider,
		Model:      c.LLM.Model,
		APIKey:     c.LLM.APIKey,
		BaseURL:    c.LLM.BaseURL,
		MaxRetries: c.LLM.MaxRetries,
		Backoff:    time.Duration(c.LLM.BackoffSeconds) * time.Second,
	}
}

// Consolidate projects the options the report pipeline needs.
func (c *Config) Consolidate() consolidate.Options {
	weights := make(consolidate.SourceWeights, len(c.Ranking.SourceWeights))
	for k, v := range c.Ranking.SourceWeights {
		weights[strings.ToLower(k)] = v
	}
	return consolidate.Options{
		Weights:             weights,
		UndatedRecencyBonus: c.Ranking.UndatedRecencyBonus,
		GenerationEnabled:   c.LLM.Enabled,
		Generation:          c.Generation(),
		MaxItems:            c.Options.MaxItems,
		FallbackMaxItems:    c.Options.FallbackMaxItems,
	}
}

// EmailConfigured reports whether SMTP delivery has what it needs.
func (c *Config) EmailConfigured() bool {
	s := c.Email.SMTP
	return s.Host != "" && s.Username != "" && s.Password != "" && c.Email.From != ""
}
