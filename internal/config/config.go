package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"newsdigest/internal/domain"
	"newsdigest/internal/logging"
	"newsdigest/internal/normalizer"
	"newsdigest/internal/pipeline"
	"newsdigest/internal/ratelimiter"
	"newsdigest/internal/scheduler"
	"newsdigest/internal/source"
	"newsdigest/internal/summarizer"
)

const (
	DefaultDBPath = "articles.db"

	defaultCacheSize = 256
)

// Config is built from Default, then the optional YAML file, then the
// environment.
type Config struct {
	DBPath   string `env:"DB_PATH"   yaml:"dbPath"`
	LogLevel string `env:"LOG_LEVEL" yaml:"logLevel"`

	Pipeline   PipelineConfig   `envPrefix:"PIPELINE_"   yaml:"pipeline"`
	Source     SourceConfig     `envPrefix:"SOURCE_"     yaml:"source"`
	Summarizer SummarizerConfig `envPrefix:"SUMMARIZER_" yaml:"summarizer"`
	Limiter    LimiterConfig    `envPrefix:"LIMITER_"    yaml:"limiter"`
	Telegram   TelegramConfig   `envPrefix:"TELEGRAM_"   yaml:"telegram"`
	Scheduler  SchedulerConfig  `envPrefix:"SCHEDULER_"  yaml:"scheduler"`
}

type PipelineConfig struct {
	Concurrency      int  `env:"CONCURRENCY"       yaml:"concurrency"`
	LowercaseContent bool `env:"LOWERCASE_CONTENT" yaml:"lowercaseContent"`
	ContentMaxLen    int  `env:"CONTENT_MAX_LEN"   yaml:"contentMaxLen"`
}

type SourceConfig struct {
	Timeout       time.Duration `env:"TIMEOUT"         yaml:"timeout"`
	Concurrency   int           `env:"CONCURRENCY"     yaml:"concurrency"`
	QuotesURL     string        `env:"QUOTES_URL"      yaml:"quotesUrl"`
	HackerNewsURL string        `env:"HACKER_NEWS_URL" yaml:"hackerNewsUrl"`
	RedditURL     string        `env:"REDDIT_URL"      yaml:"redditUrl"`
}

type SummarizerConfig struct {
	Model               string        `env:"MODEL"                 yaml:"model"`
	BaseURL             string        `env:"BASE_URL"              yaml:"baseUrl"`
	FlexTier            bool          `env:"FLEX_TIER"             yaml:"flexTier"`
	MaxRetries          int           `env:"MAX_RETRIES"           yaml:"maxRetries"`
	BaseDelay           time.Duration `env:"BASE_DELAY"            yaml:"baseDelay"`
	MaxDelay            time.Duration `env:"MAX_DELAY"             yaml:"maxDelay"`
	CallTimeout         time.Duration `env:"CALL_TIMEOUT"          yaml:"callTimeout"`
	MinInputLen         int           `env:"MIN_INPUT_LEN"         yaml:"minInputLen"`
	MaxInputLen         int           `env:"MAX_INPUT_LEN"         yaml:"maxInputLen"`
	SummaryMinLen       int           `env:"SUMMARY_MIN_LEN"       yaml:"summaryMinLen"`
	SummaryMaxLen       int           `env:"SUMMARY_MAX_LEN"       yaml:"summaryMaxLen"`
	SummaryMaxSentences int           `env:"SUMMARY_MAX_SENTENCES" yaml:"summaryMaxSentences"`
	CacheSize           int           `env:"CACHE_SIZE"            yaml:"cacheSize"`
	CacheTTL            time.Duration `env:"CACHE_TTL"             yaml:"cacheTtl"`
}

type LimiterConfig struct {
	MaxConcurrent  int           `env:"MAX_CONCURRENT"  yaml:"maxConcurrent"`
	MinInterval    time.Duration `env:"MIN_INTERVAL"    yaml:"minInterval"`
	AcquireTimeout time.Duration `env:"ACQUIRE_TIMEOUT" yaml:"acquireTimeout"`
}

// TelegramConfig enables batch notifications when Token is set.
type TelegramConfig struct {
	Token       string        `env:"TOKEN"        yaml:"token"`
	ChatID      int64         `env:"CHAT_ID"      yaml:"chatId"`
	MinInterval time.Duration `env:"MIN_INTERVAL" yaml:"minInterval"`
}

type SchedulerConfig struct {
	Spec       string        `env:"SPEC"        yaml:"spec"`
	Timezone   string        `env:"TIMEZONE"    yaml:"timezone"`
	RunTimeout time.Duration `env:"RUN_TIMEOUT" yaml:"runTimeout"`
	Sources    []string      `env:"SOURCES"     envSeparator:";"  yaml:"sources"`
	Limit      int           `env:"LIMIT"       yaml:"limit"`
}

// Credentials are read from the environment only.
type Credentials struct {
	OpenAIAPIKey string `env:"OPENAI_API_KEY,required,notEmpty"`
}

func Default() Config {
	policy := summarizer.DefaultPolicy()
	src := source.DefaultConfig()

	return Config{
		DBPath:   DefaultDBPath,
		LogLevel: logging.DefaultLevel,
		Pipeline: PipelineConfig{
			Concurrency:   pipeline.DefaultConcurrency,
			ContentMaxLen: normalizer.DefaultContentMaxLen,
		},
		Source: SourceConfig{
			Timeout:       src.Timeout,
			Concurrency:   src.Concurrency,
			QuotesURL:     src.QuotesURL,
			HackerNewsURL: src.HackerNewsURL,
			RedditURL:     src.RedditURL,
		},
		Summarizer: SummarizerConfig{
			Model:               summarizer.DefaultModel,
			MaxRetries:          policy.MaxRetries,
			BaseDelay:           policy.BaseDelay,
			MaxDelay:            policy.MaxDelay,
			CallTimeout:         policy.CallTimeout,
			MinInputLen:         policy.MinInputLen,
			MaxInputLen:         policy.MaxInputLen,
			SummaryMinLen:       policy.SummaryMinLen,
			SummaryMaxLen:       normalizer.DefaultSummaryMaxLen,
			SummaryMaxSentences: normalizer.DefaultSummaryMaxSentences,
			CacheSize:           defaultCacheSize,
			CacheTTL:            policy.CacheTTL,
		},
		Limiter: LimiterConfig{
			MaxConcurrent:  ratelimiter.DefaultMaxConcurrent,
			MinInterval:    ratelimiter.DefaultMinInterval,
			AcquireTimeout: ratelimiter.DefaultAcquireTimeout,
		},
		Telegram: TelegramConfig{
			MinInterval: time.Second,
		},
		Scheduler: SchedulerConfig{
			Spec:       scheduler.DefaultSpec,
			Timezone:   scheduler.DefaultTimezone,
			RunTimeout: scheduler.DefaultRunTimeout,
			Sources:    []string{string(domain.SourceHackerNews)},
			Limit:      10,
		},
	}
}

// Load applies the YAML file at path (if any) and then the environment on
// top of Default, and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path = strings.TrimSpace(path); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}

		if err = yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func LoadCredentials() (Credentials, error) {
	creds, err := env.ParseAs[Credentials]()
	if err != nil {
		return Credentials{}, fmt.Errorf("parse credentials: %w", err)
	}

	return creds, nil
}

func (c Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.DBPath) == "" {
		errs = append(errs, errors.New("dbPath is empty"))
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}

	if c.Pipeline.Concurrency <= 0 {
		errs = append(errs, errors.New("pipeline.concurrency must be positive"))
	}
	if c.Pipeline.ContentMaxLen <= 0 {
		errs = append(errs, errors.New("pipeline.contentMaxLen must be positive"))
	}

	if c.Source.Timeout <= 0 {
		errs = append(errs, errors.New("source.timeout must be positive"))
	}
	if c.Source.Concurrency <= 0 {
		errs = append(errs, errors.New("source.concurrency must be positive"))
	}

	s := c.Summarizer
	if s.MaxRetries < 0 {
		errs = append(errs, errors.New("summarizer.maxRetries must not be negative"))
	}
	if s.BaseDelay <= 0 || s.MaxDelay < s.BaseDelay {
		errs = append(errs, errors.New("summarizer delays must satisfy 0 < baseDelay <= maxDelay"))
	}
	if s.CallTimeout <= 0 {
		errs = append(errs, errors.New("summarizer.callTimeout must be positive"))
	}
	if s.MinInputLen < 0 || s.MaxInputLen <= s.MinInputLen {
		errs = append(errs, errors.New("summarizer input bounds must satisfy 0 <= minInputLen < maxInputLen"))
	}
	if s.SummaryMinLen < 0 || s.SummaryMaxLen < s.SummaryMinLen {
		errs = append(errs, errors.New("summarizer summary bounds must satisfy 0 <= summaryMinLen <= summaryMaxLen"))
	}
	if s.SummaryMaxSentences <= 0 {
		errs = append(errs, errors.New("summarizer.summaryMaxSentences must be positive"))
	}
	if s.CacheSize < 0 {
		errs = append(errs, errors.New("summarizer.cacheSize must not be negative"))
	}

	if c.Limiter.MaxConcurrent <= 0 {
		errs = append(errs, errors.New("limiter.maxConcurrent must be positive"))
	}
	if c.Limiter.MinInterval < 0 || c.Limiter.AcquireTimeout < 0 {
		errs = append(errs, errors.New("limiter intervals must not be negative"))
	}

	if c.Telegram.Enabled() && c.Telegram.ChatID == 0 {
		errs = append(errs, errors.New("telegram.chatId is required when a token is set"))
	}

	if c.Scheduler.Limit <= 0 {
		errs = append(errs, errors.New("scheduler.limit must be positive"))
	}

	return errors.Join(errs...)
}

func (t TelegramConfig) Enabled() bool {
	return strings.TrimSpace(t.Token) != ""
}

func (c Config) NormalizerConfig() normalizer.Config {
	return normalizer.Config{
		ContentMaxLen:       c.Pipeline.ContentMaxLen,
		SummaryMaxLen:       c.Summarizer.SummaryMaxLen,
		SummaryMaxSentences: c.Summarizer.SummaryMaxSentences,
		Lowercase:           c.Pipeline.LowercaseContent,
	}
}

func (c Config) SourceConfig() source.Config {
	return source.Config{
		Endpoints: source.Endpoints{
			QuotesURL:     c.Source.QuotesURL,
			HackerNewsURL: c.Source.HackerNewsURL,
			RedditURL:     c.Source.RedditURL,
		},
		Timeout:     c.Source.Timeout,
		Concurrency: c.Source.Concurrency,
	}
}

func (c Config) SummarizerPolicy() summarizer.Policy {
	s := c.Summarizer

	return summarizer.Policy{
		MaxRetries:    s.MaxRetries,
		BaseDelay:     s.BaseDelay,
		MaxDelay:      s.MaxDelay,
		CallTimeout:   s.CallTimeout,
		MinInputLen:   s.MinInputLen,
		MaxInputLen:   s.MaxInputLen,
		SummaryMinLen: s.SummaryMinLen,
		CacheSize:     s.CacheSize,
		CacheTTL:      s.CacheTTL,
	}
}

func (c Config) OpenAIConfig(creds Credentials) summarizer.OpenAIConfig {
	return summarizer.OpenAIConfig{
		APIKey:   creds.OpenAIAPIKey,
		BaseURL:  c.Summarizer.BaseURL,
		Model:    c.Summarizer.Model,
		FlexTier: c.Summarizer.FlexTier,
	}
}

func (c Config) LimiterConfig() ratelimiter.Config {
	return ratelimiter.Config{
		MaxConcurrent:  c.Limiter.MaxConcurrent,
		MinInterval:    c.Limiter.MinInterval,
		AcquireTimeout: c.Limiter.AcquireTimeout,
	}
}

// NotifyLimiterConfig spaces Telegram messages one at a time.
func (c Config) NotifyLimiterConfig() ratelimiter.Config {
	return ratelimiter.Config{
		MaxConcurrent: 1,
		MinInterval:   c.Telegram.MinInterval,
	}
}

func (c Config) SchedulerConfig() scheduler.Config {
	return scheduler.Config{
		Spec:       c.Scheduler.Spec,
		Timezone:   c.Scheduler.Timezone,
		RunTimeout: c.Scheduler.RunTimeout,
	}
}

// Jobs parses the scheduled sources. Sources are separated by ';' in the
// environment since web sources already use ','.
func (c Config) Jobs() ([]scheduler.Job, error) {
	jobs := make([]scheduler.Job, 0, len(c.Scheduler.Sources))

	for _, raw := range c.Scheduler.Sources {
		src, err := domain.ParseSource(raw)
		if err != nil {
			return nil, fmt.Errorf("parse scheduled source %q: %w", raw, err)
		}

		jobs = append(jobs, scheduler.Job{Source: src, Limit: c.Scheduler.Limit})
	}

	return jobs, nil
}
