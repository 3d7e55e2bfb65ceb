package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"

	"newsdigest/internal/domain"
)

const (
	DefaultQuotesURL     = "http://quotes.toscrape.com"
	DefaultHackerNewsURL = "https://hacker-news.firebaseio.com/v0"
	DefaultRedditURL     = "https://www.reddit.com"

	DefaultTimeout     = 30 * time.Second
	DefaultConcurrency = 5
)

// Endpoints holds the base URLs of the fixed sources.
type Endpoints struct {
	QuotesURL     string
	HackerNewsURL string
	RedditURL     string
}

type Config struct {
	Endpoints
	Timeout time.Duration
	// Concurrency bounds the sub-requests of one fetch (Hacker News stories,
	// multiple web URLs).
	Concurrency int
}

func DefaultConfig() Config {
	return Config{
		Endpoints: Endpoints{
			QuotesURL:     DefaultQuotesURL,
			HackerNewsURL: DefaultHackerNewsURL,
			RedditURL:     DefaultRedditURL,
		},
		Timeout:     DefaultTimeout,
		Concurrency: DefaultConcurrency,
	}
}

// Fetcher retrieves SourceItems from every supported source kind. It keeps
// no per-call state and is safe for concurrent use.
type Fetcher struct {
	client      *http.Client
	feedParser  *gofeed.Parser
	endpoints   Endpoints
	concurrency int
	now         func() time.Time
	log         *slog.Logger
}

func NewFetcher(cfg Config, log *slog.Logger) *Fetcher {
	defaults := DefaultConfig()
	if cfg.QuotesURL == "" {
		cfg.QuotesURL = defaults.QuotesURL
	}
	if cfg.HackerNewsURL == "" {
		cfg.HackerNewsURL = defaults.HackerNewsURL
	}
	if cfg.RedditURL == "" {
		cfg.RedditURL = defaults.RedditURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaults.Concurrency
	}
	if log == nil {
		log = slog.Default()
	}

	client := &http.Client{Timeout: cfg.Timeout}

	feedParser := gofeed.NewParser()
	feedParser.Client = client
	feedParser.UserAgent = userAgent

	return &Fetcher{
		client:      client,
		feedParser:  feedParser,
		endpoints:   cfg.Endpoints,
		concurrency: cfg.Concurrency,
		now:         time.Now,
		log:         log,
	}
}

// Fetch returns at most limit items from src. Every failure is a *FetchError.
func (f *Fetcher) Fetch(ctx context.Context, src domain.Source, limit int) ([]domain.SourceItem, error) {
	if limit <= 0 {
		return nil, &FetchError{Kind: src.Kind, Err: fmt.Errorf("limit must be positive (limit = %d)", limit)}
	}

	var (
		items []domain.SourceItem
		err   error
	)

	switch src.Kind {
	case domain.SourceQuotes:
		items, err = f.fetchQuotes(ctx, limit)
	case domain.SourceHackerNews:
		items, err = f.fetchHackerNews(ctx, limit)
	case domain.SourceReddit:
		subreddit := domain.DefaultSubreddit
		if len(src.Args) > 0 && src.Args[0] != "" {
			subreddit = src.Args[0]
		}
		items, err = f.fetchReddit(ctx, subreddit, limit)
	case domain.SourceRSS:
		if len(src.Args) == 0 {
			err = errors.New("feed URL is missing")
			break
		}
		items, err = f.fetchRSS(ctx, src.Args[0], limit)
	case domain.SourceWeb:
		items, err = f.fetchWeb(ctx, src.Args, limit)
	default:
		err = fmt.Errorf("%w: %q", domain.ErrUnknownSource, src.Kind)
	}

	if err != nil {
		return nil, &FetchError{Kind: src.Kind, Err: err}
	}

	if len(items) > limit {
		items = items[:limit]
	}

	f.log.InfoContext(ctx, "Fetched items",
		"source", src.String(),
		"count", len(items))

	return items, nil
}
