package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"newsdigest/internal/domain"
	"newsdigest/internal/normalizer"
	"newsdigest/internal/ratelimiter"
	"newsdigest/internal/summarizer"
)

const DefaultConcurrency = 3

var (
	ErrInvalidLimit       = errors.New("limit must be positive")
	ErrEmptyContent       = errors.New("content is empty after preprocessing")
	ErrFetcherRequired    = errors.New("fetcher is required")
	ErrSummarizerRequired = errors.New("summarizer is required")
	ErrStoreRequired      = errors.New("store is required")
)

type Fetcher interface {
	Fetch(ctx context.Context, src domain.Source, limit int) ([]domain.SourceItem, error)
}

type Summarizer interface {
	Summarize(ctx context.Context, input summarizer.Input) (domain.Summary, error)
}

type Store interface {
	Persist(ctx context.Context, rec domain.Record) (int64, error)
}

// Pipeline runs fetch, normalize, summarize and persist for every item of a
// batch on a bounded worker pool.
type Pipeline struct {
	fetcher     Fetcher
	summarizer  Summarizer
	store       Store
	norm        *normalizer.Normalizer
	pool        *ants.Pool
	concurrency int
	now         func() time.Time
	logger      *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithConcurrency sets the worker pool size. Default is DefaultConcurrency.
func WithConcurrency(n int) Option {
	return func(p *Pipeline) error {
		if n < 1 {
			return fmt.Errorf("concurrency must be positive (concurrency = %d)", n)
		}

		p.concurrency = n

		return nil
	}
}

// WithLogger sets a custom logger. Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger

		return nil
	}
}

// WithNormalizer sets the text normalizer. Default uses normalizer defaults.
func WithNormalizer(n *normalizer.Normalizer) Option {
	return func(p *Pipeline) error {
		if n != nil {
			p.norm = n
		}

		return nil
	}
}

// WithClock sets the time source for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) error {
		if now != nil {
			p.now = now
		}

		return nil
	}
}

func New(fetcher Fetcher, sum Summarizer, store Store, opts ...Option) (*Pipeline, error) {
	if fetcher == nil {
		return nil, ErrFetcherRequired
	}
	if sum == nil {
		return nil, ErrSummarizerRequired
	}
	if store == nil {
		return nil, ErrStoreRequired
	}

	p := &Pipeline{
		fetcher:     fetcher,
		summarizer:  sum,
		store:       store,
		norm:        normalizer.New(normalizer.Config{}),
		concurrency: DefaultConcurrency,
		now:         time.Now,
		logger:      slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}

	pool, err := ants.NewPool(p.concurrency)
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}
	p.pool = pool

	return p, nil
}

// Release stops the worker pool. The pipeline cannot be used afterwards.
func (p *Pipeline) Release() {
	if p.pool != nil {
		p.pool.Release()
	}
}

func (p *Pipeline) Concurrency() int {
	return p.concurrency
}

// Run fetches up to limit items from src and processes them concurrently.
// A fetch failure returns a report with a single fetch failure together with
// the error; per-item failures only show up in the report.
func (p *Pipeline) Run(ctx context.Context, src domain.Source, limit int) (domain.BatchReport, error) {
	if limit <= 0 {
		return domain.BatchReport{}, fmt.Errorf("%w (limit = %d)", ErrInvalidLimit, limit)
	}

	started := p.now()

	items, err := p.fetcher.Fetch(ctx, src, limit)
	if err != nil {
		p.logger.ErrorContext(ctx, "Failed to fetch items",
			"error", err,
			"source", src.String())

		return domain.BatchReport{
			Failed: []domain.Failure{{
				Item: domain.SourceItem{Title: src.String(), SourceURL: src.String()},
				Kind: domain.KindFetch,
				Err:  err,
			}},
		}, fmt.Errorf("fetch items: %w", err)
	}

	if len(items) > limit {
		items = items[:limit]
	}

	results := make(chan outcome, len(items))

	var wg sync.WaitGroup
	for _, item := range items {
		if ctxErr := ctx.Err(); ctxErr != nil {
			results <- cancelled(item, ctxErr)
			continue
		}

		wg.Add(1)
		submitErr := p.pool.Submit(func() {
			defer wg.Done()
			results <- p.process(ctx, item)
		})
		if submitErr != nil {
			wg.Done()
			results <- cancelled(item, fmt.Errorf("submit task: %w", submitErr))
		}
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	var report domain.BatchReport
	for o := range results {
		if o.failure != nil {
			report.Failed = append(report.Failed, *o.failure)
			continue
		}

		report.Succeeded = append(report.Succeeded, o.id)
	}

	p.logger.InfoContext(ctx, "Batch finished",
		"source", src.String(),
		"succeeded", len(report.Succeeded),
		"failed", len(report.Failed),
		"duration", p.now().Sub(started))

	return report, nil
}

type outcome struct {
	id      int64
	failure *domain.Failure
}

func (p *Pipeline) process(ctx context.Context, item domain.SourceItem) outcome {
	if err := ctx.Err(); err != nil {
		return cancelled(item, err)
	}

	content := p.norm.Preprocess(item.RawContent)
	if content == "" {
		return p.fail(ctx, item, domain.KindPermanent, ErrEmptyContent)
	}

	summary, err := p.summarizer.Summarize(ctx, summarizer.Input{
		Text:      content,
		SourceURL: item.SourceURL,
	})
	if err != nil {
		return p.fail(ctx, item, classify(ctx, err), fmt.Errorf("summarize: %w", err))
	}

	if err := ctx.Err(); err != nil {
		return cancelled(item, err)
	}

	title := strings.TrimSpace(item.Title)
	if title == "" {
		title = item.SourceURL
	}

	id, err := p.store.Persist(ctx, domain.Record{
		Title:     title,
		Author:    item.Author,
		Content:   content,
		Summary:   summary.Text,
		SourceURL: item.SourceURL,
		CreatedAt: p.now(),
	})
	if err != nil {
		kind := domain.KindPersist
		if ctx.Err() != nil {
			kind = domain.KindCancelled
		}

		return p.fail(ctx, item, kind, err)
	}

	p.logger.InfoContext(ctx, "Processed item",
		"id", id,
		"sourceURL", item.SourceURL,
		"attempts", summary.Attempts,
		"cached", summary.Cached)

	return outcome{id: id}
}

func (p *Pipeline) fail(ctx context.Context, item domain.SourceItem, kind domain.ErrorKind, err error) outcome {
	p.logger.WarnContext(ctx, "Failed to process item",
		"error", err,
		"kind", kind,
		"sourceURL", item.SourceURL)

	return outcome{failure: &domain.Failure{Item: item, Kind: kind, Err: err}}
}

func cancelled(item domain.SourceItem, err error) outcome {
	return outcome{failure: &domain.Failure{Item: item, Kind: domain.KindCancelled, Err: err}}
}

// classify maps a summarization error to the kind recorded in the report.
func classify(ctx context.Context, err error) domain.ErrorKind {
	if errors.Is(err, ratelimiter.ErrTimeout) {
		return domain.KindRateLimitTimeout
	}

	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return domain.KindCancelled
	}

	var sumErr *summarizer.Error
	if errors.As(err, &sumErr) && !sumErr.Transient {
		return domain.KindPermanent
	}

	return domain.KindTransient
}
