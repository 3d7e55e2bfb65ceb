package summarizer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"
	"unicode/utf8"

	"newsdigest/internal/domain"
	"newsdigest/internal/normalizer"
)

const (
	DefaultMaxRetries    = 3
	DefaultBaseDelay     = time.Second
	DefaultMaxDelay      = 30 * time.Second
	DefaultCallTimeout   = time.Minute
	DefaultMinInputLen   = 20
	DefaultMaxInputLen   = 8000
	DefaultSummaryMinLen = 1
	DefaultCacheTTL      = 24 * time.Hour

	maxBackoffShift = 30
)

// Input describes the payload for a summary request.
type Input struct {
	// Text contains the normalized text to summarise.
	Text string
	// SourceURL is optional metadata that helps the model reference the origin.
	SourceURL string
}

// Client performs exactly one outbound call to the text-generation service.
// Failures should be reported as *Error so they can be classified; any other
// error is treated as transient.
type Client interface {
	Complete(ctx context.Context, input Input) (string, error)
}

// Limiter gates outbound calls. It is shared by every worker of a batch.
type Limiter interface {
	Acquire(ctx context.Context) (func(), error)
}

// Policy bounds the retry loop.
type Policy struct {
	MaxRetries    int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	CallTimeout   time.Duration
	MinInputLen   int
	MaxInputLen   int
	SummaryMinLen int
	CacheSize     int
	CacheTTL      time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:    DefaultMaxRetries,
		BaseDelay:     DefaultBaseDelay,
		MaxDelay:      DefaultMaxDelay,
		CallTimeout:   DefaultCallTimeout,
		MinInputLen:   DefaultMinInputLen,
		MaxInputLen:   DefaultMaxInputLen,
		SummaryMinLen: DefaultSummaryMinLen,
		CacheTTL:      DefaultCacheTTL,
	}
}

// Summarizer turns normalized text into a Summary. Every attempt holds one
// limiter slot for the duration of the call.
type Summarizer struct {
	client  Client
	limiter Limiter
	norm    *normalizer.Normalizer
	policy  Policy
	cache   *summaryCache
	jitter  func(time.Duration) time.Duration
	now     func() time.Time
	log     *slog.Logger
}

func New(
	client Client,
	limiter Limiter,
	norm *normalizer.Normalizer,
	policy Policy,
	log *slog.Logger,
) *Summarizer {
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}
	if policy.MaxDelay <= 0 {
		policy.MaxDelay = DefaultMaxDelay
	}
	if policy.MaxInputLen <= 0 {
		policy.MaxInputLen = DefaultMaxInputLen
	}
	if policy.SummaryMinLen <= 0 {
		policy.SummaryMinLen = DefaultSummaryMinLen
	}
	if policy.CacheTTL <= 0 {
		policy.CacheTTL = DefaultCacheTTL
	}
	if norm == nil {
		norm = normalizer.New(normalizer.Config{})
	}
	if log == nil {
		log = slog.Default()
	}

	return &Summarizer{
		client:  client,
		limiter: limiter,
		norm:    norm,
		policy:  policy,
		cache:   newSummaryCache(policy.CacheSize),
		jitter:  equalJitter,
		now:     time.Now,
		log:     log,
	}
}

// Summarize calls the service until it returns a usable summary, a
// permanent failure happens or the retries are exhausted.
func (s *Summarizer) Summarize(ctx context.Context, input Input) (domain.Summary, error) {
	text := strings.TrimSpace(input.Text)
	if utf8.RuneCountInString(text) < s.policy.MinInputLen || text == "" {
		return domain.Summary{}, &Error{
			Reason: fmt.Sprintf("input is too short (length = %d)", utf8.RuneCountInString(text)),
		}
	}
	text = normalizer.Truncate(text, s.policy.MaxInputLen)
	input = Input{Text: text, SourceURL: strings.TrimSpace(input.SourceURL)}

	cacheKey := summaryCacheKey(input.SourceURL, text)
	if cached, ok := s.cache.get(cacheKey, s.now()); ok {
		return domain.Summary{
			Text:      cached,
			Attempts:  1,
			SourceURL: input.SourceURL,
			Cached:    true,
		}, nil
	}

	maxAttempts := s.policy.MaxRetries + 1

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			delay := s.backoff(attempt - 1)
			s.log.WarnContext(ctx, "Retrying summary",
				"sourceURL", input.SourceURL,
				"attempt", attempt,
				"delay", delay,
				"error", lastErr)

			if err := sleep(ctx, delay); err != nil {
				return domain.Summary{}, fmt.Errorf("wait for retry: %w", err)
			}
		}

		summary, err := s.attempt(ctx, input)
		if err == nil {
			summary = s.norm.Postprocess(summary)
			if utf8.RuneCountInString(summary) >= s.policy.SummaryMinLen {
				s.cache.set(cacheKey, summary, s.now().Add(s.policy.CacheTTL), s.now())

				return domain.Summary{
					Text:      summary,
					Attempts:  attempt,
					SourceURL: input.SourceURL,
				}, nil
			}

			err = &Error{Reason: "summary is empty", Transient: true}
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return domain.Summary{}, fmt.Errorf("summarize: %w", ctxErr)
		}

		var limitErr *acquireError
		if errors.As(err, &limitErr) {
			return domain.Summary{}, fmt.Errorf("acquire slot (attempt = %d): %w", attempt, limitErr.err)
		}

		if !IsTransient(err) {
			return domain.Summary{}, &Error{
				Reason:   "rejected by service",
				Attempts: attempt,
				Err:      err,
			}
		}

		lastErr = err
	}

	return domain.Summary{}, &Error{
		Reason:    "retries exhausted",
		Transient: true,
		Attempts:  maxAttempts,
		Err:       lastErr,
	}
}

// attempt performs one gated call. The slot is released before returning,
// so backoff sleeps never hold it.
func (s *Summarizer) attempt(ctx context.Context, input Input) (string, error) {
	release, err := s.limiter.Acquire(ctx)
	if err != nil {
		return "", &acquireError{err: err}
	}
	defer release()

	callCtx := ctx
	if s.policy.CallTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.policy.CallTimeout)
		defer cancel()
	}

	summary, err := s.client.Complete(callCtx, input)
	if err != nil {
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			return "", &Error{Reason: "call timed out", Transient: true, Err: err}
		}

		return "", err
	}

	return summary, nil
}

// backoff returns the jittered delay before retry number n (1-based).
func (s *Summarizer) backoff(n int) time.Duration {
	if s.policy.BaseDelay <= 0 {
		return 0
	}

	delay := s.policy.MaxDelay
	if shift := n - 1; shift < maxBackoffShift {
		if d := s.policy.BaseDelay << shift; d > 0 && d < delay {
			delay = d
		}
	}

	return min(s.jitter(delay), s.policy.MaxDelay)
}

// equalJitter keeps half of d and randomizes the other half.
func equalJitter(d time.Duration) time.Duration {
	half := d / 2
	if d-half <= 0 {
		return d
	}

	return half + rand.N(d-half)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type acquireError struct {
	err error
}

func (e *acquireError) Error() string {
	return e.err.Error()
}

func (e *acquireError) Unwrap() error {
	return e.err
}

func summaryCacheKey(sourceURL string, text string) string {
	sum := sha256.Sum256([]byte(text))

	return sourceURL + "|" + hex.EncodeToString(sum[:])
}
