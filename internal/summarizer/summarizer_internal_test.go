package summarizer

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newsdigest/internal/normalizer"
	"newsdigest/internal/ratelimiter"
)

const articleText = "The city council approved the new transit budget on Monday after a long debate."

type reply struct {
	text string
	err  error
}

type scriptedClient struct {
	mu      sync.Mutex
	replies []reply
	calls   int
	inputs  []Input
	during  func()
}

func (c *scriptedClient) Complete(ctx context.Context, input Input) (string, error) {
	c.mu.Lock()
	c.calls++
	c.inputs = append(c.inputs, input)
	idx := min(c.calls, len(c.replies)) - 1
	during := c.during
	c.mu.Unlock()

	if during != nil {
		during()
	}

	r := c.replies[idx]

	return r.text, r.err
}

func (c *scriptedClient) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.calls
}

type blockingClient struct {
	mu    sync.Mutex
	calls int
}

func (c *blockingClient) Complete(ctx context.Context, _ Input) (string, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()

	<-ctx.Done()

	return "", ctx.Err()
}

type timeoutLimiter struct{}

func (timeoutLimiter) Acquire(context.Context) (func(), error) {
	return nil, ratelimiter.ErrTimeout
}

func transient() error {
	return &Error{Reason: "status 503", Transient: true}
}

func testPolicy() Policy {
	p := DefaultPolicy()
	p.MaxRetries = 3
	p.BaseDelay = time.Millisecond
	p.MaxDelay = 5 * time.Millisecond
	p.CallTimeout = time.Second

	return p
}

func newTestSummarizer(client Client, limiter Limiter, policy Policy) *Summarizer {
	if limiter == nil {
		limiter = ratelimiter.New(ratelimiter.Config{MaxConcurrent: 2}, slog.Default())
	}

	s := New(client, limiter, normalizer.New(normalizer.Config{}), policy, slog.Default())
	s.jitter = func(d time.Duration) time.Duration { return d }

	return s
}

func TestSummarizeSucceedsAfterTransientFailure(t *testing.T) {
	client := &scriptedClient{replies: []reply{
		{err: transient()},
		{text: "Council approves transit budget."},
	}}
	s := newTestSummarizer(client, nil, testPolicy())

	summary, err := s.Summarize(context.Background(), Input{Text: articleText, SourceURL: "https://example.com/a"})

	require.NoError(t, err)
	assert.Equal(t, "Council approves transit budget.", summary.Text)
	assert.Equal(t, 2, summary.Attempts)
	assert.Equal(t, "https://example.com/a", summary.SourceURL)
	assert.False(t, summary.Cached)
	assert.Equal(t, 2, client.callCount())
}

func TestSummarizeExhaustsRetries(t *testing.T) {
	policy := testPolicy()
	policy.MaxRetries = 2

	client := &scriptedClient{replies: []reply{{err: transient()}}}
	s := newTestSummarizer(client, nil, policy)

	_, err := s.Summarize(context.Background(), Input{Text: articleText})

	var sumErr *Error
	require.ErrorAs(t, err, &sumErr)
	assert.True(t, sumErr.Transient)
	assert.Equal(t, 3, sumErr.Attempts)
	assert.Equal(t, 3, client.callCount())
}

func TestSummarizePermanentFailureIsNotRetried(t *testing.T) {
	client := &scriptedClient{replies: []reply{
		{err: &Error{Reason: "status 400"}},
		{text: "never returned"},
	}}
	s := newTestSummarizer(client, nil, testPolicy())

	_, err := s.Summarize(context.Background(), Input{Text: articleText})

	var sumErr *Error
	require.ErrorAs(t, err, &sumErr)
	assert.False(t, sumErr.Transient)
	assert.Equal(t, 1, sumErr.Attempts)
	assert.Equal(t, 1, client.callCount())
}

func TestSummarizeRejectsShortInputWithoutCalling(t *testing.T) {
	client := &scriptedClient{replies: []reply{{text: "unused"}}}
	s := newTestSummarizer(client, nil, testPolicy())

	for _, text := range []string{"", "   ", "too short"} {
		_, err := s.Summarize(context.Background(), Input{Text: text})

		var sumErr *Error
		require.ErrorAs(t, err, &sumErr, "text = %q", text)
		assert.False(t, sumErr.Transient)
		assert.Equal(t, 0, sumErr.Attempts)
	}

	assert.Equal(t, 0, client.callCount())
}

func TestSummarizeTimesOutEachCall(t *testing.T) {
	policy := testPolicy()
	policy.MaxRetries = 1
	policy.CallTimeout = 10 * time.Millisecond

	client := &blockingClient{}
	s := newTestSummarizer(client, nil, policy)

	_, err := s.Summarize(context.Background(), Input{Text: articleText})

	var sumErr *Error
	require.ErrorAs(t, err, &sumErr)
	assert.True(t, sumErr.Transient)
	assert.Equal(t, 2, sumErr.Attempts)
	assert.Equal(t, 2, client.calls)
}

func TestSummarizeReturnsLimiterTimeoutImmediately(t *testing.T) {
	client := &scriptedClient{replies: []reply{{text: "unused"}}}
	s := newTestSummarizer(client, timeoutLimiter{}, testPolicy())

	_, err := s.Summarize(context.Background(), Input{Text: articleText})

	require.ErrorIs(t, err, ratelimiter.ErrTimeout)
	assert.Equal(t, 0, client.callCount())
}

func TestSummarizeTreatsEmptyOutputAsTransient(t *testing.T) {
	client := &scriptedClient{replies: []reply{
		{text: "**"},
		{text: "Summary: Budget approved."},
	}}
	s := newTestSummarizer(client, nil, testPolicy())

	summary, err := s.Summarize(context.Background(), Input{Text: articleText})

	require.NoError(t, err)
	assert.Equal(t, "Budget approved.", summary.Text)
	assert.Equal(t, 2, summary.Attempts)
}

func TestSummarizeHoldsLimiterSlotDuringCall(t *testing.T) {
	limiter := ratelimiter.New(ratelimiter.Config{MaxConcurrent: 2}, slog.Default())

	var inFlight int
	client := &scriptedClient{replies: []reply{{text: "Done."}}}
	client.during = func() { inFlight = limiter.InFlight() }

	s := newTestSummarizer(client, limiter, testPolicy())

	_, err := s.Summarize(context.Background(), Input{Text: articleText})

	require.NoError(t, err)
	assert.Equal(t, 1, inFlight)
	assert.Equal(t, 0, limiter.InFlight())
}

func TestSummarizeStopsOnCancellationDuringBackoff(t *testing.T) {
	policy := testPolicy()
	policy.BaseDelay = time.Hour
	policy.MaxDelay = time.Hour

	client := &scriptedClient{replies: []reply{{err: transient()}}}
	s := newTestSummarizer(client, nil, policy)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := s.Summarize(ctx, Input{Text: articleText})

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, client.callCount())
}

func TestSummarizeUsesCache(t *testing.T) {
	policy := testPolicy()
	policy.CacheSize = 8

	client := &scriptedClient{replies: []reply{{text: "Cached summary."}}}
	s := newTestSummarizer(client, nil, policy)
	input := Input{Text: articleText, SourceURL: "https://example.com/a"}

	first, err := s.Summarize(context.Background(), input)
	require.NoError(t, err)
	second, err := s.Summarize(context.Background(), input)
	require.NoError(t, err)

	assert.Equal(t, 1, client.callCount())
	assert.False(t, first.Cached)
	assert.True(t, second.Cached)
	assert.Equal(t, 1, second.Attempts)
	assert.Equal(t, first.Text, second.Text)

	_, err = s.Summarize(context.Background(), Input{Text: articleText, SourceURL: "https://example.com/b"})
	require.NoError(t, err)
	assert.Equal(t, 2, client.callCount())
}

func TestSummarizeTruncatesLongInput(t *testing.T) {
	policy := testPolicy()
	policy.MaxInputLen = 100

	client := &scriptedClient{replies: []reply{{text: "Short."}}}
	s := newTestSummarizer(client, nil, policy)

	_, err := s.Summarize(context.Background(), Input{Text: strings.Repeat("word ", 100)})

	require.NoError(t, err)
	require.Len(t, client.inputs, 1)
	assert.LessOrEqual(t, len([]rune(client.inputs[0].Text)), 100)
}

func TestBackoffIsBounded(t *testing.T) {
	policy := testPolicy()
	policy.BaseDelay = 100 * time.Millisecond
	policy.MaxDelay = time.Second
	s := newTestSummarizer(&scriptedClient{}, nil, policy)

	assert.Equal(t, 100*time.Millisecond, s.backoff(1))
	assert.Equal(t, 200*time.Millisecond, s.backoff(2))
	assert.Equal(t, 800*time.Millisecond, s.backoff(4))
	assert.Equal(t, time.Second, s.backoff(5))
	assert.Equal(t, time.Second, s.backoff(100))
}

func TestEqualJitterStaysInRange(t *testing.T) {
	for range 100 {
		got := equalJitter(time.Second)

		assert.GreaterOrEqual(t, got, 500*time.Millisecond)
		assert.Less(t, got, time.Second)
	}

	assert.Equal(t, time.Duration(0), equalJitter(0))
}

func TestIsTransientStatus(t *testing.T) {
	tests := []struct {
		code int
		want bool
	}{
		{http.StatusBadRequest, false},
		{http.StatusUnauthorized, false},
		{http.StatusForbidden, false},
		{http.StatusNotFound, false},
		{http.StatusUnprocessableEntity, false},
		{http.StatusRequestTimeout, true},
		{http.StatusConflict, true},
		{http.StatusTooManyRequests, true},
		{http.StatusInternalServerError, true},
		{http.StatusBadGateway, true},
		{http.StatusServiceUnavailable, true},
	}

	for _, test := range tests {
		t.Run(http.StatusText(test.code), func(t *testing.T) {
			assert.Equal(t, test.want, isTransientStatus(test.code))
		})
	}
}

func TestClassifyRequestError(t *testing.T) {
	var sumErr *Error

	err := classifyRequestError(&openai.Error{StatusCode: http.StatusTooManyRequests})
	require.ErrorAs(t, err, &sumErr)
	assert.True(t, sumErr.Transient)

	err = classifyRequestError(&openai.Error{StatusCode: http.StatusBadRequest})
	require.ErrorAs(t, err, &sumErr)
	assert.False(t, sumErr.Transient)

	err = classifyRequestError(errors.New("connection reset by peer"))
	assert.True(t, IsTransient(err))
}

func TestNewOpenAIClientRequiresKey(t *testing.T) {
	_, err := NewOpenAIClient(OpenAIConfig{})
	require.Error(t, err)

	client, err := NewOpenAIClient(OpenAIConfig{APIKey: "sk-test"})
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, client.model)
}
