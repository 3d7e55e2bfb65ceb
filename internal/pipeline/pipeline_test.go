package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newsdigest/internal/database"
	"newsdigest/internal/domain"
	"newsdigest/internal/normalizer"
	"newsdigest/internal/ratelimiter"
	"newsdigest/internal/source"
	"newsdigest/internal/summarizer"
)

type stubFetcher struct {
	items []domain.SourceItem
	err   error
	calls atomic.Int64
}

func (f *stubFetcher) Fetch(context.Context, domain.Source, int) ([]domain.SourceItem, error) {
	f.calls.Add(1)

	return f.items, f.err
}

type stubSummarizer struct {
	mu    sync.Mutex
	calls int
	fn    func(ctx context.Context, input summarizer.Input) (domain.Summary, error)
}

func (s *stubSummarizer) Summarize(ctx context.Context, input summarizer.Input) (domain.Summary, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()

	if s.fn != nil {
		return s.fn(ctx, input)
	}

	return domain.Summary{Text: "Summary of " + input.SourceURL, Attempts: 1, SourceURL: input.SourceURL}, nil
}

func (s *stubSummarizer) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.calls
}

type memoryStore struct {
	mu      sync.Mutex
	records map[int64]domain.Record
	nextID  int64
	failFor string
	onSave  func()
}

func newMemoryStore() *memoryStore {
	return &memoryStore{records: make(map[int64]domain.Record)}
}

func (s *memoryStore) Persist(_ context.Context, rec domain.Record) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.SourceURL == s.failFor {
		return 0, &database.PersistError{SourceURL: rec.SourceURL, Err: errors.New("disk full")}
	}

	s.nextID++
	rec.ID = s.nextID
	s.records[rec.ID] = rec

	if s.onSave != nil {
		s.onSave()
	}

	return rec.ID, nil
}

func (s *memoryStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.records)
}

func testItems(n int) []domain.SourceItem {
	items := make([]domain.SourceItem, 0, n)
	for i := 1; i <= n; i++ {
		items = append(items, domain.SourceItem{
			Title:      fmt.Sprintf("Item %d", i),
			Author:     "Author",
			RawContent: fmt.Sprintf("<p>Body of item number %d with enough words to summarize.</p>", i),
			SourceURL:  fmt.Sprintf("https://example.com/%d", i),
			FetchedAt:  time.Now(),
		})
	}

	return items
}

func newTestPipeline(t *testing.T, f Fetcher, s Summarizer, st Store, opts ...Option) *Pipeline {
	t.Helper()

	p, err := New(f, s, st, append([]Option{WithLogger(slog.Default())}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(p.Release)

	return p
}

func TestRunRecordsPartialFailure(t *testing.T) {
	fetcher := &stubFetcher{items: testItems(3)}
	sum := &stubSummarizer{fn: func(_ context.Context, input summarizer.Input) (domain.Summary, error) {
		if input.SourceURL == "https://example.com/2" {
			return domain.Summary{}, &summarizer.Error{Reason: "status 400", Attempts: 1}
		}

		return domain.Summary{Text: "ok", Attempts: 1, SourceURL: input.SourceURL}, nil
	}}
	store := newMemoryStore()

	p := newTestPipeline(t, fetcher, sum, store)

	report, err := p.Run(context.Background(), domain.Source{Kind: domain.SourceQuotes}, 3)
	require.NoError(t, err)

	assert.Len(t, report.Succeeded, 2)
	require.Len(t, report.Failed, 1)
	assert.Equal(t, domain.KindPermanent, report.Failed[0].Kind)
	assert.Equal(t, "https://example.com/2", report.Failed[0].Item.SourceURL)
	assert.Equal(t, "Item 2", report.Failed[0].Item.Title)
	assert.Equal(t, 2, store.count())
	assert.Equal(t, 3, report.Total())
	assert.False(t, report.OK())
}

func TestRunFetchFailure(t *testing.T) {
	fetchErr := &source.FetchError{Kind: domain.SourceHackerNews, Err: errors.New("connection refused")}
	fetcher := &stubFetcher{err: fetchErr}
	sum := &stubSummarizer{}
	store := newMemoryStore()

	p := newTestPipeline(t, fetcher, sum, store)

	report, err := p.Run(context.Background(), domain.Source{Kind: domain.SourceHackerNews}, 5)

	var gotFetchErr *source.FetchError
	require.ErrorAs(t, err, &gotFetchErr)
	assert.Empty(t, report.Succeeded)
	require.Len(t, report.Failed, 1)
	assert.Equal(t, domain.KindFetch, report.Failed[0].Kind)
	assert.Equal(t, 0, sum.callCount())
	assert.Equal(t, 0, store.count())
}

func TestRunRejectsNonPositiveLimit(t *testing.T) {
	fetcher := &stubFetcher{items: testItems(1)}
	p := newTestPipeline(t, fetcher, &stubSummarizer{}, newMemoryStore())

	for _, limit := range []int{0, -1} {
		_, err := p.Run(context.Background(), domain.Source{Kind: domain.SourceQuotes}, limit)
		require.ErrorIs(t, err, ErrInvalidLimit)
	}

	assert.Equal(t, int64(0), fetcher.calls.Load())
}

func TestRunClassifiesFailures(t *testing.T) {
	items := testItems(5)
	items[3].RawContent = "<script>only script</script>"

	sum := &stubSummarizer{fn: func(_ context.Context, input summarizer.Input) (domain.Summary, error) {
		switch input.SourceURL {
		case "https://example.com/1":
			return domain.Summary{}, fmt.Errorf("acquire slot: %w", ratelimiter.ErrTimeout)
		case "https://example.com/2":
			return domain.Summary{}, &summarizer.Error{Reason: "retries exhausted", Transient: true, Attempts: 4}
		}

		return domain.Summary{Text: "ok", Attempts: 1, SourceURL: input.SourceURL}, nil
	}}
	store := newMemoryStore()
	store.failFor = "https://example.com/3"

	p := newTestPipeline(t, &stubFetcher{items: items}, sum, store)

	report, err := p.Run(context.Background(), domain.Source{Kind: domain.SourceQuotes}, 5)
	require.NoError(t, err)

	kinds := make(map[string]domain.ErrorKind, len(report.Failed))
	for _, f := range report.Failed {
		kinds[f.Item.SourceURL] = f.Kind
	}

	assert.Equal(t, map[string]domain.ErrorKind{
		"https://example.com/1": domain.KindRateLimitTimeout,
		"https://example.com/2": domain.KindTransient,
		"https://example.com/3": domain.KindPersist,
		"https://example.com/4": domain.KindPermanent,
	}, kinds)
	assert.Len(t, report.Succeeded, 1)
	assert.Equal(t, 4, sum.callCount(), "empty content must not reach the summarizer")

	var persistErr *database.PersistError
	for _, f := range report.Failed {
		if f.Kind == domain.KindPersist {
			assert.ErrorAs(t, f.Err, &persistErr)
		}
		if f.Kind == domain.KindPermanent {
			assert.ErrorIs(t, f.Err, ErrEmptyContent)
		}
	}
}

func TestRunBoundsConcurrency(t *testing.T) {
	const concurrency = 3

	var current, peak atomic.Int64
	sum := &stubSummarizer{fn: func(_ context.Context, input summarizer.Input) (domain.Summary, error) {
		n := current.Add(1)
		defer current.Add(-1)

		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)

		return domain.Summary{Text: "ok", Attempts: 1, SourceURL: input.SourceURL}, nil
	}}

	p := newTestPipeline(t, &stubFetcher{items: testItems(12)}, sum, newMemoryStore(), WithConcurrency(concurrency))

	report, err := p.Run(context.Background(), domain.Source{Kind: domain.SourceQuotes}, 12)
	require.NoError(t, err)

	assert.Len(t, report.Succeeded, 12)
	assert.LessOrEqual(t, peak.Load(), int64(concurrency))
}

func TestRunCancellationKeepsCompletedItems(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := newMemoryStore()
	store.onSave = cancel

	p := newTestPipeline(t, &stubFetcher{items: testItems(3)}, &stubSummarizer{}, store, WithConcurrency(1))

	report, err := p.Run(ctx, domain.Source{Kind: domain.SourceQuotes}, 3)
	require.NoError(t, err)

	assert.Equal(t, []int64{1}, report.Succeeded)
	require.Len(t, report.Failed, 2)
	for _, f := range report.Failed {
		assert.Equal(t, domain.KindCancelled, f.Kind)
		assert.ErrorIs(t, f.Err, context.Canceled)
	}
}

func TestRunAlreadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sum := &stubSummarizer{}
	p := newTestPipeline(t, &stubFetcher{items: testItems(2)}, sum, newMemoryStore())

	report, err := p.Run(ctx, domain.Source{Kind: domain.SourceQuotes}, 2)
	require.NoError(t, err)

	assert.Empty(t, report.Succeeded)
	assert.Len(t, report.Failed, 2)
	assert.Equal(t, 0, sum.callCount())
}

func TestNewValidatesArguments(t *testing.T) {
	_, err := New(nil, &stubSummarizer{}, newMemoryStore())
	require.ErrorIs(t, err, ErrFetcherRequired)

	_, err = New(&stubFetcher{}, nil, newMemoryStore())
	require.ErrorIs(t, err, ErrSummarizerRequired)

	_, err = New(&stubFetcher{}, &stubSummarizer{}, nil)
	require.ErrorIs(t, err, ErrStoreRequired)

	_, err = New(&stubFetcher{}, &stubSummarizer{}, newMemoryStore(), WithConcurrency(0))
	require.Error(t, err)
}

type scriptedClient struct {
	mu      sync.Mutex
	calls   map[string]int
	replies map[string][]error
}

func (c *scriptedClient) Complete(_ context.Context, input summarizer.Input) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.calls[input.SourceURL]++
	n := c.calls[input.SourceURL]

	if errs := c.replies[input.SourceURL]; n <= len(errs) && errs[n-1] != nil {
		return "", errs[n-1]
	}

	return "Here is a summary: Summary for " + input.SourceURL + ".", nil
}

func TestRunEndToEnd(t *testing.T) {
	items := testItems(3)

	client := &scriptedClient{
		calls: make(map[string]int),
		replies: map[string][]error{
			items[1].SourceURL: {&summarizer.Error{Reason: "status 503", Transient: true}},
			items[2].SourceURL: {&summarizer.Error{Reason: "status 400"}},
		},
	}

	norm := normalizer.New(normalizer.Config{})
	limiter := ratelimiter.New(ratelimiter.Config{MaxConcurrent: 2, AcquireTimeout: time.Second}, slog.Default())

	policy := summarizer.DefaultPolicy()
	policy.BaseDelay = time.Millisecond
	policy.MaxDelay = 2 * time.Millisecond
	sum := summarizer.New(client, limiter, norm, policy, slog.Default())

	db, err := database.New(context.Background(), filepath.Join(t.TempDir(), "articles.db"), slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	p := newTestPipeline(t, &stubFetcher{items: items}, sum, db, WithConcurrency(2), WithNormalizer(norm))

	report, err := p.Run(context.Background(), domain.Source{Kind: domain.SourceWeb}, 3)
	require.NoError(t, err)

	require.Len(t, report.Succeeded, 2)
	require.Len(t, report.Failed, 1)
	assert.Equal(t, domain.KindPermanent, report.Failed[0].Kind)
	assert.Equal(t, items[2].SourceURL, report.Failed[0].Item.SourceURL)

	client.mu.Lock()
	assert.Equal(t, 1, client.calls[items[0].SourceURL])
	assert.Equal(t, 2, client.calls[items[1].SourceURL])
	assert.Equal(t, 1, client.calls[items[2].SourceURL])
	client.mu.Unlock()

	ids := append([]int64(nil), report.Succeeded...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	urls := make([]string, 0, len(ids))
	for _, id := range ids {
		rec, err := db.ByID(context.Background(), id)
		require.NoError(t, err)
		require.NotNil(t, rec)

		assert.Equal(t, "Summary for "+rec.SourceURL+".", rec.Summary)
		assert.NotContains(t, rec.Content, "<p>")
		urls = append(urls, rec.SourceURL)
	}

	assert.ElementsMatch(t, []string{items[0].SourceURL, items[1].SourceURL}, urls)
	assert.Equal(t, 0, limiter.InFlight())
}
