package summarizer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummaryCacheGetSet(t *testing.T) {
	cache := newSummaryCache(2)
	require.NotNil(t, cache)

	now := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	cache.set("key", "value", now.Add(time.Hour), now)

	summary, ok := cache.get("key", now)
	require.True(t, ok)
	assert.Equal(t, "value", summary)
}

func TestSummaryCacheExpiresEntries(t *testing.T) {
	cache := newSummaryCache(2)
	now := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	cache.set("key", "value", now.Add(time.Minute), now)

	_, ok := cache.get("key", now.Add(2*time.Minute))
	assert.False(t, ok)
	assert.Equal(t, 0, cache.len())
}

func TestSummaryCacheEvictsLeastRecentlyUsed(t *testing.T) {
	cache := newSummaryCache(2)
	now := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	expiresAt := now.Add(time.Hour)

	cache.set("a", "summary-a", expiresAt, now)
	cache.set("b", "summary-b", expiresAt, now)

	_, ok := cache.get("a", now)
	require.True(t, ok)

	cache.set("c", "summary-c", expiresAt, now)

	_, ok = cache.get("a", now)
	assert.True(t, ok, "recently used entry a should remain")
	_, ok = cache.get("b", now)
	assert.False(t, ok, "entry b should be evicted")
	_, ok = cache.get("c", now)
	assert.True(t, ok)
}

func TestSummaryCacheDisabled(t *testing.T) {
	cache := newSummaryCache(0)
	now := time.Now()

	cache.set("key", "value", now.Add(time.Hour), now)
	_, ok := cache.get("key", now)

	assert.False(t, ok)
	assert.Equal(t, 0, cache.len())
}

func TestSummaryCacheTreatsMalformedEntryAsMiss(t *testing.T) {
	cache := newSummaryCache(2)
	now := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)

	cache.byKey["bad"] = cache.lru.PushFront("not a summary")

	_, ok := cache.get("bad", now)
	assert.False(t, ok)
	assert.Equal(t, 0, cache.len())
	assert.Equal(t, 0, cache.lru.Len())

	cache.byKey["bad"] = cache.lru.PushFront(42)
	cache.set("bad", "fresh", now.Add(time.Hour), now)

	summary, ok := cache.get("bad", now)
	require.True(t, ok)
	assert.Equal(t, "fresh", summary)
	assert.Equal(t, 1, cache.lru.Len())
}
