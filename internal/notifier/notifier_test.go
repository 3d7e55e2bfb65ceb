package notifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newsdigest/internal/domain"
	"newsdigest/internal/ratelimiter"
)

type recordingSender struct {
	mu     sync.Mutex
	params []*bot.SendMessageParams
	err    error
}

func (s *recordingSender) SendMessage(_ context.Context, params *bot.SendMessageParams) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.params = append(s.params, params)
	if s.err != nil {
		return nil, s.err
	}

	return &models.Message{ID: len(s.params)}, nil
}

func TestFormatBatchMessages(t *testing.T) {
	batch := Batch{
		Source: "reddit:golang",
		Report: domain.BatchReport{
			Succeeded: []int64{1},
			Failed: []domain.Failure{{
				Item: domain.SourceItem{Title: "Broken post", SourceURL: "https://reddit.com/r/golang/2"},
				Kind: domain.KindRateLimitTimeout,
			}},
		},
		Records: []domain.Record{{
			ID:        1,
			Title:     "Go 1.26 is out",
			Summary:   "The release improves the GC.",
			SourceURL: "https://reddit.com/r/golang/1",
		}},
	}

	messages := formatBatchMessages(batch)
	require.Len(t, messages, 1)

	msg := messages[0]
	assert.True(t, strings.HasPrefix(msg, "📰 *Digest: reddit:golang*\n✅ 1 succeeded, ❌ 1 failed\n\n"))
	assert.Contains(t, msg, `📌 *[Go 1\.26 is out](https://reddit.com/r/golang/1)*`)
	assert.Contains(t, msg, `The release improves the GC\.`)
	assert.Contains(t, msg, `– rate\_limit\_timeout: [Broken post](https://reddit.com/r/golang/2)`)
}

func TestFormatBatchMessagesSplitsLongReports(t *testing.T) {
	var records []domain.Record
	for i := range 40 {
		records = append(records, domain.Record{
			ID:        int64(i),
			Title:     fmt.Sprintf("Article %d", i),
			Summary:   strings.Repeat("word ", 60),
			SourceURL: fmt.Sprintf("https://example.com/%d", i),
		})
	}

	messages := formatBatchMessages(Batch{Source: "hackernews", Records: records})
	require.Greater(t, len(messages), 1)

	for i, msg := range messages {
		assert.LessOrEqual(t, len(msg), telegramMessageMaxLength)
		if i > 0 {
			assert.True(t, strings.HasPrefix(msg, `📰 *Digest: hackernews \(continue\)*`))
		}
	}

	joined := strings.Join(messages, "")
	for i := range 40 {
		assert.Contains(t, joined, fmt.Sprintf("[Article %d](https://example.com/%d)", i, i))
	}
}

func TestNotifyBatchSendsMarkdownMessages(t *testing.T) {
	sender := &recordingSender{}
	limiter := ratelimiter.New(ratelimiter.Config{MaxConcurrent: 1}, slog.Default())
	n := New(sender, 42, limiter, slog.Default())

	err := n.NotifyBatch(context.Background(), Batch{Source: "quotes"})
	require.NoError(t, err)

	require.Len(t, sender.params, 1)
	assert.Equal(t, int64(42), sender.params[0].ChatID)
	assert.Equal(t, models.ParseModeMarkdown, sender.params[0].ParseMode)
	assert.Equal(t, 0, limiter.InFlight())
}

func TestNotifyBatchReturnsSendErrors(t *testing.T) {
	sender := &recordingSender{err: errors.New("chat not found")}
	n := New(sender, 42, nil, slog.Default())

	err := n.NotifyBatch(context.Background(), Batch{Source: "quotes"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat not found")
}

func TestNewTelegramRequiresToken(t *testing.T) {
	_, err := NewTelegram("  ")
	require.Error(t, err)
}
