package source

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"newsdigest/internal/domain"
	"newsdigest/internal/normalizer"
)

const (
	hackerNewsItemURL       = "https://news.ycombinator.com/item?id=%d"
	hackerNewsLinkedMaxLen  = 1000
	hackerNewsDefaultAuthor = "Unknown"
)

type hackerNewsStory struct {
	ID      int64  `json:"id"`
	Type    string `json:"type"`
	Title   string `json:"title"`
	By      string `json:"by"`
	Text    string `json:"text"`
	URL     string `json:"url"`
	Dead    bool   `json:"dead"`
	Deleted bool   `json:"deleted"`
}

func (f *Fetcher) fetchHackerNews(ctx context.Context, limit int) ([]domain.SourceItem, error) {
	var ids []int64
	if err := f.getJSON(ctx, f.endpoints.HackerNewsURL+"/topstories.json", &ids); err != nil {
		return nil, fmt.Errorf("get top stories: %w", err)
	}

	if len(ids) > limit {
		ids = ids[:limit]
	}

	stories := make([]*domain.SourceItem, len(ids))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(f.concurrency)

	for i, id := range ids {
		g.Go(func() error {
			item, err := f.fetchHackerNewsStory(gCtx, id)
			if err != nil {
				return err
			}

			stories[i] = item

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	items := make([]domain.SourceItem, 0, len(stories))
	for _, story := range stories {
		if story != nil {
			items = append(items, *story)
		}
	}

	return items, nil
}

// fetchHackerNewsStory returns nil for null, dead and deleted stories.
func (f *Fetcher) fetchHackerNewsStory(ctx context.Context, id int64) (*domain.SourceItem, error) {
	var story *hackerNewsStory
	if err := f.getJSON(ctx, fmt.Sprintf("%s/item/%d.json", f.endpoints.HackerNewsURL, id), &story); err != nil {
		return nil, fmt.Errorf("get story (id = %d): %w", id, err)
	}

	if story == nil || story.Dead || story.Deleted || strings.TrimSpace(story.Title) == "" {
		f.log.DebugContext(ctx, "Skipping story",
			"storyID", id)

		return nil, nil //nolint:nilnil // Skipped story.
	}

	content := story.Text
	if content == "" {
		content = story.Title
	}

	if story.URL != "" && story.Text == "" {
		linked, err := f.ScrapeURL(ctx, story.URL)
		if err != nil {
			f.log.DebugContext(ctx, "Could not scrape linked story",
				"storyID", id,
				"url", story.URL,
				"error", err)
		} else {
			content = normalizer.Truncate(linked.RawContent, hackerNewsLinkedMaxLen)
		}
	}

	author := story.By
	if author == "" {
		author = hackerNewsDefaultAuthor
	}

	return &domain.SourceItem{
		Title:      story.Title,
		Author:     author,
		RawContent: content,
		SourceURL:  fmt.Sprintf(hackerNewsItemURL, id),
		FetchedAt:  f.now(),
	}, nil
}
