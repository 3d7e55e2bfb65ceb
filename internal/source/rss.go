package source

import (
	"context"
	"fmt"
	"strings"

	"github.com/mmcdole/gofeed"

	"newsdigest/internal/domain"
)

func (f *Fetcher) fetchRSS(ctx context.Context, feedURL string, limit int) ([]domain.SourceItem, error) {
	feedURL = CleanURL(feedURL)

	parsed, err := f.feedParser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("parse feed (URL = %s): %w", feedURL, err)
	}

	feedTitle := strings.TrimSpace(parsed.Title)
	if feedTitle == "" {
		f.log.WarnContext(ctx, "Empty feed title",
			"feedURL", feedURL,
			"fallbackTitle", feedURL)

		feedTitle = feedURL
	}

	fetchedAt := f.now()
	items := make([]domain.SourceItem, 0, min(limit, len(parsed.Items)))

	for _, entry := range parsed.Items {
		if len(items) == limit {
			break
		}

		content := strings.TrimSpace(entry.Content)
		if content == "" {
			content = strings.TrimSpace(entry.Description)
		}
		title := strings.TrimSpace(entry.Title)
		if content == "" && title == "" {
			continue
		}
		if content == "" {
			content = title
		}
		if title == "" {
			title = feedTitle
		}

		link := strings.TrimSpace(entry.Link)
		if link == "" {
			link = feedURL
		}

		items = append(items, domain.SourceItem{
			Title:      title,
			Author:     feedItemAuthor(entry, feedTitle),
			RawContent: content,
			SourceURL:  link,
			FetchedAt:  fetchedAt,
		})
	}

	return items, nil
}

func feedItemAuthor(entry *gofeed.Item, fallback string) string {
	for _, person := range entry.Authors {
		if person != nil && strings.TrimSpace(person.Name) != "" {
			return strings.TrimSpace(person.Name)
		}
	}

	if entry.Author != nil && strings.TrimSpace(entry.Author.Name) != "" {
		return strings.TrimSpace(entry.Author.Name)
	}

	return fallback
}
