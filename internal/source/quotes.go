package source

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"newsdigest/internal/domain"
)

func (f *Fetcher) fetchQuotes(ctx context.Context, limit int) ([]domain.SourceItem, error) {
	doc, err := f.getDocument(ctx, f.endpoints.QuotesURL)
	if err != nil {
		return nil, fmt.Errorf("get quotes page: %w", err)
	}

	quotes := doc.Find("div.quote")
	if quotes.Length() == 0 {
		return nil, errors.New("no quotes on page")
	}

	fetchedAt := f.now()
	items := make([]domain.SourceItem, 0, min(limit, quotes.Length()))

	quotes.EachWithBreak(func(_ int, quote *goquery.Selection) bool {
		text := strings.TrimSpace(quote.Find("span.text").First().Text())
		author := strings.TrimSpace(quote.Find("small.author").First().Text())
		if text == "" || author == "" {
			return true
		}

		var tags []string
		quote.Find("a.tag").Each(func(_ int, tag *goquery.Selection) {
			if t := strings.TrimSpace(tag.Text()); t != "" {
				tags = append(tags, t)
			}
		})

		items = append(items, domain.SourceItem{
			Title:      "Quote by " + author,
			Author:     author,
			RawContent: text + "\n\nTags: " + strings.Join(tags, ", "),
			SourceURL:  f.endpoints.QuotesURL,
			FetchedAt:  fetchedAt,
		})

		return len(items) < limit
	})

	return items, nil
}
