package source

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"newsdigest/internal/domain"
)

const redditPermalinkBase = "https://reddit.com"

type redditListing struct {
	Data struct {
		Children []struct {
			Data redditPost `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type redditPost struct {
	Title     string `json:"title"`
	Author    string `json:"author"`
	SelfText  string `json:"selftext"`
	IsSelf    bool   `json:"is_self"`
	Permalink string `json:"permalink"`
}

func (f *Fetcher) fetchReddit(ctx context.Context, subreddit string, limit int) ([]domain.SourceItem, error) {
	endpoint := fmt.Sprintf("%s/r/%s/hot.json?limit=%s",
		strings.TrimRight(f.endpoints.RedditURL, "/"),
		url.PathEscape(subreddit),
		strconv.Itoa(limit))

	var listing redditListing
	if err := f.getJSON(ctx, endpoint, &listing); err != nil {
		return nil, fmt.Errorf("get subreddit (subreddit = %s): %w", subreddit, err)
	}

	fetchedAt := f.now()
	items := make([]domain.SourceItem, 0, limit)

	for _, child := range listing.Data.Children {
		if len(items) == limit {
			break
		}

		post := child.Data
		if post.IsSelf && strings.TrimSpace(post.SelfText) == "" {
			continue
		}
		if strings.TrimSpace(post.Title) == "" || post.Permalink == "" {
			continue
		}

		content := post.SelfText
		if strings.TrimSpace(content) == "" {
			content = "Reddit post: " + post.Title
		}

		items = append(items, domain.SourceItem{
			Title:      post.Title,
			Author:     "u/" + post.Author,
			RawContent: content,
			SourceURL:  redditPermalinkBase + post.Permalink,
			FetchedAt:  fetchedAt,
		})
	}

	return items, nil
}
