package domain

import (
	"errors"
	"fmt"
	"strings"
)

type SourceKind string

const (
	SourceQuotes     SourceKind = "quotes"
	SourceHackerNews SourceKind = "hackernews"
	SourceReddit     SourceKind = "reddit"
	SourceRSS        SourceKind = "rss"
	SourceWeb        SourceKind = "web"

	DefaultSubreddit = "news"
)

var ErrUnknownSource = errors.New("unknown source")

// Source selects one fetch variant. Args holds the subreddit, the feed URL
// or the article URLs depending on Kind.
type Source struct {
	Kind SourceKind
	Args []string
}

func (s Source) String() string {
	switch s.Kind {
	case SourceReddit, SourceRSS:
		if len(s.Args) > 0 {
			return string(s.Kind) + ":" + s.Args[0]
		}
	case SourceWeb:
		return strings.Join(s.Args, ",")
	}

	return string(s.Kind)
}

// ParseSource accepts "quotes", "hackernews", "reddit[:sub]", "rss:<url>"
// and one or more comma-separated article URLs.
func ParseSource(raw string) (Source, error) {
	raw = strings.TrimSpace(raw)
	lower := strings.ToLower(raw)

	switch {
	case raw == "":
		return Source{}, fmt.Errorf("%w: empty", ErrUnknownSource)
	case lower == string(SourceQuotes):
		return Source{Kind: SourceQuotes}, nil
	case lower == string(SourceHackerNews):
		return Source{Kind: SourceHackerNews}, nil
	case lower == string(SourceReddit):
		return Source{Kind: SourceReddit, Args: []string{DefaultSubreddit}}, nil
	case strings.HasPrefix(lower, "reddit:"):
		sub := strings.TrimSpace(lower[len("reddit:"):])
		if sub == "" {
			sub = DefaultSubreddit
		}

		return Source{Kind: SourceReddit, Args: []string{sub}}, nil
	case strings.HasPrefix(lower, "rss:"):
		feedURL := strings.TrimSpace(raw[len("rss:"):])
		if feedURL == "" {
			return Source{}, fmt.Errorf("%w: rss feed URL is empty", ErrUnknownSource)
		}

		return Source{Kind: SourceRSS, Args: []string{feedURL}}, nil
	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"), strings.Contains(raw, "."):
		var urls []string
		for part := range strings.SplitSeq(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				urls = append(urls, part)
			}
		}

		if len(urls) == 0 {
			return Source{}, fmt.Errorf("%w: no URLs in %q", ErrUnknownSource, raw)
		}

		return Source{Kind: SourceWeb, Args: urls}, nil
	}

	return Source{}, fmt.Errorf("%w: %q", ErrUnknownSource, raw)
}
