package source

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"

	"newsdigest/internal/domain"
	"newsdigest/internal/normalizer"
)

const (
	titleMinLen      = 4
	titleMaxLen      = 200
	authorMinLen     = 3
	authorMaxLen     = 100
	contentBlockMin  = 100
	paragraphsMinLen = 200
	contentMaxLen    = 10000
	contentMinLen    = 50

	unknownAuthor = "Unknown"

	noiseElements = "script, style, noscript, nav, header, footer, aside, advertisement"
)

var (
	titleSelectors = []string{"h1", "title", `meta[property="og:title"]`, `meta[name="twitter:title"]`, "h2"}

	authorMetaSelectors = []string{`meta[name="author"]`, `meta[property="article:author"]`}
	authorSelectors     = []string{
		`[class*="author"]`,
		`[class*="byline"]`,
		`[class*="writer"]`,
		`[rel="author"]`,
		".author-name",
		".byline",
		".post-author",
		".author",
		".writer",
		".by-author",
	}

	contentSelectors = []string{
		"article",
		`[class*="content"]`,
		`[class*="post-content"]`,
		`[class*="entry-content"]`,
		`[class*="article-content"]`,
		`[class*="post-body"]`,
		`[class*="story-body"]`,
		`[class*="article-body"]`,
		"main",
		".content",
		".post",
		".article",
		".story",
	}

	authorNoiseRe = regexp.MustCompile(`[<>@#$%^&*()+=\[\]{}|\\:";'?,./]`)

	ErrInsufficientContent = errors.New("insufficient content extracted")
)

func (f *Fetcher) fetchWeb(ctx context.Context, args []string, limit int) ([]domain.SourceItem, error) {
	urls := ExtractURLs(strings.Join(args, " "))
	if len(urls) == 0 {
		return nil, errors.New("no URLs to scrape")
	}

	if len(urls) > limit {
		urls = urls[:limit]
	}

	items := make([]domain.SourceItem, len(urls))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(f.concurrency)

	for i, u := range urls {
		g.Go(func() error {
			item, err := f.ScrapeURL(gCtx, u)
			if err != nil {
				return err
			}

			items[i] = item

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return items, nil
}

// ScrapeURL downloads one article page and extracts its title, author and
// main text.
func (f *Fetcher) ScrapeURL(ctx context.Context, rawURL string) (domain.SourceItem, error) {
	rawURL = CleanURL(rawURL)
	if rawURL == "" {
		return domain.SourceItem{}, errors.New("URL is empty")
	}

	doc, err := f.getDocument(ctx, rawURL)
	if err != nil {
		return domain.SourceItem{}, fmt.Errorf("get article: %w", err)
	}

	title := extractTitle(doc, rawURL)
	author := extractAuthor(doc)

	content := extractContent(doc)
	if utf8.RuneCountInString(content) < contentMinLen {
		return domain.SourceItem{}, fmt.Errorf("%w (URL = %s, length = %d)",
			ErrInsufficientContent, rawURL, utf8.RuneCountInString(content))
	}

	return domain.SourceItem{
		Title:      title,
		Author:     author,
		RawContent: content,
		SourceURL:  rawURL,
		FetchedAt:  f.now(),
	}, nil
}

func extractTitle(doc *goquery.Document, rawURL string) string {
	for _, selector := range titleSelectors {
		sel := doc.Find(selector).First()
		if sel.Length() == 0 {
			continue
		}

		var title string
		if goquery.NodeName(sel) == "meta" {
			title, _ = sel.Attr("content")
		} else {
			title = normalizer.SelectionText(sel)
		}

		title = strings.TrimSpace(title)
		if utf8.RuneCountInString(title) >= titleMinLen {
			return cutRunes(title, titleMaxLen)
		}
	}

	host := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		host = u.Host
	}

	return "Article from " + host
}

func extractAuthor(doc *goquery.Document) string {
	for _, selector := range authorMetaSelectors {
		content, ok := doc.Find(selector).First().Attr("content")
		content = strings.TrimSpace(content)
		if ok && content != "" && utf8.RuneCountInString(content) < authorMaxLen {
			return content
		}
	}

	for _, selector := range authorSelectors {
		var author string
		doc.Find(selector).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
			text := normalizer.SelectionText(sel)
			n := utf8.RuneCountInString(text)
			if n < authorMinLen || n >= authorMaxLen || authorNoiseRe.MatchString(text) {
				return true
			}

			author = text

			return false
		})

		if author != "" {
			return author
		}
	}

	return unknownAuthor
}

// extractContent picks the longest candidate block, then falls back to the
// joined paragraphs and finally to the whole body.
func extractContent(doc *goquery.Document) string {
	doc.Find(noiseElements).Remove()

	best := ""
	bestLen := 0
	for _, selector := range contentSelectors {
		doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
			text := normalizer.SelectionText(sel)
			if n := utf8.RuneCountInString(text); n > bestLen && n > contentBlockMin {
				best, bestLen = text, n
			}
		})
	}

	if bestLen < paragraphsMinLen {
		var paragraphs []string
		doc.Find("p").Each(func(_ int, sel *goquery.Selection) {
			if text := normalizer.SelectionText(sel); text != "" {
				paragraphs = append(paragraphs, text)
			}
		})

		if joined := strings.Join(paragraphs, " "); utf8.RuneCountInString(joined) > bestLen {
			best, bestLen = joined, utf8.RuneCountInString(joined)
		}
	}

	if bestLen < contentBlockMin {
		if body := doc.Find("body"); body.Length() > 0 {
			best = normalizer.SelectionText(body)
		}
	}

	return cutRunes(best, contentMaxLen)
}

func cutRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}

	return string([]rune(s)[:n])
}
