package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"mvdan.cc/xurls/v2"
)

const (
	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
		"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/127.0.0.0 Safari/537.36"
	apiUserAgent = "newsdigest/1.0"
)

// ExtractURLs finds every URL in text, with or without a scheme. URLs
// without one get https://.
func ExtractURLs(text string) []string {
	found := xurls.Relaxed().FindAllString(text, -1)

	urls := make([]string, 0, len(found))
	seen := make(map[string]struct{}, len(found))
	for _, u := range found {
		u = CleanURL(u)
		if _, ok := seen[u]; ok {
			continue
		}

		seen[u] = struct{}{}
		urls = append(urls, u)
	}

	return urls
}

func CleanURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	lower := strings.ToLower(raw)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		return "https://" + raw
	}

	return raw
}

func (f *Fetcher) get(ctx context.Context, rawURL string, ua string, accept string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", ua)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		f.closeBody(ctx, resp.Body)

		return nil, fmt.Errorf("unexpected status code (URL = %s, status = %d)", rawURL, resp.StatusCode)
	}

	return resp, nil
}

func (f *Fetcher) getDocument(ctx context.Context, rawURL string) (*goquery.Document, error) {
	resp, err := f.get(ctx, rawURL, userAgent, "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	if err != nil {
		return nil, err
	}
	defer f.closeBody(ctx, resp.Body)

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}

	return doc, nil
}

func (f *Fetcher) getJSON(ctx context.Context, rawURL string, v any) error {
	resp, err := f.get(ctx, rawURL, apiUserAgent, "application/json")
	if err != nil {
		return err
	}
	defer f.closeBody(ctx, resp.Body)

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response (URL = %s): %w", rawURL, err)
	}

	return nil
}

func (f *Fetcher) closeBody(ctx context.Context, body io.Closer) {
	if err := body.Close(); err != nil {
		f.log.ErrorContext(ctx, "Failed to close response body",
			"error", err)
	}
}
