package main

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"newsdigest/internal/domain"
	"newsdigest/internal/export"
)

const (
	previewLen        = 200
	viewContentLen    = 500
	viewSummaryLen    = 150
	snippetBefore     = 50
	snippetAfter      = 100
	wideRuleWidth     = 80
	listingRuleWidth  = 50
	articleRuleWidth  = 40
	createdTimeLayout = time.DateTime
)

func printBatchReport(w io.Writer, report domain.BatchReport) {
	fmt.Fprintf(w, "Successfully processed %d articles\n", len(report.Succeeded))
	fmt.Fprintf(w, "Article IDs: %v\n", report.Succeeded)

	if len(report.Succeeded) == 0 {
		fmt.Fprintln(w, "No articles were successfully processed. Check the logs for details.")
	}

	if len(report.Failed) == 0 {
		return
	}

	counts := report.FailuresByKind()
	parts := make([]string, 0, len(counts))
	for _, kind := range slices.Sorted(maps.Keys(counts)) {
		parts = append(parts, fmt.Sprintf("%s=%d", kind, counts[kind]))
	}

	fmt.Fprintf(w, "Failed %d articles (%s):\n", len(report.Failed), strings.Join(parts, ", "))
	for _, f := range report.Failed {
		label := f.Item.SourceURL
		if f.Item.Title != "" {
			label = fmt.Sprintf("%s (%s)", f.Item.Title, f.Item.SourceURL)
		}
		if label == "" {
			label = "-"
		}

		fmt.Fprintf(w, "  [%s] %s: %v\n", f.Kind, label, f.Err)
	}
}

func printScrapedItem(w io.Writer, item domain.SourceItem) {
	fmt.Fprintf(w, "\n✅ Successfully scraped: %s\n", item.SourceURL)
	fmt.Fprintf(w, "Title: %s\n", item.Title)
	fmt.Fprintf(w, "Author: %s\n", orUnknown(item.Author))
	fmt.Fprintf(w, "Content length: %d characters\n", runeLen(item.RawContent))
	fmt.Fprintf(w, "Content preview: %s...\n", cut(item.RawContent, previewLen))
}

func printSummary(w io.Writer, rec *domain.Record) {
	fmt.Fprintf(w, "\nTitle: %s\n", rec.Title)
	fmt.Fprintf(w, "Author: %s\n", orUnknown(rec.Author))
	fmt.Fprintf(w, "URL: %s\n", rec.SourceURL)
	fmt.Fprintf(w, "Created: %s\n", formatCreated(rec.CreatedAt))
	fmt.Fprintf(w, "\nSummary:\n%s\n", orDefault(rec.Summary, "No summary available"))
}

func printListing(w io.Writer, records []domain.Record) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No articles found")
		return
	}

	fmt.Fprintf(w, "\nFound %d articles:\n\n", len(records))
	for _, rec := range records {
		fmt.Fprintf(w, "ID: %d\n", rec.ID)
		fmt.Fprintf(w, "Title: %s\n", rec.Title)
		fmt.Fprintf(w, "Author: %s\n", orUnknown(rec.Author))
		fmt.Fprintf(w, "Created: %s\n", formatCreated(rec.CreatedAt))
		fmt.Fprintln(w, strings.Repeat("-", listingRuleWidth))
	}
}

func printDatabaseView(w io.Writer, records []domain.Record, full bool) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No articles found in database")
		return
	}

	fmt.Fprintf(w, "\n📊 Database Contents (%d articles shown)\n", len(records))
	fmt.Fprintln(w, strings.Repeat("=", wideRuleWidth))

	for i, rec := range records {
		fmt.Fprintf(w, "\n🔹 Article #%d (%d/%d)\n", rec.ID, i+1, len(records))
		fmt.Fprintf(w, "Title: %s\n", rec.Title)
		fmt.Fprintf(w, "Author: %s\n", orUnknown(rec.Author))
		fmt.Fprintf(w, "Source: %s\n", rec.SourceURL)
		fmt.Fprintf(w, "Created: %s\n", formatCreated(rec.CreatedAt))

		if full {
			fmt.Fprintf(w, "\n📝 Content:\n%s\n", ellipsis(rec.Content, viewContentLen))
			fmt.Fprintf(w, "\n📋 Summary:\n%s\n", orDefault(rec.Summary, "No summary available"))
		} else {
			fmt.Fprintf(w, "Summary: %s\n", orDefault(ellipsis(rec.Summary, viewSummaryLen), "No summary"))
		}

		fmt.Fprintln(w, strings.Repeat("-", wideRuleWidth))
	}
}

func printArticle(w io.Writer, rec *domain.Record) {
	fmt.Fprintf(w, "\n📄 Article #%d\n", rec.ID)
	fmt.Fprintln(w, strings.Repeat("=", wideRuleWidth))
	fmt.Fprintf(w, "Title: %s\n", rec.Title)
	fmt.Fprintf(w, "Author: %s\n", orUnknown(rec.Author))
	fmt.Fprintf(w, "Source: %s (%s)\n", rec.SourceURL, export.Host(rec.SourceURL))
	fmt.Fprintf(w, "Created: %s\n", formatCreated(rec.CreatedAt))
	fmt.Fprintf(w, "Content Length: %d characters\n", runeLen(rec.Content))
	fmt.Fprintf(w, "Summary Length: %d characters\n", runeLen(rec.Summary))

	fmt.Fprintln(w, "\n📝 Content:")
	fmt.Fprintln(w, strings.Repeat("-", articleRuleWidth))
	fmt.Fprintln(w, rec.Content)

	if rec.Summary != "" {
		fmt.Fprintln(w, "\n📋 Summary:")
		fmt.Fprintln(w, strings.Repeat("-", articleRuleWidth))
		fmt.Fprintln(w, rec.Summary)
	}
}

func printSearchResults(w io.Writer, query string, field string, records []domain.Record) {
	if len(records) == 0 {
		fmt.Fprintf(w, "No articles found matching '%s' in %s\n", query, field)
		return
	}

	fmt.Fprintf(w, "\n🔍 Search Results for '%s' in %s (%d found)\n", query, field, len(records))
	fmt.Fprintln(w, strings.Repeat("=", wideRuleWidth))

	for _, rec := range records {
		fmt.Fprintf(w, "\n#%d | %s\n", rec.ID, rec.Title)
		fmt.Fprintf(w, "Author: %s\n", orUnknown(rec.Author))
		fmt.Fprintf(w, "Created: %s\n", formatCreated(rec.CreatedAt))

		if field == "all" || field == "content" {
			if s, ok := snippet(rec.Content, query); ok {
				fmt.Fprintf(w, "Content snippet: ...%s...\n", s)
			}
		}

		if (field == "all" || field == "summary") && containsFold(rec.Summary, query) {
			fmt.Fprintf(w, "Summary: %s\n", rec.Summary)
		}
	}
}

// snippet returns the text around the first case-insensitive match of
// query in content.
func snippet(content string, query string) (string, bool) {
	runes := []rune(content)
	lower := []rune(strings.ToLower(content))
	needle := []rune(strings.ToLower(query))

	if len(needle) == 0 || len(lower) != len(runes) {
		return "", false
	}

	idx := -1
	for i := 0; i+len(needle) <= len(lower); i++ {
		if slices.Equal(lower[i:i+len(needle)], needle) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return "", false
	}

	start := max(0, idx-snippetBefore)
	end := min(len(runes), idx+snippetAfter)

	return string(runes[start:end]), true
}

func containsFold(s string, substr string) bool {
	return substr != "" && strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

func formatCreated(t time.Time) string {
	if t.IsZero() {
		return "-"
	}

	return t.UTC().Format(createdTimeLayout)
}

func orUnknown(s string) string {
	return orDefault(s, "Unknown")
}

func orDefault(s string, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}

	return s
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}

func cut(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}

	return string(runes[:n])
}

func ellipsis(s string, n int) string {
	if runeLen(s) <= n {
		return s
	}

	return cut(s, n) + "..."
}
