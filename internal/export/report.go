package export

import (
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"newsdigest/internal/database"
)

const (
	reportWidth      = 60
	sectionWidth     = 30
	reportTopSources = 10
	reportTopAuthors = 10
	reportRecentDays = 7
)

// WriteReport writes a plain-text analysis report of the database at dbPath.
func WriteReport(
	w io.Writer,
	dbPath string,
	info *database.TableInfo,
	a *database.Analysis,
	now time.Time,
) error {
	var b strings.Builder

	line := strings.Repeat("=", reportWidth)
	section := func(title string) {
		b.WriteString(title + "\n")
		b.WriteString(strings.Repeat("-", sectionWidth) + "\n")
	}

	b.WriteString(line + "\n")
	b.WriteString("ARTICLE DATABASE ANALYSIS REPORT\n")
	b.WriteString(line + "\n")
	fmt.Fprintf(&b, "Generated: %s\n", now.Format(time.DateTime))
	fmt.Fprintf(&b, "Database: %s\n\n", dbPath)

	coverage := 0.0
	if info.TotalRows > 0 {
		coverage = float64(a.Summary.Count) / float64(info.TotalRows) * 100
	}

	section("📊 BASIC STATISTICS")
	fmt.Fprintf(&b, "Total Articles: %d\n", info.TotalRows)
	fmt.Fprintf(&b, "Total Summaries: %d\n", a.Summary.Count)
	fmt.Fprintf(&b, "Summary Coverage: %.1f%%\n\n", coverage)

	section("📝 CONTENT ANALYSIS")
	fmt.Fprintf(&b, "Average Content Length: %.0f characters\n", a.Content.Avg)
	fmt.Fprintf(&b, "Shortest Article: %d characters\n", a.Content.Min)
	fmt.Fprintf(&b, "Longest Article: %d characters\n\n", a.Content.Max)

	if a.Summary.Count > 0 {
		section("📋 SUMMARY ANALYSIS")
		fmt.Fprintf(&b, "Average Summary Length: %.0f characters\n", a.Summary.Avg)
		fmt.Fprintf(&b, "Shortest Summary: %d characters\n", a.Summary.Min)
		fmt.Fprintf(&b, "Longest Summary: %d characters\n\n", a.Summary.Max)
	}

	section("🌐 SOURCE DISTRIBUTION")
	for _, c := range a.Sources[:min(len(a.Sources), reportTopSources)] {
		fmt.Fprintf(&b, "%s: %d articles\n", Host(c.Value), c.Count)
	}
	b.WriteString("\n")

	if len(a.Authors) > 0 {
		section("✍️  TOP AUTHORS")
		for _, c := range a.Authors[:min(len(a.Authors), reportTopAuthors)] {
			fmt.Fprintf(&b, "%s: %d articles\n", c.Value, c.Count)
		}
		b.WriteString("\n")
	}

	section("📅 RECENT ACTIVITY")
	for _, c := range a.Timeline[:min(len(a.Timeline), reportRecentDays)] {
		fmt.Fprintf(&b, "%s: %d articles\n", c.Value, c.Count)
	}
	b.WriteString("\n" + line + "\n")

	if _, err := io.WriteString(w, b.String()); err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	return nil
}

// Host returns the host of rawURL, or rawURL itself when it has none.
func Host(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}

	return u.Host
}
