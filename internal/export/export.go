package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"newsdigest/internal/database"
)

const filenameLayout = "20060102_150405"

// Source is the read side of the store used by exports.
type Source interface {
	AllDetailed(ctx context.Context) ([]database.DetailedRecord, error)
	Analysis(ctx context.Context) (*database.Analysis, error)
	TableInfo(ctx context.Context) (*database.TableInfo, error)
}

type Document struct {
	ExportDate time.Time `json:"export_date"`
	TableInfo  TableInfo `json:"table_info"`
	Analysis   Analysis  `json:"analysis"`
	Articles   []Article `json:"articles"`
}

type TableInfo struct {
	Columns   []Column `json:"columns"`
	TotalRows int64    `json:"total_rows"`
}

type Column struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
}

type Analysis struct {
	ContentStats       ContentStats  `json:"content_stats"`
	SummaryStats       SummaryStats  `json:"summary_stats"`
	SourceDistribution []SourceCount `json:"source_distribution"`
	AuthorDistribution []AuthorCount `json:"author_distribution"`
	Timeline           []TimelineDay `json:"timeline"`
}

type ContentStats struct {
	MinLength     int64   `json:"min_length"`
	MaxLength     int64   `json:"max_length"`
	AvgLength     float64 `json:"avg_length"`
	TotalArticles int64   `json:"total_articles"`
}

type SummaryStats struct {
	TotalSummaries   int64   `json:"total_summaries"`
	AvgSummaryLength float64 `json:"avg_summary_length"`
	MinSummaryLength int64   `json:"min_summary_length"`
	MaxSummaryLength int64   `json:"max_summary_length"`
}

type SourceCount struct {
	SourceURL string `json:"source_url"`
	Count     int64  `json:"count"`
}

type AuthorCount struct {
	Author string `json:"author"`
	Count  int64  `json:"count"`
}

type TimelineDay struct {
	Date          string `json:"date"`
	ArticlesCount int64  `json:"articles_count"`
}

type Article struct {
	ID            int64     `json:"id"`
	Title         string    `json:"title"`
	Author        string    `json:"author"`
	Content       string    `json:"content"`
	Summary       string    `json:"summary"`
	SourceURL     string    `json:"source_url"`
	CreatedAt     time.Time `json:"created_at"`
	ContentLength int       `json:"content_length"`
	SummaryLength int       `json:"summary_length"`
}

// DefaultFilename is the file name used when no output path is given.
func DefaultFilename(now time.Time) string {
	return "articles_export_" + now.Format(filenameLayout) + ".json"
}

// Build reads every record together with the table description and the
// analysis.
func Build(ctx context.Context, src Source, now time.Time) (*Document, error) {
	records, err := src.AllDetailed(ctx)
	if err != nil {
		return nil, fmt.Errorf("get records: %w", err)
	}

	analysis, err := src.Analysis(ctx)
	if err != nil {
		return nil, fmt.Errorf("get analysis: %w", err)
	}

	info, err := src.TableInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("get table info: %w", err)
	}

	doc := &Document{
		ExportDate: now,
		TableInfo:  newTableInfo(info),
		Analysis:   newAnalysis(analysis),
		Articles:   make([]Article, 0, len(records)),
	}

	for _, rec := range records {
		doc.Articles = append(doc.Articles, Article{
			ID:            rec.ID,
			Title:         rec.Title,
			Author:        rec.Author,
			Content:       rec.Content,
			Summary:       rec.Summary,
			SourceURL:     rec.SourceURL,
			CreatedAt:     rec.CreatedAt,
			ContentLength: rec.ContentLength,
			SummaryLength: rec.SummaryLength,
		})
	}

	return doc, nil
}

// WriteJSON writes doc as indented JSON without escaping HTML characters.
func WriteJSON(w io.Writer, doc *Document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)

	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode document: %w", err)
	}

	return nil
}

func newTableInfo(info *database.TableInfo) TableInfo {
	out := TableInfo{Columns: make([]Column, 0, len(info.Columns)), TotalRows: info.TotalRows}
	for _, col := range info.Columns {
		out.Columns = append(out.Columns, Column{Name: col.Name, Type: col.Type, Nullable: col.Nullable})
	}

	return out
}

func newAnalysis(a *database.Analysis) Analysis {
	out := Analysis{
		ContentStats: ContentStats{
			MinLength:     a.Content.Min,
			MaxLength:     a.Content.Max,
			AvgLength:     a.Content.Avg,
			TotalArticles: a.Content.Count,
		},
		SummaryStats: SummaryStats{
			TotalSummaries:   a.Summary.Count,
			AvgSummaryLength: a.Summary.Avg,
			MinSummaryLength: a.Summary.Min,
			MaxSummaryLength: a.Summary.Max,
		},
		SourceDistribution: make([]SourceCount, 0, len(a.Sources)),
		AuthorDistribution: make([]AuthorCount, 0, len(a.Authors)),
		Timeline:           make([]TimelineDay, 0, len(a.Timeline)),
	}

	for _, c := range a.Sources {
		out.SourceDistribution = append(out.SourceDistribution, SourceCount{SourceURL: c.Value, Count: c.Count})
	}
	for _, c := range a.Authors {
		out.AuthorDistribution = append(out.AuthorDistribution, AuthorCount{Author: c.Value, Count: c.Count})
	}
	for _, c := range a.Timeline {
		out.Timeline = append(out.Timeline, TimelineDay{Date: c.Value, ArticlesCount: c.Count})
	}

	return out
}
