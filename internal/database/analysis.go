package database

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

const (
	authorDistributionLimit = 20
	timelineDays            = 30
)

type LengthStats struct {
	Count int64
	Min   int64
	Max   int64
	Avg   float64
}

type Count struct {
	Value string
	Count int64
}

type Analysis struct {
	Content  LengthStats
	Summary  LengthStats
	Sources  []Count
	Authors  []Count
	Timeline []Count
}

type Column struct {
	Name     string
	Type     string
	Nullable bool
}

type TableInfo struct {
	Columns   []Column
	TotalRows int64
}

// Analysis computes length statistics and the source, author and per-day
// distributions of the stored records.
func (d *Database) Analysis(ctx context.Context) (*Analysis, error) {
	content, err := d.lengthStats(ctx, "content", nil)
	if err != nil {
		return nil, fmt.Errorf("get content stats: %w", err)
	}

	summary, err := d.lengthStats(ctx, "summary", sq.NotEq{"summary": ""})
	if err != nil {
		return nil, fmt.Errorf("get summary stats: %w", err)
	}

	sources, err := d.counts(ctx, sq.Select("source_url", "count(*) as n").
		From(articlesTable).
		GroupBy("source_url").
		OrderBy("n desc", "source_url"), "Sources")
	if err != nil {
		return nil, fmt.Errorf("get source distribution: %w", err)
	}

	authors, err := d.counts(ctx, sq.Select("author", "count(*) as n").
		From(articlesTable).
		Where(sq.NotEq{"author": ""}).
		GroupBy("author").
		OrderBy("n desc", "author").
		Limit(authorDistributionLimit), "Authors")
	if err != nil {
		return nil, fmt.Errorf("get author distribution: %w", err)
	}

	timeline, err := d.counts(ctx, sq.Select("date(created_at) as day", "count(*) as n").
		From(articlesTable).
		GroupBy("day").
		OrderBy("day desc").
		Limit(timelineDays), "Timeline")
	if err != nil {
		return nil, fmt.Errorf("get timeline: %w", err)
	}

	return &Analysis{
		Content:  content,
		Summary:  summary,
		Sources:  sources,
		Authors:  authors,
		Timeline: timeline,
	}, nil
}

// TableInfo describes the articles table columns and row count.
func (d *Database) TableInfo(ctx context.Context) (*TableInfo, error) {
	rows, err := d.db.QueryContext(ctx, "pragma table_info("+articlesTable+")")
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer d.closeRows(ctx, rows, "TableInfo")

	info := &TableInfo{}
	for rows.Next() {
		var (
			cid        int
			col        Column
			notNull    bool
			defaultVal sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &col.Name, &col.Type, &notNull, &defaultVal, &pk); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		col.Nullable = !notNull
		info.Columns = append(info.Columns, col)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	if err := d.db.QueryRowContext(ctx, "select count(*) from "+articlesTable).Scan(&info.TotalRows); err != nil {
		return nil, fmt.Errorf("count rows: %w", err)
	}

	return info, nil
}

func (d *Database) lengthStats(ctx context.Context, column string, where sq.Sqlizer) (LengthStats, error) {
	b := sq.Select(
		"count(*)",
		fmt.Sprintf("min(length(%s))", column),
		fmt.Sprintf("max(length(%s))", column),
		fmt.Sprintf("avg(length(%s))", column),
	).From(articlesTable)
	if where != nil {
		b = b.Where(where)
	}

	query, args, err := b.ToSql()
	if err != nil {
		return LengthStats{}, fmt.Errorf("build query: %w", err)
	}

	var (
		stats          LengthStats
		minLen, maxLen sql.NullInt64
		avg            sql.NullFloat64
	)
	if err := d.db.QueryRowContext(ctx, query, args...).Scan(&stats.Count, &minLen, &maxLen, &avg); err != nil {
		return LengthStats{}, fmt.Errorf("scan row: %w", err)
	}

	stats.Min = minLen.Int64
	stats.Max = maxLen.Int64
	stats.Avg = avg.Float64

	return stats, nil
}

func (d *Database) counts(ctx context.Context, b sq.SelectBuilder, operation string) ([]Count, error) {
	rows, err := d.query(ctx, b, operation)
	if err != nil {
		return nil, err
	}
	defer d.closeRows(ctx, rows, operation)

	var counts []Count
	for rows.Next() {
		var (
			value sql.NullString
			c     Count
		)
		if err := rows.Scan(&value, &c.Count); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		c.Value = value.String
		counts = append(counts, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return counts, nil
}
