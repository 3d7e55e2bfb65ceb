package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"newsdigest/internal/domain"
)

const (
	SearchAll     = "all"
	SearchTitle   = "title"
	SearchAuthor  = "author"
	SearchContent = "content"
	SearchSummary = "summary"
)

//nolint:gochecknoglobals // Read-only column lists.
var (
	recordColumns  = []string{"id", "title", "author", "content", "summary", "source_url", "created_at"}
	listingColumns = []string{"id", "title", "author", "summary", "source_url", "created_at"}
	searchFields   = map[string][]string{
		SearchAll:     {"title", "author", "content", "summary"},
		SearchTitle:   {"title"},
		SearchAuthor:  {"author"},
		SearchContent: {"content"},
		SearchSummary: {"summary"},
	}
)

// DetailedRecord is a full record with its stored text lengths.
type DetailedRecord struct {
	domain.Record
	ContentLength int
	SummaryLength int
}

// Persist stores rec and returns its id. Failures are *PersistError.
func (d *Database) Persist(ctx context.Context, rec domain.Record) (int64, error) {
	rec.Title = strings.TrimSpace(rec.Title)
	rec.SourceURL = strings.TrimSpace(rec.SourceURL)

	switch {
	case rec.Title == "":
		return 0, &PersistError{SourceURL: rec.SourceURL, Err: fmt.Errorf("%w: title is empty", ErrInvalidRecord)}
	case strings.TrimSpace(rec.Content) == "":
		return 0, &PersistError{SourceURL: rec.SourceURL, Err: fmt.Errorf("%w: content is empty", ErrInvalidRecord)}
	case rec.SourceURL == "":
		return 0, &PersistError{SourceURL: rec.SourceURL, Err: fmt.Errorf("%w: source URL is empty", ErrInvalidRecord)}
	}

	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	query, args, err := sq.Insert(articlesTable).
		Columns("title", "author", "content", "summary", "source_url", "created_at").
		Values(rec.Title, rec.Author, rec.Content, rec.Summary, rec.SourceURL, createdAt.UTC().Truncate(time.Second)).
		ToSql()
	if err != nil {
		return 0, &PersistError{SourceURL: rec.SourceURL, Err: fmt.Errorf("build query: %w", err)}
	}

	res, err := d.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, &PersistError{SourceURL: rec.SourceURL, Err: fmt.Errorf("execute query: %w", err)}
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, &PersistError{SourceURL: rec.SourceURL, Err: fmt.Errorf("get last insert id: %w", err)}
	}

	return id, nil
}

// ByID returns the record with the given id, or nil when there is none.
func (d *Database) ByID(ctx context.Context, id int64) (*domain.Record, error) {
	query, args, err := sq.Select(recordColumns...).
		From(articlesTable).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rec domain.Record
	err = d.db.QueryRowContext(ctx, query, args...).Scan(
		&rec.ID, &rec.Title, &rec.Author, &rec.Content, &rec.Summary, &rec.SourceURL, &rec.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // Absent record.
	}
	if err != nil {
		return nil, fmt.Errorf("scan row (id = %d): %w", id, err)
	}

	return &rec, nil
}

// List returns records newest first without their content. A limit of
// zero returns every record.
func (d *Database) List(ctx context.Context, limit int) ([]domain.Record, error) {
	b := sq.Select(listingColumns...).
		From(articlesTable).
		OrderBy("created_at desc", "id desc")
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}

	rows, err := d.query(ctx, b, "List")
	if err != nil {
		return nil, err
	}
	defer d.closeRows(ctx, rows, "List")

	var records []domain.Record
	for rows.Next() {
		var rec domain.Record
		if err := rows.Scan(&rec.ID, &rec.Title, &rec.Author, &rec.Summary, &rec.SourceURL, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return records, nil
}

// Search returns records whose field contains query, newest first. Field
// is one of all, title, author, content or summary.
func (d *Database) Search(ctx context.Context, query string, field string) ([]domain.Record, error) {
	field = strings.ToLower(strings.TrimSpace(field))
	if field == "" {
		field = SearchAll
	}

	columns, ok := searchFields[field]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidField, field)
	}

	pattern := "%" + query + "%"
	cond := make(sq.Or, 0, len(columns))
	for _, column := range columns {
		cond = append(cond, sq.Like{column: pattern})
	}

	b := sq.Select(recordColumns...).
		From(articlesTable).
		Where(cond).
		OrderBy("created_at desc", "id desc")

	return d.scanRecords(ctx, b, "Search")
}

// AllDetailed returns every record with content and summary lengths,
// newest first.
func (d *Database) AllDetailed(ctx context.Context) ([]DetailedRecord, error) {
	b := sq.Select(recordColumns...).
		Column("length(content)").
		Column("length(summary)").
		From(articlesTable).
		OrderBy("created_at desc", "id desc")

	rows, err := d.query(ctx, b, "AllDetailed")
	if err != nil {
		return nil, err
	}
	defer d.closeRows(ctx, rows, "AllDetailed")

	var records []DetailedRecord
	for rows.Next() {
		var rec DetailedRecord
		if err := rows.Scan(
			&rec.ID, &rec.Title, &rec.Author, &rec.Content, &rec.Summary, &rec.SourceURL, &rec.CreatedAt,
			&rec.ContentLength, &rec.SummaryLength,
		); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return records, nil
}

func (d *Database) scanRecords(ctx context.Context, b sq.Sqlizer, operation string) ([]domain.Record, error) {
	rows, err := d.query(ctx, b, operation)
	if err != nil {
		return nil, err
	}
	defer d.closeRows(ctx, rows, operation)

	var records []domain.Record
	for rows.Next() {
		var rec domain.Record
		if err := rows.Scan(
			&rec.ID, &rec.Title, &rec.Author, &rec.Content, &rec.Summary, &rec.SourceURL, &rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return records, nil
}
