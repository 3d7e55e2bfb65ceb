package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"newsdigest/internal/config"
	"newsdigest/internal/database"
	"newsdigest/internal/domain"
	"newsdigest/internal/export"
	"newsdigest/internal/logging"
	"newsdigest/internal/normalizer"
	"newsdigest/internal/notifier"
	"newsdigest/internal/pipeline"
	"newsdigest/internal/ratelimiter"
	"newsdigest/internal/scheduler"
	"newsdigest/internal/source"
	"newsdigest/internal/summarizer"
)

var (
	errBatchFailed     = errors.New("batch has failures")
	errArticleNotFound = errors.New("article not found")
	errMissingArgument = errors.New("missing argument")
)

type app struct {
	out    io.Writer
	errOut io.Writer
	cfg    config.Config
	log    *slog.Logger
	now    func() time.Time
}

func newApp(out io.Writer, errOut io.Writer) *app {
	return &app{
		out:    out,
		errOut: errOut,
		cfg:    config.Default(),
		log:    slog.Default(),
		now:    time.Now,
	}
}

func (a *app) setup(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if c.IsSet("db-path") {
		cfg.DBPath = c.String("db-path")
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}

	log, err := logging.New(a.errOut, cfg.LogLevel)
	if err != nil {
		return err
	}
	slog.SetDefault(log)

	a.cfg = cfg
	a.log = log

	return nil
}

func (a *app) scrapeCommand(c *cli.Context) error {
	ctx := c.Context

	src, err := domain.ParseSource(c.String("source"))
	if err != nil {
		return fmt.Errorf("parse source: %w", err)
	}
	limit := c.Int("limit")

	sum, err := a.newSummarizer(ctx)
	if err != nil {
		return err
	}

	db, closeDB, err := a.openDatabase(ctx)
	if err != nil {
		return err
	}
	defer closeDB()

	p, err := a.newPipeline(sum, db)
	if err != nil {
		return err
	}
	defer p.Release()

	fmt.Fprintf(a.out, "Scraping %d articles from %s...\n", limit, src)

	start := a.now()
	report, err := p.Run(ctx, src, limit)
	printBatchReport(a.out, report)

	a.log.InfoContext(ctx, "Batch is finished",
		"source", src.String(),
		"limit", limit,
		"succeeded", len(report.Succeeded),
		"failed", len(report.Failed),
		"durationSeconds", time.Since(start).Seconds())

	if err != nil {
		return fmt.Errorf("run batch: %w", err)
	}
	if !report.OK() {
		return fmt.Errorf("%w: %d of %d items failed", errBatchFailed, len(report.Failed), report.Total())
	}

	return nil
}

func (a *app) testScrapeCommand(c *cli.Context) error {
	rawURL := strings.TrimSpace(c.Args().First())
	if rawURL == "" {
		return fmt.Errorf("%w: url", errMissingArgument)
	}

	fetcher := source.NewFetcher(a.cfg.SourceConfig(), a.log)

	item, err := fetcher.ScrapeURL(c.Context, rawURL)
	if err != nil {
		fmt.Fprintf(a.out, "❌ Failed to scrape: %s\n", rawURL)

		return fmt.Errorf("scrape url: %w", err)
	}

	printScrapedItem(a.out, item)

	return nil
}

func (a *app) getSummaryCommand(c *cli.Context) error {
	rec, closeDB, err := a.recordFromArgs(c)
	if err != nil {
		return err
	}
	defer closeDB()

	printSummary(a.out, rec)

	return nil
}

func (a *app) listArticlesCommand(c *cli.Context) error {
	db, closeDB, err := a.openDatabase(c.Context)
	if err != nil {
		return err
	}
	defer closeDB()

	records, err := db.List(c.Context, 0)
	if err != nil {
		return fmt.Errorf("list articles: %w", err)
	}

	printListing(a.out, records)

	return nil
}

func (a *app) initDBCommand(c *cli.Context) error {
	_, closeDB, err := a.openDatabase(c.Context)
	if err != nil {
		return err
	}
	closeDB()

	fmt.Fprintf(a.out, "Database initialized successfully: %s\n", a.cfg.DBPath)

	return nil
}

func (a *app) viewDBCommand(c *cli.Context) error {
	ctx := c.Context

	db, closeDB, err := a.openDatabase(ctx)
	if err != nil {
		return err
	}
	defer closeDB()

	records, err := db.List(ctx, max(c.Int("limit"), 0))
	if err != nil {
		return fmt.Errorf("list articles: %w", err)
	}

	full := c.Bool("full")
	if full {
		for i, rec := range records {
			stored, err := db.ByID(ctx, rec.ID)
			if err != nil {
				return fmt.Errorf("get article (id = %d): %w", rec.ID, err)
			}
			if stored != nil {
				records[i] = *stored
			}
		}
	}

	printDatabaseView(a.out, records, full)

	return nil
}

func (a *app) showCommand(c *cli.Context) error {
	rec, closeDB, err := a.recordFromArgs(c)
	if err != nil {
		return err
	}
	defer closeDB()

	printArticle(a.out, rec)

	return nil
}

func (a *app) searchCommand(c *cli.Context) error {
	query := strings.TrimSpace(c.Args().First())
	if query == "" {
		return fmt.Errorf("%w: query", errMissingArgument)
	}
	field := c.String("field")

	db, closeDB, err := a.openDatabase(c.Context)
	if err != nil {
		return err
	}
	defer closeDB()

	records, err := db.Search(c.Context, query, field)
	if err != nil {
		return fmt.Errorf("search articles: %w", err)
	}

	printSearchResults(a.out, query, field, records)

	return nil
}

func (a *app) analyzeCommand(c *cli.Context) error {
	ctx := c.Context

	db, closeDB, err := a.openDatabase(ctx)
	if err != nil {
		return err
	}
	defer closeDB()

	info, err := db.TableInfo(ctx)
	if err != nil {
		return fmt.Errorf("get table info: %w", err)
	}

	analysis, err := db.Analysis(ctx)
	if err != nil {
		return fmt.Errorf("get analysis: %w", err)
	}

	return export.WriteReport(a.out, db.Path(), info, analysis, a.now())
}

func (a *app) exportCommand(c *cli.Context) (err error) {
	ctx := c.Context

	db, closeDB, err := a.openDatabase(ctx)
	if err != nil {
		return err
	}
	defer closeDB()

	now := a.now()

	doc, err := export.Build(ctx, db, now)
	if err != nil {
		return fmt.Errorf("build export: %w", err)
	}

	filename := strings.TrimSpace(c.String("output"))
	if filename == "" {
		filename = export.DefaultFilename(now)
	}

	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("create export file: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("close export file: %w", closeErr))
		}
	}()

	if err = export.WriteJSON(f, doc); err != nil {
		return err
	}

	fmt.Fprintf(a.out, "Database exported to: %s\n", filename)
	a.log.InfoContext(ctx, "Database is exported",
		"filename", filename,
		"articles", len(doc.Articles))

	return nil
}

func (a *app) serveCommand(c *cli.Context) error {
	ctx := c.Context
	start := a.now()

	jobs, err := a.cfg.Jobs()
	if err != nil {
		return err
	}

	sum, err := a.newSummarizer(ctx)
	if err != nil {
		return err
	}

	db, closeDB, err := a.openDatabase(ctx)
	if err != nil {
		return err
	}
	defer closeDB()

	p, err := a.newPipeline(sum, db)
	if err != nil {
		return err
	}
	defer p.Release()

	n, err := a.newNotifier(ctx)
	if err != nil {
		return err
	}

	sched, err := scheduler.New(ctx, a.cfg.SchedulerConfig(), jobs, p, db, n, a.log)
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}

	if c.Bool("run-now") {
		if err = sched.RunOnce(ctx); err != nil {
			a.log.ErrorContext(ctx, "Failed to run jobs on start",
				"error", err)
		}
	}

	if err = sched.Start(); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer sched.Stop()

	<-ctx.Done()
	a.log.InfoContext(ctx, "Shutdown signal is received",
		"uptimeSeconds", time.Since(start).Seconds())

	return nil
}

func (a *app) openDatabase(ctx context.Context) (*database.Database, func(), error) {
	db, err := database.New(ctx, a.cfg.DBPath, a.log)
	if err != nil {
		return nil, nil, fmt.Errorf("open database (dbPath = %s): %w", a.cfg.DBPath, err)
	}

	closeDB := func() {
		if err := db.Close(); err != nil {
			a.log.ErrorContext(ctx, "Failed to close db",
				"error", err,
				"dbPath", db.Path())
		}
	}

	return db, closeDB, nil
}

func (a *app) recordFromArgs(c *cli.Context) (*domain.Record, func(), error) {
	rawID := strings.TrimSpace(c.Args().First())
	if rawID == "" {
		return nil, nil, fmt.Errorf("%w: id", errMissingArgument)
	}

	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return nil, nil, fmt.Errorf("parse id %q: %w", rawID, err)
	}

	db, closeDB, err := a.openDatabase(c.Context)
	if err != nil {
		return nil, nil, err
	}

	rec, err := db.ByID(c.Context, id)
	if err != nil {
		closeDB()

		return nil, nil, fmt.Errorf("get article: %w", err)
	}
	if rec == nil {
		closeDB()

		return nil, nil, fmt.Errorf("%w (id = %d)", errArticleNotFound, id)
	}

	return rec, closeDB, nil
}

// newSummarizer fails when OPENAI_API_KEY is not set.
func (a *app) newSummarizer(ctx context.Context) (*summarizer.Summarizer, error) {
	creds, err := config.LoadCredentials()
	if err != nil {
		a.log.ErrorContext(ctx, "OPENAI_API_KEY is required",
			"error", err,
			"envVar", "OPENAI_API_KEY")

		return nil, err
	}

	client, err := summarizer.NewOpenAIClient(a.cfg.OpenAIConfig(creds))
	if err != nil {
		return nil, fmt.Errorf("create OpenAI client: %w", err)
	}

	limiter := ratelimiter.New(a.cfg.LimiterConfig(), a.log)
	norm := normalizer.New(a.cfg.NormalizerConfig())

	a.log.InfoContext(ctx, "OpenAI summarizer is initialized",
		"model", a.cfg.Summarizer.Model,
		"maxConcurrent", limiter.MaxConcurrent(),
		"maxRetries", a.cfg.Summarizer.MaxRetries)

	return summarizer.New(client, limiter, norm, a.cfg.SummarizerPolicy(), a.log), nil
}

func (a *app) newPipeline(sum pipeline.Summarizer, store pipeline.Store) (*pipeline.Pipeline, error) {
	fetcher := source.NewFetcher(a.cfg.SourceConfig(), a.log)

	p, err := pipeline.New(fetcher, sum, store,
		pipeline.WithConcurrency(a.cfg.Pipeline.Concurrency),
		pipeline.WithLogger(a.log),
		pipeline.WithNormalizer(normalizer.New(a.cfg.NormalizerConfig())),
	)
	if err != nil {
		return nil, fmt.Errorf("create pipeline: %w", err)
	}

	return p, nil
}

// newNotifier returns nil when no Telegram token is configured.
func (a *app) newNotifier(ctx context.Context) (scheduler.Notifier, error) {
	if !a.cfg.Telegram.Enabled() {
		a.log.WarnContext(ctx, "TELEGRAM_TOKEN is missing so batch reports are only logged",
			"envVar", "TELEGRAM_TOKEN")

		return nil, nil //nolint:nilnil // Notifications are optional.
	}

	b, err := notifier.NewTelegram(a.cfg.Telegram.Token)
	if err != nil {
		return nil, fmt.Errorf("create telegram client: %w", err)
	}

	limiter := ratelimiter.New(a.cfg.NotifyLimiterConfig(), a.log)

	a.log.InfoContext(ctx, "Telegram notifier is initialized",
		"chatID", a.cfg.Telegram.ChatID)

	return notifier.New(b, a.cfg.Telegram.ChatID, limiter, a.log), nil
}
