package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := newApp(os.Stdout, os.Stderr)

	if err := a.cli().RunContext(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)

		stop()
		os.Exit(1)
	}
}

func (a *app) cli() *cli.App {
	return &cli.App{
		Name:      "newsdigest",
		Usage:     "Scrape articles, summarize them and keep the results in SQLite",
		Writer:    a.out,
		ErrWriter: a.errOut,
		// main reports errors and exits
		ExitErrHandler: func(*cli.Context, error) {},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to an optional YAML config file",
				EnvVars: []string{"NEWSDIGEST_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "db-path",
				Usage:   "Path to the SQLite database file",
				EnvVars: []string{"DB_PATH"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				EnvVars: []string{"LOG_LEVEL"},
			},
		},
		Before: a.setup,
		Commands: []*cli.Command{
			{
				Name:   "scrape",
				Usage:  "Scrape and summarize articles from a source",
				Action: a.scrapeCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "source",
						Aliases: []string{"s"},
						Usage:   "quotes, hackernews, reddit:<sub>, rss:<url>, or comma-separated URLs",
						Value:   "quotes",
					},
					&cli.IntFlag{
						Name:    "limit",
						Aliases: []string{"n"},
						Usage:   "Number of articles to scrape",
						Value:   5,
					},
				},
			},
			{
				Name:      "test-scrape",
				Usage:     "Scrape a single URL without summarizing or storing it",
				ArgsUsage: "<url>",
				Action:    a.testScrapeCommand,
			},
			{
				Name:      "get-summary",
				Usage:     "Print the summary of a stored article",
				ArgsUsage: "<id>",
				Action:    a.getSummaryCommand,
			},
			{
				Name:   "list-articles",
				Usage:  "List stored articles",
				Action: a.listArticlesCommand,
			},
			{
				Name:   "init-db",
				Usage:  "Create the database and apply migrations",
				Action: a.initDBCommand,
			},
			{
				Name:   "view-db",
				Usage:  "View stored articles with their summaries",
				Action: a.viewDBCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "full",
						Usage: "Show full content and summary",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Number of articles to show",
						Value: 10,
					},
				},
			},
			{
				Name:      "show",
				Usage:     "Show one stored article in full",
				ArgsUsage: "<id>",
				Action:    a.showCommand,
			},
			{
				Name:      "search",
				Usage:     "Search stored articles",
				ArgsUsage: "<query>",
				Action:    a.searchCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "field",
						Usage: "Field to search in (all, title, author, content, summary)",
						Value: "all",
					},
				},
			},
			{
				Name:   "analyze",
				Usage:  "Print an analysis report of the database",
				Action: a.analyzeCommand,
			},
			{
				Name:   "export",
				Usage:  "Export the database with its analysis to JSON",
				Action: a.exportCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output file (default: articles_export_<timestamp>.json)",
					},
				},
			},
			{
				Name:   "serve",
				Usage:  "Run scheduled batches and post reports to Telegram",
				Action: a.serveCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "run-now",
						Usage: "Run every scheduled job once on start",
					},
				},
			},
		},
	}
}
