package main

import (
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli/v2"

	"briefpipe/internal/analyze"
	"briefpipe/internal/embeddings"
	"briefpipe/internal/extract"
	"briefpipe/internal/ingest"
	"briefpipe/internal/sources"
	"briefpipe/models"
	"briefpipe/pkg/embedding"
	"briefpipe/pkg/feed"
	"briefpipe/pkg/fetcher"
	"briefpipe/pkg/llm"
	"briefpipe/pkg/store"
)

func main() {
	app := &cli.App{
		Name:  "briefpipe",
		Usage: "ingest articles from feeds, extract and analyze them in stages",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "path to config YAML (default: $BRIEFPIPE_CONFIG)"},
			&cli.StringFlag{Name: "db", Usage: "override database path"},
			&cli.BoolFlag{Name: "quiet", Usage: "only log errors"},
		},
		Commands: []*cli.Command{
			{
				Name:  "ingest",
				Usage: "read active feeds and store new articles",
				Flags: append(stageFlags(),
					&cli.StringFlag{Name: "source", Usage: "only sources whose name contains this string"},
					&cli.IntFlag{Name: "days-back", Value: 30, Usage: "admit only entries published in the last N days"},
					&cli.BoolFlag{Name: "full-history", Usage: "ignore the date window"},
					&cli.BoolFlag{Name: "no-fetch", Usage: "store feed content without fetching article pages"},
				),
				Action: ingestAction,
			},
			{
				Name:  "extract",
				Usage: "clean and segment stored articles",
				Flags: append(stageFlags(), reprocessFlag(),
					&cli.StringFlag{Name: "id", Usage: "process exactly this document ID"},
				),
				Action: extractAction,
			},
			{
				Name:  "analyze",
				Usage: "run structured analysis on extracted articles",
				Flags: append(stageFlags(), reprocessFlag(),
					&cli.StringFlag{Name: "id", Usage: "process exactly this extraction ID"},
				),
				Action: analyzeAction,
			},
			{
				Name:  "embed",
				Usage: "compute embeddings for extracted articles",
				Flags: append(stageFlags(),
					&cli.IntFlag{Name: "batch-size", Usage: "extractions per embedding request (default from config)"},
				),
				Action: embedAction,
			},
			{
				Name:  "run",
				Usage: "run ingest, extract, embed, and analyze in order",
				Flags: append(stageFlags(),
					&cli.StringFlag{Name: "source", Usage: "only sources whose name contains this string"},
					&cli.IntFlag{Name: "days-back", Value: 30, Usage: "admit only entries published in the last N days"},
					&cli.BoolFlag{Name: "full-history", Usage: "ignore the date window"},
					&cli.BoolFlag{Name: "no-fetch", Usage: "store feed content without fetching article pages"},
				),
				Action: runAllAction,
			},
			{
				Name:  "sources",
				Usage: "manage feed subscriptions",
				Subcommands: []*cli.Command{
					{
						Name:  "add",
						Usage: "register a feed",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "name", Required: true},
							&cli.StringFlag{Name: "url", Required: true, Usage: "feed URL"},
							&cli.StringFlag{Name: "cadence", Usage: "free-form note on publish cadence"},
						},
						Action: sourcesAddAction,
					},
					{
						Name:  "list",
						Usage: "list registered feeds",
						Flags: []cli.Flag{
							&cli.BoolFlag{Name: "active", Usage: "only active sources"},
						},
						Action: sourcesListAction,
					},
					{
						Name:      "enable",
						Usage:     "enable a source by ID",
						ArgsUsage: "<source-id>",
						Action:    func(c *cli.Context) error { return sourcesToggleAction(c, true) },
					},
					{
						Name:      "disable",
						Usage:     "disable a source by ID",
						ArgsUsage: "<source-id>",
						Action:    func(c *cli.Context) error { return sourcesToggleAction(c, false) },
					},
					{
						Name:      "import",
						Usage:     "register feeds from a YAML file",
						ArgsUsage: "<sources.yaml>",
						Action:    sourcesImportAction,
					},
				},
			},
			{
				Name:   "status",
				Usage:  "show stored record counts and per-stage backlog",
				Action: statusAction,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func stageFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{Name: "limit", Usage: "cap the number of records processed"},
		&cli.BoolFlag{Name: "dry-run", Usage: "report what would be done without writing"},
		&cli.IntFlag{Name: "workers", Usage: "worker count (default from config)"},
	}
}

func reprocessFlag() cli.Flag {
	return &cli.BoolFlag{Name: "reprocess", Usage: "redo records that were already processed, updating in place"}
}

// appEnv is everything a stage action needs, built once per command.
type appEnv struct {
	cfg    *models.Config
	store  *store.Store
	logger *slog.Logger
}

func setup(c *cli.Context) (*appEnv, error) {
	logLevel := slog.LevelInfo
	if c.Bool("quiet") {
		logLevel = slog.LevelError
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	cfg, err := models.LoadConfig(c.String("config"))
	if err != nil {
		// Configuration problems are fatal before any stage runs.
		logger.Error("failed to load configuration", "error", err)
		os.Exit(2)
	}
	if c.IsSet("db") {
		cfg.Database.Path = c.String("db")
	}

	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		logger.Error("failed to open database", "path", cfg.Database.Path, "error", err)
		os.Exit(2)
	}
	return &appEnv{cfg: cfg, store: st, logger: logger}, nil
}

func (e *appEnv) workers(c *cli.Context) int {
	if c.IsSet("workers") {
		return c.Int("workers")
	}
	return e.cfg.Workers
}

func (e *appEnv) newFetcher() *fetcher.Fetcher {
	return fetcher.New(fetcher.Config{
		Timeout:        e.cfg.Fetch.Timeout.Std(),
		MaxRetries:     e.cfg.Fetch.MaxRetries,
		RateLimitDelay: e.cfg.Fetch.RateLimitDelay.Std(),
		UserAgent:      e.cfg.Fetch.UserAgent,
	})
}

func ingestAction(c *cli.Context) error {
	env, err := setup(c)
	if err != nil {
		return err
	}
	defer env.store.Close()

	stage := ingest.New(env.store, feed.NewReader(env.cfg.Fetch.Timeout.Std()), env.newFetcher(), env.logger)
	report, err := stage.Run(c.Context, ingest.Options{
		Source:      c.String("source"),
		DaysBack:    c.Int("days-back"),
		FullHistory: c.Bool("full-history"),
		FetchFull:   !c.Bool("no-fetch") && env.cfg.Ingest.FetchFull,
		Limit:       c.Int("limit"),
		DryRun:      c.Bool("dry-run"),
		Workers:     env.workers(c),
	})
	if err != nil {
		return err
	}
	env.logger.Info("Ingest finished", report.LogAttrs()...)
	report.LogFailures(env.logger)
	return nil
}

func extractAction(c *cli.Context) error {
	env, err := setup(c)
	if err != nil {
		return err
	}
	defer env.store.Close()

	stage := extract.New(env.store, env.logger)
	report, err := stage.Run(c.Context, extract.Options{
		RecordID:  c.String("id"),
		Reprocess: c.Bool("reprocess"),
		Limit:     c.Int("limit"),
		DryRun:    c.Bool("dry-run"),
		Workers:   env.workers(c),
	})
	if err != nil {
		return err
	}
	env.logger.Info("Extract finished", report.LogAttrs()...)
	report.LogFailures(env.logger)
	return nil
}

func analyzeAction(c *cli.Context) error {
	env, err := setup(c)
	if err != nil {
		return err
	}
	defer env.store.Close()

	client := llm.New(llm.Config{
		BaseURL:       env.cfg.Analysis.BaseURL,
		APIKey:        env.cfg.Analysis.APIKey,
		Model:         env.cfg.Analysis.Model,
		MaxTokens:     env.cfg.Analysis.MaxTokens,
		MaxInputChars: env.cfg.Analysis.MaxChars,
	})
	stage := analyze.New(env.store, client, env.logger)
	report, err := stage.Run(c.Context, analyze.Options{
		RecordID:  c.String("id"),
		Reprocess: c.Bool("reprocess"),
		Limit:     c.Int("limit"),
		DryRun:    c.Bool("dry-run"),
		Workers:   env.workers(c),
	})
	if err != nil {
		return err
	}
	env.logger.Info("Analyze finished", report.LogAttrs()...)
	report.LogFailures(env.logger)
	return nil
}

func embedAction(c *cli.Context) error {
	env, err := setup(c)
	if err != nil {
		return err
	}
	defer env.store.Close()

	client := embedding.New(embedding.Config{
		BaseURL:       env.cfg.Embedding.BaseURL,
		APIKey:        env.cfg.Embedding.APIKey,
		Model:         env.cfg.Embedding.Model,
		MaxInputChars: env.cfg.Embedding.MaxChars,
	})
	stage := embeddings.New(env.store, client, env.logger)
	batchSize := env.cfg.Embedding.BatchSize
	if c.IsSet("batch-size") {
		batchSize = c.Int("batch-size")
	}
	report, err := stage.Run(c.Context, embeddings.Options{
		BatchSize: batchSize,
		Limit:     c.Int("limit"),
		DryRun:    c.Bool("dry-run"),
	})
	if err != nil {
		return err
	}
	env.logger.Info("Embed finished",
		"attempted", report.Attempted, "succeeded", report.Succeeded, "failed", report.Failed)
	return nil
}

// runAllAction chains the stages. A stage that errors outright stops the
// chain; per-record failures within a stage do not.
func runAllAction(c *cli.Context) error {
	if err := ingestAction(c); err != nil {
		return fmt.Errorf("ingest stage: %w", err)
	}
	if err := extractAction(c); err != nil {
		return fmt.Errorf("extract stage: %w", err)
	}
	if err := embedAction(c); err != nil {
		return fmt.Errorf("embed stage: %w", err)
	}
	if err := analyzeAction(c); err != nil {
		return fmt.Errorf("analyze stage: %w", err)
	}
	return nil
}

func sourcesAddAction(c *cli.Context) error {
	env, err := setup(c)
	if err != nil {
		return err
	}
	defer env.store.Close()

	mgr := sources.New(env.store, env.logger)
	src, err := mgr.Add(c.String("name"), c.String("url"), c.String("cadence"))
	if err != nil {
		return err
	}
	fmt.Printf("Added source %s (%s)\n", src.Name, src.ID)
	return nil
}

func sourcesListAction(c *cli.Context) error {
	env, err := setup(c)
	if err != nil {
		return err
	}
	defer env.store.Close()

	mgr := sources.New(env.store, env.logger)
	list, err := mgr.List(c.Bool("active"))
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tFEED URL\tACTIVE")
	for _, src := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\t%t\n", src.ID, src.Name, src.FeedURL, src.Active)
	}
	return w.Flush()
}

func sourcesToggleAction(c *cli.Context, active bool) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected exactly one source ID argument")
	}
	env, err := setup(c)
	if err != nil {
		return err
	}
	defer env.store.Close()

	mgr := sources.New(env.store, env.logger)
	return mgr.SetActive(c.Args().First(), active)
}

func sourcesImportAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected exactly one YAML file argument")
	}
	env, err := setup(c)
	if err != nil {
		return err
	}
	defer env.store.Close()

	mgr := sources.New(env.store, env.logger)
	result, err := mgr.Import(c.Args().First())
	if err != nil {
		return err
	}
	fmt.Printf("Imported sources: %d added, %d skipped, %d failed\n",
		result.Added, result.Skipped, result.Failed)
	return nil
}

func statusAction(c *cli.Context) error {
	env, err := setup(c)
	if err != nil {
		return err
	}
	defer env.store.Close()

	b, err := env.store.Counts()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "sources\t%d (%d active)\n", b.Sources, b.ActiveSources)
	fmt.Fprintf(w, "documents\t%d\n", b.Documents)
	fmt.Fprintf(w, "extractions\t%d\n", b.Extractions)
	fmt.Fprintf(w, "summaries\t%d\n", b.Summaries)
	fmt.Fprintf(w, "pending extract\t%d\n", b.PendingExtract)
	fmt.Fprintf(w, "pending embed\t%d\n", b.PendingEmbed)
	fmt.Fprintf(w, "pending analyze\t%d\n", b.PendingAnalyze)
	fmt.Fprintf(w, "total cost\t$%.4f (%d input tokens)\n", b.TotalCostUSD, b.TotalInputTokens)
	return w.Flush()
}
