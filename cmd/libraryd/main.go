// libraryd is the long-running service that scans an audiobook/ebook
// library, walks every book through the five verification layers, and
// renames/moves folders once a layer resolves with enough confidence,
// grounded on the teacher's cmd/audiobookshelf-hardcover-sync/main.go
// signal-handling shape and cmd/edition/main.go's urfave/cli surface.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"

	"github.com/drallgood/libraryd/internal/audio"
	"github.com/drallgood/libraryd/internal/cache"
	"github.com/drallgood/libraryd/internal/config"
	"github.com/drallgood/libraryd/internal/database"
	"github.com/drallgood/libraryd/internal/layers"
	"github.com/drallgood/libraryd/internal/logger"
	"github.com/drallgood/libraryd/internal/providers"
	"github.com/drallgood/libraryd/internal/providers/audnex"
	"github.com/drallgood/libraryd/internal/providers/gemini"
	"github.com/drallgood/libraryd/internal/providers/googlebooks"
	"github.com/drallgood/libraryd/internal/providers/hardcover"
	"github.com/drallgood/libraryd/internal/providers/openlibrary"
	"github.com/drallgood/libraryd/internal/providers/openrouter"
	"github.com/drallgood/libraryd/internal/providers/primary"
	"github.com/drallgood/libraryd/internal/ratelimit"
	"github.com/drallgood/libraryd/internal/scan"
	"github.com/drallgood/libraryd/internal/worker"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	app := &cli.App{
		Name:    "libraryd",
		Usage:   "Identify and rename a personal audiobook/ebook library",
		Version: fmt.Sprintf("%s (%s) %s", version, commit, date),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Load configuration from `FILE`",
				Value:   "config.yaml",
			},
			&cli.BoolFlag{
				Name:  "once",
				Usage: "Run a single scan-and-process pass, then exit, instead of looping forever",
			},
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "Identify books but never move/rename folders on disk",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Override the configured log level (debug, info, warn, error)",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if lvl := c.String("log-level"); lvl != "" {
		cfg.Logging.Level = lvl
	}
	if c.Bool("dry-run") {
		cfg.AutoFix = false
	}

	logger.Setup(logger.Config{
		Level:      cfg.Logging.Level,
		Format:     logger.ParseLogFormat(cfg.Logging.Format),
		Output:     os.Stdout,
		TimeFormat: time.RFC3339,
	})
	log := logger.Get()
	log.Info().Str("version", version).Strs("library_paths", cfg.LibraryPaths).Msg("starting libraryd")

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	dbCfg := &database.DatabaseConfig{
		Type:     database.DatabaseType(cfg.Database.Type),
		Path:     cfg.Database.Path,
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Pass,
		Name:     cfg.Database.Name,
	}
	db, err := database.NewDatabase(dbCfg, log)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()
	repo := database.NewRepository(db.GetDB())

	registry := ratelimit.NewRegistry()
	engine, primaryClient := buildEngine(cfg, repo, registry, log)

	reg := prometheus.NewRegistry()
	metrics := worker.NewMetrics(reg)

	w := &worker.Worker{
		Repo:       repo,
		Engine:     engine,
		SLRequeue:  &layers.SLRequeueVerifier{Identifier: &primaryRequery{client: primaryClient}},
		Scanner:    &scan.Scanner{Repo: repo},
		WatchScan:  &scan.Scanner{Repo: repo},
		LoadConfig: func() *config.Config { return cfg },
		Status:     &worker.Status{},
		Metrics:    metrics,
		BatchSize:  cfg.BatchSize,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if c.Bool("once") {
		if err := w.Scanner.ScanLibrary(ctx, cfg); err != nil {
			log.Error().Err(err).Msg("library scan failed")
		}
		w.ProcessQueue(ctx)
		log.Info().Msg("one-shot pass complete")
		return nil
	}

	go w.Run(ctx)
	go w.RunWatchFolder(ctx)

	<-ctx.Done()
	log.Info().Msg("shutdown signal received, draining in-flight batch")
	return nil
}

// buildEngine wires every provider client behind the rate limiter/circuit
// breaker registry and assembles the five verification layers, enabling
// each one according to the matching config flag.
func buildEngine(cfg *config.Config, repo *database.Repository, registry *ratelimit.Registry, log *logger.Logger) (*layers.Engine, *primary.Client) {
	primaryClient := primary.NewClient(cfg.Providers.PrimaryBaseURL, "", cfg.Providers.PrimaryHMACSalt, registry.Guard(ratelimit.Primary))
	audnexClient := audnex.NewClient(registry.Guard(ratelimit.Audnexus))
	hardcoverClient := hardcover.NewClient(cfg.Providers.HardcoverToken, registry.Guard(ratelimit.Hardcover))
	googleClient := googlebooks.NewClient(cfg.Providers.GoogleBooksKey, registry.Guard(ratelimit.GoogleBooks))
	openLibraryClient := openlibrary.NewClient(registry.Guard(ratelimit.OpenLibrary))
	geminiClient := gemini.NewClient(cfg.Providers.GeminiKey, registry.Guard(ratelimit.Gemini))
	openrouterClient := openrouter.NewClient(cfg.Providers.OpenRouterKey, "", registry.Guard(ratelimit.OpenRouter))

	extractor := audio.NewExtractor()

	textAI := textAIChain(cfg, geminiClient, openrouterClient)

	audioIDLayer := &layers.AudioIDLayer{
		EnabledFlag: cfg.EnableAudioAnalysis,
		Clips:       extractor,
		Identifier:  primaryClient,
		TextAI:      textAI,
	}

	apiLayer := &layers.APILayer{
		EnabledFlag: cfg.EnableAPILookups,
		Providers: []providers.MetadataProvider{
			primaryClient, audnexClient, hardcoverClient, googleClient, openLibraryClient,
		},
		Cache:               cache.NewCandidateCacheString[[]providers.Candidate](log),
		ConfidenceThreshold: cfg.ProfileConfidenceThreshold,
		SLTrustMode:         layers.SLTrustMode(cfg.SLTrustMode),
	}

	aiVerifyLayer := &layers.AIVerifyLayer{
		EnabledFlag:          cfg.EnableAIVerification,
		TextAI:               textAI,
		ProtectAuthorChanges: cfg.ProtectAuthorChanges,
		TrustTheProcess:      cfg.TrustTheProcess,
	}

	audioCreditsLayer := &layers.AudioCreditsLayer{
		EnabledFlag: cfg.EnableAudioAnalysis,
		Clips:       extractor,
		AudioAI:     geminiClient,
	}

	contentLayer := &layers.ContentLayer{
		EnabledFlag: cfg.EnableContentAnalysis,
		Clips:       extractor,
		AudioAI:     geminiClient,
	}

	return layers.NewEngine(repo, audioIDLayer, apiLayer, aiVerifyLayer, audioCreditsLayer, contentLayer), primaryClient
}

// primaryRequery adapts the primary metadata client's text Search to the
// SL requeue verifier's Requery contract: re-run the fuzzy search by folder
// hint and report the top candidate, used to check whether the primary
// service's nightly database merge has since picked up a book it
// previously flagged as requeue_suggested.
type primaryRequery struct {
	client *primary.Client
}

func (p *primaryRequery) Requery(ctx context.Context, folderHint string) (*database.Book, bool, error) {
	candidates, err := p.client.Search(ctx, providers.Query{Title: folderHint})
	if err != nil {
		return nil, false, err
	}
	if len(candidates) == 0 {
		return nil, false, nil
	}
	top := candidates[0]
	return &database.Book{Author: top.Author, Title: top.Title}, true, nil
}

// textAIChain orders the configured gemini/openrouter text AI backends per
// cfg.TextProviderChain, falling back to gemini-then-openrouter when the
// config names something else (spec.md §9's small fallback-chain pattern).
func textAIChain(cfg *config.Config, geminiClient *gemini.Client, openrouterClient *openrouter.Client) providers.TextAIProvider {
	byName := map[string]providers.TextAIProvider{
		geminiClient.Name():     geminiClient,
		openrouterClient.Name(): openrouterClient,
	}
	chain := orderedChain(cfg.TextProviderChain, byName, []string{geminiClient.Name(), openrouterClient.Name()})
	return providers.TextAIChain(chain)
}

func orderedChain(configured []string, byName map[string]providers.TextAIProvider, fallback []string) []providers.TextAIProvider {
	names := configured
	if len(names) == 0 {
		names = fallback
	}
	chain := make([]providers.TextAIProvider, 0, len(names))
	seen := map[string]bool{}
	for _, name := range names {
		if p, ok := byName[name]; ok && !seen[name] {
			chain = append(chain, p)
			seen[name] = true
		}
	}
	if len(chain) == 0 {
		for _, name := range fallback {
			chain = append(chain, byName[name])
		}
	}
	return chain
}
