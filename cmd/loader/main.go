package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/woozymasta/catchment/internal/cache"
	"github.com/woozymasta/catchment/internal/config"
	"github.com/woozymasta/catchment/internal/logger"
	"github.com/woozymasta/catchment/internal/processor"
	"github.com/woozymasta/catchment/internal/traveltime"

	"github.com/jessevdk/go-flags"
	"github.com/rs/zerolog/log"
)

type Options struct {
	Logger logger.Logger `group:"Logger options"`

	ConfigFile  string   `short:"c" long:"config"      env:"CONFIG_FILE"        description:"Path to configuration file" default:"config.yaml"`
	Limit       []string `short:"l" long:"limit"       env:"LIMIT_NAMES" env-delim:"," description:"Limit processing to specific catchment names"`
	Concurrency int      `short:"p" long:"concurrency" env:"CONCURRENCY"        description:"Concurrent provider requests (overrides config)"`
	CacheDir    string   `short:"o" long:"output"      env:"OUTPUT_DIR"         description:"Cache directory for the file backend (overrides config)"`
	Summary     string   `short:"s" long:"summary"     env:"SUMMARY_FILE"       description:"Write summaries as JSON to this file"`
	AppID       string   `long:"app-id"                env:"TRAVELTIME_APP_ID"  description:"Provider application id"`
	APIKey      string   `long:"api-key"               env:"TRAVELTIME_API_KEY" description:"Provider API key"`
}

func main() {
	var opts Options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	opts.Logger.Setup()

	cfg, err := config.Load(opts.ConfigFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if opts.Concurrency > 0 {
		cfg.Concurrency = opts.Concurrency
	}
	if opts.CacheDir != "" {
		cfg.Cache.Dir = opts.CacheDir
	}

	creds, err := cfg.ResolveCredentials(opts.AppID, opts.APIKey)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load credentials")
	}
	if creds.AppID == "" || creds.APIKey == "" {
		log.Warn().Msg("Provider credentials are not set, only cached catchments will resolve")
	}

	store, err := cache.Open(cfg.Cache)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open cache")
	}
	closeStore := func() {}
	switch st := store.(type) {
	case *cache.ValkeyStore:
		closeStore = st.Close
	case *cache.FileStore:
		log.Debug().Str("dir", st.Dir()).Msg("Using file cache")
	}

	client := traveltime.New(cfg.ClientOptions(creds, store))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().
		Int("catchments", len(cfg.Catchments)).
		Int("batches", len(cfg.Batches)).
		Int("concurrency", cfg.Concurrency).
		Str("cache", cfg.Cache.Backend).
		Msg("Starting loader")

	summaries := processor.ProcessCatchments(ctx, client, cfg, opts.Limit)

	failed := 0
	for _, s := range summaries {
		if s.Err != nil {
			failed++
		}
	}

	if opts.Summary != "" {
		if err := processor.SaveSummaries(opts.Summary, summaries); err != nil {
			log.Error().Err(err).Str("path", opts.Summary).Msg("Failed to write summaries")
			failed++
		}
	}

	if failed > 0 {
		log.Error().
			Int("processed", len(summaries)).
			Int("failed", failed).
			Msg("Loader finished with errors")
		stop()
		closeStore()
		os.Exit(1)
	}

	closeStore()
	log.Info().Int("processed", len(summaries)).Msg("Loader finished successfully")
}
