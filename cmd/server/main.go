package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/woozymasta/catchment/internal/cache"
	"github.com/woozymasta/catchment/internal/config"
	"github.com/woozymasta/catchment/internal/logger"
	"github.com/woozymasta/catchment/internal/server"
	"github.com/woozymasta/catchment/internal/traveltime"

	"github.com/jessevdk/go-flags"
	"github.com/rs/zerolog/log"
)

type Options struct {
	Logger logger.Logger `group:"Logger options"`

	ConfigFile string `short:"c" long:"config" env:"CONFIG_FILE"        description:"Path to configuration file" default:"config.yaml"`
	Addr       string `short:"a" long:"addr"   env:"LISTEN_ADDRESS"     description:"Address to listen on"       default:"0.0.0.0"`
	Port       int    `short:"p" long:"port"   env:"LISTEN_PORT"        description:"Port to listen on"          default:"8080"`
	AppID      string `long:"app-id"           env:"TRAVELTIME_APP_ID"  description:"Provider application id"`
	APIKey     string `long:"api-key"          env:"TRAVELTIME_API_KEY" description:"Provider API key"`
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

	// Setup Logging
	opts.Logger.Setup()

	// Load Config
	cfg, err := config.Load(opts.ConfigFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	creds, err := cfg.ResolveCredentials(opts.AppID, opts.APIKey)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load credentials")
	}

	store, err := cache.Open(cfg.Cache)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open cache")
	}
	switch st := store.(type) {
	case *cache.ValkeyStore:
		defer st.Close()
	case *cache.FileStore:
		log.Info().Str("dir", st.Dir()).Msg("Serving cached catchments from disk")
	}

	client := traveltime.New(cfg.ClientOptions(creds, store))
	srvCtx := server.NewServerContext(cfg, client, store)

	listenAddr := fmt.Sprintf("%s:%d", opts.Addr, opts.Port)
	log.Info().
		Str("addr", listenAddr).
		Int("catchments", len(srvCtx.Names)).
		Str("cache", cfg.Cache.Backend).
		Msg("Web server started")

	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           srvCtx.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Server failed")
		}
	case <-ctx.Done():
		log.Info().Msg("Shutting down web server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Graceful shutdown failed")
		}
	}
}
