// Variant Sync - keeps headless storefront product pages in sync with
// shopper option picks, the way the theme's browser glue would.
// Designed for Cloud Run deployment; sessions live in memory.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"variant-sync/internal/config"
	"variant-sync/internal/handler"
	"variant-sync/internal/middleware"
	"variant-sync/internal/session"
	"variant-sync/internal/storefront"
	"variant-sync/internal/transport"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger := initLogger()

	ctx := context.Background()
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger.Info("configuration loaded",
		slog.String("store_id", cfg.StoreID),
		slog.String("environment", cfg.Environment),
		slog.String("store_domain", cfg.Store.StoreDomain),
		slog.Bool("chrome_tls", cfg.Fetch.ChromeTLS),
	)

	fetcher, err := newFetcher(cfg)
	if err != nil {
		return fmt.Errorf("creating storefront fetcher: %w", err)
	}

	products, err := storefront.NewProductSource(fetcher, cfg.Fetch.ProductCacheTTL.Std(), cfg.Fetch.ProductCacheSize, logger)
	if err != nil {
		return fmt.Errorf("creating product source: %w", err)
	}

	store := session.NewStore(session.Options{
		TTL:      cfg.Sessions.TTL.Std(),
		Capacity: cfg.Sessions.Capacity,
		Fetcher:  fetcher,
		Products: products,
		Defaults: cfg.ControllerDefaults(),
		Logger:   logger,
	})
	defer store.Purge()

	h := handler.New(store, logger)

	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	// Recovery must be outermost to catch panics from logging middleware
	httpHandler := middleware.Chain(
		middleware.Recovery(logger),
		middleware.RequestID(),
		middleware.Logging(logger),
	)(mux)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      httpHandler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	serverErr := make(chan error, 1)

	go func() {
		logger.Info("server starting",
			slog.String("port", cfg.Port),
			slog.String("addr", server.Addr),
		)
		serverErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-shutdown:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			server.Close()
			return fmt.Errorf("shutdown error: %w", err)
		}
	}

	logger.Info("server stopped")
	return nil
}

// newFetcher builds the storefront fetcher, over the Chrome-fingerprint
// transport when enabled.
func newFetcher(cfg *config.Config) (*storefront.HTTPFetcher, error) {
	var rt http.RoundTripper
	if cfg.Fetch.ChromeTLS {
		rt = transport.New(transport.Options{UserAgent: cfg.Fetch.UserAgent})
	}
	return storefront.NewHTTPFetcher(storefront.HTTPConfig{
		BaseURL:   cfg.Store.StoreURL,
		Timeout:   cfg.Fetch.Timeout.Std(),
		UserAgent: cfg.Fetch.UserAgent,
		Cookie:    cfg.Store.Cookie,
		Transport: rt,
	})
}

// initLogger creates a structured logger configured for the environment.
// Production uses JSON format for GCP Cloud Logging compatibility.
// Development uses text format for readability.
func initLogger() *slog.Logger {
	level := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	if os.Getenv("ENVIRONMENT") == "production" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
