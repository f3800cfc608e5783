// Package main runs the webhook ingestion service: it receives envelope
// batches from the monitor, persists them idempotently and serves the
// read-side query API.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"treasure-monitor/internal/domain"
	"treasure-monitor/internal/storage/memory"
	"treasure-monitor/internal/storage/migrations"
	pgstore "treasure-monitor/internal/storage/postgres"
	"treasure-monitor/internal/webhook"
)

func main() {
	loadEnvFile()

	addr := flag.String("addr", envOr("WEBHOOK_ADDR", ":8080"), "HTTP listen address")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL")
	authSecret := flag.String("auth-secret", os.Getenv("WEBHOOK_SECRET"), "Shared secret checked against the Authorization header")
	gridWidth := flag.Int("grid-width", domain.DefaultGridWidth, "Game map width")
	gridHeight := flag.Int("grid-height", domain.DefaultGridHeight, "Game map height")

	flag.Parse()

	logger := log.New(os.Stdout, "[webhookd] ", log.LstdFlags)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var stores webhook.Stores
	if *useMemory || *postgresDSN == "" {
		logger.Printf("using in-memory storage")
		stores = webhook.Stores{
			Deposits: memory.NewDepositStore(),
			Searches: memory.NewSearchStore(),
			Clues:    memory.NewClueStore(),
		}
	} else {
		pool, err := pgstore.NewPool(ctx, *postgresDSN)
		if err != nil {
			logger.Fatalf("connect postgres: %v", err)
		}
		defer pool.Close()

		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			logger.Fatalf("run migrations: %v", err)
		}
		logger.Printf("using postgres storage")

		stores = webhook.Stores{
			Deposits: pgstore.NewDepositStore(pool),
			Searches: pgstore.NewSearchStore(pool),
			Clues:    pgstore.NewClueStore(pool),
		}
	}

	svc := webhook.NewService(webhook.Options{
		Stores:     stores,
		AuthSecret: *authSecret,
		GridWidth:  *gridWidth,
		GridHeight: *gridHeight,
		Logger:     logger,
	})
	svc.SetReady(true)

	server := &http.Server{
		Addr:              *addr,
		Handler:           svc.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Printf("received signal %v, shutting down", sig)

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Printf("WARN shutdown: %v", err)
		}
		cancel()
	}()

	logger.Printf("listening on %s", *addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("serve: %v", err)
	}
	logger.Printf("webhookd stopped")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// loadEnvFile loads environment variables from .env file if it exists.
func loadEnvFile() {
	data, err := os.ReadFile(".env")
	if err != nil {
		return // File doesn't exist, use system env vars
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Don't override existing env vars
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}
