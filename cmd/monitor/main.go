// Package main runs the treasure hunt monitor: it polls the ledger for
// game-program transactions, classifies them, builds webhook envelopes
// and dispatches them to the ingestion service.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"treasure-monitor/internal/classify"
	"treasure-monitor/internal/dispatch"
	"treasure-monitor/internal/monitor"
	"treasure-monitor/internal/observability"
	"treasure-monitor/internal/payload"
	"treasure-monitor/internal/solana"
	"treasure-monitor/internal/storage"
	chstore "treasure-monitor/internal/storage/clickhouse"
	"treasure-monitor/internal/storage/memory"
	"treasure-monitor/internal/storage/migrations"
)

func main() {
	loadEnvFile()

	rpcEndpoint := flag.String("rpc-endpoint", os.Getenv("SOLANA_RPC_ENDPOINT"), "Solana RPC HTTP endpoint")
	wsEndpoint := flag.String("ws-endpoint", os.Getenv("SOLANA_WS_ENDPOINT"), "Solana WebSocket endpoint (optional, lowers latency)")
	webhookURL := flag.String("webhook-url", os.Getenv("WEBHOOK_URL"), "Ingestion service base URL")
	webhookSecret := flag.String("webhook-secret", os.Getenv("WEBHOOK_SECRET"), "Shared secret sent in the Authorization header")
	programID := flag.String("program", os.Getenv("GAME_PROGRAM_ID"), "Game program ID to monitor (defaults to mainnet program)")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse DSN for the delivery log (optional)")
	interval := flag.Duration("interval", 15*time.Second, "Polling interval")
	pageLimit := flag.Int("page-limit", 10, "Signatures fetched per RPC page")
	metricsAddr := flag.String("metrics-addr", os.Getenv("METRICS_ADDR"), "Address for the Prometheus /metrics endpoint (optional)")

	flag.Parse()

	logger := log.New(os.Stdout, "[monitor] ", log.LstdFlags)

	if *rpcEndpoint == "" {
		logger.Fatal("--rpc-endpoint is required")
	}
	if *webhookURL == "" {
		logger.Fatal("--webhook-url is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("received signal %v, shutting down", sig)
		cancel()
	}()

	// Delivery log: ClickHouse when configured, in-memory otherwise.
	var deliveryLog storage.DeliveryLogStore = memory.NewDeliveryLogStore()
	if *clickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, *clickhouseDSN)
		if err != nil {
			logger.Fatalf("clickhouse setup: %v", err)
		}
		defer conn.Close()
		deliveryLog = chstore.NewDeliveryLogStore(conn)
		logger.Printf("delivery log: clickhouse")
	} else {
		logger.Printf("delivery log: in-memory (attempts lost on restart)")
	}

	if *metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", observability.Handler())
		go func() {
			logger.Printf("metrics listening on %s", *metricsAddr)
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				logger.Printf("WARN metrics server: %v", err)
			}
		}()
	}

	rpc := solana.NewHTTPClient(*rpcEndpoint)
	classifier := classify.New(*programID)
	builder := payload.NewBuilder(classifier.ProgramID(), log.New(os.Stdout, "[payload] ", log.LstdFlags))
	dispatcher := dispatch.NewDispatcher(dispatch.Options{
		BaseURL:     strings.TrimRight(*webhookURL, "/"),
		AuthSecret:  *webhookSecret,
		DeliveryLog: deliveryLog,
		Logger:      log.New(os.Stdout, "[dispatch] ", log.LstdFlags),
	})

	opts := monitor.Options{
		RPC:        rpc,
		Classifier: classifier,
		Builder:    builder,
		Dispatcher: dispatcher,
		Interval:   *interval,
		PageLimit:  *pageLimit,
		Logger:     logger,
	}

	// The WebSocket watcher is optional; polling alone is correct, just
	// slower to notice new transactions.
	if *wsEndpoint != "" {
		ws, err := solana.NewWSClient(ctx, *wsEndpoint, nil)
		if err != nil {
			logger.Fatalf("connect websocket: %v", err)
		}
		defer ws.Close()

		watcher := monitor.NewWatcher(ws, classifier.ProgramID(), logger)
		opts.Wake = watcher.Wake()
		go func() {
			if err := watcher.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Printf("WARN watcher stopped: %v", err)
			}
		}()
	}

	poller := monitor.NewPoller(opts)
	if err := poller.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Fatalf("poller: %v", err)
	}
	logger.Printf("monitor stopped")
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
