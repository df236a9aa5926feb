// Package main runs the Deriverse analytics HTTP service:
// - PnL timeline replay per wallet, with a transaction cache
// - raw trade history and balance snapshots
// - optional ClickHouse sink for cross-wallet analytics
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"deriverse-analytics/internal/account"
	"deriverse-analytics/internal/deriverse"
	"deriverse-analytics/internal/history"
	"deriverse-analytics/internal/metadata"
	"deriverse-analytics/internal/observability"
	"deriverse-analytics/internal/orchestrator"
	"deriverse-analytics/internal/solana"
	"deriverse-analytics/internal/storage"
	chstore "deriverse-analytics/internal/storage/clickhouse"
	"deriverse-analytics/internal/storage/memory"
	"deriverse-analytics/internal/storage/migrations"
	pgstore "deriverse-analytics/internal/storage/postgres"
	"deriverse-analytics/internal/timeline"
)

// Server holds the HTTP handlers and their collaborators.
type Server struct {
	orch     *orchestrator.Orchestrator
	resolver *metadata.Resolver
	logger   *log.Logger

	mu      sync.Mutex
	started time.Time
	replays int
}

func main() {
	loadEnvFile()

	rpcEndpoint := flag.String("rpc-endpoint", envOr("SOLANA_RPC_ENDPOINT", "https://api.devnet.solana.com"), "Solana RPC HTTP endpoint")
	wsEndpoint := flag.String("ws-endpoint", os.Getenv("SOLANA_WS_ENDPOINT"), "Solana WebSocket endpoint (enables live program tail)")
	programID := flag.String("program-id", envOr("DERIVERSE_PROGRAM_ID", deriverse.ProgramID), "Deriverse program id")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string (transaction cache)")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string (timeline sink)")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL/ClickHouse")
	listenAddr := flag.String("listen-addr", envOr("LISTEN_ADDR", ":8080"), "HTTP listen address")

	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lshortfile)

	if *rpcEndpoint == "" {
		logger.Fatal("--rpc-endpoint is required")
	}
	if !*useMemory && *postgresDSN == "" {
		logger.Fatal("--postgres-dsn is required (use --use-memory for in-memory storage)")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cache, sink, cleanup, err := createStores(ctx, *postgresDSN, *clickhouseDSN, *useMemory)
	if err != nil {
		logger.Fatalf("Failed to create stores: %v", err)
	}
	defer cleanup()

	rpc := solana.NewHTTPClient(*rpcEndpoint)
	resolver := metadata.NewResolver()
	decoder := deriverse.NewDecoder(*programID)

	fetcher, err := history.NewFetcher(history.Config{
		RPC:     rpc,
		Decoder: decoder,
		Cache:   cache,
		Logger:  log.New(os.Stdout, "[history] ", log.LstdFlags),
	})
	if err != nil {
		logger.Fatalf("Failed to create fetcher: %v", err)
	}

	accounts := account.NewReader(rpc, resolver, fetcher, *programID,
		log.New(os.Stdout, "[account] ", log.LstdFlags))

	orch, err := orchestrator.New(orchestrator.Options{
		Fetcher:   fetcher,
		Assembler: timeline.NewAssembler(resolver, log.New(os.Stdout, "[replay] ", log.LstdFlags)),
		Accounts:  accounts,
		Namer:     resolver,
		Sink:      sink,
		Cache:     cache,
		ProgramID: *programID,
		Logger:    logger,
	})
	if err != nil {
		logger.Fatalf("Failed to create orchestrator: %v", err)
	}

	server := &Server{
		orch:     orch,
		resolver: resolver,
		logger:   logger,
		started:  time.Now(),
	}

	if *wsEndpoint != "" {
		go tailProgram(ctx, *wsEndpoint, *programID, logger)
	}

	httpSrv := &http.Server{
		Addr:              *listenAddr,
		Handler:           server.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, shutting down...", sig)
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logger.Printf("Shutdown error: %v", err)
		}
	}()

	logger.Printf("Listening on %s (program %s)", *listenAddr, *programID)
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("HTTP server error: %v", err)
	}
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("GET /metrics", observability.Handler())
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /markets/list", s.handleMarkets)
	mux.HandleFunc("GET /accounts/{wallet}", s.handleAccount)
	mux.HandleFunc("GET /trades/{wallet}", s.handleTrades)
	mux.HandleFunc("GET /perp/pnl-timeline/{wallet}", s.handleTimeline)
	mux.HandleFunc("DELETE /accounts/{wallet}/cache", s.handleInvalidate)

	return mux
}

// StatusResponse is the JSON response for the /status endpoint.
type StatusResponse struct {
	Status  string `json:"status"`
	Uptime  string `json:"uptime"`
	Replays int    `json:"replays"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	resp := StatusResponse{
		Status:  "running",
		Uptime:  time.Since(s.started).String(),
		Replays: s.replays,
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleMarkets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.resolver.Markets())
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	wallet := r.PathValue("wallet")
	data, err := s.orch.AccountData(r.Context(), wallet)
	if err != nil {
		s.logger.Printf("account data for %s: %v", wallet, err)
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, data)
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	wallet := r.PathValue("wallet")
	rows, err := s.orch.Trades(r.Context(), wallet)
	if err != nil {
		s.logger.Printf("trades for %s: %v", wallet, err)
		writeError(w, http.StatusBadGateway, err)
		return
	}

	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit <= 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", v))
			return
		}
		// Rows are oldest first; the limit keeps the most recent ones.
		if len(rows) > limit {
			rows = rows[len(rows)-limit:]
		}
	}

	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	wallet := r.PathValue("wallet")

	opts := timeline.Options{}
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit <= 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", v))
			return
		}
		opts.Limit = limit
	}
	if v := r.URL.Query().Get("instrId"); v != "" {
		id, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid instrId %q", v))
			return
		}
		instrID := uint32(id)
		opts.InstrID = &instrID
	}

	result, err := s.orch.Replay(r.Context(), wallet, opts)
	if err != nil {
		s.logger.Printf("replay for %s: %v", wallet, err)
		writeError(w, http.StatusBadGateway, err)
		return
	}

	s.mu.Lock()
	s.replays++
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	wallet := r.PathValue("wallet")
	if err := s.orch.Invalidate(r.Context(), wallet); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// tailProgram keeps a live subscription on the program's logs. It feeds
// the activity metric; the tailer reconnects on its own until ctx ends.
func tailProgram(ctx context.Context, wsEndpoint, programID string, logger *log.Logger) {
	tailer, err := solana.NewLogTailer(ctx, wsEndpoint, programID, nil,
		log.New(os.Stdout, "[tail] ", log.LstdFlags))
	if err != nil {
		logger.Printf("live tail disabled: %v", err)
		return
	}
	defer tailer.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-tailer.Notifications():
			if !ok {
				return
			}
			observability.DefaultMetrics.LogNotifications.Inc()
			logger.Printf("program activity: %s (%d log lines)", n.Signature, len(n.Logs))
		}
	}
}

// createStores builds the transaction cache and timeline sink. The sink
// is nil when ClickHouse is not configured.
func createStores(ctx context.Context, postgresDSN, clickhouseDSN string, useMemory bool) (storage.TxRecordStore, storage.TimelineStore, func(), error) {
	if useMemory {
		return memory.NewTxRecordStore(), memory.NewTimelineStore(), func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, postgresDSN)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, nil, fmt.Errorf("postgres migrations: %w", err)
	}
	cache := pgstore.NewTxRecordStore(pool)

	var (
		sink   storage.TimelineStore
		chConn *chstore.Conn
	)
	if clickhouseDSN != "" {
		chConn, err = migrations.RunClickhouseMigrations(ctx, clickhouseDSN)
		if err != nil {
			pool.Close()
			return nil, nil, nil, fmt.Errorf("clickhouse migrations: %w", err)
		}
		sink = chstore.NewTimelineStore(chConn)
	}

	cleanup := func() {
		pool.Close()
		if chConn != nil {
			chConn.Close()
		}
	}
	return cache, sink, cleanup, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// loadEnvFile loads environment variables from .env if present without
// overriding variables already set.
func loadEnvFile() {
	data, err := os.ReadFile(".env")
	if err != nil {
		return
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
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}
