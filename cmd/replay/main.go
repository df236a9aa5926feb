// Package main replays one wallet's trading history into a PnL
// timeline and prints it, either as a human-readable table or JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"deriverse-analytics/internal/deriverse"
	"deriverse-analytics/internal/domain"
	"deriverse-analytics/internal/history"
	"deriverse-analytics/internal/metadata"
	"deriverse-analytics/internal/orchestrator"
	"deriverse-analytics/internal/solana"
	"deriverse-analytics/internal/timeline"
)

func main() {
	wallet := flag.String("wallet", "", "Wallet address to replay (required)")
	rpcEndpoint := flag.String("rpc-endpoint", envOr("SOLANA_RPC_ENDPOINT", "https://api.devnet.solana.com"), "Solana RPC HTTP endpoint")
	programID := flag.String("program-id", envOr("DERIVERSE_PROGRAM_ID", deriverse.ProgramID), "Deriverse program id")
	instrID := flag.Int("instr-id", -1, "Filter timeline to one instrument id")
	limit := flag.Int("limit", 0, "Keep only the most recent N events")
	outputJSON := flag.Bool("json", false, "Output as JSON")

	flag.Parse()

	logger := log.New(os.Stderr, "[replay] ", log.LstdFlags)

	if *wallet == "" {
		logger.Fatal("--wallet is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, shutting down...", sig)
		cancel()
	}()

	rpc := solana.NewHTTPClient(*rpcEndpoint)
	resolver := metadata.NewResolver()

	fetcher, err := history.NewFetcher(history.Config{
		RPC:     rpc,
		Decoder: deriverse.NewDecoder(*programID),
		Logger:  logger,
	})
	if err != nil {
		logger.Fatalf("create fetcher: %v", err)
	}

	orch, err := orchestrator.New(orchestrator.Options{
		Fetcher:   fetcher,
		Assembler: timeline.NewAssembler(resolver, logger),
		Namer:     resolver,
		ProgramID: *programID,
		Logger:    logger,
	})
	if err != nil {
		logger.Fatalf("create orchestrator: %v", err)
	}

	opts := timeline.Options{Limit: *limit}
	if *instrID >= 0 {
		id := uint32(*instrID)
		opts.InstrID = &id
	}

	start := time.Now()
	result, err := orch.Replay(ctx, *wallet, opts)
	if err != nil {
		logger.Fatalf("replay: %v", err)
	}
	logger.Printf("Replayed %d events in %v", result.TotalEvents, time.Since(start))

	if *outputJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			logger.Fatalf("encode result: %v", err)
		}
		return
	}

	printTimeline(result)
}

func printTimeline(result *domain.ReplayResult) {
	fmt.Printf("Wallet %s: %d events\n\n", result.Wallet, result.TotalEvents)

	for _, ev := range result.Timeline {
		switch ev.Kind {
		case domain.EventKindTrade, domain.EventKindLiquidation:
			fmt.Printf("%s  %-11s %-10s %s %.4f @ %.4f  pnl=%.4f  pos=%.4f\n",
				ev.Datetime, ev.Kind, ev.Market, ev.Side, ev.Quantity, ev.Price,
				ev.RealizedPnL, ev.PositionSize)
		case domain.EventKindFunding:
			fmt.Printf("%s  %-11s %-10s amount=%.6f\n", ev.Datetime, ev.Kind, ev.Market, ev.FundingAmount)
		case domain.EventKindFee:
			fmt.Printf("%s  %-11s %-10s amount=%.6f\n", ev.Datetime, ev.Kind, ev.Market, ev.FeeAmount)
		case domain.EventKindSocializedLoss:
			fmt.Printf("%s  %-11s %-10s amount=%.6f\n", ev.Datetime, ev.Kind, ev.Market, ev.LossAmount)
		}
	}

	fmt.Printf("\nSummary:\n")
	for name, instr := range result.Summary.Markets {
		fmt.Printf("  %-10s position=%.4f avg_entry=%.4f fees=%.4f funding=%.4f soc_loss=%.4f\n",
			name, instr.CurrentPosition, instr.AvgEntryPrice,
			instr.TotalFees, instr.TotalFunding, instr.TotalSocLoss)
	}
	fmt.Printf("  global     realized_pnl=%.4f\n", result.Summary.Global.TotalRealizedPnL)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
