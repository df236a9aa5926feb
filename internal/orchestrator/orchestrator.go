// Package orchestrator coordinates a wallet replay end to end:
// client account resolution → history fetch → timeline assembly →
// optional analytics sink.
package orchestrator

import (
	"context"
	"fmt"
	"log"
	"time"

	"deriverse-analytics/internal/account"
	"deriverse-analytics/internal/deriverse"
	"deriverse-analytics/internal/domain"
	"deriverse-analytics/internal/history"
	"deriverse-analytics/internal/ledger"
	"deriverse-analytics/internal/observability"
	"deriverse-analytics/internal/storage"
	"deriverse-analytics/internal/timeline"
)

// Options for creating an Orchestrator.
type Options struct {
	Fetcher   *history.Fetcher
	Assembler *timeline.Assembler
	Accounts  *account.Reader
	Namer     ledger.MarketNamer

	// Sink is optional. When set, every replay's timeline is appended
	// for cross-wallet queries.
	Sink storage.TimelineStore

	// Cache is optional and only used for invalidation.
	Cache storage.TxRecordStore

	ProgramID string
	Logger    *log.Logger
}

// Orchestrator runs wallet replays.
type Orchestrator struct {
	fetcher   *history.Fetcher
	assembler *timeline.Assembler
	accounts  *account.Reader
	namer     ledger.MarketNamer
	sink      storage.TimelineStore
	cache     storage.TxRecordStore
	programID string
	logger    *log.Logger
}

// New creates an Orchestrator.
func New(opts Options) (*Orchestrator, error) {
	if opts.Fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if opts.Assembler == nil {
		return nil, fmt.Errorf("assembler is required")
	}
	if opts.Namer == nil {
		return nil, fmt.Errorf("market namer is required")
	}
	if opts.ProgramID == "" {
		opts.ProgramID = deriverse.ProgramID
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Orchestrator{
		fetcher:   opts.Fetcher,
		assembler: opts.Assembler,
		accounts:  opts.Accounts,
		namer:     opts.Namer,
		sink:      opts.Sink,
		cache:     opts.Cache,
		programID: opts.ProgramID,
		logger:    opts.Logger,
	}, nil
}

// Replay fetches a wallet's history and replays it into a PnL timeline.
// Wallets without a trading account yield an empty result.
func (o *Orchestrator) Replay(ctx context.Context, wallet string, opts timeline.Options) (*domain.ReplayResult, error) {
	start := time.Now()

	txs, err := o.fetchHistory(ctx, wallet)
	if err != nil {
		observability.RecordReplay("error", time.Since(start).Seconds())
		return nil, err
	}

	result := o.assembler.Replay(wallet, txs, opts)

	if o.sink != nil {
		if err := o.sink.Append(ctx, wallet, result.Timeline); err != nil {
			// Sink failures degrade analytics, not the replay itself.
			o.logger.Printf("timeline sink append for %s failed: %v", wallet, err)
		}
	}

	observability.RecordReplay("ok", time.Since(start).Seconds())
	return result, nil
}

// Trades returns the enriched raw-log history of a wallet, oldest
// first, one entry per transaction.
func (o *Orchestrator) Trades(ctx context.Context, wallet string) ([]history.TxLog, error) {
	txs, err := o.fetchHistory(ctx, wallet)
	if err != nil {
		return nil, err
	}
	return history.TransactionLogs(txs, o.namer), nil
}

// AccountData returns the wallet's balance snapshot.
func (o *Orchestrator) AccountData(ctx context.Context, wallet string) (*domain.AccountData, error) {
	if o.accounts == nil {
		return &domain.AccountData{Wallet: wallet, Balances: []*domain.AssetBalance{}}, nil
	}
	return o.accounts.AccountData(ctx, wallet)
}

// Invalidate drops a wallet's cached transactions so the next replay
// refetches from the node.
func (o *Orchestrator) Invalidate(ctx context.Context, wallet string) error {
	if o.cache == nil {
		return nil
	}
	return o.cache.DeleteWallet(ctx, wallet)
}

func (o *Orchestrator) fetchHistory(ctx context.Context, wallet string) ([]*domain.TxRecords, error) {
	clientAcc, err := deriverse.ClientAccountAddress(wallet, o.programID)
	if err != nil {
		return nil, fmt.Errorf("derive client account: %w", err)
	}
	return o.fetcher.FetchAccount(ctx, wallet, clientAcc)
}
