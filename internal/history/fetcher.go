// Package history fetches, decodes and caches a trading account's full
// transaction history from a Solana RPC node.
package history

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"deriverse-analytics/internal/deriverse"
	"deriverse-analytics/internal/domain"
	"deriverse-analytics/internal/observability"
	"deriverse-analytics/internal/solana"
	"deriverse-analytics/internal/storage"
)

// Fetch pacing defaults. Public RPC nodes rate-limit aggressively, so
// transactions are fetched in small concurrent batches with a pause
// between them.
const (
	DefaultPageLimit     = 1000
	DefaultMaxSignatures = 10000
	DefaultBatchSize     = 5
	DefaultBatchDelay    = 200 * time.Millisecond
)

// Config configures a Fetcher.
type Config struct {
	RPC     solana.RPCClient
	Decoder *deriverse.Decoder

	// Cache is optional. When set, previously fetched transactions are
	// reused and only signatures newer than the cached head are fetched.
	Cache storage.TxRecordStore

	PageLimit     int
	MaxSignatures int
	BatchSize     int
	BatchDelay    time.Duration

	Logger *log.Logger
}

// Fetcher retrieves the decoded transaction history of a trading account.
type Fetcher struct {
	rpc     solana.RPCClient
	decoder *deriverse.Decoder
	cache   storage.TxRecordStore

	pageLimit     int
	maxSignatures int
	batchSize     int
	batchDelay    time.Duration

	logger *log.Logger
}

// NewFetcher creates a Fetcher, filling unset config fields with defaults.
func NewFetcher(cfg Config) (*Fetcher, error) {
	if cfg.RPC == nil {
		return nil, fmt.Errorf("rpc client is required")
	}
	if cfg.Decoder == nil {
		return nil, fmt.Errorf("decoder is required")
	}
	if cfg.PageLimit <= 0 {
		cfg.PageLimit = DefaultPageLimit
	}
	if cfg.MaxSignatures <= 0 {
		cfg.MaxSignatures = DefaultMaxSignatures
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BatchDelay <= 0 {
		cfg.BatchDelay = DefaultBatchDelay
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}

	return &Fetcher{
		rpc:           cfg.RPC,
		decoder:       cfg.Decoder,
		cache:         cfg.Cache,
		pageLimit:     cfg.PageLimit,
		maxSignatures: cfg.MaxSignatures,
		batchSize:     cfg.BatchSize,
		batchDelay:    cfg.BatchDelay,
		logger:        cfg.Logger,
	}, nil
}

// FetchAccount returns the decoded transaction history of a trading
// account, newest first. wallet keys the cache; address is the on-chain
// account whose signatures are listed (usually the wallet's client
// account PDA).
func (f *Fetcher) FetchAccount(ctx context.Context, wallet, address string) ([]*domain.TxRecords, error) {
	var until string
	if f.cache != nil {
		sig, err := f.cache.LatestSignature(ctx, wallet)
		if err != nil {
			return nil, fmt.Errorf("read cache head: %w", err)
		}
		until = sig
		if until == "" {
			observability.DefaultMetrics.CacheMisses.Inc()
		} else {
			observability.DefaultMetrics.CacheHits.Inc()
		}
	}

	sigs, err := f.fetchSignatures(ctx, address, until)
	if err != nil {
		return nil, err
	}

	txs, err := f.fetchTransactions(ctx, sigs)
	if err != nil {
		return nil, err
	}

	if f.cache != nil {
		if err := f.cache.InsertBulk(ctx, wallet, txs); err != nil {
			return nil, fmt.Errorf("write cache: %w", err)
		}
		// The cache merges the new transactions with earlier fetches
		// and returns the full set newest first.
		return f.cache.GetByWallet(ctx, wallet)
	}

	return txs, nil
}

// fetchSignatures pages through getSignaturesForAddress newest first
// until the node runs out, the until cursor is reached or the cap hits.
func (f *Fetcher) fetchSignatures(ctx context.Context, address, until string) ([]solana.SignatureInfo, error) {
	var (
		all    []solana.SignatureInfo
		before string
	)

	for len(all) < f.maxSignatures {
		opts := &solana.SignaturesOpts{Limit: f.pageLimit}
		if before != "" {
			opts.Before = before
		}
		if until != "" {
			opts.Until = until
		}

		sigs, err := f.rpc.GetSignaturesForAddress(ctx, address, opts)
		if err != nil {
			return nil, fmt.Errorf("get signatures: %w", err)
		}
		observability.DefaultMetrics.SignaturePagesFetched.Inc()

		if len(sigs) == 0 {
			break
		}

		all = append(all, sigs...)
		if len(sigs) < f.pageLimit {
			break
		}
		before = sigs[len(sigs)-1].Signature
	}

	if len(all) > f.maxSignatures {
		all = all[:f.maxSignatures]
	}
	return all, nil
}

// fetchTransactions fetches and decodes transactions in small concurrent
// batches, preserving input (newest first) order. Failed transactions,
// transactions the node cannot serve and transactions whose logs do
// not decode are skipped.
func (f *Fetcher) fetchTransactions(ctx context.Context, sigs []solana.SignatureInfo) ([]*domain.TxRecords, error) {
	results := make([]*domain.TxRecords, len(sigs))

	for start := 0; start < len(sigs); start += f.batchSize {
		end := start + f.batchSize
		if end > len(sigs) {
			end = len(sigs)
		}

		var (
			wg       sync.WaitGroup
			mu       sync.Mutex
			batchErr error
		)
		for i := start; i < end; i++ {
			if sigs[i].Err != nil {
				continue
			}

			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				tx, err := f.fetchOne(ctx, sigs[i])
				if err != nil {
					mu.Lock()
					if batchErr == nil {
						batchErr = err
					}
					mu.Unlock()
					return
				}
				results[i] = tx
			}(i)
		}
		wg.Wait()
		if batchErr != nil {
			return nil, batchErr
		}

		if end < len(sigs) {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(f.batchDelay):
			}
		}
	}

	out := make([]*domain.TxRecords, 0, len(results))
	for _, tx := range results {
		if tx != nil {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (f *Fetcher) fetchOne(ctx context.Context, sig solana.SignatureInfo) (*domain.TxRecords, error) {
	tx, err := f.rpc.GetTransaction(ctx, sig.Signature)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// The RPC client has already retried. A transaction that still
		// cannot be fetched contributes nothing instead of failing the
		// whole replay.
		observability.DefaultMetrics.FetchErrors.Inc()
		f.logger.Printf("skipping %s: get transaction: %v", sig.Signature, err)
		return nil, nil
	}
	if tx == nil || tx.Meta == nil {
		return nil, nil
	}
	observability.DefaultMetrics.TransactionsFetched.Inc()

	records, err := f.decoder.DecodeLogs(tx.Meta.LogMessages)
	if err != nil {
		observability.DefaultMetrics.DecodeErrors.Inc()
		f.logger.Printf("skipping %s: decode logs: %v", sig.Signature, err)
		return nil, nil
	}
	if len(records) == 0 {
		return nil, nil
	}
	observability.DefaultMetrics.TransactionsDecoded.Inc()

	blockTime := tx.BlockTime
	if blockTime == 0 && sig.BlockTime != nil {
		blockTime = *sig.BlockTime
	}

	return &domain.TxRecords{
		Signature: sig.Signature,
		Slot:      tx.Slot,
		Timestamp: blockTime,
		Records:   records,
	}, nil
}
