// Package storage defines the persistence interfaces of the analytics
// service. Implementations live in the memory, postgres and clickhouse
// subpackages.
package storage

import (
	"context"

	"deriverse-analytics/internal/domain"
)

// TxRecordStore caches fetched and decoded transactions per wallet so
// repeated replays avoid refetching full histories from the RPC node.
type TxRecordStore interface {
	// InsertBulk stores decoded transactions for a wallet. Signatures
	// already cached for that wallet are skipped, not overwritten.
	InsertBulk(ctx context.Context, wallet string, txs []*domain.TxRecords) error

	// GetByWallet returns all cached transactions for a wallet,
	// newest first by slot.
	GetByWallet(ctx context.Context, wallet string) ([]*domain.TxRecords, error)

	// LatestSignature returns the most recent cached signature for a
	// wallet, or "" when nothing is cached.
	LatestSignature(ctx context.Context, wallet string) (string, error)

	// DeleteWallet drops a wallet's cached transactions.
	DeleteWallet(ctx context.Context, wallet string) error
}

// TimelineStore is an append-only sink for emitted timeline events,
// used for cross-wallet analytics queries.
type TimelineStore interface {
	// Append stores a replay's timeline events tagged with the wallet.
	Append(ctx context.Context, wallet string, events []*domain.TimelineEvent) error
}
