package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"deriverse-analytics/internal/domain"
	"deriverse-analytics/internal/storage"
)

// TxRecordStore implements storage.TxRecordStore using PostgreSQL.
// Decoded records are stored as JSONB alongside the signature keys so the
// cache survives schema-free extensions of the record layout.
type TxRecordStore struct {
	pool *Pool
}

// NewTxRecordStore creates a new TxRecordStore.
func NewTxRecordStore(pool *Pool) *TxRecordStore {
	return &TxRecordStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TxRecordStore = (*TxRecordStore)(nil)

// InsertBulk stores decoded transactions for a wallet atomically.
// Signatures already cached for the wallet are skipped.
func (s *TxRecordStore) InsertBulk(ctx context.Context, wallet string, txs []*domain.TxRecords) error {
	if wallet == "" {
		return storage.ErrInvalidInput
	}
	if len(txs) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO wallet_transactions (
			wallet, signature, slot, block_time, records
		) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (wallet, signature) DO NOTHING
	`

	for _, t := range txs {
		if t == nil || t.Signature == "" {
			return storage.ErrInvalidInput
		}
		records, err := json.Marshal(t.Records)
		if err != nil {
			return fmt.Errorf("marshal records for %s: %w", t.Signature, err)
		}
		if _, err := tx.Exec(ctx, query, wallet, t.Signature, t.Slot, t.Timestamp, records); err != nil {
			return fmt.Errorf("insert wallet transaction: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetByWallet retrieves all cached transactions for a wallet, newest first.
func (s *TxRecordStore) GetByWallet(ctx context.Context, wallet string) ([]*domain.TxRecords, error) {
	query := `
		SELECT signature, slot, block_time, records
		FROM wallet_transactions
		WHERE wallet = $1
		ORDER BY slot DESC, signature DESC
	`

	rows, err := s.pool.Query(ctx, query, wallet)
	if err != nil {
		return nil, fmt.Errorf("get wallet transactions: %w", err)
	}
	defer rows.Close()

	return scanTxRecords(rows)
}

// LatestSignature returns the most recent cached signature for a wallet,
// or "" when the cache is empty.
func (s *TxRecordStore) LatestSignature(ctx context.Context, wallet string) (string, error) {
	query := `
		SELECT signature
		FROM wallet_transactions
		WHERE wallet = $1
		ORDER BY slot DESC, signature DESC
		LIMIT 1
	`

	var sig string
	err := s.pool.QueryRow(ctx, query, wallet).Scan(&sig)
	if err != nil {
		if isNotFoundError(err) {
			return "", nil
		}
		return "", fmt.Errorf("get latest signature: %w", err)
	}
	return sig, nil
}

// DeleteWallet drops a wallet's cached transactions.
func (s *TxRecordStore) DeleteWallet(ctx context.Context, wallet string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM wallet_transactions WHERE wallet = $1`, wallet)
	if err != nil {
		return fmt.Errorf("delete wallet transactions: %w", err)
	}
	return nil
}

func scanTxRecords(rows pgx.Rows) ([]*domain.TxRecords, error) {
	var txs []*domain.TxRecords

	for rows.Next() {
		var (
			t   domain.TxRecords
			raw []byte
		)
		if err := rows.Scan(&t.Signature, &t.Slot, &t.Timestamp, &raw); err != nil {
			return nil, fmt.Errorf("scan wallet transaction row: %w", err)
		}
		if err := json.Unmarshal(raw, &t.Records); err != nil {
			return nil, fmt.Errorf("unmarshal records for %s: %w", t.Signature, err)
		}
		txs = append(txs, &t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate wallet transaction rows: %w", err)
	}

	return txs, nil
}
