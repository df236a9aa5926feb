// Package memory provides in-memory storage implementations for tests
// and for running the service without external dependencies.
package memory

import (
	"context"
	"sort"
	"sync"

	"deriverse-analytics/internal/domain"
	"deriverse-analytics/internal/storage"
)

// TxRecordStore is a thread-safe in-memory implementation of
// storage.TxRecordStore.
type TxRecordStore struct {
	mu      sync.RWMutex
	wallets map[string]map[string]*domain.TxRecords // wallet -> signature -> tx
}

func NewTxRecordStore() *TxRecordStore {
	return &TxRecordStore{
		wallets: make(map[string]map[string]*domain.TxRecords),
	}
}

func (s *TxRecordStore) InsertBulk(ctx context.Context, wallet string, txs []*domain.TxRecords) error {
	if wallet == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	bySig, ok := s.wallets[wallet]
	if !ok {
		bySig = make(map[string]*domain.TxRecords, len(txs))
		s.wallets[wallet] = bySig
	}

	for _, tx := range txs {
		if tx == nil || tx.Signature == "" {
			return storage.ErrInvalidInput
		}
		if _, exists := bySig[tx.Signature]; exists {
			continue
		}
		cp := *tx
		cp.Records = append([]*domain.LogRecord(nil), tx.Records...)
		bySig[tx.Signature] = &cp
	}
	return nil
}

func (s *TxRecordStore) GetByWallet(ctx context.Context, wallet string) ([]*domain.TxRecords, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bySig, ok := s.wallets[wallet]
	if !ok {
		return nil, nil
	}

	out := make([]*domain.TxRecords, 0, len(bySig))
	for _, tx := range bySig {
		cp := *tx
		cp.Records = append([]*domain.LogRecord(nil), tx.Records...)
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Slot != out[j].Slot {
			return out[i].Slot > out[j].Slot
		}
		return out[i].Signature > out[j].Signature
	})
	return out, nil
}

func (s *TxRecordStore) LatestSignature(ctx context.Context, wallet string) (string, error) {
	txs, err := s.GetByWallet(ctx, wallet)
	if err != nil || len(txs) == 0 {
		return "", err
	}
	return txs[0].Signature, nil
}

func (s *TxRecordStore) DeleteWallet(ctx context.Context, wallet string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.wallets, wallet)
	return nil
}
