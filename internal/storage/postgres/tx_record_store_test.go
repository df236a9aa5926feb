package postgres_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deriverse-analytics/internal/domain"
	"deriverse-analytics/internal/storage"
	"deriverse-analytics/internal/storage/postgres"
)

const testWallet = "7nYabs9dUhvxYwdTnrWVBL9MYviKSfrEbdWCUbcaqkx3"

func testTx(sig string, slot, ts int64) *domain.TxRecords {
	return &domain.TxRecords{
		Signature: sig,
		Slot:      slot,
		Timestamp: ts,
		Records: []*domain.LogRecord{
			{
				Tag:         domain.TagPerpFill,
				InstrID:     domain.U32Ptr(0),
				OrderID:     domain.U64Ptr(42),
				Side:        domain.U8Ptr(0),
				BaseChange:  domain.F64Ptr(1.5),
				QuoteChange: domain.F64Ptr(-150),
				Price:       domain.F64Ptr(100),
			},
		},
	}
}

func TestTxRecordStore_InsertAndGet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := postgres.NewTxRecordStore(pool)
	ctx := context.Background()

	txs := []*domain.TxRecords{
		testTx("sig-a", 100, 1700000000),
		testTx("sig-b", 200, 1700000100),
		testTx("sig-c", 150, 1700000050),
	}
	require.NoError(t, store.InsertBulk(ctx, testWallet, txs))

	got, err := store.GetByWallet(ctx, testWallet)
	require.NoError(t, err)
	require.Len(t, got, 3)

	// Newest first by slot.
	assert.Equal(t, "sig-b", got[0].Signature)
	assert.Equal(t, "sig-c", got[1].Signature)
	assert.Equal(t, "sig-a", got[2].Signature)

	// Records round-trip through JSONB intact.
	require.Len(t, got[0].Records, 1)
	rec := got[0].Records[0]
	assert.Equal(t, domain.TagPerpFill, rec.Tag)
	require.NotNil(t, rec.BaseChange)
	assert.Equal(t, 1.5, *rec.BaseChange)
	require.NotNil(t, rec.Price)
	assert.Equal(t, 100.0, *rec.Price)
}

func TestTxRecordStore_InsertBulkSkipsDuplicates(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := postgres.NewTxRecordStore(pool)
	ctx := context.Background()

	require.NoError(t, store.InsertBulk(ctx, testWallet, []*domain.TxRecords{testTx("sig-a", 100, 1700000000)}))

	// Re-inserting the same signature alongside a new one keeps both.
	require.NoError(t, store.InsertBulk(ctx, testWallet, []*domain.TxRecords{
		testTx("sig-a", 100, 1700000000),
		testTx("sig-b", 200, 1700000100),
	}))

	got, err := store.GetByWallet(ctx, testWallet)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestTxRecordStore_WalletsAreIsolated(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := postgres.NewTxRecordStore(pool)
	ctx := context.Background()

	require.NoError(t, store.InsertBulk(ctx, "wallet-1", []*domain.TxRecords{testTx("sig-a", 100, 1700000000)}))
	require.NoError(t, store.InsertBulk(ctx, "wallet-2", []*domain.TxRecords{testTx("sig-a", 100, 1700000000)}))

	got, err := store.GetByWallet(ctx, "wallet-1")
	require.NoError(t, err)
	assert.Len(t, got, 1)

	require.NoError(t, store.DeleteWallet(ctx, "wallet-1"))

	got, err = store.GetByWallet(ctx, "wallet-1")
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = store.GetByWallet(ctx, "wallet-2")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestTxRecordStore_LatestSignature(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := postgres.NewTxRecordStore(pool)
	ctx := context.Background()

	sig, err := store.LatestSignature(ctx, testWallet)
	require.NoError(t, err)
	assert.Equal(t, "", sig)

	require.NoError(t, store.InsertBulk(ctx, testWallet, []*domain.TxRecords{
		testTx("sig-a", 100, 1700000000),
		testTx("sig-b", 200, 1700000100),
	}))

	sig, err = store.LatestSignature(ctx, testWallet)
	require.NoError(t, err)
	assert.Equal(t, "sig-b", sig)
}

func TestTxRecordStore_InvalidInput(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := postgres.NewTxRecordStore(pool)
	ctx := context.Background()

	err := store.InsertBulk(ctx, "", []*domain.TxRecords{testTx("sig-a", 100, 1700000000)})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)

	err = store.InsertBulk(ctx, testWallet, []*domain.TxRecords{{Signature: ""}})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}
