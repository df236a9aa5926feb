package account

import (
	"context"
	"encoding/binary"
	"io"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deriverse-analytics/internal/deriverse"
	"deriverse-analytics/internal/domain"
	"deriverse-analytics/internal/metadata"
	"deriverse-analytics/internal/solana"
	"deriverse-analytics/internal/solana/stub"
)

const readerWallet = "7nYabs9dUhvxYwdTnrWVBL9MYviKSfrEbdWCUbcaqkx3"

// buildBuffer assembles a client account buffer with the given slots.
func buildBuffer(slots ...[16]byte) []byte {
	buf := make([]byte, 304+20*16)
	for i, slot := range slots {
		copy(buf[304+i*16:], slot[:])
	}
	return buf
}

// balanceSlot builds a balance slot. The slot tag is the low byte of
// the id word, so the id implies the tag.
func balanceSlot(amount int64, id uint32) [16]byte {
	var s [16]byte
	binary.LittleEndian.PutUint64(s[0:8], uint64(amount))
	binary.LittleEndian.PutUint32(s[8:12], id&0xFFFFFFF)
	return s
}

func perpSlot(assetID, clientID uint32) [16]byte {
	var s [16]byte
	binary.LittleEndian.PutUint32(s[0:4], assetID)
	binary.LittleEndian.PutUint32(s[4:8], clientID)
	s[8] = 4
	return s
}

func TestParseBuffer_Balances(t *testing.T) {
	resolver := metadata.NewResolver()

	buf := buildBuffer(
		balanceSlot(2_500_000_000, 16777217),  // 2.5 SOL, tag 1
		balanceSlot(10_000_000_000, 16777218), // unmapped currency id, tag 2
	)

	balances, perps := ParseBuffer(buf, resolver)
	require.Len(t, balances, 2)
	assert.Empty(t, perps)

	assert.Equal(t, "SOL", balances[0].Symbol)
	assert.Equal(t, 9, balances[0].Decimals)
	assert.InDelta(t, 2.5, balances[0].UIAmount, 1e-12)
	assert.Equal(t, "2500000000", balances[0].RawAmount)

	// Unknown currency-tagged ids fall back to USDC with default decimals.
	assert.Equal(t, "USDC", balances[1].Symbol)
	assert.Equal(t, 9, balances[1].Decimals)
	assert.InDelta(t, 10.0, balances[1].UIAmount, 1e-12)
}

func TestParseBuffer_PerpSlotsAndEmptySlots(t *testing.T) {
	resolver := metadata.NewResolver()

	buf := buildBuffer(
		perpSlot(0, 17),
		[16]byte{}, // zero slot is skipped
		balanceSlot(1_000_000_000, 16777218),
	)

	balances, perps := ParseBuffer(buf, resolver)
	require.Len(t, perps, 1)
	assert.Equal(t, uint32(0), perps[0].InstrID)
	assert.Equal(t, uint32(17), perps[0].ClientID)
	require.Len(t, balances, 1)
	assert.Equal(t, "USDC", balances[0].Symbol)
}

func TestParseBuffer_TruncatedBuffer(t *testing.T) {
	resolver := metadata.NewResolver()

	balances, perps := ParseBuffer(make([]byte, 304+8), resolver)
	assert.Empty(t, balances)
	assert.Empty(t, perps)
}

func TestReader_NoClientAccount(t *testing.T) {
	rpc := stub.NewRPCClient()
	reader := NewReader(rpc, metadata.NewResolver(), nil, "", log.New(io.Discard, "", 0))

	data, err := reader.AccountData(context.Background(), readerWallet)
	require.NoError(t, err)
	assert.Equal(t, readerWallet, data.Wallet)
	assert.Empty(t, data.Balances)
}

func TestReader_ReadsSnapshot(t *testing.T) {
	rpc := stub.NewRPCClient()
	resolver := metadata.NewResolver()

	clientAcc, err := deriverse.ClientAccountAddress(readerWallet, deriverse.ProgramID)
	require.NoError(t, err)

	rpc.Accounts[clientAcc] = &solana.AccountInfo{
		Owner: deriverse.ProgramID,
		Data: buildBuffer(
			balanceSlot(5_000_000_000, 16777218),
			perpSlot(0, 3),
		),
	}

	reader := NewReader(rpc, resolver, nil, "", log.New(io.Discard, "", 0))

	data, err := reader.AccountData(context.Background(), readerWallet)
	require.NoError(t, err)
	require.Len(t, data.Balances, 2)
	assert.Equal(t, "USDC", data.Balances[0].Symbol)
	assert.Equal(t, "SOL/USDC", data.Balances[1].Symbol)
	assert.Equal(t, 4, data.Balances[1].Tag)
}

type stubHistory struct {
	txs []*domain.TxRecords
}

func (s *stubHistory) FetchAccount(context.Context, string, string) ([]*domain.TxRecords, error) {
	return s.txs, nil
}

func TestReader_ReconstructsFromHistory(t *testing.T) {
	rpc := stub.NewRPCClient()
	resolver := metadata.NewResolver()

	clientAcc, err := deriverse.ClientAccountAddress(readerWallet, deriverse.ProgramID)
	require.NoError(t, err)

	// Snapshot exists but holds no perp slots.
	rpc.Accounts[clientAcc] = &solana.AccountInfo{
		Owner: deriverse.ProgramID,
		Data:  buildBuffer(balanceSlot(5_000_000_000, 16777218)),
	}

	history := &stubHistory{txs: []*domain.TxRecords{
		{
			Signature: "sig-1",
			Records: []*domain.LogRecord{
				{Tag: domain.TagPerpFill, InstrID: domain.U32Ptr(0), BaseChange: domain.F64Ptr(2e9)},
				{Tag: domain.TagPerpFill, InstrID: domain.U32Ptr(0), BaseChange: domain.F64Ptr(-5e8)},
			},
		},
	}}

	reader := NewReader(rpc, resolver, history, "", log.New(io.Discard, "", 0))

	data, err := reader.AccountData(context.Background(), readerWallet)
	require.NoError(t, err)
	require.Len(t, data.Balances, 2)

	pos := data.Balances[1]
	assert.True(t, pos.IsReconstructed)
	assert.Equal(t, "SOL/USDC", pos.Symbol)
	assert.InDelta(t, 1.5, pos.UIAmount, 1e-12)
	assert.Equal(t, "long", pos.Side)
}

func TestReconstructPositions_DustFiltered(t *testing.T) {
	resolver := metadata.NewResolver()

	txs := []*domain.TxRecords{
		{
			Records: []*domain.LogRecord{
				{Tag: domain.TagPerpFill, InstrID: domain.U32Ptr(0), BaseChange: domain.F64Ptr(1e9)},
				{Tag: domain.TagPerpFill, InstrID: domain.U32Ptr(0), BaseChange: domain.F64Ptr(-1e9 + 500)},
			},
		},
	}

	positions := ReconstructPositions(txs, resolver)
	assert.Empty(t, positions)
}
