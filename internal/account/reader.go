// Package account reads client account balance snapshots and, when no
// live position slots exist, reconstructs net perp positions from the
// decoded event history.
package account

import (
	"context"
	"encoding/binary"
	"fmt"
	"log"
	"math"
	"strconv"

	"deriverse-analytics/internal/deriverse"
	"deriverse-analytics/internal/domain"
	"deriverse-analytics/internal/metadata"
	"deriverse-analytics/internal/solana"
)

// Client account buffer layout: 20 asset slots of 16 bytes each starting
// at byte 304. Each slot carries either a balance (amount i64 at +0,
// tag byte at +8, token id in the low 28 bits of the u32 at +8) or a
// perp position reference (tag 4: asset id u32 at +0, client id u32 at +4).
const (
	slotsOffset = 304
	slotSize    = 16
	slotCount   = 20

	perpSlotTag = 4

	tokenIDMask = 0xFFFFFFF
)

// HistorySource supplies decoded transactions for position
// reconstruction when the snapshot holds no perp slots.
type HistorySource interface {
	FetchAccount(ctx context.Context, wallet, address string) ([]*domain.TxRecords, error)
}

// Reader resolves a wallet's client account and reads its balances.
type Reader struct {
	rpc       solana.RPCClient
	resolver  *metadata.Resolver
	history   HistorySource
	programID string
	logger    *log.Logger
}

// NewReader creates a Reader. history may be nil to disable
// reconstruction.
func NewReader(rpc solana.RPCClient, resolver *metadata.Resolver, history HistorySource, programID string, logger *log.Logger) *Reader {
	if programID == "" {
		programID = deriverse.ProgramID
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Reader{
		rpc:       rpc,
		resolver:  resolver,
		history:   history,
		programID: programID,
		logger:    logger,
	}
}

// AccountData returns the balance snapshot for a wallet. Wallets without
// a client account yield an empty snapshot, not an error.
func (r *Reader) AccountData(ctx context.Context, wallet string) (*domain.AccountData, error) {
	data := &domain.AccountData{
		Wallet:   wallet,
		Balances: []*domain.AssetBalance{},
	}

	clientAcc, err := deriverse.ClientAccountAddress(wallet, r.programID)
	if err != nil {
		return nil, fmt.Errorf("derive client account: %w", err)
	}

	info, err := r.rpc.GetAccountInfo(ctx, clientAcc)
	if err != nil {
		return nil, fmt.Errorf("get account info: %w", err)
	}
	if info == nil || len(info.Data) == 0 {
		return data, nil
	}

	balances, perpEntries := ParseBuffer(info.Data, r.resolver)
	data.Balances = balances

	for _, entry := range perpEntries {
		data.Balances = append(data.Balances, &domain.AssetBalance{
			Symbol:   r.resolver.MarketName(entry.InstrID),
			Tag:      perpSlotTag,
			ID:       entry.InstrID,
			Decimals: 9,
		})
	}

	if len(perpEntries) == 0 && r.history != nil {
		r.reconstructPositions(ctx, wallet, data)
	}

	return data, nil
}

// ParseBuffer extracts balances and perp slot references from a client
// account buffer.
func ParseBuffer(buf []byte, resolver *metadata.Resolver) ([]*domain.AssetBalance, []domain.PerpEntry) {
	balances := []*domain.AssetBalance{}
	var perps []domain.PerpEntry

	for i := 0; i < slotCount; i++ {
		offset := slotsOffset + i*slotSize
		if offset+slotSize > len(buf) {
			break
		}
		slot := buf[offset : offset+slotSize]

		tag := int(slot[8])
		if tag == perpSlotTag {
			// Perp slots reference the asset token; map it back to the
			// instrument trading that asset.
			assetID := binary.LittleEndian.Uint32(slot[0:4])
			if instrID, ok := resolver.InstrumentByAsset(assetID); ok {
				perps = append(perps, domain.PerpEntry{
					InstrID:  instrID,
					ClientID: binary.LittleEndian.Uint32(slot[4:8]),
				})
			}
			continue
		}

		amountRaw := int64(binary.LittleEndian.Uint64(slot[0:8]))
		meta := binary.LittleEndian.Uint32(slot[8:12])
		if amountRaw == 0 && meta == 0 {
			continue
		}

		id := meta & tokenIDMask
		assetMeta := resolver.AssetMeta(tag, id)
		decimals := resolver.TokenDecimals(id)

		balances = append(balances, &domain.AssetBalance{
			Symbol:    assetMeta.Symbol,
			Tag:       tag,
			ID:        id,
			Decimals:  decimals,
			RawAmount: strconv.FormatInt(amountRaw, 10),
			UIAmount:  float64(amountRaw) / math.Pow10(decimals),
		})
	}

	return balances, perps
}

// reconstructPositions folds the fill history into net positions per
// instrument and appends any that survive the dust filter. Errors are
// logged, not returned: reconstruction is best effort on top of an
// otherwise valid snapshot.
func (r *Reader) reconstructPositions(ctx context.Context, wallet string, data *domain.AccountData) {
	clientAcc, err := deriverse.ClientAccountAddress(wallet, r.programID)
	if err != nil {
		return
	}

	txs, err := r.history.FetchAccount(ctx, wallet, clientAcc)
	if err != nil {
		r.logger.Printf("position reconstruction for %s failed: %v", wallet, err)
		return
	}

	for _, pos := range ReconstructPositions(txs, r.resolver) {
		uiQty := pos.NetQty / 1e9
		side := "long"
		if uiQty < 0 {
			side = "short"
		}
		data.Balances = append(data.Balances, &domain.AssetBalance{
			Symbol:          pos.Market,
			Tag:             perpSlotTag,
			ID:              pos.InstrID,
			Decimals:        9,
			RawAmount:       strconv.FormatFloat(pos.NetQty, 'f', -1, 64),
			UIAmount:        uiQty,
			Side:            side,
			IsReconstructed: true,
		})
	}
}

// reconstructionDust is the raw base unit threshold under which a net
// quantity counts as a closed position.
const reconstructionDust = 1000.0

// ReconstructPositions aggregates raw base deltas per instrument across
// the fill history.
func ReconstructPositions(txs []*domain.TxRecords, resolver *metadata.Resolver) []domain.ReconstructedPosition {
	sums := make(map[uint32]float64)

	for _, tx := range txs {
		for _, rec := range tx.Records {
			if rec.InstrID == nil || rec.BaseChange == nil {
				continue
			}
			change := *rec.BaseChange
			if math.Abs(change) < 1e-9 {
				continue
			}
			sums[*rec.InstrID] += change
		}
	}

	out := make([]domain.ReconstructedPosition, 0, len(sums))
	for id, qty := range sums {
		if math.Abs(qty) <= reconstructionDust {
			continue
		}
		out = append(out, domain.ReconstructedPosition{
			InstrID: id,
			Market:  resolver.MarketName(id),
			NetQty:  qty,
		})
	}

	// Deterministic output order by instrument id.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1].InstrID > out[j].InstrID; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}
