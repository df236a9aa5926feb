// Package metadata resolves instrument and token identifiers into
// display labels. The token map mirrors the devnet deployment; unknown
// ids fall back to generated labels rather than failing.
package metadata

import (
	"fmt"
	"sort"
	"sync"

	"deriverse-analytics/internal/domain"
)

// TokenMeta describes one token known to the resolver.
type TokenMeta struct {
	Symbol   string
	Decimals int
}

// Instrument pairs an asset token with a quote currency token.
type Instrument struct {
	InstrID      uint32
	AssetTokenID uint32
	CrncyTokenID uint32
}

// Market is one entry of the markets listing.
type Market struct {
	InstrID  uint32 `json:"instrId"`
	Name     string `json:"name"`
	Decimals int    `json:"decimals"`
}

// Tag classes used by asset metadata lookups on balance entries.
const (
	tagAsset = 1
	tagCrncy = 2
	TagSpot  = 3
	TagPerp  = 4
)

// Resolver translates instrument ids, token ids and order type codes
// into display labels. Safe for concurrent use.
type Resolver struct {
	mu          sync.RWMutex
	tokens      map[uint32]TokenMeta
	instruments map[uint32]Instrument
}

// NewResolver creates a resolver seeded with the known devnet token set
// and the default SOL/USDC instrument.
func NewResolver() *Resolver {
	r := &Resolver{
		tokens: map[uint32]TokenMeta{
			0:        {Symbol: "DRVS", Decimals: 8},
			1:        {Symbol: "USDC", Decimals: 6},
			2:        {Symbol: "SOL", Decimals: 9},
			4:        {Symbol: "LETTERA", Decimals: 5},
			6:        {Symbol: "VELIT", Decimals: 6},
			8:        {Symbol: "SUN", Decimals: 4},
			10:       {Symbol: "BRSH", Decimals: 6},
			12:       {Symbol: "MSHK", Decimals: 4},
			14:       {Symbol: "SOL", Decimals: 6},
			16:       {Symbol: "trs", Decimals: 6},
			18:       {Symbol: "sad", Decimals: 6},
			20:       {Symbol: "MDVD", Decimals: 9},
			22:       {Symbol: "333", Decimals: 9},
			24:       {Symbol: "BRSH", Decimals: 4},
			26:       {Symbol: "1", Decimals: 6},
			28:       {Symbol: "TST", Decimals: 6},
			30:       {Symbol: "asd", Decimals: 6},
			16777217: {Symbol: "SOL", Decimals: 9},
			16777220: {Symbol: "USDC", Decimals: 6},
			67108864: {Symbol: "LETTERA", Decimals: 5},
		},
		instruments: map[uint32]Instrument{
			0: {InstrID: 0, AssetTokenID: 16777217, CrncyTokenID: 1},
		},
	}
	return r
}

// RegisterInstrument adds or replaces an instrument definition.
func (r *Resolver) RegisterInstrument(instr Instrument) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.instruments[instr.InstrID] = instr
}

// InstrumentByAsset finds the instrument whose base asset token matches.
// Asset id 0 falls back to instrument 0 when registered.
func (r *Resolver) InstrumentByAsset(assetTokenID uint32) (uint32, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for id, instr := range r.instruments {
		if instr.AssetTokenID == assetTokenID {
			return id, true
		}
	}
	if assetTokenID == 0 {
		if _, ok := r.instruments[0]; ok {
			return 0, true
		}
	}
	return 0, false
}

// RegisterToken adds or replaces a token definition.
func (r *Resolver) RegisterToken(id uint32, meta TokenMeta) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens[id] = meta
}

// AssetMeta returns symbol and decimals for a token id, falling back to
// a tag-based generated label when the id is unknown.
func (r *Resolver) AssetMeta(tag int, id uint32) TokenMeta {
	r.mu.RLock()
	meta, ok := r.tokens[id]
	r.mu.RUnlock()
	if ok {
		return meta
	}

	switch tag {
	case TagPerp:
		return TokenMeta{Symbol: fmt.Sprintf("PERP-INSTR-%d", id), Decimals: 9}
	case TagSpot:
		return TokenMeta{Symbol: fmt.Sprintf("SPOT-INSTR-%d", id), Decimals: 9}
	case tagCrncy:
		return TokenMeta{Symbol: "USDC", Decimals: 6}
	}
	return TokenMeta{Symbol: fmt.Sprintf("Token-%d", id), Decimals: 9}
}

// TokenDecimals returns the decimals of a token id, defaulting to 9.
func (r *Resolver) TokenDecimals(id uint32) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if meta, ok := r.tokens[id]; ok {
		return meta.Decimals
	}
	return 9
}

// MarketName resolves an instrument id to "ASSET/CRNCY". Instrument 0
// is always SOL/USDC; unknown instruments get a generated label.
func (r *Resolver) MarketName(instrID uint32) string {
	if instrID == 0 {
		return "SOL/USDC"
	}

	r.mu.RLock()
	instr, ok := r.instruments[instrID]
	r.mu.RUnlock()
	if !ok {
		return fmt.Sprintf("Instrument-%d", instrID)
	}

	asset := r.AssetMeta(tagAsset, instr.AssetTokenID)
	crncy := r.AssetMeta(tagCrncy, instr.CrncyTokenID)
	return asset.Symbol + "/" + crncy.Symbol
}

// Markets returns the instrument listing sorted by id.
func (r *Resolver) Markets() []Market {
	r.mu.RLock()
	ids := make([]uint32, 0, len(r.instruments))
	for id := range r.instruments {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	markets := make([]Market, 0, len(ids))
	for _, id := range ids {
		markets = append(markets, Market{
			InstrID:  id,
			Name:     r.MarketName(id),
			Decimals: 9,
		})
	}
	return markets
}

// OrderTypeLabel maps an order type code to its display label.
// A nil code means the type could not be resolved from the transaction.
func OrderTypeLabel(orderType *uint8) string {
	if orderType == nil {
		return "Unknown"
	}
	switch int(*orderType) {
	case domain.OrderTypeLimit:
		return "Limit"
	case domain.OrderTypeMarket:
		return "Market"
	case domain.OrderTypeMarginCall:
		return "Margin Call"
	case domain.OrderTypeForcedClose:
		return "Forced Close"
	}
	return fmt.Sprintf("Unknown (%d)", *orderType)
}
