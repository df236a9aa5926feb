package domain

// AssetBalance is one balance entry read from a client account buffer.
type AssetBalance struct {
	Symbol    string  `json:"symbol"`
	Tag       int     `json:"tag"`
	ID        uint32  `json:"id"`
	Decimals  int     `json:"decimals"`
	RawAmount string  `json:"raw_amount"`
	UIAmount  float64 `json:"ui_amount"`

	// Perp-only fields (tag 4 entries).
	Side            string `json:"side,omitempty"`
	IsReconstructed bool   `json:"is_reconstructed,omitempty"`
}

// AccountData is the balance snapshot for one wallet.
type AccountData struct {
	Wallet   string          `json:"wallet"`
	Balances []*AssetBalance `json:"balances"`
}

// PerpEntry references a perpetual position slot inside a client
// account buffer (tag 4 entries).
type PerpEntry struct {
	InstrID  uint32
	ClientID uint32
}

// ReconstructedPosition is a net position recovered from event history
// when no live snapshot exists.
type ReconstructedPosition struct {
	InstrID uint32
	Market  string
	NetQty  float64 // raw base units, signed
}
