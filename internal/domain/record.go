package domain

// Deriverse log report tags. The on-chain program emits one report per
// state change; a single transaction usually carries several.
const (
	TagSpotPlaceOrder  = 10
	TagSpotFill        = 11
	TagSpotFillAlt     = 16
	TagPerpPlaceOrder  = 14
	TagPerpFee         = 15
	TagPerpPlaceOrder2 = 18
	TagPerpFill        = 19
	TagPerpOpenOrder   = 20
	TagPerpOrderCancel = 21
	TagPerpFeeAlt      = 23
	TagPerpFunding     = 24
	TagPerpFillAlt     = 25
	TagPerpSocLoss     = 27
)

// Order type codes carried on place-order reports.
const (
	OrderTypeLimit       = 0
	OrderTypeMarket      = 1
	OrderTypeMarginCall  = 2
	OrderTypeForcedClose = 3
)

// LogRecord is one decoded report from a transaction's program logs.
// Field presence varies by tag; absent fields are nil. Numeric fields
// keep whatever scale the program emitted (raw fixed-point or UI);
// disambiguation happens in the ledger's scale normalizer.
type LogRecord struct {
	Tag       int     `json:"tag"`
	InstrID   *uint32 `json:"instrId,omitempty"`
	OrderID   *uint64 `json:"orderId,omitempty"`
	OrderType *uint8  `json:"orderType,omitempty"`
	Side      *uint8  `json:"side,omitempty"` // 0 = buy, 1 = sell

	BaseChange  *float64 `json:"baseChange,omitempty"`  // position size delta (base units)
	QuoteChange *float64 `json:"quoteChange,omitempty"` // quote currency delta
	Price       *float64 `json:"price,omitempty"`
	Fee         *float64 `json:"fee,omitempty"`
	Funding     *float64 `json:"funding,omitempty"`
	SocLoss     *float64 `json:"socLoss,omitempty"`
	TokenID     *uint32  `json:"tokenId,omitempty"`

	// Raw holds the undecoded payload for unknown tags so the raw-log
	// endpoint can pass them through unmodified.
	Raw []byte `json:"raw,omitempty"`
}

// TxRecords groups the decoded reports of one transaction together with
// the transaction-level context they share.
type TxRecords struct {
	Signature string
	Slot      int64
	Timestamp int64 // Unix seconds (block time)
	Records   []*LogRecord
}

// U32Ptr, U64Ptr, U8Ptr and F64Ptr are small helpers for building
// records with optional fields (used heavily by decoders and tests).
func U32Ptr(v uint32) *uint32   { return &v }
func U64Ptr(v uint64) *uint64   { return &v }
func U8Ptr(v uint8) *uint8      { return &v }
func F64Ptr(v float64) *float64 { return &v }
