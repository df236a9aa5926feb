package domain

import "encoding/json"

// EventKind labels a timeline entry.
type EventKind string

// Timeline event kinds.
const (
	EventKindTrade          EventKind = "trade"
	EventKindFunding        EventKind = "funding"
	EventKindFee            EventKind = "fee"
	EventKindSocializedLoss EventKind = "socialized_loss"
	EventKindLiquidation    EventKind = "liquidation"
)

// TimelineEvent is one enriched entry of a wallet's replayed history.
// All numeric fields are rounded to 8 decimal places at emission time.
type TimelineEvent struct {
	Timestamp int64     `json:"timestamp"`
	Datetime  string    `json:"datetime"`
	Kind      EventKind `json:"type"`
	Market    string    `json:"market"`
	InstrID   uint32    `json:"instrId"`

	// Fill fields (trade / liquidation kinds).
	Side          string  `json:"side,omitempty"`
	Quantity      float64 `json:"quantity,omitempty"`
	Price         float64 `json:"price,omitempty"`
	Value         float64 `json:"value,omitempty"`
	RealizedPnL   float64 `json:"realized_pnl"`
	PositionSize  float64 `json:"position_size"`
	AvgEntryPrice float64 `json:"avg_entry_price"`
	OrderType     string  `json:"order_type,omitempty"`

	// Cash-flow fields (funding / fee / socialized_loss kinds).
	FundingAmount     float64 `json:"funding_amount,omitempty"`
	FeeAmount         float64 `json:"fee_amount,omitempty"`
	LossAmount        float64 `json:"loss_amount,omitempty"`
	CumulativeFunding float64 `json:"cumulative_funding,omitempty"`
	CumulativeFees    float64 `json:"cumulative_fees,omitempty"`
	CumulativeSocLoss float64 `json:"cumulative_soc_loss,omitempty"`

	CumulativeRealizedPnL float64 `json:"cumulative_realized_pnl"`
	Signature             string  `json:"signature"`
}

// InstrumentSummary is the final ledger state for one instrument.
type InstrumentSummary struct {
	CurrentPosition float64 `json:"current_position"`
	AvgEntryPrice   float64 `json:"avg_entry_price"`
	TotalFees       float64 `json:"total_fees"`
	TotalFunding    float64 `json:"total_funding"`
	TotalSocLoss    float64 `json:"total_soc_loss"`
}

// GlobalSummary carries cross-instrument totals.
type GlobalSummary struct {
	TotalRealizedPnL float64 `json:"total_realized_pnl"`
}

// Summary maps market names to per-instrument summaries plus a global
// section. It marshals flat, market names and "global" sharing one
// JSON object, to match the wire contract of the analytics API.
type Summary struct {
	Markets map[string]*InstrumentSummary
	Global  GlobalSummary
}

// MarshalJSON flattens markets and the global section into one object.
func (s Summary) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(s.Markets)+1)
	for name, instr := range s.Markets {
		out[name] = instr
	}
	out["global"] = s.Global
	return json.Marshal(out)
}

// UnmarshalJSON reverses MarshalJSON.
func (s *Summary) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	s.Markets = make(map[string]*InstrumentSummary, len(raw))
	for name, msg := range raw {
		if name == "global" {
			if err := json.Unmarshal(msg, &s.Global); err != nil {
				return err
			}
			continue
		}
		instr := &InstrumentSummary{}
		if err := json.Unmarshal(msg, instr); err != nil {
			return err
		}
		s.Markets[name] = instr
	}
	return nil
}

// ReplayResult is the full output of one wallet replay.
type ReplayResult struct {
	Wallet      string           `json:"wallet"`
	Timeline    []*TimelineEvent `json:"timeline"`
	Summary     Summary          `json:"summary"`
	TotalEvents int              `json:"total_events"`
}

// EmptyReplayResult returns a well-formed zero result for wallets with
// no trading account. Callers never receive an error for that case.
func EmptyReplayResult(wallet string) *ReplayResult {
	return &ReplayResult{
		Wallet:   wallet,
		Timeline: []*TimelineEvent{},
		Summary: Summary{
			Markets: map[string]*InstrumentSummary{},
		},
	}
}
