// Package ledger reconstructs per-instrument derivative positions from
// a chronological event stream: net size, volume-weighted entry price,
// realized PnL and the fee/funding/socialized-loss accumulators.
package ledger

import (
	"math"
	"time"

	"deriverse-analytics/internal/domain"
	"deriverse-analytics/internal/metadata"
)

// dustEpsilon snaps a nearly closed position to exactly flat so float
// residue never survives a full close.
const dustEpsilon = 1e-10

// emitScale rounds outputs to 8 decimal places. Rounding happens at
// emission only; internal state carries full precision so long replays
// do not compound rounding error.
const emitScale = 1e8

func round8(v float64) float64 {
	return math.Round(v*emitScale) / emitScale
}

// MarketNamer resolves instrument ids to display names.
type MarketNamer interface {
	MarketName(instrID uint32) string
}

// PositionState is the mutable per-instrument state. (size, avgEntry)
// fully describe the open position; the totals are running accumulators
// that are never reset mid-replay.
type PositionState struct {
	Size         float64
	AvgEntry     float64
	TotalFees    float64
	TotalFunding float64
	TotalSocLoss float64
}

// Ledger folds classified events into per-instrument position states
// and a running global realized PnL. It is strictly sequential: events
// must be applied in one committed chronological order. Each replay
// owns its own Ledger; no state is shared across replays.
type Ledger struct {
	states map[uint32]*PositionState
	global float64
	namer  MarketNamer
}

// New creates an empty ledger.
func New(namer MarketNamer) *Ledger {
	return &Ledger{
		states: make(map[uint32]*PositionState),
		namer:  namer,
	}
}

// GlobalRealizedPnL returns the running cross-instrument realized PnL.
func (l *Ledger) GlobalRealizedPnL() float64 {
	return l.global
}

// state returns the instrument's state, creating it lazily.
func (l *Ledger) state(instrID uint32) *PositionState {
	s, ok := l.states[instrID]
	if !ok {
		s = &PositionState{}
		l.states[instrID] = s
	}
	return s
}

// Apply folds one classified event into the ledger and emits the
// enriched timeline entry carrying the post-update state snapshot.
// Order-placement and cancel events return nil: they mutate nothing.
func (l *Ledger) Apply(ev *Event, timestamp int64, signature string) *domain.TimelineEvent {
	switch ev.Class {
	case ClassFill:
		return l.applyFill(ev, timestamp, signature)
	case ClassFunding:
		return l.applyFunding(ev, timestamp, signature)
	case ClassFee:
		return l.applyFee(ev, timestamp, signature)
	case ClassSocLoss:
		return l.applySocLoss(ev, timestamp, signature)
	}
	return nil
}

func (l *Ledger) applyFill(ev *Event, timestamp int64, signature string) *domain.TimelineEvent {
	s := l.state(ev.InstrID)

	qty := ev.Quantity
	price := ev.Price
	isBuy := ev.Side == SideBuy

	var realized float64
	prevSize := s.Size
	isClosing := (prevSize > 0 && !isBuy) || (prevSize < 0 && isBuy)

	if isClosing {
		closedQty := math.Min(qty, math.Abs(prevSize))
		if prevSize > 0 {
			realized = (price - s.AvgEntry) * closedQty
		} else {
			realized = (s.AvgEntry - price) * closedQty
		}
		l.global += realized

		remainder := qty - closedQty
		if remainder > 0 {
			// The fill flips the position: the remainder opens a new
			// position on the opposite side at the fill price.
			if isBuy {
				s.Size = remainder
			} else {
				s.Size = -remainder
			}
			s.AvgEntry = price
		} else {
			if isBuy {
				s.Size += qty
			} else {
				s.Size -= qty
			}
			if math.Abs(s.Size) < dustEpsilon {
				s.Size = 0
				s.AvgEntry = 0
			}
		}
	} else {
		// Same-side add, or opening from flat: volume-weighted entry.
		absSize := math.Abs(s.Size)
		newAbsSize := absSize + qty
		if newAbsSize > 0 {
			s.AvgEntry = (absSize*s.AvgEntry + qty*price) / newAbsSize
		}
		if isBuy {
			s.Size += qty
		} else {
			s.Size -= qty
		}
	}

	kind := domain.EventKindTrade
	if ev.OrderType != nil {
		switch int(*ev.OrderType) {
		case domain.OrderTypeMarginCall, domain.OrderTypeForcedClose:
			kind = domain.EventKindLiquidation
		}
	}

	te := l.newEvent(kind, ev.InstrID, timestamp, signature)
	te.Side = ev.Side.String()
	te.Quantity = round8(qty)
	te.Price = round8(price)
	te.Value = round8(qty * price)
	te.RealizedPnL = round8(realized)
	te.PositionSize = round8(s.Size)
	te.AvgEntryPrice = round8(s.AvgEntry)
	te.OrderType = metadata.OrderTypeLabel(ev.OrderType)
	return te
}

func (l *Ledger) applyFunding(ev *Event, timestamp int64, signature string) *domain.TimelineEvent {
	s := l.state(ev.InstrID)
	s.TotalFunding += ev.Funding
	l.global += ev.Funding

	te := l.newEvent(domain.EventKindFunding, ev.InstrID, timestamp, signature)
	te.FundingAmount = round8(ev.Funding)
	te.CumulativeFunding = round8(s.TotalFunding)
	return te
}

func (l *Ledger) applyFee(ev *Event, timestamp int64, signature string) *domain.TimelineEvent {
	s := l.state(ev.InstrID)
	s.TotalFees += ev.Fee
	l.global -= ev.Fee

	te := l.newEvent(domain.EventKindFee, ev.InstrID, timestamp, signature)
	te.FeeAmount = round8(ev.Fee)
	te.CumulativeFees = round8(s.TotalFees)
	return te
}

func (l *Ledger) applySocLoss(ev *Event, timestamp int64, signature string) *domain.TimelineEvent {
	s := l.state(ev.InstrID)
	s.TotalSocLoss += ev.SocLoss
	l.global -= ev.SocLoss

	te := l.newEvent(domain.EventKindSocializedLoss, ev.InstrID, timestamp, signature)
	te.LossAmount = round8(ev.SocLoss)
	te.CumulativeSocLoss = round8(s.TotalSocLoss)
	return te
}

func (l *Ledger) newEvent(kind domain.EventKind, instrID uint32, timestamp int64, signature string) *domain.TimelineEvent {
	return &domain.TimelineEvent{
		Timestamp:             timestamp,
		Datetime:              time.Unix(timestamp, 0).UTC().Format(time.RFC3339),
		Kind:                  kind,
		Market:                l.namer.MarketName(instrID),
		InstrID:               instrID,
		CumulativeRealizedPnL: round8(l.global),
		Signature:             signature,
	}
}

// Summary builds the final per-instrument view plus the global total.
// It reflects full ledger state, independent of any timeline filter.
func (l *Ledger) Summary() domain.Summary {
	markets := make(map[string]*domain.InstrumentSummary, len(l.states))
	for instrID, s := range l.states {
		markets[l.namer.MarketName(instrID)] = &domain.InstrumentSummary{
			CurrentPosition: round8(s.Size),
			AvgEntryPrice:   round8(s.AvgEntry),
			TotalFees:       round8(s.TotalFees),
			TotalFunding:    round8(s.TotalFunding),
			TotalSocLoss:    round8(s.TotalSocLoss),
		}
	}
	return domain.Summary{
		Markets: markets,
		Global:  domain.GlobalSummary{TotalRealizedPnL: round8(l.global)},
	}
}

// State returns the instrument's current state, or nil if the
// instrument has never been touched.
func (l *Ledger) State(instrID uint32) *PositionState {
	return l.states[instrID]
}
