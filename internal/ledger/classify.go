package ledger

import (
	"math"

	"deriverse-analytics/internal/domain"
)

// Class is the semantic kind of a decoded record.
type Class int

// Record classes.
const (
	ClassUnknown Class = iota
	ClassFill
	ClassFunding
	ClassFee
	ClassSocLoss
	ClassOrderPlaced
	ClassOrderCancelled
)

// ClassOf maps a report tag to its class.
func ClassOf(tag int) Class {
	switch tag {
	case domain.TagPerpFill, domain.TagPerpFillAlt:
		return ClassFill
	case domain.TagPerpFunding:
		return ClassFunding
	case domain.TagPerpFee, domain.TagPerpFeeAlt:
		return ClassFee
	case domain.TagPerpSocLoss:
		return ClassSocLoss
	case domain.TagPerpPlaceOrder, domain.TagPerpPlaceOrder2, domain.TagSpotPlaceOrder:
		return ClassOrderPlaced
	case domain.TagPerpOrderCancel:
		return ClassOrderCancelled
	}
	return ClassUnknown
}

// Side of a fill.
type Side int

// Fill sides.
const (
	SideBuy Side = iota
	SideSell
)

func (s Side) String() string {
	if s == SideSell {
		return "SELL"
	}
	return "BUY"
}

// TxContext holds the id-resolution tables built from one transaction's
// records. It is function-scoped: built once per transaction and passed
// into Classify, never shared across transactions.
type TxContext struct {
	orderToInstr map[uint64]uint32
	orderToType  map[uint64]uint8
	instrIDs     []uint32
}

// NewTxContext pre-scans a transaction's records and builds the
// orderId→instrId and orderId→orderType association tables plus the set
// of instrument ids seen anywhere in the transaction.
func NewTxContext(records []*domain.LogRecord) *TxContext {
	ctx := &TxContext{
		orderToInstr: make(map[uint64]uint32),
		orderToType:  make(map[uint64]uint8),
	}
	seen := make(map[uint32]struct{})

	for _, r := range records {
		if r.InstrID != nil {
			if _, ok := seen[*r.InstrID]; !ok {
				seen[*r.InstrID] = struct{}{}
				ctx.instrIDs = append(ctx.instrIDs, *r.InstrID)
			}
			if r.OrderID != nil {
				ctx.orderToInstr[*r.OrderID] = *r.InstrID
			}
		}
		if r.OrderID != nil && r.OrderType != nil {
			ctx.orderToType[*r.OrderID] = *r.OrderType
		}
	}
	return ctx
}

// OrderType returns the order type recorded for an order id, or nil.
func (c *TxContext) OrderType(orderID uint64) *uint8 {
	if t, ok := c.orderToType[orderID]; ok {
		v := t
		return &v
	}
	return nil
}

// InstrForOrder returns the instrument associated with an order id.
func (c *TxContext) InstrForOrder(orderID uint64) (uint32, bool) {
	id, ok := c.orderToInstr[orderID]
	return id, ok
}

// SoleInstrument returns the transaction's instrument when exactly one
// appears across all records.
func (c *TxContext) SoleInstrument() (uint32, bool) {
	if len(c.instrIDs) == 1 {
		return c.instrIDs[0], true
	}
	return 0, false
}

// Event is one classified record, normalized and ready for the ledger.
type Event struct {
	Class   Class
	InstrID uint32
	OrderID uint64

	// Fill fields. Quantity and Price are UI-scaled; Quantity is the
	// absolute size of the fill.
	Side      Side
	Quantity  float64
	Price     float64
	OrderType *uint8

	// Cash-flow fields, UI-scaled. Funding keeps its sign; fees and
	// socialized losses are magnitudes.
	Fee     float64
	Funding float64
	SocLoss float64
}

// Classify converts one decoded record into a ledger event.
//
// Instrument attribution: the record's own id wins; otherwise the
// transaction's orderId table; otherwise, if exactly one instrument
// appears in the transaction, that one. Records that still cannot be
// attributed return ErrUnattributable and are dropped by the caller.
func Classify(r *domain.LogRecord, ctx *TxContext) (*Event, error) {
	class := ClassOf(r.Tag)
	if class == ClassUnknown {
		return nil, ErrUnknownKind
	}

	instrID, ok := resolveInstrID(r, ctx)
	if !ok {
		return nil, ErrUnattributable
	}

	ev := &Event{
		Class:   class,
		InstrID: instrID,
	}
	if r.OrderID != nil {
		ev.OrderID = *r.OrderID
	}

	switch class {
	case ClassFill:
		base := 0.0
		if r.BaseChange != nil {
			base = NormalizeScale(*r.BaseChange, BaseDecimals)
		}
		ev.Quantity = math.Abs(base)
		if ev.Quantity == 0 {
			return nil, ErrZeroQuantity
		}

		if r.Side != nil {
			if *r.Side == 0 {
				ev.Side = SideBuy
			} else {
				ev.Side = SideSell
			}
		} else if base < 0 {
			ev.Side = SideSell
		}

		if r.Price != nil {
			ev.Price = NormalizeScale(*r.Price, PriceDecimals)
		}
		if ev.Price == 0 && r.QuoteChange != nil {
			quote := math.Abs(NormalizeScale(*r.QuoteChange, QuoteDecimals))
			if quote > 0 {
				ev.Price = quote / ev.Quantity
			}
		}

		ev.OrderType = ctx.OrderType(ev.OrderID)
		if ev.OrderType == nil && r.OrderType != nil {
			ev.OrderType = r.OrderType
		}

	case ClassFunding:
		if r.Funding != nil {
			ev.Funding = NormalizeScale(*r.Funding, QuoteDecimals)
		}

	case ClassFee:
		if r.Fee != nil {
			ev.Fee = NormalizeScale(*r.Fee, QuoteDecimals)
		}

	case ClassSocLoss:
		if r.SocLoss != nil {
			ev.SocLoss = NormalizeScale(*r.SocLoss, QuoteDecimals)
		}
	}

	return ev, nil
}

func resolveInstrID(r *domain.LogRecord, ctx *TxContext) (uint32, bool) {
	if r.InstrID != nil {
		return *r.InstrID, true
	}
	if r.OrderID != nil {
		if id, ok := ctx.orderToInstr[*r.OrderID]; ok {
			return id, true
		}
	}
	if len(ctx.instrIDs) == 1 {
		return ctx.instrIDs[0], true
	}
	return 0, false
}
