package history

import (
	"time"

	"deriverse-analytics/internal/deriverse"
	"deriverse-analytics/internal/domain"
	"deriverse-analytics/internal/ledger"
	"deriverse-analytics/internal/metadata"
)

// RecordView is one decoded report presented on the raw-log endpoint.
// Unlike the PnL timeline it carries no ledger state. Unknown tags pass
// through with their raw payload and no enrichment.
type RecordView struct {
	Report  string `json:"report"`
	Tag     int    `json:"tag"`
	Market  string `json:"market,omitempty"`
	Side    string `json:"side,omitempty"`
	OrderID uint64 `json:"orderId,omitempty"`

	Quantity float64 `json:"quantity,omitempty"`
	Price    float64 `json:"price,omitempty"`
	Fee      float64 `json:"fee,omitempty"`
	Funding  float64 `json:"funding,omitempty"`
	SocLoss  float64 `json:"soc_loss,omitempty"`

	OrderType string `json:"order_type,omitempty"`
	Raw       []byte `json:"raw,omitempty"`
}

// TxLog is the decoded report history of one transaction.
type TxLog struct {
	Signature string       `json:"signature"`
	Slot      int64        `json:"slot"`
	Timestamp int64        `json:"timestamp"`
	Datetime  string       `json:"datetime"`
	Records   []RecordView `json:"records"`
}

// TransactionLogs builds the enriched raw-log history, oldest first.
// txs are expected newest first, as returned by the fetcher. Fee
// reports are folded into the fills of the same order within one
// transaction; fee reports naming no order attach to orderless fills.
func TransactionLogs(txs []*domain.TxRecords, namer ledger.MarketNamer) []TxLog {
	logs := make([]TxLog, 0, len(txs))

	for i := len(txs) - 1; i >= 0; i-- {
		tx := txs[i]
		ctx := ledger.NewTxContext(tx.Records)

		fees := make(map[uint64]float64)
		var looseFee float64
		for _, r := range tx.Records {
			if ledger.ClassOf(r.Tag) != ledger.ClassFee || r.Fee == nil {
				continue
			}
			fee := ledger.NormalizeScale(*r.Fee, ledger.QuoteDecimals)
			if r.OrderID != nil {
				fees[*r.OrderID] += fee
			} else {
				looseFee += fee
			}
		}

		views := make([]RecordView, 0, len(tx.Records))
		for _, r := range tx.Records {
			view := recordView(r, ctx, namer)
			if isFillTag(r.Tag) {
				if f, ok := fees[view.OrderID]; ok && view.OrderID != 0 {
					view.Fee = f
				} else if looseFee != 0 {
					view.Fee = looseFee
				}
			}
			views = append(views, view)
		}

		logs = append(logs, TxLog{
			Signature: tx.Signature,
			Slot:      tx.Slot,
			Timestamp: tx.Timestamp,
			Datetime:  time.Unix(tx.Timestamp, 0).UTC().Format(time.RFC3339),
			Records:   views,
		})
	}

	return logs
}

func isFillTag(tag int) bool {
	switch tag {
	case domain.TagPerpFill, domain.TagPerpFillAlt, domain.TagSpotFill, domain.TagSpotFillAlt:
		return true
	}
	return false
}

func recordView(r *domain.LogRecord, ctx *ledger.TxContext, namer ledger.MarketNamer) RecordView {
	view := RecordView{
		Report: deriverse.ReportTypeLabel(r.Tag),
		Tag:    r.Tag,
	}

	if r.Raw != nil {
		view.Raw = r.Raw
		return view
	}

	if r.OrderID != nil {
		view.OrderID = *r.OrderID
	}

	switch {
	case r.InstrID != nil:
		view.Market = namer.MarketName(*r.InstrID)
	default:
		if id, ok := ctx.InstrForOrder(view.OrderID); ok {
			view.Market = namer.MarketName(id)
		} else if id, ok := ctx.SoleInstrument(); ok {
			view.Market = namer.MarketName(id)
		}
	}

	if r.Funding != nil {
		view.Funding = ledger.NormalizeScale(*r.Funding, ledger.QuoteDecimals)
	}
	if r.SocLoss != nil {
		view.SocLoss = ledger.NormalizeScale(*r.SocLoss, ledger.QuoteDecimals)
	}
	if ledger.ClassOf(r.Tag) == ledger.ClassFee && r.Fee != nil {
		view.Fee = ledger.NormalizeScale(*r.Fee, ledger.QuoteDecimals)
	}

	if !isFillTag(r.Tag) && ledger.ClassOf(r.Tag) != ledger.ClassOrderPlaced {
		return view
	}

	view.Side = "BUY"
	var base float64
	if r.BaseChange != nil {
		base = ledger.NormalizeScale(*r.BaseChange, ledger.BaseDecimals)
	}
	if r.Side != nil {
		if *r.Side != 0 {
			view.Side = "SELL"
		}
	} else if base < 0 {
		view.Side = "SELL"
	}
	if base < 0 {
		base = -base
	}
	view.Quantity = base

	if r.Price != nil {
		view.Price = ledger.NormalizeScale(*r.Price, ledger.PriceDecimals)
	}
	// Spot fill reports carry their own fee field.
	if r.Fee != nil {
		view.Fee = ledger.NormalizeScale(*r.Fee, ledger.QuoteDecimals)
	}

	orderType := ctx.OrderType(view.OrderID)
	if orderType == nil {
		orderType = r.OrderType
	}
	view.OrderType = metadata.OrderTypeLabel(orderType)

	return view
}
