// Package timeline orchestrates a full PnL replay: it drives the
// position ledger over ordered transaction batches and produces the
// filtered, chronologically sorted timeline plus the summary view.
package timeline

import (
	"log"
	"sort"

	"deriverse-analytics/internal/domain"
	"deriverse-analytics/internal/ledger"
	"deriverse-analytics/internal/observability"
)

// DefaultLimit caps the timeline length when no limit is requested.
const DefaultLimit = 1000

// Options controls post-replay filtering of the timeline. The summary
// is always built from the full ledger state regardless of Options.
type Options struct {
	InstrID *uint32 // keep only events for this instrument
	Limit   int     // keep the last N events; 0 means DefaultLimit
}

// Assembler replays decoded transaction batches through a fresh ledger.
// Each call to Replay owns its own ledger state, so concurrent replays
// for different wallets need no synchronization.
type Assembler struct {
	namer  ledger.MarketNamer
	logger *log.Logger
}

// NewAssembler creates an assembler. A nil logger falls back to
// log.Default().
func NewAssembler(namer ledger.MarketNamer, logger *log.Logger) *Assembler {
	if logger == nil {
		logger = log.Default()
	}
	return &Assembler{namer: namer, logger: logger}
}

// Replay processes transactions oldest-to-newest and returns the
// enriched timeline and summary. The input may arrive newest-first
// (the signature transport delivers it that way); ordering here is
// what keeps avg entry prices and realized PnL correct.
func (a *Assembler) Replay(wallet string, txs []*domain.TxRecords, opts Options) *domain.ReplayResult {
	led := ledger.New(a.namer)

	var events []*domain.TimelineEvent
	dropped := 0

	for _, tx := range orderChronologically(txs) {
		txCtx := ledger.NewTxContext(tx.Records)

		for _, rec := range tx.Records {
			ev, err := ledger.Classify(rec, txCtx)
			if err != nil {
				if err == ledger.ErrUnattributable {
					dropped++
					observability.RecordAttributionDrop()
				}
				continue
			}
			if te := led.Apply(ev, tx.Timestamp, tx.Signature); te != nil {
				observability.RecordEventClassified(string(te.Kind))
				events = append(events, te)
			}
		}
	}

	if dropped > 0 {
		a.logger.Printf("replay %s: dropped %d unattributable records", wallet, dropped)
	}

	if opts.InstrID != nil {
		filtered := events[:0]
		for _, e := range events {
			if e.InstrID == *opts.InstrID {
				filtered = append(filtered, e)
			}
		}
		events = filtered
	}

	// Defensive final sort: upstream fetch/decode may be concurrent,
	// so intra-batch order is not guaranteed. Stable keeps input order
	// as the tiebreaker for equal timestamps.
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp < events[j].Timestamp
	})

	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if len(events) > limit {
		events = events[len(events)-limit:]
	}
	if events == nil {
		events = []*domain.TimelineEvent{}
	}

	return &domain.ReplayResult{
		Wallet:      wallet,
		Timeline:    events,
		Summary:     led.Summary(),
		TotalEvents: len(events),
	}
}

// orderChronologically returns a copy of txs ordered oldest-first.
// The input is reversed first (transports deliver newest-first), then
// stable-sorted by block time so same-second transactions keep their
// on-chain relative order.
func orderChronologically(txs []*domain.TxRecords) []*domain.TxRecords {
	ordered := make([]*domain.TxRecords, len(txs))
	for i, tx := range txs {
		ordered[len(txs)-1-i] = tx
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Timestamp < ordered[j].Timestamp
	})
	return ordered
}
