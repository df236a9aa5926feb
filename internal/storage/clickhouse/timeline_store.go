package clickhouse

import (
	"context"
	"fmt"

	"deriverse-analytics/internal/domain"
	"deriverse-analytics/internal/storage"
)

// TimelineStore implements storage.TimelineStore using ClickHouse.
// The table is a plain MergeTree sink; replays of the same wallet are
// deduplicated by deleting before appending at the call site, not here.
type TimelineStore struct {
	conn *Conn
}

// NewTimelineStore creates a new TimelineStore.
func NewTimelineStore(conn *Conn) *TimelineStore {
	return &TimelineStore{conn: conn}
}

// Compile-time interface check.
var _ storage.TimelineStore = (*TimelineStore)(nil)

// Append stores a replay's timeline events tagged with the wallet.
func (s *TimelineStore) Append(ctx context.Context, wallet string, events []*domain.TimelineEvent) error {
	if len(events) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO pnl_timeline_events (
			wallet, timestamp, event_type, market, instr_id,
			side, quantity, price, value, realized_pnl,
			position_size, avg_entry_price, order_type,
			funding_amount, fee_amount, loss_amount,
			cumulative_realized_pnl, signature
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, ev := range events {
		err = batch.Append(
			wallet, uint64(ev.Timestamp), string(ev.Kind), ev.Market, ev.InstrID,
			ev.Side, ev.Quantity, ev.Price, ev.Value, ev.RealizedPnL,
			ev.PositionSize, ev.AvgEntryPrice, ev.OrderType,
			ev.FundingAmount, ev.FeeAmount, ev.LossAmount,
			ev.CumulativeRealizedPnL, ev.Signature,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByWallet retrieves stored events for a wallet in chronological order.
func (s *TimelineStore) GetByWallet(ctx context.Context, wallet string) ([]*domain.TimelineEvent, error) {
	query := `
		SELECT timestamp, event_type, market, instr_id,
		       side, quantity, price, value, realized_pnl,
		       position_size, avg_entry_price, order_type,
		       funding_amount, fee_amount, loss_amount,
		       cumulative_realized_pnl, signature
		FROM pnl_timeline_events
		WHERE wallet = ?
		ORDER BY timestamp ASC, signature ASC
	`

	rows, err := s.conn.Query(ctx, query, wallet)
	if err != nil {
		return nil, fmt.Errorf("query timeline events: %w", err)
	}
	defer rows.Close()

	var events []*domain.TimelineEvent
	for rows.Next() {
		var (
			ev        domain.TimelineEvent
			timestamp uint64
			kind      string
		)
		err := rows.Scan(
			&timestamp, &kind, &ev.Market, &ev.InstrID,
			&ev.Side, &ev.Quantity, &ev.Price, &ev.Value, &ev.RealizedPnL,
			&ev.PositionSize, &ev.AvgEntryPrice, &ev.OrderType,
			&ev.FundingAmount, &ev.FeeAmount, &ev.LossAmount,
			&ev.CumulativeRealizedPnL, &ev.Signature,
		)
		if err != nil {
			return nil, fmt.Errorf("scan timeline event row: %w", err)
		}
		ev.Timestamp = int64(timestamp)
		ev.Kind = domain.EventKind(kind)
		events = append(events, &ev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate timeline event rows: %w", err)
	}

	return events, nil
}

// DeleteWallet drops a wallet's stored events before a fresh replay is
// appended.
func (s *TimelineStore) DeleteWallet(ctx context.Context, wallet string) error {
	err := s.conn.Exec(ctx, `ALTER TABLE pnl_timeline_events DELETE WHERE wallet = ?`, wallet)
	if err != nil {
		return fmt.Errorf("delete timeline events: %w", err)
	}
	return nil
}
