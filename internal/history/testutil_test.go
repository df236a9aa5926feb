package history

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"

	"deriverse-analytics/internal/deriverse"
	"deriverse-analytics/internal/domain"
	"deriverse-analytics/internal/solana"
)

// payload builders mirroring the on-chain report layouts.

type payload struct {
	buf []byte
}

func report(tag int) *payload {
	return &payload{buf: []byte{byte(tag)}}
}

func (p *payload) u8(v uint8) *payload {
	p.buf = append(p.buf, v)
	return p
}

func (p *payload) u32(v uint32) *payload {
	p.buf = binary.LittleEndian.AppendUint32(p.buf, v)
	return p
}

func (p *payload) u64(v uint64) *payload {
	p.buf = binary.LittleEndian.AppendUint64(p.buf, v)
	return p
}

func (p *payload) i64(v int64) *payload {
	p.buf = binary.LittleEndian.AppendUint64(p.buf, uint64(v))
	return p
}

func (p *payload) logLine() string {
	return "Program data: " + base64.StdEncoding.EncodeToString(p.buf)
}

// perpFillLog builds a tag 19 report line with raw fixed-point values.
func perpFillLog(instrID uint32, orderID uint64, side uint8, base, quote, price int64) string {
	return report(domain.TagPerpFill).u32(instrID).u64(orderID).u8(side).i64(base).i64(quote).i64(price).logLine()
}

func perpFeeLog(orderID uint64, fee int64) string {
	return report(domain.TagPerpFee).u64(orderID).i64(fee).logLine()
}

func spotFillLog(instrID uint32, orderID uint64, side uint8, base, quote, fee int64) string {
	return report(domain.TagSpotFill).u32(instrID).u64(orderID).u8(side).i64(base).i64(quote).i64(fee).logLine()
}

func placeOrderLog(instrID uint32, orderID uint64, orderType, side uint8, price, qty int64) string {
	return report(domain.TagPerpPlaceOrder).u32(instrID).u64(orderID).u8(orderType).u8(side).i64(price).i64(qty).logLine()
}

// programTx wraps report lines into a transaction invoking the program.
func programTx(sig string, slot, blockTime int64, reports ...string) *solana.Transaction {
	logs := []string{
		fmt.Sprintf("Program %s invoke [1]", deriverse.ProgramID),
	}
	logs = append(logs, reports...)
	logs = append(logs, fmt.Sprintf("Program %s success", deriverse.ProgramID))

	return &solana.Transaction{
		Signature: sig,
		Slot:      slot,
		BlockTime: blockTime,
		Meta:      &solana.TransactionMeta{LogMessages: logs},
	}
}
