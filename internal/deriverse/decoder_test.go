package deriverse

import (
	"encoding/base64"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deriverse-analytics/internal/domain"
)

type payloadBuilder struct {
	buf []byte
}

func report(tag byte) *payloadBuilder {
	return &payloadBuilder{buf: []byte{tag}}
}

func (p *payloadBuilder) u8(v uint8) *payloadBuilder {
	p.buf = append(p.buf, v)
	return p
}

func (p *payloadBuilder) u32(v uint32) *payloadBuilder {
	p.buf = binary.LittleEndian.AppendUint32(p.buf, v)
	return p
}

func (p *payloadBuilder) u64(v uint64) *payloadBuilder {
	p.buf = binary.LittleEndian.AppendUint64(p.buf, v)
	return p
}

func (p *payloadBuilder) i64(v int64) *payloadBuilder {
	return p.u64(uint64(v))
}

func (p *payloadBuilder) logLine() string {
	return "Program data: " + base64.StdEncoding.EncodeToString(p.buf)
}

func TestDecodeReport_PerpFill(t *testing.T) {
	payload := report(domain.TagPerpFill).
		u32(3).u64(42).u8(1).i64(-2_000_000_000).i64(210_000_000).i64(105_000_000_000).buf

	rec, err := DecodeReport(payload)
	require.NoError(t, err)

	assert.Equal(t, domain.TagPerpFill, rec.Tag)
	require.NotNil(t, rec.InstrID)
	assert.Equal(t, uint32(3), *rec.InstrID)
	require.NotNil(t, rec.OrderID)
	assert.Equal(t, uint64(42), *rec.OrderID)
	require.NotNil(t, rec.Side)
	assert.Equal(t, uint8(1), *rec.Side)
	require.NotNil(t, rec.BaseChange)
	assert.InDelta(t, -2_000_000_000, *rec.BaseChange, 1e-9)
	require.NotNil(t, rec.QuoteChange)
	assert.InDelta(t, 210_000_000, *rec.QuoteChange, 1e-9)
	require.NotNil(t, rec.Price)
	assert.InDelta(t, 105_000_000_000, *rec.Price, 1e-9)
}

func TestDecodeReport_PerpFillAlt(t *testing.T) {
	// Tag 25 carries no instrument id; attribution happens later from
	// the transaction context.
	payload := report(domain.TagPerpFillAlt).
		u64(7).u8(0).i64(1_000_000_000).i64(99_000_000_000).buf

	rec, err := DecodeReport(payload)
	require.NoError(t, err)

	assert.Nil(t, rec.InstrID)
	require.NotNil(t, rec.OrderID)
	assert.Equal(t, uint64(7), *rec.OrderID)
	require.NotNil(t, rec.BaseChange)
	assert.InDelta(t, 1_000_000_000, *rec.BaseChange, 1e-9)
}

func TestDecodeReport_PlaceOrder(t *testing.T) {
	for _, tag := range []int{domain.TagPerpPlaceOrder, domain.TagPerpPlaceOrder2, domain.TagSpotPlaceOrder} {
		payload := report(byte(tag)).
			u32(1).u64(33).u8(uint8(domain.OrderTypeMarket)).u8(0).i64(100_000_000_000).i64(5_000_000_000).buf

		rec, err := DecodeReport(payload)
		require.NoError(t, err, "tag %d", tag)

		require.NotNil(t, rec.OrderType)
		assert.Equal(t, uint8(domain.OrderTypeMarket), *rec.OrderType)
		require.NotNil(t, rec.OrderID)
		assert.Equal(t, uint64(33), *rec.OrderID)
	}
}

func TestDecodeReport_CashFlows(t *testing.T) {
	fee, err := DecodeReport(report(domain.TagPerpFee).u64(42).i64(5_000_000).buf)
	require.NoError(t, err)
	require.NotNil(t, fee.Fee)
	assert.InDelta(t, 5_000_000, *fee.Fee, 1e-9)

	funding, err := DecodeReport(report(domain.TagPerpFunding).u32(0).i64(-1_500_000).buf)
	require.NoError(t, err)
	require.NotNil(t, funding.Funding)
	assert.InDelta(t, -1_500_000, *funding.Funding, 1e-9)

	loss, err := DecodeReport(report(domain.TagPerpSocLoss).u32(2).i64(3_000_000).buf)
	require.NoError(t, err)
	require.NotNil(t, loss.SocLoss)
	assert.InDelta(t, 3_000_000, *loss.SocLoss, 1e-9)
}

func TestDecodeReport_CancelAndOpen(t *testing.T) {
	for _, tag := range []int{domain.TagPerpOpenOrder, domain.TagPerpOrderCancel} {
		rec, err := DecodeReport(report(byte(tag)).u32(4).u64(77).buf)
		require.NoError(t, err, "tag %d", tag)
		assert.Equal(t, uint32(4), *rec.InstrID)
		assert.Equal(t, uint64(77), *rec.OrderID)
	}
}

func TestDecodeReport_UnknownTagKeepsRaw(t *testing.T) {
	payload := []byte{200, 1, 2, 3}
	rec, err := DecodeReport(payload)
	require.NoError(t, err)

	assert.Equal(t, 200, rec.Tag)
	assert.Equal(t, payload, rec.Raw)
	assert.Nil(t, rec.InstrID)
}

func TestDecodeReport_Truncated(t *testing.T) {
	payload := report(domain.TagPerpFill).u32(3).u64(42).buf // fill fields missing
	_, err := DecodeReport(payload)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "truncated")
}

func TestDecodeReport_Empty(t *testing.T) {
	_, err := DecodeReport(nil)
	assert.Error(t, err)
}

func TestDecodeLogs_SkipsForeignTransactions(t *testing.T) {
	d := NewDecoder("")

	logs := []string{
		"Program 11111111111111111111111111111111 invoke [1]",
		report(domain.TagPerpFunding).u32(0).i64(100).logLine(),
		"Program 11111111111111111111111111111111 success",
	}

	records, err := d.DecodeLogs(logs)
	require.NoError(t, err)
	assert.Nil(t, records)
}

func TestDecodeLogs_DecodesProgramReports(t *testing.T) {
	d := NewDecoder("")

	logs := []string{
		"Program " + ProgramID + " invoke [1]",
		"Program log: Instruction: MatchOrders",
		report(domain.TagPerpFill).u32(0).u64(1).u8(0).i64(2_000_000_000).i64(-200_000_000).i64(100_000_000_000).logLine(),
		report(domain.TagPerpFee).u64(1).i64(50_000).logLine(),
		"Program " + ProgramID + " success",
	}

	records, err := d.DecodeLogs(logs)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, domain.TagPerpFill, records[0].Tag)
	assert.Equal(t, domain.TagPerpFee, records[1].Tag)
}

func TestDecodeLogs_MalformedPayloadFailsTransaction(t *testing.T) {
	d := NewDecoder("")

	logs := []string{
		"Program " + ProgramID + " invoke [1]",
		report(domain.TagPerpFill).u32(0).logLine(), // truncated
	}

	_, err := d.DecodeLogs(logs)
	assert.Error(t, err)
}
