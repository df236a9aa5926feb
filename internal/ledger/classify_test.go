package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deriverse-analytics/internal/domain"
)

func TestClassOf(t *testing.T) {
	tests := []struct {
		tag  int
		want Class
	}{
		{domain.TagPerpFill, ClassFill},
		{domain.TagPerpFillAlt, ClassFill},
		{domain.TagPerpFunding, ClassFunding},
		{domain.TagPerpFee, ClassFee},
		{domain.TagPerpFeeAlt, ClassFee},
		{domain.TagPerpSocLoss, ClassSocLoss},
		{domain.TagPerpPlaceOrder, ClassOrderPlaced},
		{domain.TagPerpPlaceOrder2, ClassOrderPlaced},
		{domain.TagSpotPlaceOrder, ClassOrderPlaced},
		{domain.TagPerpOrderCancel, ClassOrderCancelled},
		{domain.TagSpotFill, ClassUnknown},
		{domain.TagSpotFillAlt, ClassUnknown},
		{domain.TagPerpOpenOrder, ClassUnknown},
		{99, ClassUnknown},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassOf(tt.tag), "tag %d", tt.tag)
	}
}

func TestClassify_FillDirectAttribution(t *testing.T) {
	rec := &domain.LogRecord{
		Tag:        domain.TagPerpFill,
		InstrID:    domain.U32Ptr(3),
		OrderID:    domain.U64Ptr(42),
		Side:       domain.U8Ptr(1),
		BaseChange: domain.F64Ptr(2_000_000_000_000),
		Price:      domain.F64Ptr(101.5),
	}
	ctx := NewTxContext([]*domain.LogRecord{rec})

	ev, err := Classify(rec, ctx)
	require.NoError(t, err)

	assert.Equal(t, ClassFill, ev.Class)
	assert.Equal(t, uint32(3), ev.InstrID)
	assert.Equal(t, uint64(42), ev.OrderID)
	assert.Equal(t, SideSell, ev.Side)
	assert.InDelta(t, 2000, ev.Quantity, 1e-9)
	assert.InDelta(t, 101.5, ev.Price, 1e-9)
}

func TestClassify_SideFromBaseSign(t *testing.T) {
	rec := &domain.LogRecord{
		Tag:        domain.TagPerpFill,
		InstrID:    domain.U32Ptr(0),
		BaseChange: domain.F64Ptr(-1.5),
		Price:      domain.F64Ptr(100),
	}
	ev, err := Classify(rec, NewTxContext([]*domain.LogRecord{rec}))
	require.NoError(t, err)

	assert.Equal(t, SideSell, ev.Side)
	assert.InDelta(t, 1.5, ev.Quantity, 1e-9)
}

func TestClassify_PriceDerivedFromQuote(t *testing.T) {
	rec := &domain.LogRecord{
		Tag:         domain.TagPerpFill,
		InstrID:     domain.U32Ptr(0),
		BaseChange:  domain.F64Ptr(2),
		QuoteChange: domain.F64Ptr(-220),
	}
	ev, err := Classify(rec, NewTxContext([]*domain.LogRecord{rec}))
	require.NoError(t, err)

	assert.InDelta(t, 110, ev.Price, 1e-9)
}

func TestClassify_AttributionThroughOrderTable(t *testing.T) {
	place := &domain.LogRecord{
		Tag:       domain.TagPerpPlaceOrder,
		InstrID:   domain.U32Ptr(7),
		OrderID:   domain.U64Ptr(55),
		OrderType: domain.U8Ptr(uint8(domain.OrderTypeMarket)),
	}
	fill := &domain.LogRecord{
		Tag:        domain.TagPerpFill,
		OrderID:    domain.U64Ptr(55),
		BaseChange: domain.F64Ptr(1),
		Price:      domain.F64Ptr(50),
	}
	ctx := NewTxContext([]*domain.LogRecord{place, fill})

	ev, err := Classify(fill, ctx)
	require.NoError(t, err)

	assert.Equal(t, uint32(7), ev.InstrID)
	require.NotNil(t, ev.OrderType)
	assert.Equal(t, uint8(domain.OrderTypeMarket), *ev.OrderType)
}

func TestClassify_AttributionSoleInstrument(t *testing.T) {
	other := &domain.LogRecord{
		Tag:     domain.TagPerpOrderCancel,
		InstrID: domain.U32Ptr(2),
		OrderID: domain.U64Ptr(9),
	}
	fee := &domain.LogRecord{
		Tag: domain.TagPerpFee,
		Fee: domain.F64Ptr(1.25),
	}
	ctx := NewTxContext([]*domain.LogRecord{other, fee})

	ev, err := Classify(fee, ctx)
	require.NoError(t, err)

	assert.Equal(t, uint32(2), ev.InstrID)
	assert.InDelta(t, 1.25, ev.Fee, 1e-9)
}

func TestClassify_Unattributable(t *testing.T) {
	// Two instruments in the transaction, record names neither.
	a := &domain.LogRecord{Tag: domain.TagPerpPlaceOrder, InstrID: domain.U32Ptr(1), OrderID: domain.U64Ptr(1)}
	b := &domain.LogRecord{Tag: domain.TagPerpPlaceOrder, InstrID: domain.U32Ptr(2), OrderID: domain.U64Ptr(2)}
	fee := &domain.LogRecord{Tag: domain.TagPerpFee, Fee: domain.F64Ptr(1)}
	ctx := NewTxContext([]*domain.LogRecord{a, b, fee})

	_, err := Classify(fee, ctx)
	assert.ErrorIs(t, err, ErrUnattributable)
}

func TestClassify_UnknownKind(t *testing.T) {
	rec := &domain.LogRecord{Tag: domain.TagSpotFill, InstrID: domain.U32Ptr(0)}
	_, err := Classify(rec, NewTxContext([]*domain.LogRecord{rec}))
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestClassify_ZeroQuantityFill(t *testing.T) {
	rec := &domain.LogRecord{
		Tag:        domain.TagPerpFill,
		InstrID:    domain.U32Ptr(0),
		BaseChange: domain.F64Ptr(0),
		Price:      domain.F64Ptr(100),
	}
	_, err := Classify(rec, NewTxContext([]*domain.LogRecord{rec}))
	assert.ErrorIs(t, err, ErrZeroQuantity)
}

func TestClassify_FundingKeepsSign(t *testing.T) {
	rec := &domain.LogRecord{
		Tag:     domain.TagPerpFunding,
		InstrID: domain.U32Ptr(0),
		Funding: domain.F64Ptr(-3_500_000_000_000),
	}
	ev, err := Classify(rec, NewTxContext([]*domain.LogRecord{rec}))
	require.NoError(t, err)

	assert.Equal(t, ClassFunding, ev.Class)
	assert.InDelta(t, -3_500_000, ev.Funding, 1e-9)
}

func TestTxContext_SoleInstrument(t *testing.T) {
	one := NewTxContext([]*domain.LogRecord{
		{Tag: domain.TagPerpFill, InstrID: domain.U32Ptr(5)},
		{Tag: domain.TagPerpFee, InstrID: domain.U32Ptr(5)},
	})
	id, ok := one.SoleInstrument()
	assert.True(t, ok)
	assert.Equal(t, uint32(5), id)

	two := NewTxContext([]*domain.LogRecord{
		{Tag: domain.TagPerpFill, InstrID: domain.U32Ptr(5)},
		{Tag: domain.TagPerpFill, InstrID: domain.U32Ptr(6)},
	})
	_, ok = two.SoleInstrument()
	assert.False(t, ok)
}
