package ledger

import "math"

// rawScaleThreshold separates fixed-point integer magnitudes from
// already human-scaled ones. The event source mixes both
// representations across report kinds; within this domain's value
// ranges the threshold classifies them reliably. A legitimately huge
// UI value would be misread; known limitation until the upstream
// decoder tags scales explicitly.
const rawScaleThreshold = 1e12

// Decimal conventions of the Deriverse program.
const (
	BaseDecimals  = 9 // position quantities
	QuoteDecimals = 6 // quote currency, fees, funding
	PriceDecimals = 9
)

// NormalizeScale converts a numeric field that may be raw fixed-point
// or already UI-scaled into UI units.
func NormalizeScale(v float64, decimals int) float64 {
	if v > rawScaleThreshold || v < -rawScaleThreshold {
		return v / math.Pow(10, float64(decimals))
	}
	return v
}
