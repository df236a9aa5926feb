package ledger

import "errors"

// Classification errors. None of these abort a replay: the caller
// drops the offending record and continues.
var (
	// ErrUnattributable is returned when a record cannot be tied to an
	// instrument, directly or through the transaction context.
	ErrUnattributable = errors.New("record cannot be attributed to an instrument")

	// ErrUnknownKind is returned for tags outside the ledger's event
	// set. Such records are preserved by the raw-log path but excluded
	// from replay.
	ErrUnknownKind = errors.New("unknown event kind")

	// ErrZeroQuantity is returned for fills whose normalized quantity
	// is zero. They contribute nothing to any accumulator.
	ErrZeroQuantity = errors.New("fill has zero effective quantity")
)
