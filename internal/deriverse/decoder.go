// Package deriverse decodes the event reports the Deriverse program
// writes to transaction logs. Reports travel as base64 payloads on
// "Program data:" log lines; each payload is a tag byte followed by a
// fixed little-endian layout that varies per tag.
package deriverse

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"regexp"
	"strings"

	"deriverse-analytics/internal/domain"
)

// ProgramID is the Deriverse v12 program id on devnet.
const ProgramID = "Drvrseg8AQLP8B96DBGmHRjFGviFNYTkHueY9g3k27Gu"

var programDataPattern = regexp.MustCompile(`^Program data: ([A-Za-z0-9+/=]+)$`)

// Decoder decodes Deriverse report payloads from transaction logs.
type Decoder struct {
	programID string
}

// NewDecoder creates a decoder for the given program id. An empty id
// uses the default devnet deployment.
func NewDecoder(programID string) *Decoder {
	if programID == "" {
		programID = ProgramID
	}
	return &Decoder{programID: programID}
}

// DecodeLogs extracts and decodes all report payloads from one
// transaction's log messages. Transactions that never invoke the
// program yield an empty slice. A malformed payload fails the whole
// transaction: callers skip it and continue the run.
func (d *Decoder) DecodeLogs(logs []string) ([]*domain.LogRecord, error) {
	if !d.invokesProgram(logs) {
		return nil, nil
	}

	var records []*domain.LogRecord
	for _, line := range logs {
		matches := programDataPattern.FindStringSubmatch(line)
		if matches == nil {
			continue
		}

		payload, err := base64.StdEncoding.DecodeString(matches[1])
		if err != nil {
			return nil, fmt.Errorf("decode report payload: %w", err)
		}

		rec, err := DecodeReport(payload)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func (d *Decoder) invokesProgram(logs []string) bool {
	for _, line := range logs {
		if strings.Contains(line, d.programID) {
			return true
		}
	}
	return false
}

// DecodeReport decodes one report payload into a LogRecord. Unknown
// tags are preserved with their raw payload rather than rejected so
// the raw-log endpoint can pass them through.
func DecodeReport(payload []byte) (*domain.LogRecord, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("empty report payload")
	}

	rec := &domain.LogRecord{Tag: int(payload[0])}
	r := reader{data: payload[1:]}

	switch rec.Tag {
	case domain.TagPerpFill:
		rec.InstrID = domain.U32Ptr(r.u32())
		rec.OrderID = domain.U64Ptr(r.u64())
		rec.Side = domain.U8Ptr(r.u8())
		rec.BaseChange = domain.F64Ptr(float64(r.i64()))
		rec.QuoteChange = domain.F64Ptr(float64(r.i64()))
		rec.Price = domain.F64Ptr(float64(r.i64()))

	case domain.TagPerpFillAlt:
		rec.OrderID = domain.U64Ptr(r.u64())
		rec.Side = domain.U8Ptr(r.u8())
		rec.BaseChange = domain.F64Ptr(float64(r.i64()))
		rec.Price = domain.F64Ptr(float64(r.i64()))

	case domain.TagSpotFill, domain.TagSpotFillAlt:
		rec.InstrID = domain.U32Ptr(r.u32())
		rec.OrderID = domain.U64Ptr(r.u64())
		rec.Side = domain.U8Ptr(r.u8())
		rec.BaseChange = domain.F64Ptr(float64(r.i64()))
		rec.QuoteChange = domain.F64Ptr(float64(r.i64()))
		rec.Fee = domain.F64Ptr(float64(r.i64()))

	case domain.TagPerpFunding:
		rec.InstrID = domain.U32Ptr(r.u32())
		rec.Funding = domain.F64Ptr(float64(r.i64()))

	case domain.TagPerpFee, domain.TagPerpFeeAlt:
		rec.OrderID = domain.U64Ptr(r.u64())
		rec.Fee = domain.F64Ptr(float64(r.i64()))

	case domain.TagPerpSocLoss:
		rec.InstrID = domain.U32Ptr(r.u32())
		rec.SocLoss = domain.F64Ptr(float64(r.i64()))

	case domain.TagPerpPlaceOrder, domain.TagPerpPlaceOrder2, domain.TagSpotPlaceOrder:
		rec.InstrID = domain.U32Ptr(r.u32())
		rec.OrderID = domain.U64Ptr(r.u64())
		rec.OrderType = domain.U8Ptr(r.u8())
		rec.Side = domain.U8Ptr(r.u8())
		rec.Price = domain.F64Ptr(float64(r.i64()))
		rec.BaseChange = domain.F64Ptr(float64(r.i64()))

	case domain.TagPerpOpenOrder, domain.TagPerpOrderCancel:
		rec.InstrID = domain.U32Ptr(r.u32())
		rec.OrderID = domain.U64Ptr(r.u64())

	default:
		rec.Raw = payload
		return rec, nil
	}

	if r.failed {
		return nil, fmt.Errorf("report tag %d: payload truncated at %d bytes", rec.Tag, len(payload))
	}
	return rec, nil
}

// reader walks a little-endian payload. Reads past the end set failed
// instead of panicking; the caller checks once after all reads.
type reader struct {
	data   []byte
	offset int
	failed bool
}

func (r *reader) take(n int) []byte {
	if r.failed || r.offset+n > len(r.data) {
		r.failed = true
		return nil
	}
	b := r.data[r.offset : r.offset+n]
	r.offset += n
	return b
}

func (r *reader) u8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) u32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *reader) u64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (r *reader) i64() int64 {
	return int64(r.u64())
}
