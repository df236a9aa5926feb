package solana

import (
	"crypto/sha256"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// DecodePubkey decodes a base58 public key and validates its length.
func DecodePubkey(s string) ([]byte, error) {
	b, err := base58.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("decode pubkey: %w", err)
	}
	if len(b) != 32 {
		return nil, fmt.Errorf("pubkey %q: expected 32 bytes, got %d", s, len(b))
	}
	return b, nil
}

// IsOnCurve reports whether a 32-byte point lies on the ed25519 curve.
// Program derived addresses are required to be off-curve.
func IsOnCurve(point []byte) bool {
	if len(point) != 32 {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}

// DerivePDA derives a Program Derived Address from seeds and a program
// id using the standard Solana bump search, trying bumps 255 down to
// and including 0 and taking the first candidate that is off-curve.
func DerivePDA(seeds [][]byte, programID []byte) (string, error) {
	for bump := 255; bump >= 0; bump-- {
		if addr, ok := pdaCandidate(seeds, programID, byte(bump)); ok {
			return addr, nil
		}
	}
	return "", fmt.Errorf("no off-curve address found for seeds")
}

// pdaCandidate hashes the seeds, a bump byte and the program id with
// the PDA marker. ok reports that the candidate is off-curve.
func pdaCandidate(seeds [][]byte, programID []byte, bump byte) (addr string, ok bool) {
	data := make([]byte, 0, 128)
	for _, seed := range seeds {
		data = append(data, seed...)
	}
	data = append(data, bump)
	data = append(data, programID...)
	data = append(data, []byte("ProgramDerivedAddress")...)

	hash := sha256.Sum256(data)
	return base58.Encode(hash[:]), !IsOnCurve(hash[:])
}
