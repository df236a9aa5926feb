// Package stub provides in-memory test doubles for the solana package.
package stub

import (
	"context"
	"sync"

	"deriverse-analytics/internal/solana"
)

// RPCClient implements solana.RPCClient for testing. Signatures are
// returned newest-first, like the real endpoint, and Before pagination
// walks the stored slice.
type RPCClient struct {
	mu           sync.Mutex
	Transactions map[string]*solana.Transaction
	Signatures   map[string][]solana.SignatureInfo
	Accounts     map[string]*solana.AccountInfo

	// FailTransactions lists signatures whose GetTransaction calls
	// return Err instead of a transaction.
	FailTransactions map[string]error

	// Calls counts RPC invocations by method name.
	Calls map[string]int
}

// NewRPCClient creates a new stub RPC client.
func NewRPCClient() *RPCClient {
	return &RPCClient{
		Transactions:     make(map[string]*solana.Transaction),
		Signatures:       make(map[string][]solana.SignatureInfo),
		Accounts:         make(map[string]*solana.AccountInfo),
		FailTransactions: make(map[string]error),
		Calls:            make(map[string]int),
	}
}

// GetSignaturesForAddress returns stored signatures with Before/Limit
// pagination applied.
func (c *RPCClient) GetSignaturesForAddress(_ context.Context, address string, opts *solana.SignaturesOpts) ([]solana.SignatureInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Calls["getSignaturesForAddress"]++

	sigs := c.Signatures[address]

	if opts != nil && opts.Before != "" {
		for i, s := range sigs {
			if s.Signature == opts.Before {
				sigs = sigs[i+1:]
				break
			}
		}
	}
	if opts != nil && opts.Until != "" {
		for i, s := range sigs {
			if s.Signature == opts.Until {
				sigs = sigs[:i]
				break
			}
		}
	}
	if opts != nil && opts.Limit > 0 && opts.Limit < len(sigs) {
		sigs = sigs[:opts.Limit]
	}

	out := make([]solana.SignatureInfo, len(sigs))
	copy(out, sigs)
	return out, nil
}

// GetTransaction returns a stored transaction, (nil, nil) when unknown,
// or the configured failure.
func (c *RPCClient) GetTransaction(_ context.Context, signature string) (*solana.Transaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Calls["getTransaction"]++

	if err, ok := c.FailTransactions[signature]; ok {
		return nil, err
	}
	return c.Transactions[signature], nil
}

// GetAccountInfo returns a stored account or (nil, nil).
func (c *RPCClient) GetAccountInfo(_ context.Context, pubkey string) (*solana.AccountInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Calls["getAccountInfo"]++

	return c.Accounts[pubkey], nil
}
