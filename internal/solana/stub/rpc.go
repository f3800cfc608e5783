package stub

import (
	"context"
	"errors"

	"treasure-monitor/internal/solana"
)

// ErrNotFound is returned when a transaction is not found.
var ErrNotFound = errors.New("not found")

// RPCClient implements solana.RPCClient for testing. Signatures are stored
// newest-first per address, matching the real RPC's ordering.
type RPCClient struct {
	Transactions map[string]*solana.Transaction
	Signatures   map[string][]solana.SignatureInfo

	// FetchErr, when set, is returned by GetSignaturesForAddress to
	// simulate a ledger outage.
	FetchErr error

	// TxErr, when set, is returned by GetTransaction for every signature.
	TxErr error
}

// NewRPCClient creates a new stub RPC client.
func NewRPCClient() *RPCClient {
	return &RPCClient{
		Transactions: make(map[string]*solana.Transaction),
		Signatures:   make(map[string][]solana.SignatureInfo),
	}
}

// GetTransaction retrieves a transaction by signature from the stub store.
func (c *RPCClient) GetTransaction(_ context.Context, signature string) (*solana.Transaction, error) {
	if c.TxErr != nil {
		return nil, c.TxErr
	}
	tx, ok := c.Transactions[signature]
	if !ok {
		return nil, ErrNotFound
	}
	return tx, nil
}

// GetSignaturesForAddress retrieves signatures for an address from the stub
// store, honoring the before/until/limit pagination options.
func (c *RPCClient) GetSignaturesForAddress(_ context.Context, address string, opts *solana.SignaturesOpts) ([]solana.SignatureInfo, error) {
	if c.FetchErr != nil {
		return nil, c.FetchErr
	}

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
		var out []solana.SignatureInfo
		for _, s := range sigs {
			if s.Signature == opts.Until {
				break
			}
			out = append(out, s)
		}
		sigs = out
	}

	if opts != nil && opts.Limit > 0 && opts.Limit < len(sigs) {
		sigs = sigs[:opts.Limit]
	}

	return sigs, nil
}

// AddTransaction adds a transaction to the stub store and prepends its
// signature to the address's list (newest first).
func (c *RPCClient) AddTransaction(address string, tx *solana.Transaction) {
	c.Transactions[tx.Signature] = tx
	info := solana.SignatureInfo{
		Signature: tx.Signature,
		Slot:      tx.Slot,
	}
	if tx.Meta != nil {
		info.Err = tx.Meta.Err
	}
	c.Signatures[address] = append([]solana.SignatureInfo{info}, c.Signatures[address]...)
}
