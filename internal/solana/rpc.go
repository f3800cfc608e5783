package solana

import "context"

// RPCClient defines the ledger RPC interface the monitor depends on.
type RPCClient interface {
	// GetTransaction retrieves a confirmed transaction by signature.
	// Returns nil if the transaction is not found.
	GetTransaction(ctx context.Context, signature string) (*Transaction, error)

	// GetSignaturesForAddress retrieves signatures involving an address,
	// newest first, with pagination.
	GetSignaturesForAddress(ctx context.Context, address string, opts *SignaturesOpts) ([]SignatureInfo, error)
}
