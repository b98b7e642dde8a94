// Package chain provides per-network blockchain clients behind one
// interface. EVM networks speak JSON-RPC through go-ethereum; the TRC20
// network speaks the fullnode HTTP API. Scan positions are opaque int64s:
// block numbers on EVM networks, millisecond timestamps on TRC20.
package chain

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/custody-service/custody_service/internal/domain/entities"
)

// TransferEvent is one observed token transfer on chain. Amounts are in
// token units, already adjusted for the token's decimals.
type TransferEvent struct {
	TxHash   string
	From     string
	To       string
	Amount   decimal.Decimal
	Position int64
}

// Client is one network's view of the chain. Implementations must be safe
// for concurrent use; the deposit scanner and sweep collector share them.
type Client interface {
	// Network returns the network tag this client serves
	Network() entities.Network

	// ScanRange computes the next deposit scan window from the stored
	// cursor. The window is clamped so a stale or zero cursor never
	// produces an unbounded scan, and end never passes the chain head.
	ScanRange(ctx context.Context, cursor int64) (start, end int64, err error)

	// TransferEvents returns token transfers to any address within
	// [start, end], inclusive.
	TransferEvents(ctx context.Context, start, end int64) ([]TransferEvent, error)

	// NativeBalance returns an address's native coin balance in whole
	// native units.
	NativeBalance(ctx context.Context, address string) (decimal.Decimal, error)

	// TokenBalance returns an address's token balance in token units.
	TokenBalance(ctx context.Context, address string) (decimal.Decimal, error)

	// EstimateTokenFee returns the native cost of a token transfer in
	// whole native units.
	EstimateTokenFee(ctx context.Context) (decimal.Decimal, error)

	// SendNative signs and broadcasts a native coin transfer from the key
	// holder to the destination. Returns the transaction hash.
	SendNative(ctx context.Context, privateKeyHex, to string, amount decimal.Decimal) (string, error)

	// SendToken signs and broadcasts a token transfer from the key holder
	// to the destination. Returns the transaction hash.
	SendToken(ctx context.Context, privateKeyHex, to string, amount decimal.Decimal) (string, error)
}
