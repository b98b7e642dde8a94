package errors

import "errors"

// Business-rule errors surfaced synchronously to the caller, never retried.
var (
	// ErrInsufficientBalance indicates a conditional debit found less than
	// the requested amount
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrUnsupportedNetwork indicates the network is not configured
	ErrUnsupportedNetwork = errors.New("unsupported network")

	// ErrDuplicateTransaction indicates a ledger entry with this tx id
	// already exists
	ErrDuplicateTransaction = errors.New("transaction already recorded")

	// ErrSelfTransfer indicates sender and destination are the same address
	ErrSelfTransfer = errors.New("cannot transfer to own address")

	// ErrReceiverNotFound indicates no account owns the destination address
	ErrReceiverNotFound = errors.New("receiver not found")

	// ErrProfileIncomplete indicates the account is missing name, email or
	// a custodial address on the requested network
	ErrProfileIncomplete = errors.New("user profile incomplete")

	// ErrTwoFARequired indicates the account has 2FA enabled and no code
	// was supplied
	ErrTwoFARequired = errors.New("two-factor code required")

	// ErrTwoFAInvalid indicates the supplied 2FA code failed verification
	ErrTwoFAInvalid = errors.New("two-factor code invalid")

	// ErrOrderLimitExceeded indicates a per-order or daily volume cap was hit
	ErrOrderLimitExceeded = errors.New("order limit exceeded")

	// ErrSecurityRequirements indicates the account fails the OTC security
	// gate (2FA disabled or KYC not approved)
	ErrSecurityRequirements = errors.New("security requirements not met")

	// ErrQuoteExpired indicates the requested price drifted beyond the
	// slippage tolerance of a fresh quote
	ErrQuoteExpired = errors.New("price quote expired")

	// ErrInvalidOrderState indicates the order cannot transition as requested
	ErrInvalidOrderState = errors.New("invalid order state")
)

// External-system errors. For background loops these are retried on the next
// scheduled cycle; for synchronous operations they are surfaced immediately
// with no automatic retry.
var (
	// ErrBroadcastFailed indicates a signed transaction was rejected or the
	// provider failed before returning a hash
	ErrBroadcastFailed = errors.New("transaction broadcast failed")

	// ErrMasterWalletUnfunded indicates the master wallet's on-chain balance
	// cannot cover a requested payout; clears once treasury refills the wallet
	ErrMasterWalletUnfunded = errors.New("master wallet on-chain balance insufficient")

	// ErrProviderUnavailable indicates a blockchain RPC call failed
	ErrProviderUnavailable = errors.New("blockchain provider unavailable")
)
