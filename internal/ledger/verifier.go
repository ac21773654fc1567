package ledger

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
)

// DepositInfo describes a confirmed on-chain transfer into the
// platform wallet.
type DepositInfo struct {
	Amount        float64
	BlockNumber   int64
	Confirmations int
}

// NotConfirmedError is returned while a transaction exists on-chain but
// has not reached the required confirmation depth.
type NotConfirmedError struct {
	Confirmations int
	Required      int
}

func (e *NotConfirmedError) Error() string {
	return fmt.Sprintf("transaction has %d of %d required confirmations", e.Confirmations, e.Required)
}

// DepositVerifier checks that a tx hash is a real transfer to the
// platform wallet from the given address. amountHint is only used by
// implementations that cannot read amounts themselves.
type DepositVerifier interface {
	VerifyDeposit(ctx context.Context, txHash, address string, amountHint float64) (*DepositInfo, error)
}

// ChainTransfer sends tokens from the platform wallet to a user wallet
// and returns the resulting tx hash.
type ChainTransfer interface {
	Transfer(ctx context.Context, to string, amount float64) (string, error)
}

var ErrChainDisabled = errors.New("chain operations are not configured")

// DisabledChain rejects every operation. Used when no RPC endpoint is
// configured in production.
type DisabledChain struct{}

func (DisabledChain) VerifyDeposit(context.Context, string, string, float64) (*DepositInfo, error) {
	return nil, ErrChainDisabled
}

func (DisabledChain) Transfer(context.Context, string, float64) (string, error) {
	return "", ErrChainDisabled
}

// DevChain trusts client-reported amounts and fakes transfers. Only for
// local development.
type DevChain struct {
	Required int
}

func (d DevChain) VerifyDeposit(_ context.Context, _, _ string, amountHint float64) (*DepositInfo, error) {
	if amountHint <= 0 {
		return nil, errors.New("amount is required in development mode")
	}
	return &DepositInfo{Amount: amountHint, Confirmations: d.Required}, nil
}

func (d DevChain) Transfer(context.Context, string, float64) (string, error) {
	b := make([]byte, 8)
	rand.Read(b)
	return "dev_" + hex.EncodeToString(b), nil
}
