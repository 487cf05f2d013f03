// Package wallet defines the wallet-provider capability the engine consumes:
// network switching, typed-data signing and transaction submission.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/certmint/trade-engine/internal/chain"
)

// Standard wallet-provider error codes.
const (
	CodeUserRejected   = 4001
	CodeUnknownNetwork = 4902
)

// Error is a wallet-provider failure carrying the provider's numeric code.
type Error struct {
	Code    int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("wallet error %d: %s", e.Code, e.Message)
}

// IsUserRejected reports whether the user declined a signature or submission.
func IsUserRejected(err error) bool {
	var werr *Error
	if errors.As(err, &werr) && werr.Code == CodeUserRejected {
		return true
	}
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "rejected")
}

// IsUnknownNetwork reports whether the wallet does not know the requested
// chain and needs it added first.
func IsUnknownNetwork(err error) bool {
	var werr *Error
	return errors.As(err, &werr) && werr.Code == CodeUnknownNetwork
}

// Provider is the signing and submission capability of a connected wallet.
type Provider interface {
	chain.TxSubmitter

	// Address returns the account the wallet signs with.
	Address() common.Address

	// ChainID returns the chain the wallet is currently connected to.
	ChainID(ctx context.Context) (int64, error)

	// SwitchNetwork asks the wallet to move to the given chain. Fails with
	// code 4902 when the wallet does not know the network.
	SwitchNetwork(ctx context.Context, chainID int64) error

	// SignTypedData produces a 65-byte EIP-712 signature over the payload
	// exactly as given. Callers must not mutate the payload first.
	SignTypedData(ctx context.Context, typedData *apitypes.TypedData) ([]byte, error)
}
