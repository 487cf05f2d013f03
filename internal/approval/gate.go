// Package approval decides whether a trade needs an ERC-20 allowance grant
// before it can execute.
package approval

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/certmint/trade-engine/internal/balance"
	"github.com/certmint/trade-engine/internal/chain"
)

const approveABIJSON = `[
	{"constant":false,"inputs":[{"name":"_spender","type":"address"},{"name":"_value","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"type":"function"}
]`

var approveABI = func() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(approveABIJSON))
	if err != nil {
		panic(fmt.Sprintf("invalid ABI literal: %v", err))
	}
	return parsed
}()

// Decision is the outcome of an allowance check.
type Decision struct {
	// Needed is false when the existing allowance already covers the trade.
	Needed bool
	// Tx is the approval to submit when Needed. It grants the maximum
	// representable allowance so subsequent trades of the same token and
	// spender skip this step.
	Tx *chain.TxRequest
	// CurrentAllowance is what the chain reported at check time.
	CurrentAllowance *big.Int
}

// Gate checks allowances against trade requirements. Approval and the trade
// it unblocks are two separate user-confirmed transactions: after an
// approval settles the flow stops and the user re-initiates the trade.
type Gate struct {
	balances *balance.Tracker
	logger   *zap.Logger
}

// NewGate creates an approval gate
func NewGate(balances *balance.Tracker, logger *zap.Logger) *Gate {
	return &Gate{
		balances: balances,
		logger:   logger.Named("approval_gate"),
	}
}

// Check reads the live allowance for owner on token toward spender and
// returns an approval transaction when it falls short of required.
func (g *Gate) Check(ctx context.Context, token, owner, spender common.Address, required *big.Int) (*Decision, error) {
	allowance, err := g.balances.Allowance(ctx, token, owner, spender)
	if err != nil {
		return nil, fmt.Errorf("failed to read allowance: %w", err)
	}

	if allowance.Cmp(required) >= 0 {
		g.logger.Debug("Allowance sufficient",
			zap.String("token", token.Hex()),
			zap.String("allowance", allowance.String()),
			zap.String("required", required.String()))
		return &Decision{Needed: false, CurrentAllowance: allowance}, nil
	}

	data, err := approveABI.Pack("approve", spender, chain.MaxUint256)
	if err != nil {
		return nil, fmt.Errorf("failed to encode approve call: %w", err)
	}

	g.logger.Info("Approval required",
		zap.String("token", token.Hex()),
		zap.String("spender", spender.Hex()),
		zap.String("allowance", allowance.String()),
		zap.String("required", required.String()))

	return &Decision{
		Needed:           true,
		CurrentAllowance: allowance,
		Tx: &chain.TxRequest{
			From: owner,
			To:   token,
			Data: data,
		},
	}, nil
}
