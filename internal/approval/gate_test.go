package approval

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/certmint/trade-engine/internal/balance"
	"github.com/certmint/trade-engine/internal/chain"
)

// allowanceProvider answers allowance reads with a fixed value.
type allowanceProvider struct {
	allowance *big.Int
	err       error
}

func (p *allowanceProvider) Read(_ context.Context, _ common.Address, _ abi.ABI, method string, _ ...interface{}) ([]interface{}, error) {
	if p.err != nil {
		return nil, p.err
	}
	if method != "allowance" {
		return nil, errors.New("unexpected method " + method)
	}
	return []interface{}{new(big.Int).Set(p.allowance)}, nil
}

func (p *allowanceProvider) BalanceAt(context.Context, common.Address) (*big.Int, error) {
	return big.NewInt(0), nil
}

func (p *allowanceProvider) Write(context.Context, common.Address, abi.ABI, string, *big.Int, ...interface{}) (common.Hash, error) {
	return common.Hash{}, errors.New("not implemented")
}

func (p *allowanceProvider) WaitForReceipt(context.Context, common.Hash) (*types.Receipt, error) {
	return nil, errors.New("not implemented")
}

var _ chain.Provider = (*allowanceProvider)(nil)

var (
	testToken   = common.HexToAddress("0x01")
	testOwner   = common.HexToAddress("0x02")
	testSpender = common.HexToAddress("0x03")
)

func newTestGate(t *testing.T, allowance *big.Int) *Gate {
	provider := &allowanceProvider{allowance: allowance}
	return NewGate(balance.NewTracker(provider, zaptest.NewLogger(t)), zaptest.NewLogger(t))
}

func TestCheckSufficientAllowance(t *testing.T) {
	gate := newTestGate(t, big.NewInt(1000))

	decision, err := gate.Check(context.Background(), testToken, testOwner, testSpender, big.NewInt(1000))
	require.NoError(t, err)
	assert.False(t, decision.Needed)
	assert.Nil(t, decision.Tx)
	assert.Equal(t, int64(1000), decision.CurrentAllowance.Int64())
}

func TestCheckInsufficientAllowanceGrantsMax(t *testing.T) {
	gate := newTestGate(t, big.NewInt(999))

	decision, err := gate.Check(context.Background(), testToken, testOwner, testSpender, big.NewInt(1000))
	require.NoError(t, err)
	require.True(t, decision.Needed)
	require.NotNil(t, decision.Tx)
	assert.Equal(t, testToken, decision.Tx.To)
	assert.Equal(t, testOwner, decision.Tx.From)

	// The approval grants the maximum allowance, not the exact amount.
	args, err := approveABI.Methods["approve"].Inputs.Unpack(decision.Tx.Data[4:])
	require.NoError(t, err)
	require.Len(t, args, 2)
	assert.Equal(t, testSpender, args[0].(common.Address))
	assert.Zero(t, args[1].(*big.Int).Cmp(chain.MaxUint256))
}

func TestCheckZeroAllowance(t *testing.T) {
	gate := newTestGate(t, big.NewInt(0))

	decision, err := gate.Check(context.Background(), testToken, testOwner, testSpender, big.NewInt(1))
	require.NoError(t, err)
	assert.True(t, decision.Needed)
}

func TestCheckPropagatesReadError(t *testing.T) {
	provider := &allowanceProvider{err: errors.New("connection refused")}
	gate := NewGate(balance.NewTracker(provider, zaptest.NewLogger(t)), zaptest.NewLogger(t))

	_, err := gate.Check(context.Background(), testToken, testOwner, testSpender, big.NewInt(1))
	require.Error(t, err)
}
