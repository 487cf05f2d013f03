package sale

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/certmint/trade-engine/internal/chain"
)

var testTimedSaleFee, _ = new(big.Int).SetString("111000000000000", 10)

// fakeProvider serves canned read results keyed by method name.
type fakeProvider struct {
	saleConfig []interface{}
	mintActive bool
	readErr    map[string]error
	calls      []string
}

func (f *fakeProvider) Read(_ context.Context, _ common.Address, _ abi.ABI, method string, _ ...interface{}) ([]interface{}, error) {
	f.calls = append(f.calls, method)
	if err := f.readErr[method]; err != nil {
		return nil, err
	}
	switch method {
	case "saleConfig":
		return f.saleConfig, nil
	case "primaryMintActive":
		return []interface{}{f.mintActive}, nil
	case "name":
		return []interface{}{"Test Coin"}, nil
	case "symbol":
		return []interface{}{"TST"}, nil
	case "decimals":
		return []interface{}{uint8(6)}, nil
	}
	return nil, fmt.Errorf("unexpected method %s", method)
}

func (f *fakeProvider) BalanceAt(context.Context, common.Address) (*big.Int, error) {
	return big.NewInt(0), nil
}

func (f *fakeProvider) Write(context.Context, common.Address, abi.ABI, string, *big.Int, ...interface{}) (common.Hash, error) {
	return common.Hash{}, errors.New("not implemented")
}

func (f *fakeProvider) WaitForReceipt(context.Context, common.Hash) (*types.Receipt, error) {
	return nil, errors.New("not implemented")
}

var _ chain.Provider = (*fakeProvider)(nil)

func rawResults(price *big.Int, currency common.Address, mintFee *big.Int, root common.Hash, start, end, maxPer uint64) []interface{} {
	return []interface{}{price, currency, mintFee, [32]byte(root), start, end, maxPer}
}

func newTestResolver(t *testing.T, provider *fakeProvider) *Resolver {
	r := NewResolver(provider, common.HexToAddress("0x01"), testTimedSaleFee, zaptest.NewLogger(t))
	r.now = func() time.Time { return time.Unix(1_700_000_000, 0) }
	return r
}

func TestClassificationOrder(t *testing.T) {
	erc20 := common.HexToAddress("0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48")
	root := common.HexToHash("0xdead")

	tests := []struct {
		name    string
		results []interface{}
		want    Kind
	}{
		{
			name:    "timed sale fee wins over price",
			results: rawResults(big.NewInt(100), erc20, testTimedSaleFee, common.Hash{}, 0, 0, 0),
			want:    KindTimedSale,
		},
		{
			name:    "price with currency is erc20",
			results: rawResults(big.NewInt(100), erc20, big.NewInt(0), common.Hash{}, 0, 0, 0),
			want:    KindFixedPriceERC20,
		},
		{
			name:    "price without currency is native",
			results: rawResults(big.NewInt(100), common.Address{}, big.NewInt(0), common.Hash{}, 0, 0, 0),
			want:    KindFixedPriceNative,
		},
		{
			name:    "merkle root only is allowlist",
			results: rawResults(big.NewInt(0), common.Address{}, big.NewInt(0), root, 0, 0, 0),
			want:    KindAllowlist,
		},
		{
			name:    "other mint fee is not timed sale",
			results: rawResults(big.NewInt(0), common.Address{}, big.NewInt(999), common.Hash{}, 0, 0, 0),
			want:    KindNoSale,
		},
		{
			name:    "empty config is no sale",
			results: rawResults(big.NewInt(0), common.Address{}, big.NewInt(0), common.Hash{}, 0, 0, 0),
			want:    KindNoSale,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &fakeProvider{saleConfig: tt.results, mintActive: true}
			resolution, err := newTestResolver(t, provider).Resolve(context.Background(), common.HexToAddress("0x02"), big.NewInt(1))
			require.NoError(t, err)
			assert.Equal(t, tt.want, resolution.Config.Kind)
		})
	}
}

func TestResolveWindowStatus(t *testing.T) {
	now := uint64(1_700_000_000)
	provider := &fakeProvider{
		saleConfig: rawResults(big.NewInt(0), common.Address{}, testTimedSaleFee, common.Hash{}, now-10, now+10, 5),
		mintActive: true,
	}

	resolution, err := newTestResolver(t, provider).Resolve(context.Background(), common.HexToAddress("0x02"), big.NewInt(1))
	require.NoError(t, err)
	assert.Equal(t, KindTimedSale, resolution.Config.Kind)
	assert.Equal(t, StatusActive, resolution.Status)
	assert.Equal(t, uint64(5), resolution.Config.MaxTokensPerAddress)
}

func TestResolveCurrencyMetadata(t *testing.T) {
	erc20 := common.HexToAddress("0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48")
	provider := &fakeProvider{
		saleConfig: rawResults(big.NewInt(1000), erc20, big.NewInt(0), common.Hash{}, 0, 0, 0),
		mintActive: true,
	}

	resolution, err := newTestResolver(t, provider).Resolve(context.Background(), common.HexToAddress("0x02"), big.NewInt(1))
	require.NoError(t, err)
	require.NotNil(t, resolution.Currency)
	assert.Equal(t, "Test Coin", resolution.Currency.Name)
	assert.Equal(t, "TST", resolution.Currency.Symbol)
	assert.Equal(t, uint8(6), resolution.Currency.Decimals)
}

func TestResolveCurrencyMetadataDegrades(t *testing.T) {
	erc20 := common.HexToAddress("0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48")
	provider := &fakeProvider{
		saleConfig: rawResults(big.NewInt(1000), erc20, big.NewInt(0), common.Hash{}, 0, 0, 0),
		mintActive: true,
		readErr:    map[string]error{"symbol": errors.New("execution reverted")},
	}

	resolution, err := newTestResolver(t, provider).Resolve(context.Background(), common.HexToAddress("0x02"), big.NewInt(1))
	require.NoError(t, err)
	require.NotNil(t, resolution.Currency)
	assert.Equal(t, erc20.Hex(), resolution.Currency.Symbol)
}
