package quote

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/certmint/trade-engine/internal/chain"
)

const permitJSON = `{
	"types": {
		"EIP712Domain": [{"name": "name", "type": "string"}],
		"PermitTransferFrom": [
			{"name": "spender", "type": "address"},
			{"name": "nonce", "type": "uint256"},
			{"name": "deadline", "type": "uint256"}
		]
	},
	"domain": {"name": "Permit2"},
	"primaryType": "PermitTransferFrom",
	"message": {
		"spender": "0x0000000000000000000000000000000000000bbb",
		"nonce": "1",
		"deadline": "999999"
	}
}`

func testSwapRequest() SwapRequest {
	return SwapRequest{
		SellToken:  common.HexToAddress("0xaaa"),
		BuyToken:   common.HexToAddress("0xbbb"),
		SellAmount: big.NewInt(1000),
		Taker:      common.HexToAddress("0xccc"),
	}
}

func newTestClient(t *testing.T, url string, attempts uint) *AggregatorClient {
	policy := chain.RetryPolicy{MaxAttempts: attempts, BaseDelay: time.Millisecond}
	return NewAggregatorClient(url, common.HexToAddress("0xfee"), policy, zaptest.NewLogger(t))
}

func TestGetQuoteSuccess(t *testing.T) {
	var query map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = map[string]string{
			"action":       r.URL.Query().Get("action"),
			"sellToken":    r.URL.Query().Get("sellToken"),
			"swapFeeToken": r.URL.Query().Get("swapFeeToken"),
		}
		w.Write([]byte(`{
			"buyAmount": "2000",
			"liquidityAvailable": true,
			"permit2": {"eip712": ` + permitJSON + `},
			"transaction": {"to": "0x0000000000000000000000000000000000000ddd", "data": "0xabcdef", "value": "0x0", "gas": "0x5208"}
		}`))
	}))
	defer server.Close()

	req := testSwapRequest()
	quote, err := newTestClient(t, server.URL, 1).GetQuote(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "quote", query["action"])
	assert.Equal(t, req.SellToken.Hex(), query["sellToken"])
	assert.Equal(t, common.HexToAddress("0xfee").Hex(), query["swapFeeToken"])

	assert.Equal(t, int64(2000), quote.BuyAmount.Int64())
	assert.Equal(t, common.HexToAddress("0xddd"), quote.Transaction.To)
	assert.Equal(t, []byte{0xab, 0xcd, 0xef}, quote.Transaction.Data)
	assert.Equal(t, uint64(0x5208), quote.Transaction.Gas)

	// The permit payload must survive parsing without field drift.
	require.NotNil(t, quote.Permit2)
	var want apitypes.TypedData
	require.NoError(t, json.Unmarshal([]byte(permitJSON), &want))
	assert.Equal(t, &want, quote.Permit2.EIP712)
}

func TestGetQuoteNoLiquidity(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"buyAmount": "", "liquidityAvailable": false, "transaction": {}}`))
	}))
	defer server.Close()

	_, err := newTestClient(t, server.URL, 1).GetQuote(context.Background(), testSwapRequest())
	assert.True(t, IsNoLiquidity(err))
}

func TestGetQuoteErrorCodePassthrough(t *testing.T) {
	tests := []struct {
		name  string
		code  string
		check func(error) bool
	}{
		{name: "invalid parameters", code: "INVALID_PARAMETERS", check: IsInvalidParameters},
		{name: "validation failed", code: "SWAP_VALIDATION_FAILED", check: IsInvalidParameters},
		{name: "unsupported token", code: "TOKEN_NOT_SUPPORTED", check: IsUnsupportedToken},
		{name: "insufficient balance", code: "INSUFFICIENT_BALANCE", check: IsInsufficientBalance},
		{name: "insufficient liquidity", code: "INSUFFICIENT_LIQUIDITY", check: IsNoLiquidity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte(`{"details": {"code": "` + tt.code + `", "message": "original message"}}`))
			}))
			defer server.Close()

			_, err := newTestClient(t, server.URL, 3).GetQuote(context.Background(), testSwapRequest())
			require.Error(t, err)
			assert.True(t, tt.check(err))
			assert.Contains(t, err.Error(), "original message")

			var aerr *AggregatorError
			require.ErrorAs(t, err, &aerr)
			assert.Equal(t, tt.code, aerr.Code)
		})
	}
}

func TestGetQuoteRetriesRateLimit(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"buyAmount": "5", "liquidityAvailable": true, "transaction": {"to": "0x0000000000000000000000000000000000000ddd", "data": "0x", "value": "0x0", "gas": "0x1"}}`))
	}))
	defer server.Close()

	quote, err := newTestClient(t, server.URL, 4).GetQuote(context.Background(), testSwapRequest())
	require.NoError(t, err)
	assert.Equal(t, int64(5), quote.BuyAmount.Int64())
	assert.Equal(t, 3, calls)
}

func TestGetQuoteZeroPolicyKeepsAttemptCap(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	// A zero-valued policy falls back to the default cap instead of
	// retrying a persistent 429 forever.
	policy := chain.RetryPolicy{BaseDelay: time.Millisecond}
	client := NewAggregatorClient(server.URL, common.HexToAddress("0xfee"), policy, zaptest.NewLogger(t))

	_, err := client.GetQuote(context.Background(), testSwapRequest())
	require.Error(t, err)
	assert.Equal(t, int(chain.DefaultRetryPolicy().MaxAttempts), calls)
}

func TestGetQuoteDoesNotRetryAggregatorErrors(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"details": {"code": "TOKEN_NOT_SUPPORTED"}}`))
	}))
	defer server.Close()

	_, err := newTestClient(t, server.URL, 5).GetQuote(context.Background(), testSwapRequest())
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}
