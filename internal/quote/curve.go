package quote

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/certmint/trade-engine/internal/chain"
)

const marketABIJSON = `[
	{"constant":true,"inputs":[{"name":"_token","type":"address"},{"name":"_tokenId","type":"uint256"}],"name":"poolAddress","outputs":[{"name":"","type":"address"}],"type":"function"},
	{"inputs":[{"name":"_token","type":"address"},{"name":"_tokenId","type":"uint256"},{"name":"_minTokensOut","type":"uint256"}],"name":"buy","outputs":[],"stateMutability":"payable","type":"function"}
]`

const poolABIJSON = `[
	{"constant":true,"inputs":[],"name":"slot0","outputs":[
		{"name":"sqrtPriceX96","type":"uint160"},
		{"name":"tick","type":"int24"},
		{"name":"observationIndex","type":"uint16"},
		{"name":"observationCardinality","type":"uint16"},
		{"name":"observationCardinalityNext","type":"uint16"},
		{"name":"feeProtocol","type":"uint8"},
		{"name":"unlocked","type":"bool"}
	],"type":"function"}
]`

var (
	marketABI = mustParseABI(marketABIJSON)
	poolABI   = mustParseABI(poolABIJSON)

	oneEther = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("invalid ABI literal: %v", err))
	}
	return parsed
}

// TokensForEth converts an ETH input into an estimated token output from the
// pool's sqrtPriceX96. All arithmetic is integer; the final division floors,
// so the output amount never gains precision the pool does not have:
//
//	tokenPrice = sqrtPriceX96^2 * 10^18 >> 192
//	tokensOut  = ethIn * tokenPrice / 10^18
func TokensForEth(sqrtPriceX96, ethIn *big.Int) *big.Int {
	priceX192 := new(big.Int).Mul(sqrtPriceX96, sqrtPriceX96)
	tokenPrice := new(big.Int).Mul(priceX192, oneEther)
	tokenPrice.Rsh(tokenPrice, 192)

	tokensOut := new(big.Int).Mul(ethIn, tokenPrice)
	return tokensOut.Div(tokensOut, oneEther)
}

// linearTokensForEth is the fallback estimate from a flat wei-per-token
// price: tokensOut = ethIn * 10^18 / pricePerToken.
func linearTokensForEth(pricePerToken, ethIn *big.Int) *big.Int {
	tokensOut := new(big.Int).Mul(ethIn, oneEther)
	return tokensOut.Div(tokensOut, pricePerToken)
}

type poolKey struct {
	Token   common.Address
	TokenID string
}

// CurveQuoter estimates buy output for the in-house bonding-curve market by
// reading pool state. When the pool read fails it falls back to the last
// known linear price for the token, if any.
type CurveQuoter struct {
	client chain.Provider
	market common.Address
	logger *zap.Logger

	mu           sync.RWMutex
	linearPrices map[poolKey]*big.Int // wei per token
}

// NewCurveQuoter creates a quoter bound to the timed-sale market contract.
func NewCurveQuoter(client chain.Provider, market common.Address, logger *zap.Logger) *CurveQuoter {
	return &CurveQuoter{
		client:       client,
		market:       market,
		logger:       logger.Named("curve_quoter"),
		linearPrices: make(map[poolKey]*big.Int),
	}
}

// SeedLinearPrice records a flat wei-per-token price to fall back on, e.g.
// from a resolved fixed-price sale.
func (q *CurveQuoter) SeedLinearPrice(token common.Address, tokenID *big.Int, pricePerToken *big.Int) {
	if pricePerToken == nil || pricePerToken.Sign() <= 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.linearPrices[poolKey{Token: token, TokenID: tokenID.String()}] = new(big.Int).Set(pricePerToken)
}

// QuoteBuy estimates the token output for a native-currency buy.
func (q *CurveQuoter) QuoteBuy(ctx context.Context, token common.Address, tokenID *big.Int, ethIn *big.Int) (*Quote, error) {
	sqrtPrice, err := q.readSqrtPrice(ctx, token, tokenID)
	if err != nil {
		q.logger.Warn("Pool read failed, trying cached linear price",
			zap.String("token", token.Hex()),
			zap.Error(err))
		return q.linearFallback(token, tokenID, ethIn)
	}

	tokensOut := TokensForEth(sqrtPrice, ethIn)
	q.rememberLinearPrice(token, tokenID, ethIn, tokensOut)

	return q.buildBuyQuote(token, tokenID, ethIn, tokensOut)
}

// buildBuyQuote wraps the estimate in a market buy call. The estimate is
// passed as the on-chain minimum output.
func (q *CurveQuoter) buildBuyQuote(token common.Address, tokenID, ethIn, tokensOut *big.Int) (*Quote, error) {
	data, err := marketABI.Pack("buy", token, tokenID, tokensOut)
	if err != nil {
		return nil, fmt.Errorf("failed to encode buy call: %w", err)
	}

	return &Quote{
		BuyToken:   token,
		SellAmount: new(big.Int).Set(ethIn),
		BuyAmount:  tokensOut,
		Transaction: TxPlan{
			To:    q.market,
			Data:  data,
			Value: new(big.Int).Set(ethIn),
		},
	}, nil
}

func (q *CurveQuoter) readSqrtPrice(ctx context.Context, token common.Address, tokenID *big.Int) (*big.Int, error) {
	results, err := q.client.Read(ctx, q.market, marketABI, "poolAddress", token, tokenID)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("empty poolAddress result")
	}
	pool, ok := results[0].(common.Address)
	if !ok {
		return nil, fmt.Errorf("unexpected poolAddress type %T", results[0])
	}
	if pool == (common.Address{}) {
		return nil, fmt.Errorf("no pool for token %s/%s", token.Hex(), tokenID.String())
	}

	slot0, err := q.client.Read(ctx, pool, poolABI, "slot0")
	if err != nil {
		return nil, err
	}
	if len(slot0) == 0 {
		return nil, fmt.Errorf("empty slot0 result")
	}
	sqrtPrice, ok := slot0[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected sqrtPriceX96 type %T", slot0[0])
	}
	return sqrtPrice, nil
}

func (q *CurveQuoter) linearFallback(token common.Address, tokenID *big.Int, ethIn *big.Int) (*Quote, error) {
	q.mu.RLock()
	pricePerToken, ok := q.linearPrices[poolKey{Token: token, TokenID: tokenID.String()}]
	q.mu.RUnlock()

	if !ok {
		return nil, ErrQuoteUnavailable
	}

	return q.buildBuyQuote(token, tokenID, ethIn, linearTokensForEth(pricePerToken, ethIn))
}

// rememberLinearPrice derives a flat price from a successful curve quote so
// a later pool outage can still estimate.
func (q *CurveQuoter) rememberLinearPrice(token common.Address, tokenID *big.Int, ethIn, tokensOut *big.Int) {
	if tokensOut.Sign() <= 0 {
		return
	}
	pricePerToken := new(big.Int).Mul(ethIn, oneEther)
	pricePerToken.Div(pricePerToken, tokensOut)
	if pricePerToken.Sign() <= 0 {
		return
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.linearPrices[poolKey{Token: token, TokenID: tokenID.String()}] = pricePerToken
}
