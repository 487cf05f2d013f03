package quote

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// Engine is the single entry point for pricing. Native-currency buys against
// the in-house market go through the bonding curve; everything else goes to
// the aggregator.
type Engine struct {
	curve      *CurveQuoter
	aggregator *AggregatorClient
	logger     *zap.Logger
}

// NewEngine creates a quote engine
func NewEngine(curve *CurveQuoter, aggregator *AggregatorClient, logger *zap.Logger) *Engine {
	return &Engine{
		curve:      curve,
		aggregator: aggregator,
		logger:     logger.Named("quote_engine"),
	}
}

// QuoteBuy prices a native-currency buy from pool state.
func (e *Engine) QuoteBuy(ctx context.Context, token common.Address, tokenID *big.Int, ethIn *big.Int) (*Quote, error) {
	quote, err := e.curve.QuoteBuy(ctx, token, tokenID, ethIn)
	if err != nil {
		return nil, err
	}
	e.logger.Debug("Curve quote produced",
		zap.String("token", token.Hex()),
		zap.String("eth_in", ethIn.String()),
		zap.String("tokens_out", quote.BuyAmount.String()))
	return quote, nil
}

// QuoteSwap prices a swap through the aggregator.
func (e *Engine) QuoteSwap(ctx context.Context, req SwapRequest) (*Quote, error) {
	quote, err := e.aggregator.GetQuote(ctx, req)
	if err != nil {
		return nil, err
	}
	e.logger.Debug("Aggregator quote produced",
		zap.String("sell_token", req.SellToken.Hex()),
		zap.String("buy_token", req.BuyToken.Hex()),
		zap.String("sell_amount", req.SellAmount.String()),
		zap.String("buy_amount", quote.BuyAmount.String()),
		zap.Bool("has_permit", quote.Permit2 != nil))
	return quote, nil
}

// SeedLinearPrice forwards a flat price to the curve quoter's fallback
// cache.
func (e *Engine) SeedLinearPrice(token common.Address, tokenID *big.Int, pricePerToken *big.Int) {
	e.curve.SeedLinearPrice(token, tokenID, pricePerToken)
}
