package quote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"go.uber.org/zap"

	"github.com/certmint/trade-engine/internal/chain"
)

// aggregatorResponse is the success wire shape of the quote endpoint.
type aggregatorResponse struct {
	BuyAmount          string             `json:"buyAmount"`
	LiquidityAvailable bool               `json:"liquidityAvailable"`
	Permit2            *aggregatorPermit2 `json:"permit2,omitempty"`
	Transaction        aggregatorTx       `json:"transaction"`
}

type aggregatorPermit2 struct {
	EIP712 apitypes.TypedData `json:"eip712"`
}

type aggregatorTx struct {
	To       string `json:"to"`
	Data     string `json:"data"`
	Value    string `json:"value"`
	Gas      string `json:"gas"`
	GasPrice string `json:"gasPrice,omitempty"`
}

// aggregatorErrorBody is the 4xx/5xx wire shape.
type aggregatorErrorBody struct {
	Details struct {
		Code             string   `json:"code"`
		Message          string   `json:"message,omitempty"`
		ValidationErrors []string `json:"validationErrors,omitempty"`
	} `json:"details"`
}

// AggregatorClient fetches swap quotes from the external aggregator. Rate
// limits are retried per the shared policy; every other failure is permanent
// and surfaced verbatim.
type AggregatorClient struct {
	baseURL      string
	swapFeeToken common.Address
	httpClient   *http.Client
	policy       chain.RetryPolicy
	logger       *zap.Logger
}

// NewAggregatorClient creates an aggregator client
func NewAggregatorClient(baseURL string, swapFeeToken common.Address, policy chain.RetryPolicy, logger *zap.Logger) *AggregatorClient {
	return &AggregatorClient{
		baseURL:      baseURL,
		swapFeeToken: swapFeeToken,
		httpClient:   &http.Client{Timeout: 15 * time.Second},
		policy:       policy.Normalized(),
		logger:       logger.Named("aggregator"),
	}
}

// GetQuote requests a quote for the swap. The returned quote is single-use:
// it must be refreshed whenever amount or token pair changes.
func (c *AggregatorClient) GetQuote(ctx context.Context, req SwapRequest) (*Quote, error) {
	backoffPolicy := backoff.NewExponentialBackOff()
	backoffPolicy.InitialInterval = c.policy.BaseDelay
	backoffPolicy.RandomizationFactor = c.policy.Jitter

	notify := func(err error, duration time.Duration) {
		c.logger.Debug("Retrying quote after rate limit",
			zap.Error(err),
			zap.Duration("backoff", duration))
	}

	return backoff.Retry(ctx, func() (*Quote, error) {
		quote, err := c.fetchQuote(ctx, req)
		if err != nil && !c.policy.IsRetryable(err) {
			return nil, backoff.Permanent(err)
		}
		return quote, err
	},
		backoff.WithBackOff(backoffPolicy),
		backoff.WithMaxTries(c.policy.MaxAttempts),
		backoff.WithNotify(notify))
}

func (c *AggregatorClient) fetchQuote(ctx context.Context, req SwapRequest) (*Quote, error) {
	query := url.Values{}
	query.Set("action", "quote")
	query.Set("sellToken", req.SellToken.Hex())
	query.Set("buyToken", req.BuyToken.Hex())
	query.Set("sellAmount", req.SellAmount.String())
	query.Set("taker", req.Taker.Hex())
	feeToken := req.SwapFeeToken
	if feeToken == (common.Address{}) {
		feeToken = c.swapFeeToken
	}
	query.Set("swapFeeToken", feeToken.Hex())

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build quote request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("quote request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read quote response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("aggregator rate limited (status 429)")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, parseAggregatorError(resp.StatusCode, body)
	}

	var parsed aggregatorResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode quote response: %w", err)
	}

	return c.buildQuote(req, &parsed)
}

// parseAggregatorError maps the details.code of an error body onto a typed
// error, passing code and message through verbatim.
func parseAggregatorError(status int, body []byte) error {
	var parsed aggregatorErrorBody
	if err := json.Unmarshal(body, &parsed); err != nil || parsed.Details.Code == "" {
		return &AggregatorError{
			Code:    "UNKNOWN",
			Message: fmt.Sprintf("aggregator returned status %d", status),
		}
	}

	message := parsed.Details.Message
	if message == "" && len(parsed.Details.ValidationErrors) > 0 {
		message = parsed.Details.ValidationErrors[0]
	}
	return &AggregatorError{Code: parsed.Details.Code, Message: message}
}

func (c *AggregatorClient) buildQuote(req SwapRequest, parsed *aggregatorResponse) (*Quote, error) {
	if !parsed.LiquidityAvailable {
		return nil, &AggregatorError{
			Code:    CodeInsufficientLiquidity,
			Message: "no liquidity available for this pair",
		}
	}
	if parsed.BuyAmount == "" {
		return nil, &AggregatorError{
			Code:    "MALFORMED_RESPONSE",
			Message: "quote response missing buyAmount",
		}
	}

	buyAmount, err := chain.ParseBig(parsed.BuyAmount)
	if err != nil {
		return nil, &AggregatorError{
			Code:    "MALFORMED_RESPONSE",
			Message: fmt.Sprintf("non-numeric buyAmount: %s", parsed.BuyAmount),
		}
	}

	data, err := chain.DecodeHexBytes(parsed.Transaction.Data)
	if err != nil {
		return nil, fmt.Errorf("invalid transaction data in quote: %w", err)
	}
	value, err := chain.DecodeHexBig(parsed.Transaction.Value)
	if err != nil {
		return nil, fmt.Errorf("invalid transaction value in quote: %w", err)
	}
	gas, err := chain.DecodeHexBig(parsed.Transaction.Gas)
	if err != nil {
		return nil, fmt.Errorf("invalid gas in quote: %w", err)
	}
	quote := &Quote{
		SellToken:  req.SellToken,
		BuyToken:   req.BuyToken,
		SellAmount: new(big.Int).Set(req.SellAmount),
		BuyAmount:  buyAmount,
		Transaction: TxPlan{
			To:    common.HexToAddress(parsed.Transaction.To),
			Data:  data,
			Value: value,
			Gas:   gas.Uint64(),
		},
	}
	if parsed.Transaction.GasPrice != "" {
		gasPrice, err := chain.DecodeHexBig(parsed.Transaction.GasPrice)
		if err != nil {
			return nil, fmt.Errorf("invalid gasPrice in quote: %w", err)
		}
		quote.Transaction.GasPrice = gasPrice
	}
	if parsed.Permit2 != nil {
		permitCopy := parsed.Permit2.EIP712
		quote.Permit2 = &Permit2{EIP712: &permitCopy}
	}
	return quote, nil
}
