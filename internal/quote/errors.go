package quote

import (
	"errors"
	"fmt"
)

// ErrQuoteUnavailable means neither the pool read nor the cached linear
// price could produce an estimate.
var ErrQuoteUnavailable = errors.New("quote unavailable")

// Aggregator error codes as returned in the response details object.
const (
	CodeInvalidParameters     = "INVALID_PARAMETERS"
	CodeValidationFailed      = "SWAP_VALIDATION_FAILED"
	CodeInsufficientLiquidity = "INSUFFICIENT_LIQUIDITY"
	CodeTokenNotSupported     = "TOKEN_NOT_SUPPORTED"
	CodeInsufficientBalance   = "INSUFFICIENT_BALANCE"
)

// AggregatorError is a reportable aggregator failure. The code and message
// are surfaced verbatim; these are never auto-retried. Only a new user
// input triggers a fresh quote.
type AggregatorError struct {
	Code    string
	Message string
}

func (e *AggregatorError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("aggregator error %s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("aggregator error %s", e.Code)
}

// IsNoLiquidity reports whether the aggregator had no route for the pair.
func IsNoLiquidity(err error) bool {
	var aerr *AggregatorError
	return errors.As(err, &aerr) && aerr.Code == CodeInsufficientLiquidity
}

// IsUnsupportedToken reports whether the aggregator does not support a token
// in the pair.
func IsUnsupportedToken(err error) bool {
	var aerr *AggregatorError
	return errors.As(err, &aerr) && aerr.Code == CodeTokenNotSupported
}

// IsInvalidParameters reports whether the aggregator rejected the trade
// parameters.
func IsInvalidParameters(err error) bool {
	var aerr *AggregatorError
	return errors.As(err, &aerr) &&
		(aerr.Code == CodeInvalidParameters || aerr.Code == CodeValidationFailed)
}

// IsInsufficientBalance reports whether the aggregator saw a taker balance
// below the sell amount.
func IsInsufficientBalance(err error) bool {
	var aerr *AggregatorError
	return errors.As(err, &aerr) && aerr.Code == CodeInsufficientBalance
}
