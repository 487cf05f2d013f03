package trade

import (
	"errors"
	"strings"

	"github.com/certmint/trade-engine/internal/quote"
	"github.com/certmint/trade-engine/internal/wallet"
)

// Validation failures detected before any network call.
var (
	ErrNonPositiveAmount = errors.New("amount must be a positive number")
	ErrBadRecipient      = errors.New("send requires a non-zero recipient")
)

// Reason is the machine-readable failure code attached to terminal events.
type Reason string

const (
	ReasonNone                Reason = ""
	ReasonUserRejected        Reason = "user_rejected"
	ReasonInsufficientBalance Reason = "insufficient_balance"
	ReasonRateLimited         Reason = "rate_limited"
	ReasonNoLiquidity         Reason = "no_liquidity"
	ReasonUnsupportedToken    Reason = "unsupported_token"
	ReasonInvalidParameters   Reason = "invalid_parameters"
	ReasonChainMismatch       Reason = "chain_mismatch"
	ReasonQuoteUnavailable    Reason = "quote_unavailable"
	ReasonUnknown             Reason = "unknown"
)

// Classify maps an error onto a reason code plus the message to report.
// Aggregator messages pass through verbatim; nothing is swallowed or
// defaulted to success.
func Classify(err error) (Reason, string) {
	if err == nil {
		return ReasonNone, ""
	}

	switch {
	case errors.Is(err, ErrNonPositiveAmount), errors.Is(err, ErrBadRecipient):
		return ReasonInvalidParameters, err.Error()
	case wallet.IsUserRejected(err):
		return ReasonUserRejected, err.Error()
	case wallet.IsUnknownNetwork(err):
		return ReasonChainMismatch, "wallet cannot switch: add the network first"
	case quote.IsNoLiquidity(err):
		return ReasonNoLiquidity, err.Error()
	case quote.IsUnsupportedToken(err):
		return ReasonUnsupportedToken, err.Error()
	case quote.IsInvalidParameters(err):
		return ReasonInvalidParameters, err.Error()
	case quote.IsInsufficientBalance(err):
		return ReasonInsufficientBalance, err.Error()
	case errors.Is(err, quote.ErrQuoteUnavailable):
		return ReasonQuoteUnavailable, err.Error()
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "insufficient funds"):
		return ReasonInsufficientBalance, err.Error()
	case strings.Contains(msg, "429"), strings.Contains(msg, "rate"):
		return ReasonRateLimited, err.Error()
	}
	return ReasonUnknown, err.Error()
}
