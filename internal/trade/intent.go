// Package trade drives a single trade intent through its lifecycle, from
// validation to settlement, emitting events at every transition.
package trade

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// Kind is the direction of a trade intent.
type Kind int

const (
	KindBuy Kind = iota
	KindSell
	KindBurn
	KindSend
)

func (k Kind) String() string {
	switch k {
	case KindBuy:
		return "buy"
	case KindSell:
		return "sell"
	case KindBurn:
		return "burn"
	case KindSend:
		return "send"
	default:
		return "unknown"
	}
}

// State is a position in the orchestration lifecycle.
type State int

const (
	StateIdle State = iota
	StateValidating
	StateQuoting
	StateApprovalCheck
	StateApproving
	StateApproved
	StateSigningCheck
	StateSigning
	StateSubmitting
	StateConfirming
	StateSettled
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateValidating:
		return "validating"
	case StateQuoting:
		return "quoting"
	case StateApprovalCheck:
		return "approval_check"
	case StateApproving:
		return "approving"
	case StateApproved:
		return "approved"
	case StateSigningCheck:
		return "signing_check"
	case StateSigning:
		return "signing"
	case StateSubmitting:
		return "submitting"
	case StateConfirming:
		return "confirming"
	case StateSettled:
		return "settled"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state ends the lifecycle. Terminal states are
// never re-entered.
func (s State) Terminal() bool {
	switch s {
	case StateApproved, StateSettled, StateFailed, StateCancelled:
		return true
	}
	return false
}

// Intent is one user-initiated trade. It is immutable once created; a single
// orchestration owns it together with its quote.
type Intent struct {
	ID      string
	Kind    Kind
	Token   common.Address
	TokenID *big.Int

	// Amount is the sell-side quantity: wei of native currency for buys,
	// token units for sells, burns and sends.
	Amount *big.Int

	// Currency is the ERC-20 the trade is denominated in. The zero address
	// means native currency.
	Currency common.Address

	// Recipient is the transfer target for sends.
	Recipient common.Address
}

// NewIntent assigns a fresh correlation ID to the intent fields.
func NewIntent(kind Kind, token common.Address, tokenID, amount *big.Int) *Intent {
	return &Intent{
		ID:      uuid.NewString(),
		Kind:    kind,
		Token:   token,
		TokenID: tokenID,
		Amount:  amount,
	}
}

// NativeDenominated reports whether the trade settles in native currency.
func (i *Intent) NativeDenominated() bool {
	return i.Currency == (common.Address{})
}

// Result is the terminal outcome of one orchestration.
type Result struct {
	State   State
	TxHash  common.Hash
	Reason  Reason
	Message string
}
