// Package quote produces trade quotes, either from pool state (bonding
// curve) or from the external swap aggregator.
package quote

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// Permit2 carries the EIP-712 payload a quote wants signed. The payload is
// passed to the wallet exactly as received: the aggregator's signature check
// is bound to these bytes.
type Permit2 struct {
	EIP712 *apitypes.TypedData
}

// TxPlan is the transaction a quote wants submitted. Value and GasPrice may
// be nil.
type TxPlan struct {
	To       common.Address
	Data     []byte
	Value    *big.Int
	Gas      uint64
	GasPrice *big.Int
}

// Quote is a single-use price quote. A permit signature is valid only for
// the exact payload it was issued with; any change to amount or token pair
// requires a fresh quote.
type Quote struct {
	SellToken   common.Address
	BuyToken    common.Address
	SellAmount  *big.Int
	BuyAmount   *big.Int
	Permit2     *Permit2
	Transaction TxPlan
}

// SwapRequest describes an aggregator quote request.
type SwapRequest struct {
	SellToken    common.Address
	BuyToken     common.Address
	SellAmount   *big.Int
	Taker        common.Address
	SwapFeeToken common.Address
}
