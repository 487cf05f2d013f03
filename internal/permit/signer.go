// Package permit collects the EIP-712 signature an aggregator quote
// requires and splices it into the transaction call data.
package permit

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"go.uber.org/zap"

	"github.com/certmint/trade-engine/internal/chain"
	"github.com/certmint/trade-engine/internal/quote"
	"github.com/certmint/trade-engine/internal/wallet"
)

// ErrMissingPermit means a quote that requires signing came back without a
// permit payload. This is fatal, not a silent skip.
var ErrMissingPermit = errors.New("quote missing permit data")

const signatureLength = 65

// Signer turns a quoted transaction plus a wallet signature into submittable
// call data. The typed-data payload is forwarded to the wallet exactly as
// the quote carried it; the aggregator's settlement contract verifies the
// signature against those bytes.
type Signer struct {
	wallet wallet.Provider
	logger *zap.Logger
}

// NewSigner creates a permit signer
func NewSigner(w wallet.Provider, logger *zap.Logger) *Signer {
	return &Signer{
		wallet: w,
		logger: logger.Named("permit_signer"),
	}
}

// Sign requests the typed-data signature for q's permit and returns the
// final call data: transaction data, then the signature length as a 32-byte
// unsigned value, then the signature itself.
func (s *Signer) Sign(ctx context.Context, q *quote.Quote) ([]byte, error) {
	if q.Permit2 == nil || q.Permit2.EIP712 == nil {
		return nil, ErrMissingPermit
	}

	signature, err := s.wallet.SignTypedData(ctx, q.Permit2.EIP712)
	if err != nil {
		return nil, fmt.Errorf("typed-data signing failed: %w", err)
	}
	if len(signature) != signatureLength {
		return nil, fmt.Errorf("unexpected signature length %d, want %d", len(signature), signatureLength)
	}

	data := make([]byte, 0, len(q.Transaction.Data)+32+signatureLength)
	data = append(data, q.Transaction.Data...)
	data = append(data, chain.EncodeUint256(big.NewInt(signatureLength))...)
	data = append(data, signature...)

	s.logger.Debug("Permit signature appended",
		zap.Int("calldata_bytes", len(data)))
	return data, nil
}
