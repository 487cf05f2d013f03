package permit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/certmint/trade-engine/internal/chain"
	"github.com/certmint/trade-engine/internal/quote"
	"github.com/certmint/trade-engine/internal/wallet"
)

// fakeWallet records the typed-data payload it was asked to sign.
type fakeWallet struct {
	signed    *apitypes.TypedData
	signature []byte
	signErr   error
}

func (w *fakeWallet) SendTransaction(context.Context, chain.TxRequest) (common.Hash, error) {
	return common.Hash{}, errors.New("not implemented")
}

func (w *fakeWallet) Address() common.Address { return common.HexToAddress("0x01") }

func (w *fakeWallet) ChainID(context.Context) (int64, error) { return 1, nil }

func (w *fakeWallet) SwitchNetwork(context.Context, int64) error { return nil }

func (w *fakeWallet) SignTypedData(_ context.Context, typedData *apitypes.TypedData) ([]byte, error) {
	w.signed = typedData
	if w.signErr != nil {
		return nil, w.signErr
	}
	return w.signature, nil
}

var _ wallet.Provider = (*fakeWallet)(nil)

func permitQuote(t *testing.T, data []byte) *quote.Quote {
	var payload apitypes.TypedData
	require.NoError(t, json.Unmarshal([]byte(`{
		"types": {"EIP712Domain": [{"name": "name", "type": "string"}]},
		"domain": {"name": "Permit2"},
		"primaryType": "EIP712Domain",
		"message": {"name": "Permit2"}
	}`), &payload))

	return &quote.Quote{
		SellAmount:  big.NewInt(1),
		BuyAmount:   big.NewInt(1),
		Permit2:     &quote.Permit2{EIP712: &payload},
		Transaction: quote.TxPlan{Data: data},
	}
}

func TestSignAssemblesCalldata(t *testing.T) {
	signature := bytes.Repeat([]byte{0xcd}, 65)
	w := &fakeWallet{signature: signature}
	signer := NewSigner(w, zaptest.NewLogger(t))

	txData := []byte{0x01, 0x02, 0x03, 0x04, 0x05}
	q := permitQuote(t, txData)

	data, err := signer.Sign(context.Background(), q)
	require.NoError(t, err)

	// data || uint256(65) || signature
	require.Len(t, data, len(txData)+32+65)
	assert.Equal(t, txData, data[:len(txData)])

	length := new(big.Int).SetBytes(data[len(txData) : len(txData)+32])
	assert.Equal(t, int64(65), length.Int64())
	assert.Equal(t, signature, data[len(txData)+32:])
}

func TestSignPassesPayloadUntouched(t *testing.T) {
	w := &fakeWallet{signature: make([]byte, 65)}
	signer := NewSigner(w, zaptest.NewLogger(t))

	q := permitQuote(t, []byte{0x01})
	_, err := signer.Sign(context.Background(), q)
	require.NoError(t, err)

	// The wallet must see the exact payload the quote carried: the
	// signature is bound to those bytes.
	assert.Same(t, q.Permit2.EIP712, w.signed)
}

func TestSignMissingPermit(t *testing.T) {
	signer := NewSigner(&fakeWallet{}, zaptest.NewLogger(t))

	q := permitQuote(t, nil)
	q.Permit2 = nil
	_, err := signer.Sign(context.Background(), q)
	require.ErrorIs(t, err, ErrMissingPermit)
}

func TestSignRejectsBadSignatureLength(t *testing.T) {
	w := &fakeWallet{signature: make([]byte, 64)}
	signer := NewSigner(w, zaptest.NewLogger(t))

	_, err := signer.Sign(context.Background(), permitQuote(t, []byte{0x01}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "signature length")
}

func TestSignPropagatesWalletError(t *testing.T) {
	w := &fakeWallet{signErr: &wallet.Error{Code: wallet.CodeUserRejected, Message: "user rejected"}}
	signer := NewSigner(w, zaptest.NewLogger(t))

	_, err := signer.Sign(context.Background(), permitQuote(t, []byte{0x01}))
	require.Error(t, err)
	assert.True(t, wallet.IsUserRejected(err))
}
