package wallet

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"go.uber.org/zap"

	"github.com/certmint/trade-engine/internal/chain"
)

// KeyedProvider is a Provider backed by a local private key. It is what the
// CLI runner uses; browser wallets implement the same interface upstream.
// A keyed provider is bound to one chain and cannot switch networks.
type KeyedProvider struct {
	eth        *ethclient.Client
	privateKey *ecdsa.PrivateKey
	address    common.Address
	chainID    int64
	logger     *zap.Logger
}

// NewKeyedProvider parses the hex private key and binds the provider to the
// given chain.
func NewKeyedProvider(rpcURL, privateKeyHex string, chainID int64, logger *zap.Logger) (*KeyedProvider, error) {
	eth, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC endpoint: %w", err)
	}

	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}

	publicKey, ok := privateKey.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("failed to derive public key")
	}

	return &KeyedProvider{
		eth:        eth,
		privateKey: privateKey,
		address:    crypto.PubkeyToAddress(*publicKey),
		chainID:    chainID,
		logger:     logger.Named("keyed_wallet"),
	}, nil
}

func (p *KeyedProvider) Address() common.Address {
	return p.address
}

func (p *KeyedProvider) ChainID(ctx context.Context) (int64, error) {
	return p.chainID, nil
}

// SwitchNetwork always fails for a foreign chain: a key file has no network
// list to add to.
func (p *KeyedProvider) SwitchNetwork(ctx context.Context, chainID int64) error {
	if chainID == p.chainID {
		return nil
	}
	return &Error{
		Code:    CodeUnknownNetwork,
		Message: fmt.Sprintf("chain %d is not configured for this key", chainID),
	}
}

// SignTypedData hashes and signs the payload exactly as given.
func (p *KeyedProvider) SignTypedData(ctx context.Context, typedData *apitypes.TypedData) ([]byte, error) {
	hash, _, err := apitypes.TypedDataAndHash(*typedData)
	if err != nil {
		return nil, fmt.Errorf("failed to hash typed data: %w", err)
	}

	signature, err := crypto.Sign(hash, p.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign typed data: %w", err)
	}

	// Transform V from 0/1 to the 27/28 form contracts expect.
	signature[64] += 27
	return signature, nil
}

// SendTransaction fills in nonce, gas price and gas limit where the request
// leaves them unset, signs with EIP-155 and broadcasts.
func (p *KeyedProvider) SendTransaction(ctx context.Context, req chain.TxRequest) (common.Hash, error) {
	nonce, err := p.eth.PendingNonceAt(ctx, p.address)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get nonce: %w", err)
	}

	gasPrice := req.GasPrice
	if gasPrice == nil {
		gasPrice, err = p.eth.SuggestGasPrice(ctx)
		if err != nil {
			return common.Hash{}, fmt.Errorf("failed to get gas price: %w", err)
		}
	}

	value := req.Value
	if value == nil {
		value = new(big.Int)
	}

	gasLimit := req.Gas
	if gasLimit == 0 {
		msg := ethereum.CallMsg{
			From:  p.address,
			To:    &req.To,
			Value: value,
			Data:  req.Data,
		}
		estimated, err := p.eth.EstimateGas(ctx, msg)
		if err != nil {
			return common.Hash{}, fmt.Errorf("failed to estimate gas: %w", err)
		}
		gasLimit = estimated * 120 / 100
	}

	tx := types.NewTransaction(nonce, req.To, value, gasLimit, gasPrice, req.Data)

	signedTx, err := types.SignTx(tx, types.NewEIP155Signer(big.NewInt(p.chainID)), p.privateKey)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := p.eth.SendTransaction(ctx, signedTx); err != nil {
		return common.Hash{}, fmt.Errorf("failed to send transaction: %w", err)
	}

	p.logger.Info("Transaction broadcast",
		zap.String("tx_hash", signedTx.Hash().Hex()),
		zap.String("to", req.To.Hex()),
		zap.Uint64("nonce", nonce))
	return signedTx.Hash(), nil
}

// Close releases the underlying RPC connection.
func (p *KeyedProvider) Close() {
	if p.eth != nil {
		p.eth.Close()
	}
}
