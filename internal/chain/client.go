// Package chain provides the one client every component uses for contract
// reads, writes and receipt waits. Reads share a single retry policy; writes
// are submitted exactly once.
package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/url"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
)

// TxRequest describes a transaction to be signed and submitted by the wallet
// provider. Value and GasPrice may be nil.
type TxRequest struct {
	From     common.Address
	To       common.Address
	Data     []byte
	Value    *big.Int
	Gas      uint64
	GasPrice *big.Int
}

// TxSubmitter signs and broadcasts a transaction. Implemented by the wallet
// provider.
type TxSubmitter interface {
	SendTransaction(ctx context.Context, tx TxRequest) (common.Hash, error)
}

// Provider is the read/write/wait surface the engine components depend on.
type Provider interface {
	Read(ctx context.Context, contract common.Address, cabi abi.ABI, method string, args ...interface{}) ([]interface{}, error)
	BalanceAt(ctx context.Context, account common.Address) (*big.Int, error)
	Write(ctx context.Context, contract common.Address, cabi abi.ABI, method string, value *big.Int, args ...interface{}) (common.Hash, error)
	WaitForReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Client implements Provider over a pool of JSON-RPC endpoints.
type Client struct {
	endpoints []*ethclient.Client
	submitter TxSubmitter
	policy    RetryPolicy
	logger    *zap.Logger

	receiptPoll time.Duration

	mu    sync.Mutex
	index int
}

// Options configures a Client.
type Options struct {
	Policy      RetryPolicy
	ReceiptPoll time.Duration
}

// NewClient dials every RPC endpoint in the list and returns a client that
// round-robins reads across them.
func NewClient(rpcList []string, submitter TxSubmitter, logger *zap.Logger, opts ...Options) (*Client, error) {
	if len(rpcList) == 0 {
		return nil, errors.New("empty RPC list")
	}

	options := Options{Policy: DefaultRetryPolicy(), ReceiptPoll: time.Second}
	if len(opts) > 0 {
		options = opts[0]
		options.Policy = options.Policy.Normalized()
		if options.ReceiptPoll <= 0 {
			options.ReceiptPoll = time.Second
		}
	}

	endpoints := make([]*ethclient.Client, 0, len(rpcList))
	for _, rpcURL := range rpcList {
		if _, err := url.Parse(rpcURL); err != nil {
			return nil, fmt.Errorf("invalid RPC URL %s: %w", rpcURL, err)
		}
		eth, err := ethclient.Dial(rpcURL)
		if err != nil {
			return nil, fmt.Errorf("failed to dial %s: %w", rpcURL, err)
		}
		endpoints = append(endpoints, eth)
	}

	return &Client{
		endpoints:   endpoints,
		submitter:   submitter,
		policy:      options.Policy,
		logger:      logger.Named("chain_client"),
		receiptPoll: options.ReceiptPoll,
	}, nil
}

// nextEndpoint returns the next endpoint in round-robin order.
func (c *Client) nextEndpoint() *ethclient.Client {
	c.mu.Lock()
	defer c.mu.Unlock()

	eth := c.endpoints[c.index]
	c.index = (c.index + 1) % len(c.endpoints)
	return eth
}

// Read performs an eth_call against the contract and unpacks the results.
// Rate-limit errors are retried per the shared policy; any other error
// propagates immediately.
func (c *Client) Read(ctx context.Context, contract common.Address, cabi abi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	data, err := cabi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s call: %w", method, err)
	}

	msg := ethereum.CallMsg{To: &contract, Data: data}

	raw, err := retry(ctx, c.policy, c.logger, func() ([]byte, error) {
		return c.nextEndpoint().CallContract(ctx, msg, nil)
	})
	if err != nil {
		return nil, fmt.Errorf("call %s on %s failed: %w", method, contract.Hex(), err)
	}

	values, err := cabi.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s result: %w", method, err)
	}
	return values, nil
}

// BalanceAt returns the native balance of an account, retried per policy.
func (c *Client) BalanceAt(ctx context.Context, account common.Address) (*big.Int, error) {
	return retry(ctx, c.policy, c.logger, func() (*big.Int, error) {
		return c.nextEndpoint().BalanceAt(ctx, account, nil)
	})
}

// Write packs a method call and submits it through the wallet provider.
// Never retried.
func (c *Client) Write(ctx context.Context, contract common.Address, cabi abi.ABI, method string, value *big.Int, args ...interface{}) (common.Hash, error) {
	if c.submitter == nil {
		return common.Hash{}, errors.New("no transaction submitter configured")
	}

	data, err := cabi.Pack(method, args...)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to pack %s call: %w", method, err)
	}

	hash, err := c.submitter.SendTransaction(ctx, TxRequest{
		To:    contract,
		Data:  data,
		Value: value,
	})
	if err != nil {
		return common.Hash{}, fmt.Errorf("write %s failed: %w", method, err)
	}

	c.logger.Info("Transaction submitted",
		zap.String("method", method),
		zap.String("contract", contract.Hex()),
		zap.String("tx_hash", hash.Hex()))
	return hash, nil
}

// WaitForReceipt polls until the transaction is mined or the context ends.
// The poll loop tolerates not-found responses; it never re-submits.
func (c *Client) WaitForReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(c.receiptPoll)
	defer ticker.Stop()

	for {
		receipt, err := c.nextEndpoint().TransactionReceipt(ctx, txHash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			c.logger.Debug("Receipt poll failed",
				zap.String("tx_hash", txHash.Hex()),
				zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for receipt of %s: %w", txHash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}
