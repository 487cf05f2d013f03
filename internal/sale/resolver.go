package sale

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/certmint/trade-engine/internal/chain"
)

const salesConfigABIJSON = `[
	{"constant":true,"inputs":[{"name":"_token","type":"address"},{"name":"_tokenId","type":"uint256"}],"name":"saleConfig","outputs":[
		{"name":"pricePerToken","type":"uint256"},
		{"name":"currency","type":"address"},
		{"name":"mintFeePerQuantity","type":"uint256"},
		{"name":"merkleRoot","type":"bytes32"},
		{"name":"saleStart","type":"uint64"},
		{"name":"saleEnd","type":"uint64"},
		{"name":"maxTokensPerAddress","type":"uint64"}
	],"type":"function"},
	{"constant":true,"inputs":[{"name":"_token","type":"address"},{"name":"_tokenId","type":"uint256"}],"name":"primaryMintActive","outputs":[{"name":"","type":"bool"}],"type":"function"}
]`

const erc20MetadataABIJSON = `[
	{"constant":true,"inputs":[],"name":"name","outputs":[{"name":"","type":"string"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"symbol","outputs":[{"name":"","type":"string"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"type":"function"}
]`

var (
	salesConfigABI   = mustParseABI(salesConfigABIJSON)
	erc20MetadataABI = mustParseABI(erc20MetadataABIJSON)
)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("invalid ABI literal: %v", err))
	}
	return parsed
}

// rawSaleConfig is the unclassified on-chain response shape.
type rawSaleConfig struct {
	PricePerToken       *big.Int
	Currency            common.Address
	MintFeePerQuantity  *big.Int
	MerkleRoot          common.Hash
	SaleStart           uint64
	SaleEnd             uint64
	MaxTokensPerAddress uint64
}

// Resolver classifies a token's sale configuration.
type Resolver struct {
	client       chain.Provider
	salesConfig  common.Address
	timedSaleFee *big.Int
	logger       *zap.Logger
	now          func() time.Time
}

// NewResolver creates a resolver bound to the platform's sales-config
// contract. timedSaleFee is the platform's fixed per-quantity timed-sale fee.
func NewResolver(client chain.Provider, salesConfig common.Address, timedSaleFee *big.Int, logger *zap.Logger) *Resolver {
	return &Resolver{
		client:       client,
		salesConfig:  salesConfig,
		timedSaleFee: timedSaleFee,
		logger:       logger.Named("sale_resolver"),
		now:          time.Now,
	}
}

// Resolve reads the sale configuration and primary-mint flag for a token and
// returns the classified config with its current status. ERC-20 currency
// metadata is fetched best-effort; a metadata failure degrades to the raw
// address and never blocks resolution.
func (r *Resolver) Resolve(ctx context.Context, token common.Address, tokenID *big.Int) (*Resolution, error) {
	raw, err := r.readSaleConfig(ctx, token, tokenID)
	if err != nil {
		return nil, fmt.Errorf("failed to read sale config: %w", err)
	}

	active, err := r.readPrimaryMintActive(ctx, token, tokenID)
	if err != nil {
		return nil, fmt.Errorf("failed to read primary mint flag: %w", err)
	}

	config := r.classify(raw)
	resolution := &Resolution{
		Config:            config,
		Status:            config.DeriveStatus(r.now(), active),
		PrimaryMintActive: active,
	}

	if config.Kind == KindFixedPriceERC20 {
		resolution.Currency = r.currencyInfo(ctx, config.Currency)
	}

	r.logger.Debug("Sale resolved",
		zap.String("token", token.Hex()),
		zap.String("token_id", tokenID.String()),
		zap.String("kind", config.Kind.String()),
		zap.String("status", resolution.Status.String()))
	return resolution, nil
}

// classify maps the raw response shape onto the tagged union. The order
// matters: the platform's timed-sale fee marker wins over a price field, and
// anything unrecognized is an ended no-sale, never a silent fallthrough.
func (r *Resolver) classify(raw *rawSaleConfig) Config {
	config := Config{
		MaxTokensPerAddress: raw.MaxTokensPerAddress,
	}
	if raw.SaleStart > 0 {
		config.SaleStart = time.Unix(int64(raw.SaleStart), 0)
	}
	if raw.SaleEnd > 0 {
		config.SaleEnd = time.Unix(int64(raw.SaleEnd), 0)
	}

	zeroAddress := common.Address{}
	switch {
	case raw.MintFeePerQuantity.Sign() > 0 && raw.MintFeePerQuantity.Cmp(r.timedSaleFee) == 0:
		config.Kind = KindTimedSale
		config.MintFeePerQuantity = raw.MintFeePerQuantity
	case raw.PricePerToken.Sign() > 0 && raw.Currency != zeroAddress:
		config.Kind = KindFixedPriceERC20
		config.PricePerToken = raw.PricePerToken
		config.Currency = raw.Currency
	case raw.PricePerToken.Sign() > 0:
		config.Kind = KindFixedPriceNative
		config.PricePerToken = raw.PricePerToken
	case raw.MerkleRoot != (common.Hash{}):
		config.Kind = KindAllowlist
		config.MerkleRoot = raw.MerkleRoot
	default:
		config.Kind = KindNoSale
	}
	return config
}

func (r *Resolver) readSaleConfig(ctx context.Context, token common.Address, tokenID *big.Int) (*rawSaleConfig, error) {
	results, err := r.client.Read(ctx, r.salesConfig, salesConfigABI, "saleConfig", token, tokenID)
	if err != nil {
		return nil, err
	}
	if len(results) != 7 {
		return nil, fmt.Errorf("unexpected saleConfig result arity %d", len(results))
	}

	raw := &rawSaleConfig{}
	var ok bool
	if raw.PricePerToken, ok = results[0].(*big.Int); !ok {
		return nil, fmt.Errorf("unexpected pricePerToken type %T", results[0])
	}
	if raw.Currency, ok = results[1].(common.Address); !ok {
		return nil, fmt.Errorf("unexpected currency type %T", results[1])
	}
	if raw.MintFeePerQuantity, ok = results[2].(*big.Int); !ok {
		return nil, fmt.Errorf("unexpected mintFeePerQuantity type %T", results[2])
	}
	root, ok := results[3].([32]byte)
	if !ok {
		return nil, fmt.Errorf("unexpected merkleRoot type %T", results[3])
	}
	raw.MerkleRoot = common.Hash(root)
	if raw.SaleStart, ok = results[4].(uint64); !ok {
		return nil, fmt.Errorf("unexpected saleStart type %T", results[4])
	}
	if raw.SaleEnd, ok = results[5].(uint64); !ok {
		return nil, fmt.Errorf("unexpected saleEnd type %T", results[5])
	}
	if raw.MaxTokensPerAddress, ok = results[6].(uint64); !ok {
		return nil, fmt.Errorf("unexpected maxTokensPerAddress type %T", results[6])
	}
	return raw, nil
}

func (r *Resolver) readPrimaryMintActive(ctx context.Context, token common.Address, tokenID *big.Int) (bool, error) {
	results, err := r.client.Read(ctx, r.salesConfig, salesConfigABI, "primaryMintActive", token, tokenID)
	if err != nil {
		return false, err
	}
	if len(results) == 0 {
		return false, fmt.Errorf("empty primaryMintActive result")
	}
	active, ok := results[0].(bool)
	if !ok {
		return false, fmt.Errorf("unexpected primaryMintActive type %T", results[0])
	}
	return active, nil
}

// currencyInfo fetches name, symbol and decimals in parallel. Failures fall
// back to the raw address so the sale still resolves.
func (r *Resolver) currencyInfo(ctx context.Context, currency common.Address) *CurrencyInfo {
	info := &CurrencyInfo{
		Address:  currency,
		Name:     currency.Hex(),
		Symbol:   currency.Hex(),
		Decimals: 18,
	}

	g, gctx := errgroup.WithContext(ctx)
	var name, symbol string
	var decimals uint8

	g.Go(func() error {
		results, err := r.client.Read(gctx, currency, erc20MetadataABI, "name")
		if err == nil && len(results) == 1 {
			name, _ = results[0].(string)
		}
		return err
	})
	g.Go(func() error {
		results, err := r.client.Read(gctx, currency, erc20MetadataABI, "symbol")
		if err == nil && len(results) == 1 {
			symbol, _ = results[0].(string)
		}
		return err
	})
	g.Go(func() error {
		results, err := r.client.Read(gctx, currency, erc20MetadataABI, "decimals")
		if err == nil && len(results) == 1 {
			decimals, _ = results[0].(uint8)
		}
		return err
	})

	if err := g.Wait(); err != nil {
		r.logger.Warn("Currency metadata unavailable, using raw address",
			zap.String("currency", currency.Hex()),
			zap.Error(err))
		return info
	}

	if name != "" {
		info.Name = name
	}
	if symbol != "" {
		info.Symbol = symbol
	}
	if decimals > 0 {
		info.Decimals = decimals
	}
	return info
}
