// Package balance fetches native, ERC-20 and ERC-1155 balances for trade
// validation, with a session-scoped cache.
package balance

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/certmint/trade-engine/internal/chain"
)

const erc20ABIJSON = `[
	{"constant":true,"inputs":[{"name":"_owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"balance","type":"uint256"}],"type":"function"},
	{"constant":true,"inputs":[{"name":"_owner","type":"address"},{"name":"_spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"type":"function"}
]`

const erc1155ABIJSON = `[
	{"constant":true,"inputs":[{"name":"_owner","type":"address"},{"name":"_id","type":"uint256"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"type":"function"}
]`

var (
	erc20ABI   = mustParseABI(erc20ABIJSON)
	erc1155ABI = mustParseABI(erc1155ABIJSON)
)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("invalid ABI literal: %v", err))
	}
	return parsed
}

// cacheKey identifies one balance slot. The zero token address means the
// native currency; TokenID is empty except for ERC-1155 balances.
type cacheKey struct {
	Token   common.Address
	Holder  common.Address
	TokenID string
}

type cachedBalance struct {
	value      *big.Int
	generation uint64
}

// Tracker reads balances through the chain client and caches them for the
// session. Cache writes are last-write-wins guarded by a generation counter,
// so a slow stale fetch can never overwrite a newer value.
type Tracker struct {
	client chain.Provider
	logger *zap.Logger

	generation atomic.Uint64
	mu         sync.RWMutex
	cache      map[cacheKey]cachedBalance
}

// NewTracker creates a balance tracker
func NewTracker(client chain.Provider, logger *zap.Logger) *Tracker {
	return &Tracker{
		client: client,
		logger: logger.Named("balance_tracker"),
		cache:  make(map[cacheKey]cachedBalance),
	}
}

// NativeBalance returns the holder's native-currency balance.
func (t *Tracker) NativeBalance(ctx context.Context, holder common.Address) (*big.Int, error) {
	key := cacheKey{Holder: holder}
	if value, ok := t.cached(key); ok {
		return value, nil
	}

	gen := t.generation.Add(1)
	value, err := t.client.BalanceAt(ctx, holder)
	if err != nil {
		return nil, fmt.Errorf("failed to get native balance: %w", err)
	}
	t.store(key, value, gen)
	return value, nil
}

// ERC20Balance returns the holder's balance of an ERC-20 token.
func (t *Tracker) ERC20Balance(ctx context.Context, token, holder common.Address) (*big.Int, error) {
	key := cacheKey{Token: token, Holder: holder}
	if value, ok := t.cached(key); ok {
		return value, nil
	}

	gen := t.generation.Add(1)
	results, err := t.client.Read(ctx, token, erc20ABI, "balanceOf", holder)
	if err != nil {
		return nil, fmt.Errorf("failed to get token balance: %w", err)
	}
	value, err := asBig(results)
	if err != nil {
		return nil, err
	}
	t.store(key, value, gen)
	return value, nil
}

// ERC1155Balance returns the holder's balance of a specific token id.
func (t *Tracker) ERC1155Balance(ctx context.Context, token, holder common.Address, tokenID *big.Int) (*big.Int, error) {
	key := cacheKey{Token: token, Holder: holder, TokenID: tokenID.String()}
	if value, ok := t.cached(key); ok {
		return value, nil
	}

	gen := t.generation.Add(1)
	results, err := t.client.Read(ctx, token, erc1155ABI, "balanceOf", holder, tokenID)
	if err != nil {
		return nil, fmt.Errorf("failed to get certificate balance: %w", err)
	}
	value, err := asBig(results)
	if err != nil {
		return nil, err
	}
	t.store(key, value, gen)
	return value, nil
}

// Allowance returns the current ERC-20 allowance. Never cached: the approval
// gate must see the freshest value immediately before submission.
func (t *Tracker) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	results, err := t.client.Read(ctx, token, erc20ABI, "allowance", owner, spender)
	if err != nil {
		return nil, fmt.Errorf("failed to get allowance: %w", err)
	}
	return asBig(results)
}

// Invalidate drops every cached balance for a token. Called after any settled
// transaction touching it.
func (t *Tracker) Invalidate(token common.Address) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for key := range t.cache {
		if key.Token == token {
			delete(t.cache, key)
		}
	}
	t.logger.Debug("Balance cache invalidated", zap.String("token", token.Hex()))
}

func (t *Tracker) cached(key cacheKey) (*big.Int, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	entry, ok := t.cache[key]
	if !ok {
		return nil, false
	}
	return new(big.Int).Set(entry.value), true
}

func (t *Tracker) store(key cacheKey, value *big.Int, generation uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if existing, ok := t.cache[key]; ok && existing.generation > generation {
		return
	}
	t.cache[key] = cachedBalance{value: new(big.Int).Set(value), generation: generation}
}

func asBig(results []interface{}) (*big.Int, error) {
	if len(results) == 0 {
		return nil, fmt.Errorf("empty call result")
	}
	value, ok := results[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected call result type %T", results[0])
	}
	return value, nil
}
