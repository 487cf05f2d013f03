// Package sale resolves a certificate token's sale configuration into a
// tagged variant and derives its temporal status.
package sale

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Kind discriminates the sale-strategy variants. It is determined exactly
// once, at the chain boundary, and never re-inferred downstream.
type Kind int

const (
	KindNoSale Kind = iota
	KindFixedPriceNative
	KindFixedPriceERC20
	KindTimedSale
	KindAllowlist
)

func (k Kind) String() string {
	switch k {
	case KindFixedPriceNative:
		return "fixed_price_native"
	case KindFixedPriceERC20:
		return "fixed_price_erc20"
	case KindTimedSale:
		return "timed_sale"
	case KindAllowlist:
		return "allowlist"
	default:
		return "no_sale"
	}
}

// Status is the derived temporal state of a sale. It is recomputed on every
// resolution and never stored.
type Status int

const (
	StatusNotStarted Status = iota
	StatusActive
	StatusEnded
)

func (s Status) String() string {
	switch s {
	case StatusNotStarted:
		return "not_started"
	case StatusActive:
		return "active"
	default:
		return "ended"
	}
}

// Config is the tagged sale-configuration union. Only the fields of the
// active variant are meaningful; Kind selects them.
type Config struct {
	Kind Kind

	// FixedPriceNative and FixedPriceERC20
	PricePerToken *big.Int
	Currency      common.Address // zero for native sales

	// TimedSale
	MintFeePerQuantity *big.Int

	// Allowlist
	MerkleRoot common.Hash

	// Common, zero when the strategy has no window
	SaleStart           time.Time
	SaleEnd             time.Time
	MaxTokensPerAddress uint64
}

// HasWindow reports whether both sale dates are set.
func (c *Config) HasWindow() bool {
	return !c.SaleStart.IsZero() && !c.SaleEnd.IsZero()
}

// DeriveStatus computes the sale status at the given instant. With a window,
// the window bounds win; the primary-mint flag can only end a sale early.
// Without a window the flag alone decides.
func (c *Config) DeriveStatus(now time.Time, primaryMintActive bool) Status {
	if c.Kind == KindNoSale {
		return StatusEnded
	}
	if c.HasWindow() {
		if now.Before(c.SaleStart) {
			return StatusNotStarted
		}
		if now.After(c.SaleEnd) || !primaryMintActive {
			return StatusEnded
		}
		return StatusActive
	}
	if primaryMintActive {
		return StatusActive
	}
	return StatusEnded
}

// CurrencyInfo is display metadata for an ERC-20 sale currency. When the
// metadata fetch fails, Name and Symbol fall back to the raw address.
type CurrencyInfo struct {
	Address  common.Address
	Name     string
	Symbol   string
	Decimals uint8
}

// Resolution is the full outcome of resolving one token's sale.
type Resolution struct {
	Config            Config
	Status            Status
	PrimaryMintActive bool
	Currency          *CurrencyInfo // set only for ERC-20 denominated sales
}
