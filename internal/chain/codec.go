package chain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// This file is the only place hex strings and decimal strings are converted
// to and from big integers. Everything inside the engine works on *big.Int;
// strings appear only at the wallet-provider and HTTP boundaries.

// MaxUint256 is the unlimited ERC-20 allowance value.
var MaxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// ParseDecimal converts a positive decimal string ("0.01") into base units
// for a token with the given number of decimals.
func ParseDecimal(amount string, decimals uint8) (*big.Int, error) {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return nil, fmt.Errorf("empty amount")
	}

	parts := strings.SplitN(amount, ".", 2)
	whole := parts[0]
	frac := ""
	if len(parts) == 2 {
		frac = parts[1]
	}
	if len(frac) > int(decimals) {
		return nil, fmt.Errorf("amount %q has more than %d decimal places", amount, decimals)
	}
	frac = frac + strings.Repeat("0", int(decimals)-len(frac))

	combined := whole + frac
	value, ok := new(big.Int).SetString(combined, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount format: %s", amount)
	}
	if value.Sign() < 0 {
		return nil, fmt.Errorf("amount must be positive: %s", amount)
	}
	return value, nil
}

// ParseBig parses a decimal base-unit string as produced by the aggregator.
func ParseBig(value string) (*big.Int, error) {
	parsed, ok := new(big.Int).SetString(strings.TrimSpace(value), 10)
	if !ok {
		return nil, fmt.Errorf("invalid integer value: %s", value)
	}
	return parsed, nil
}

// FormatUnits renders a base-unit value as a decimal string for display.
func FormatUnits(value *big.Int, decimals uint8) string {
	if value == nil {
		return "0"
	}
	divisor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	whole, frac := new(big.Int).QuoRem(new(big.Int).Abs(value), divisor, new(big.Int))

	sign := ""
	if value.Sign() < 0 {
		sign = "-"
	}
	if frac.Sign() == 0 {
		return sign + whole.String()
	}
	fracStr := strings.TrimRight(fmt.Sprintf("%0*s", decimals, frac.String()), "0")
	return fmt.Sprintf("%s%s.%s", sign, whole.String(), fracStr)
}

// DecodeHexBig parses a 0x-prefixed hex quantity from a wallet or HTTP
// payload. Empty strings decode to zero.
func DecodeHexBig(value string) (*big.Int, error) {
	if value == "" {
		return new(big.Int), nil
	}
	decoded, err := hexutil.DecodeBig(value)
	if err != nil {
		return nil, fmt.Errorf("invalid hex quantity %q: %w", value, err)
	}
	return decoded, nil
}

// EncodeHexBig renders a big integer as a 0x-prefixed hex quantity.
func EncodeHexBig(value *big.Int) string {
	if value == nil {
		return "0x0"
	}
	return hexutil.EncodeBig(value)
}

// DecodeHexBytes parses 0x-prefixed calldata.
func DecodeHexBytes(value string) ([]byte, error) {
	if value == "" {
		return nil, nil
	}
	return hexutil.Decode(value)
}

// EncodeHexBytes renders calldata as a 0x-prefixed hex string.
func EncodeHexBytes(data []byte) string {
	return hexutil.Encode(data)
}

// EncodeUint256 encodes a value as an unsigned 32-byte big-endian word, the
// layout ABI-encoded dynamic lengths use.
func EncodeUint256(value *big.Int) []byte {
	return common.LeftPadBytes(value.Bytes(), 32)
}
