package chain

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDecimal(t *testing.T) {
	tests := []struct {
		name     string
		amount   string
		decimals uint8
		want     string
		wantErr  bool
	}{
		{name: "whole units", amount: "1", decimals: 18, want: "1000000000000000000"},
		{name: "fractional", amount: "0.01", decimals: 18, want: "10000000000000000"},
		{name: "six decimals", amount: "2.5", decimals: 6, want: "2500000"},
		{name: "zero", amount: "0", decimals: 18, want: "0"},
		{name: "too many places", amount: "0.0000001", decimals: 6, wantErr: true},
		{name: "not a number", amount: "abc", decimals: 18, wantErr: true},
		{name: "empty", amount: "", decimals: 18, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDecimal(tt.amount, tt.decimals)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestFormatUnits(t *testing.T) {
	wei, ok := new(big.Int).SetString("10000000000000000", 10)
	require.True(t, ok)
	assert.Equal(t, "0.01", FormatUnits(wei, 18))

	assert.Equal(t, "1", FormatUnits(big.NewInt(1000000), 6))
	assert.Equal(t, "0", FormatUnits(big.NewInt(0), 18))
}

func TestEncodeUint256(t *testing.T) {
	encoded := EncodeUint256(big.NewInt(65))
	require.Len(t, encoded, 32)
	assert.Equal(t, byte(65), encoded[31])
	for i := 0; i < 31; i++ {
		assert.Zero(t, encoded[i])
	}
}

func TestHexRoundTrip(t *testing.T) {
	data := []byte{0xde, 0xad, 0xbe, 0xef}
	decoded, err := DecodeHexBytes(EncodeHexBytes(data))
	require.NoError(t, err)
	assert.Equal(t, data, decoded)

	value, err := DecodeHexBig("0x2a")
	require.NoError(t, err)
	assert.Equal(t, int64(42), value.Int64())
}
