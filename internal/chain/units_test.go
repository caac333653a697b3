package chain

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEther(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"0.01", "10000000000000000"},
		{"0.02", "20000000000000000"},
		{"1", "1000000000000000000"},
		{".5", "500000000000000000"},
		{"0.0008", "800000000000000"},
		{"0.000000000000000001", "1"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseEther(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestParseEtherInvalid(t *testing.T) {
	for _, in := range []string{"", "-1", "abc", "1.2.3", "0.0000000000000000001"} {
		_, err := ParseEther(in)
		assert.ErrorIs(t, err, ErrInvalidAmount, in)
	}
}

func TestFormatEther(t *testing.T) {
	assert.Equal(t, "0.0008", FormatEther(big.NewInt(800000000000000)))
	wei, _ := new(big.Int).SetString("2000000000000000000", 10)
	assert.Equal(t, "2", FormatEther(wei))
	assert.Equal(t, "0", FormatEther(nil))
}

func TestFormatFixed(t *testing.T) {
	multiplier, _ := new(big.Int).SetString("1100000000000000000", 10)
	assert.Equal(t, "1.10", FormatFixed(multiplier, 2))

	level, _ := new(big.Int).SetString("3000000000000000000", 10)
	assert.Equal(t, "3", FormatFixed(level, 0))

	assert.Equal(t, "0.00", FormatFixed(nil, 2))
}
