package math

import (
	"math/big"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var maxUint256 = new(uint256.Int).SetAllOne()

func TestCheckedArithmetic(t *testing.T) {
	t.Run("Add", func(t *testing.T) {
		z, err := Add(uint256.NewInt(100), uint256.NewInt(50))
		require.NoError(t, err)
		assert.Equal(t, uint64(150), z.Uint64())

		_, err = Add(maxUint256, uint256.NewInt(1))
		assert.ErrorIs(t, err, ErrOverflow)
	})

	t.Run("Sub", func(t *testing.T) {
		z, err := Sub(uint256.NewInt(100), uint256.NewInt(50))
		require.NoError(t, err)
		assert.Equal(t, uint64(50), z.Uint64())

		_, err = Sub(uint256.NewInt(1), uint256.NewInt(2))
		assert.ErrorIs(t, err, ErrUnderflow)
	})

	t.Run("Mul", func(t *testing.T) {
		_, err := Mul(maxUint256, uint256.NewInt(2))
		assert.ErrorIs(t, err, ErrOverflow)
	})

	t.Run("MulDiv", func(t *testing.T) {
		// intermediate product exceeds 256 bits but the quotient fits
		z, err := MulDiv(maxUint256, uint256.NewInt(10), uint256.NewInt(20))
		require.NoError(t, err)
		want := new(uint256.Int).Rsh(maxUint256, 1)
		assert.Equal(t, want.Dec(), z.Dec())

		_, err = MulDiv(uint256.NewInt(1), uint256.NewInt(1), new(uint256.Int))
		assert.ErrorIs(t, err, ErrDivisionByZero)

		_, err = MulDiv(maxUint256, uint256.NewInt(2), uint256.NewInt(1))
		assert.ErrorIs(t, err, ErrOverflow)
	})

	t.Run("AbsDiff", func(t *testing.T) {
		assert.Equal(t, uint64(7), AbsDiff(uint256.NewInt(3), uint256.NewInt(10)).Uint64())
		assert.Equal(t, uint64(7), AbsDiff(uint256.NewInt(10), uint256.NewInt(3)).Uint64())
	})
}

func TestPow10(t *testing.T) {
	p, err := Pow10(18)
	require.NoError(t, err)
	assert.Equal(t, "1000000000000000000", p.Dec())

	p.SetUint64(1)
	again, err := Pow10(18)
	require.NoError(t, err)
	assert.Equal(t, "1000000000000000000", again.Dec(), "cached table must not be mutated")

	_, err = Pow10(78)
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestPercentMul(t *testing.T) {
	tests := []struct {
		amount uint64
		bps    uint64
		want   uint64
	}{
		{1000_000000, 45, 4_500000},
		{1000_000000, 9, 900000},
		{1000_000000, 0, 0},
		{1, 5000, 1}, // 0.5 rounds up
		{1, 4999, 0}, // 0.4999 rounds down
		{3, 5000, 2}, // 1.5 rounds up
	}

	for _, tt := range tests {
		got, err := PercentMul(uint256.NewInt(tt.amount), tt.bps)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got.Uint64(), "amount=%d bps=%d", tt.amount, tt.bps)
	}
}

func TestFromBig(t *testing.T) {
	z, err := FromBig(big.NewInt(42))
	require.NoError(t, err)
	assert.Equal(t, uint64(42), z.Uint64())

	_, err = FromBig(big.NewInt(-1))
	assert.ErrorIs(t, err, ErrUnderflow)

	_, err = FromBig(new(big.Int).Lsh(big.NewInt(1), 256))
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestParseAndFormatUnits(t *testing.T) {
	z, err := ParseUnits("1000.5", 6)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000_500000), z.Uint64())

	_, err = ParseUnits("0.0000001", 6)
	assert.Error(t, err)

	_, err = ParseUnits("-1", 6)
	assert.Error(t, err)

	_, err = ParseUnits("abc", 6)
	assert.Error(t, err)

	assert.Equal(t, "5.5", FormatUnits(uint256.NewInt(5_500000), 6))
	assert.Equal(t, "0", FormatUnits(nil, 6))
}

func BenchmarkMulDiv(b *testing.B) {
	x := uint256.NewInt(1010_000000)
	y, _ := Pow10(26)
	d := uint256.NewInt(1000_000000)
	for i := 0; i < b.N; i++ {
		_, _ = MulDiv(x, y, d)
	}
}
