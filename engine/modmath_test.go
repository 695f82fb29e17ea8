package engine

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMulModU64AgreesWithBigInt(t *testing.T) {
	cases := []struct{ a, b, m uint64 }{
		{3, 5, 7},
		{1<<63 - 1, 1<<63 - 3, 1<<63 - 1},
		{0, 123456789, 999999999989},
		{999999999988, 999999999987, 999999999989},
	}
	for _, c := range cases {
		a := c.a % c.m
		b := c.b % c.m
		want := new(big.Int).Mod(
			new(big.Int).Mul(new(big.Int).SetUint64(a), new(big.Int).SetUint64(b)),
			new(big.Int).SetUint64(c.m),
		).Uint64()
		got := mulModU64(a, b, c.m)
		assert.Equal(t, want, got)
	}
}

func TestSubModU64(t *testing.T) {
	assert.Equal(t, uint64(2), subModU64(5, 3, 11))
	assert.Equal(t, uint64(9), subModU64(3, 5, 11))
	assert.Equal(t, uint64(0), subModU64(3, 3, 11))
}

func TestAddModU64(t *testing.T) {
	assert.Equal(t, uint64(8), addModU64(5, 3, 11))
	assert.Equal(t, uint64(1), addModU64(9, 3, 11))
}

func TestReduceInt64Mod(t *testing.T) {
	assert.Equal(t, uint64(3), reduceInt64Mod(3, 11))
	assert.Equal(t, uint64(8), reduceInt64Mod(-3, 11))
	assert.Equal(t, uint64(0), reduceInt64Mod(-22, 11))
	assert.Equal(t, uint64(0), reduceInt64Mod(0, 11))
}

func TestPowModU64(t *testing.T) {
	assert.Equal(t, uint64(1), powModU64(2, 10, 1023)%1023)
	want := new(big.Int).Exp(big.NewInt(3), big.NewInt(100), big.NewInt(97)).Uint64()
	assert.Equal(t, want, powModU64(3, 100, 97))
}

func FuzzMulModU64(f *testing.F) {
	f.Add(uint64(3), uint64(5), uint64(7))
	f.Fuzz(func(t *testing.T, a, b, m uint64) {
		if m < 2 {
			t.Skip()
		}
		a %= m
		b %= m
		got := mulModU64(a, b, m)
		want := new(big.Int).Mod(
			new(big.Int).Mul(new(big.Int).SetUint64(a), new(big.Int).SetUint64(b)),
			new(big.Int).SetUint64(m),
		).Uint64()
		if got != want {
			t.Fatalf("mulModU64(%d,%d,%d)=%d want %d", a, b, m, got, want)
		}
	})
}
