package engine

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDerivedTablesSelectsPrimorialBelowTarget(t *testing.T) {
	primes, err := sievePrimeTable(100000)
	require.NoError(t, err)

	cfg := &Config{
		Threads:           4,
		Pattern:           []uint64{0, 2, 6, 8},
		InitialTargetBits: 64,
		SieveBits:         10,
		SieveIterations:   4,
		PrimorialOffsets:  []uint64{0, 16057},
	}

	derived, err := buildDerivedTables(cfg, primes)
	require.NoError(t, err)
	assert.Greater(t, derived.PrimorialNumber, 0)
	assert.Equal(t, len(derived.ModularInverses), primes.Len()-derived.PrimorialNumber)
	assert.GreaterOrEqual(t, derived.PrimesIndexThreshold, derived.PrimorialNumber)
	assert.Equal(t, 0, derived.PrimesIndexThreshold%2)
}

func TestBuildDerivedTablesRejectsTooLowDifficulty(t *testing.T) {
	primes, err := sievePrimeTable(1000)
	require.NoError(t, err)

	cfg := &Config{
		Threads:           1,
		Pattern:           []uint64{0, 2},
		InitialTargetBits: 0,
		SieveBits:         20,
		SieveIterations:   16,
		PrimorialOffsets:  []uint64{0},
	}

	_, err = buildDerivedTables(cfg, primes)
	require.Error(t, err)
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
}

func TestComputeModularInversesParallelMatchesSequential(t *testing.T) {
	primes, err := sievePrimeTable(20000)
	require.NoError(t, err)

	primorialNumber := 5
	primorial := big.NewInt(1)
	for i := 0; i < primorialNumber; i++ {
		primorial.Mul(primorial, new(big.Int).SetUint64(primes.At(i)))
	}

	n := primes.Len() - primorialNumber
	seq := make([]uint64, n)
	require.NoError(t, computeModularInversesParallel(1, primorial, primes, primorialNumber, seq))

	par := make([]uint64, n)
	require.NoError(t, computeModularInversesParallel(8, primorial, primes, primorialNumber, par))

	assert.Equal(t, seq, par)
}
