package simdkit

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFindByteParity(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 200; i++ {
		window := randomBytes(r, r.Intn(64))
		target := byte(r.Intn(256))
		gotScalar, okScalar := findByteScalar(window, target)
		gotWide, okWide := findByteWide(window, target)
		require.Equal(t, okScalar, okWide)
		if okScalar {
			require.Equal(t, gotScalar, gotWide)
		}
	}
}

func TestClassifyASCIILettersParity(t *testing.T) {
	r := rand.New(rand.NewSource(2))
	for i := 0; i < 200; i++ {
		window := randomBytes(r, r.Intn(64))
		require.Equal(t, classifyLettersScalar(window), classifyLettersWide(window))
	}
}

func TestCompareFixedParity(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	for i := 0; i < 200; i++ {
		window := randomBytes(r, 64)
		patLen := r.Intn(32) + 1
		offset := r.Intn(len(window) - patLen + 1)
		pattern := append([]byte(nil), window[offset:offset+patLen]...)
		if r.Intn(2) == 0 && len(pattern) > 0 {
			pattern[0] ^= 0xFF
		}
		require.Equal(t, compareFixedScalar(window, offset, pattern), compareFixedWide(window, offset, pattern))
	}
}

func TestCompareFixedRejectsOversizePattern(t *testing.T) {
	window := make([]byte, 64)
	pattern := make([]byte, 33)
	require.False(t, CompareFixed(window, 0, pattern))
}

func randomBytes(r *rand.Rand, n int) []byte {
	b := make([]byte, n)
	r.Read(b)
	return b
}
