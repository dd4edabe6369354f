package protocoldetect

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistryOrdersByPriorityThenSelectivityThenRegistration(t *testing.T) {
	r := NewBuiltinRegistry(false)
	ordered := r.Ordered()
	require.NotEmpty(t, ordered)

	for i := 1; i < len(ordered); i++ {
		prevPriority := defaultPriority[ordered[i-1].Name()]
		currPriority := defaultPriority[ordered[i].Name()]
		require.GreaterOrEqual(t, prevPriority, currPriority)
	}
}

func TestRegistryFilteredDropsUnsupportedTags(t *testing.T) {
	r := NewBuiltinRegistry(false)
	enabled := map[ProtocolTag]bool{SSH: true}

	filtered := r.Filtered(enabled)
	require.Len(t, filtered, 1)
	require.Equal(t, "ssh", filtered[0].Name())
}

func TestRegistryFilteredEmptyEnabledMeansAll(t *testing.T) {
	r := NewBuiltinRegistry(false)
	require.Equal(t, len(r.Ordered()), len(r.Filtered(nil)))
}
