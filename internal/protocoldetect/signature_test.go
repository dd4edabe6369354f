package protocoldetect

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMagicTableQuickDetectHTTP1Method(t *testing.T) {
	table := NewMagicTable(builtinSignatures(false))
	result, ok := table.QuickDetect([]byte("GET / HTTP/1.1\r\n"), false)
	require.True(t, ok)
	require.True(t, result.Tag.Equal(HTTP1_1))
}

func TestMagicTableQuickDetectOverflowSignature(t *testing.T) {
	table := NewMagicTable(builtinSignatures(false))
	window := []byte("xxUpgrade: websocket\r\nSec-WebSocket-Key: abc\r\n")
	result, ok := table.QuickDetect(window, false)
	require.True(t, ok)
	require.True(t, result.Tag.Equal(WebSocket))
}

func TestMagicTableNoMatchReturnsFalse(t *testing.T) {
	table := NewMagicTable(builtinSignatures(false))
	_, ok := table.QuickDetect([]byte{0xFF, 0xFE, 0x01, 0x02}, false)
	require.False(t, ok)
}

func TestMagicTableQuickDetectWithSIMDOnMatchesScalar(t *testing.T) {
	table := NewMagicTable(builtinSignatures(true))
	result, ok := table.QuickDetect([]byte("GET / HTTP/1.1\r\n"), true)
	require.True(t, ok)
	require.True(t, result.Tag.Equal(HTTP1_1))

	window := []byte("xxUpgrade: websocket\r\nSec-WebSocket-Key: abc\r\n")
	result, ok = table.QuickDetect(window, true)
	require.True(t, ok)
	require.True(t, result.Tag.Equal(WebSocket))
}

func TestMatchPatternAtSIMDOnAgreesWithScalar(t *testing.T) {
	window := []byte("GET / HTTP/1.1\r\nHost: example.com\r\n\r\n")
	require.True(t, matchPatternAt(window, 0, []byte("GET "), nil, false, false))
	require.True(t, matchPatternAt(window, 0, []byte("GET "), nil, false, true))
	require.False(t, matchPatternAt(window, 0, []byte("POST"), nil, false, true))
}

func TestContainsPatternSIMDOnAgreesWithScalar(t *testing.T) {
	window := []byte("xxxxxUpgrade: websocketxxxxx")
	require.True(t, containsPattern(window, []byte("Upgrade: websocket"), false, false))
	require.True(t, containsPattern(window, []byte("Upgrade: websocket"), false, true))
	require.False(t, containsPattern(window, []byte("Not-Present"), false, true))
}

func TestFixedKeyDerivationSkipsOverrides(t *testing.T) {
	_, ok := fixedKey(Signature{Match: func([]byte) bool { return true }})
	require.False(t, ok)

	key, ok := fixedKey(Signature{Pattern: []byte("SSH-")})
	require.True(t, ok)
	require.Equal(t, [2]byte{'S', 'S'}, key)
}
