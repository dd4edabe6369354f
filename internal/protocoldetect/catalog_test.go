package protocoldetect

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOrderedMapPreservesInsertionOrderAndRejectsEmpty(t *testing.T) {
	m := NewOrderedMap()
	m.Set("b", "2")
	m.Set("a", "1")
	m.Set("c", "")

	require.Equal(t, []string{"b", "a"}, m.Keys())
	_, ok := m.Get("c")
	require.False(t, ok)
}

func TestProtocolCategoryPredicates(t *testing.T) {
	require.True(t, IsWeb(HTTP2))
	require.True(t, IsSecure(TLS))
	require.True(t, IsMessaging(MQTT))
	require.True(t, IsInfra(DNS))
	require.Equal(t, "h2", ShortCode(HTTP2))
	require.Equal(t, "HTTP/2", DisplayName(HTTP2))
}

func TestTagByShortCodeRoundTrip(t *testing.T) {
	cases := map[string]ProtocolTag{
		"h1": HTTP1_1, "h2": HTTP2, "h3": HTTP3, "tls": TLS, "ssh": SSH,
		"ws": WebSocket, "grpc": GRPC, "quic": QUIC, "mqtt": MQTT,
		"dns": DNS, "tcp": TCP, "udp": UDP,
	}
	for code, want := range cases {
		tag, ok := TagByShortCode(code)
		require.True(t, ok, code)
		require.True(t, tag.Equal(want), code)
	}

	_, ok := TagByShortCode("not-a-real-code")
	require.False(t, ok)
}

func TestProtocolTagMarshalText(t *testing.T) {
	text, err := TLS.MarshalText()
	require.NoError(t, err)
	require.Equal(t, "TLS", string(text))
}

func TestCustomTagEquality(t *testing.T) {
	a := CustomTag("mycoolproto")
	b := CustomTag("mycoolproto")
	require.True(t, a.Equal(b))
	require.False(t, a.Equal(HTTP1_1))
}
