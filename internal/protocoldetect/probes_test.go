package protocoldetect

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHTTP1ProbeMethodOnlyPartial(t *testing.T) {
	p := http1Probe{}
	window := []byte("GET /slow-client-no-version-ye")
	require.Len(t, window, 30)

	out := p.Probe(window)
	require.Equal(t, Partial, out.Kind)
	require.True(t, out.Info.Tag.Equal(HTTP1_1))
	require.Equal(t, 0.70, out.Info.Confidence)
}

func TestHTTP1ProbeNeedsMinWindow(t *testing.T) {
	p := http1Probe{}
	out := p.Probe([]byte("GET / HT"))
	require.Equal(t, NeedMoreData, out.Kind)
	require.Equal(t, 16, out.RequiredWindow)
}

func TestWebSocketProbeRequiresBothHeaders(t *testing.T) {
	p := websocketProbe{}
	withoutKey := []byte("GET /chat HTTP/1.1\r\nHost: x\r\nUpgrade: websocket\r\nConnection: Upgrade\r\n\r\n")
	for len(withoutKey) < 64 {
		withoutKey = append(withoutKey, ' ')
	}
	out := p.Probe(withoutKey)
	require.Equal(t, Partial, out.Kind)
	require.Equal(t, 0.50, out.Info.Confidence)

	withKey := []byte("GET /chat HTTP/1.1\r\nHost: x\r\nUpgrade: websocket\r\nSec-WebSocket-Key: dGhlIHNhbXBsZQ==\r\n\r\n")
	out = p.Probe(withKey)
	require.Equal(t, Detected, out.Kind)
	require.Equal(t, 0.95, out.Info.Confidence)
}

func TestHTTP2ProbePrefaceAndFrameHeader(t *testing.T) {
	p := http2Probe{}
	preface := append([]byte(http2Preface), make([]byte, 9)...)
	out := p.Probe(preface)
	require.Equal(t, Detected, out.Kind)
	require.Equal(t, 1.00, out.Info.Confidence)

	frameOnly := []byte{0x00, 0x00, 0x04, 0x01, 0x00, 0x00, 0x00, 0x00, 0x01}
	frameOnly = append(frameOnly, make([]byte, 15)...)
	out = p.Probe(frameOnly)
	require.Equal(t, Detected, out.Kind)
	require.Equal(t, 0.80, out.Info.Confidence)
}

func TestMQTTProbeConnect(t *testing.T) {
	p := mqttProbe{}
	window := []byte{0x10, 0x0C, 0x00, 0x04, 'M', 'Q', 'T', 'T', 0x04, 0x02, 0x00, 0x3C, 0x00, 0x00}
	out := p.Probe(window)
	require.Equal(t, Detected, out.Kind)
	name, _ := out.Info.Features.Get("protocol_name")
	require.Equal(t, "MQTT", name)
}

func TestQUICProbeRejectsShortHeader(t *testing.T) {
	p := quicProbe{}
	window := make([]byte, 20)
	window[0] = 0x40 // high bit clear: short header
	out := p.Probe(window)
	require.Equal(t, NotDetected, out.Kind)
}

func TestWebSocketProbeSIMDOnAgreesWithScalar(t *testing.T) {
	withKey := []byte("GET /chat HTTP/1.1\r\nHost: x\r\nUpgrade: websocket\r\nSec-WebSocket-Key: dGhlIHNhbXBsZQ==\r\n\r\n")

	scalarOut := websocketProbe{simdOn: false}.Probe(withKey)
	simdOut := websocketProbe{simdOn: true}.Probe(withKey)
	require.Equal(t, scalarOut.Kind, simdOut.Kind)
	require.True(t, simdOut.Info.Tag.Equal(WebSocket))
	require.Equal(t, scalarOut.Info.Confidence, simdOut.Info.Confidence)
}

func TestGRPCProbeRequiresContentType(t *testing.T) {
	p := grpcProbe{}
	preface := []byte(http2Preface)
	preface = append(preface, make([]byte, 9)...)
	out := p.Probe(preface)
	require.Equal(t, NotDetected, out.Kind)

	withGRPC := append(append([]byte(nil), preface...), []byte("application/grpc POST")...)
	out = p.Probe(withGRPC)
	require.Equal(t, Detected, out.Kind)
	require.True(t, out.Info.Tag.Equal(GRPC))
}
