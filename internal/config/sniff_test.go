package config

import (
	"testing"
	"time"

	"github.com/SkynetNext/protocol-sniffer-gateway/internal/protocoldetect"
	"github.com/stretchr/testify/require"
)

func TestBuildDetectorConfigDefaults(t *testing.T) {
	s := SniffConfig{}
	cfg := s.BuildDetectorConfig()

	require.Equal(t, protocoldetect.StrategyPassive, cfg.Strategy)
	require.Equal(t, protocoldetect.DefaultConfig().EnabledProtocols, cfg.EnabledProtocols)
}

func TestBuildDetectorConfigOverrides(t *testing.T) {
	s := SniffConfig{
		Strategy:         "Active",
		MinConfidence:    0.9,
		MinWindow:        32,
		Timeout:          50 * time.Millisecond,
		SIMDOn:           true,
		HeuristicOn:      false,
		EnabledProtocols: []string{"tls", "h2", "bogus"},
	}
	cfg := s.BuildDetectorConfig()

	require.Equal(t, protocoldetect.StrategyActive, cfg.Strategy)
	require.Equal(t, 0.9, cfg.MinConfidence)
	require.Equal(t, 32, cfg.MinWindow)
	require.Equal(t, 50*time.Millisecond, cfg.Timeout)
	require.True(t, cfg.SIMDOn)
	require.False(t, cfg.HeuristicOn)
	require.Equal(t, map[protocoldetect.ProtocolTag]bool{protocoldetect.TLS: true, protocoldetect.HTTP2: true}, cfg.EnabledProtocols)
}

func TestBuildDetectorConfigUnknownCodesOnlyKeepsDefaults(t *testing.T) {
	s := SniffConfig{EnabledProtocols: []string{"nope", "also-nope"}}
	cfg := s.BuildDetectorConfig()
	require.Equal(t, protocoldetect.DefaultConfig().EnabledProtocols, cfg.EnabledProtocols)
}

func TestBackendForPrefersProtocolOverride(t *testing.T) {
	b := BackendsConfig{
		HTTP:     HTTPBackend{TargetURL: "http://default-http"},
		TCP:      TCPBackend{TargetAddr: "default-tcp:9000"},
		Protocol: map[string]string{"tls": "tls-backend:9443"},
	}

	require.Equal(t, "tls-backend:9443", b.BackendFor(protocoldetect.TLS))
	require.Equal(t, "http://default-http", b.BackendFor(protocoldetect.HTTP1_1))
	require.Equal(t, "default-tcp:9000", b.BackendFor(protocoldetect.SSH))
}

func TestBackendForIgnoresEmptyOverride(t *testing.T) {
	b := BackendsConfig{
		TCP:      TCPBackend{TargetAddr: "default-tcp:9000"},
		Protocol: map[string]string{"ssh": ""},
	}
	require.Equal(t, "default-tcp:9000", b.BackendFor(protocoldetect.SSH))
}

func TestTCPBackendForPrefersProtocolOverride(t *testing.T) {
	b := BackendsConfig{
		HTTP:     HTTPBackend{TargetURL: "http://default-http:8080"},
		Protocol: map[string]string{"ws": "ws-backend:9100"},
	}
	require.Equal(t, "ws-backend:9100", b.TCPBackendFor(protocoldetect.WebSocket))
}

func TestTCPBackendForResolvesWebTagToHostPort(t *testing.T) {
	b := BackendsConfig{HTTP: HTTPBackend{TargetURL: "http://backend:8080"}}
	require.Equal(t, "backend:8080", b.TCPBackendFor(protocoldetect.WebSocket))
	require.Equal(t, "backend:8080", b.TCPBackendFor(protocoldetect.HTTP2))
	require.Equal(t, "backend:8080", b.TCPBackendFor(protocoldetect.HTTP3))
}

func TestTCPBackendForDefaultsPortFromScheme(t *testing.T) {
	require.Equal(t, "backend:80", BackendsConfig{HTTP: HTTPBackend{TargetURL: "http://backend"}}.TCPBackendFor(protocoldetect.HTTP2))
	require.Equal(t, "backend:443", BackendsConfig{HTTP: HTTPBackend{TargetURL: "https://backend"}}.TCPBackendFor(protocoldetect.HTTP2))
	require.Equal(t, "backend:443", BackendsConfig{HTTP: HTTPBackend{TargetURL: "wss://backend"}}.TCPBackendFor(protocoldetect.WebSocket))
}

func TestTCPBackendForNonWebFallsBackToTCPAddr(t *testing.T) {
	b := BackendsConfig{TCP: TCPBackend{TargetAddr: "default-tcp:9000"}}
	require.Equal(t, "default-tcp:9000", b.TCPBackendFor(protocoldetect.SSH))
}
