package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseBusinessConfigCoreFields(t *testing.T) {
	result := map[string]string{
		"server.listen_addr":      ":9090",
		"server.max_connections":  "1000",
		"backends.http.target_url": "http://backend:8080",
		"backends.http.timeout":   "5s",
		"backends.tcp.target_addr": "backend:9000",
		"backends.tcp.timeout":    "10s",
		"lifecycle.shutdown_timeout": "20s",
		"lifecycle.drain_wait_time":  "5s",
	}

	cfg := parseBusinessConfig(result)

	require.Equal(t, ":9090", cfg.Server.ListenAddr)
	require.Equal(t, 1000, cfg.Server.MaxConnections)
	require.Equal(t, "http://backend:8080", cfg.Backends.HTTP.TargetURL)
	require.Equal(t, 5*time.Second, cfg.Backends.HTTP.Timeout)
	require.Equal(t, "backend:9000", cfg.Backends.TCP.TargetAddr)
	require.Equal(t, 10*time.Second, cfg.Backends.TCP.Timeout)
	require.Equal(t, 20*time.Second, cfg.Lifecycle.ShutdownTimeout)
	require.Equal(t, 5*time.Second, cfg.Lifecycle.DrainWaitTime)
}

func TestParseBusinessConfigPerProtocolOverrides(t *testing.T) {
	result := map[string]string{
		"backends.protocol.grpc": "grpc-backend:50051",
		"backends.protocol.tls":  "tls-backend:9443",
		"backends.protocol.ssh":  "", // empty values are skipped
		"backends.tcp.target_addr": "backend:9000",
	}

	cfg := parseBusinessConfig(result)

	require.Equal(t, map[string]string{
		"grpc": "grpc-backend:50051",
		"tls":  "tls-backend:9443",
	}, cfg.Backends.Protocol)
}

func TestParseBusinessConfigMissingFieldsStayZeroValue(t *testing.T) {
	cfg := parseBusinessConfig(map[string]string{})

	require.Equal(t, "", cfg.Server.ListenAddr)
	require.Nil(t, cfg.Backends.Protocol)
	require.Equal(t, time.Duration(0), cfg.Lifecycle.ShutdownTimeout)
}

func TestParseBusinessConfigIgnoresUnparseableDurations(t *testing.T) {
	cfg := parseBusinessConfig(map[string]string{
		"backends.http.timeout": "not-a-duration",
	})
	require.Equal(t, time.Duration(0), cfg.Backends.HTTP.Timeout)
}
