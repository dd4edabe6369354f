package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitServicePort(t *testing.T) {
	cases := []struct {
		name     string
		addr     string
		wantHost string
		wantPort int
		wantOK   bool
	}{
		{"bare service and port", "backend-svc:8080", "backend-svc", 8080, true},
		{"already an fqdn", "backend-svc.default.svc.cluster.local:8080", "", 0, false},
		{"dotted ipv4", "10.0.0.5:8080", "", 0, false},
		{"url form", "http://backend-svc:8080", "", 0, false},
		{"empty", "", "", 0, false},
		{"no port", "backend-svc", "", 0, false},
		{"non-numeric port", "backend-svc:http", "", 0, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			host, port, ok := splitServicePort(tc.addr)
			require.Equal(t, tc.wantOK, ok)
			if tc.wantOK {
				require.Equal(t, tc.wantHost, host)
				require.Equal(t, tc.wantPort, port)
			}
		})
	}
}

func TestResolveBackendsNoopOutsideK8s(t *testing.T) {
	cfg := &Config{
		Backends: BackendsConfig{
			TCP:      TCPBackend{TargetAddr: "backend-svc:8080"},
			Protocol: map[string]string{"tls": "tls-svc:8443"},
		},
	}
	cfg.ResolveBackends()

	// Outside a K8s pod (no service account token present in the test
	// environment), ResolveBackends must leave addresses untouched rather
	// than attempt a DNS lookup that would only work in-cluster.
	require.Equal(t, "backend-svc:8080", cfg.Backends.TCP.TargetAddr)
	require.Equal(t, "tls-svc:8443", cfg.Backends.Protocol["tls"])
}
