package core

import (
	"net"
	"testing"

	"github.com/SkynetNext/protocol-sniffer-gateway/internal/config"
	"github.com/SkynetNext/protocol-sniffer-gateway/internal/protocoldetect"
	"github.com/SkynetNext/protocol-sniffer-gateway/internal/security"
	"github.com/stretchr/testify/require"
)

func newTestListener(t *testing.T) *Listener {
	t.Helper()
	cfg := &config.Config{}
	cfg.Server.ListenAddr = "127.0.0.1:0"
	sec := security.NewManager(cfg, nil)
	return NewListener(cfg, sec)
}

func TestResolveTagReturnsDetectedTagOnSuccess(t *testing.T) {
	l := newTestListener(t)
	clientSide, serverSide := net.Pipe()
	defer clientSide.Close()
	defer serverSide.Close()

	result, err := l.agent.Observe([]byte("SSH-2.0-OpenSSH_9.0\r\n"))
	require.NoError(t, err)

	tag := l.resolveTag(result, err, serverSide)
	require.True(t, tag.Equal(protocoldetect.SSH))
}

func TestResolveTagFallsBackToTCPOnPipelineError(t *testing.T) {
	l := newTestListener(t)
	clientSide, serverSide := net.Pipe()
	defer clientSide.Close()
	defer serverSide.Close()

	detErr := &protocoldetect.DetectionError{Kind: protocoldetect.ErrInsufficientData}
	tag := l.resolveTag(protocoldetect.DetectionResult{}, detErr, serverSide)
	require.True(t, tag.Equal(protocoldetect.TCP))
}

func TestSniffStatsReflectsObservations(t *testing.T) {
	l := newTestListener(t)
	_, _ = l.agent.Observe([]byte("SSH-2.0-OpenSSH_9.0\r\n"))

	snap := l.SniffStats()
	require.GreaterOrEqual(t, snap.Total, uint64(1))
}
