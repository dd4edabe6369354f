package protocoldetect

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type loopbackTransport struct {
	response *bytes.Reader
	written  [][]byte
}

func (l *loopbackTransport) Write(p []byte) (int, error) {
	l.written = append(l.written, append([]byte(nil), p...))
	return len(p), nil
}

func (l *loopbackTransport) Read(p []byte) (int, error) {
	return l.response.Read(p)
}

func TestAgentObserveIsThePipeline(t *testing.T) {
	d := buildTestDetector(t)
	agent := NewAgent(d, AgentConfig{Role: RoleServer})

	result, err := agent.Observe([]byte("SSH-2.0-OpenSSH_9.0\r\n"))
	require.NoError(t, err)
	require.True(t, result.Info.Tag.Equal(SSH))
	require.Equal(t, StateIdle, agent.State())
}

func TestAgentClassifyAndRouteRoundRobin(t *testing.T) {
	d := buildTestDetector(t)
	lb := NewLoadBalancer(LBRoundRobin, []string{"a:1", "b:1", "c:1"})
	agent := NewAgent(d, AgentConfig{Role: RoleServer, LoadBalance: lb})

	window := []byte("SSH-2.0-OpenSSH_9.0\r\n")
	seen := make(map[string]bool)
	for i := 0; i < 3; i++ {
		decision, err := agent.ClassifyAndRoute(window, "peer", nil)
		require.NoError(t, err)
		seen[decision.Endpoint] = true
	}
	require.Len(t, seen, 3)
}

func TestAgentClassifyAndRouteLeastConn(t *testing.T) {
	d := buildTestDetector(t)
	lb := NewLoadBalancer(LBLeastConn, []string{"a:1", "b:1"})
	agent := NewAgent(d, AgentConfig{Role: RoleServer, LoadBalance: lb})

	decision, err := agent.ClassifyAndRoute([]byte("SSH-2.0-OpenSSH_9.0\r\n"), "peer",
		map[string]int{"a:1": 5, "b:1": 1})
	require.NoError(t, err)
	require.Equal(t, "b:1", decision.Endpoint)
}

func TestAgentClassifyAndRouteConsistentHashIsStable(t *testing.T) {
	d := buildTestDetector(t)
	lb := NewLoadBalancer(LBConsistentHash, []string{"a:1", "b:1", "c:1"})
	agent := NewAgent(d, AgentConfig{Role: RoleServer, LoadBalance: lb})

	window := []byte("SSH-2.0-OpenSSH_9.0\r\n")
	first, err := agent.ClassifyAndRoute(window, "peer-42", nil)
	require.NoError(t, err)
	second, err := agent.ClassifyAndRoute(window, "peer-42", nil)
	require.NoError(t, err)
	require.Equal(t, first.Endpoint, second.Endpoint)
}

func TestAgentProbeCapabilitiesConfirmsTag(t *testing.T) {
	d := buildTestDetector(t)
	agent := NewAgent(d, AgentConfig{Role: RoleClient})
	transport := &loopbackTransport{response: bytes.NewReader([]byte("SSH-2.0-OpenSSH_9.0\r\n"))}

	confirmed, err := agent.ProbeCapabilities(context.Background(), transport, []Opener{
		{Name: "ssh-probe", Send: []byte("\x00")},
	})
	require.NoError(t, err)
	require.True(t, confirmed[SSH])
	require.Equal(t, StateDetected, agent.State())
}

func TestAgentNegotiatePrefersCallerOrder(t *testing.T) {
	d := buildTestDetector(t)
	agent := NewAgent(d, AgentConfig{Role: RoleClient, FallbackTags: []ProtocolTag{TLS}})

	confirmed := map[ProtocolTag]bool{HTTP1_1: true, HTTP2: true}
	tag := agent.Negotiate(confirmed, []ProtocolTag{HTTP2, HTTP1_1})
	require.True(t, tag.Equal(HTTP2))

	tag = agent.Negotiate(confirmed, []ProtocolTag{QUIC})
	require.True(t, tag.Equal(TCP))
}
