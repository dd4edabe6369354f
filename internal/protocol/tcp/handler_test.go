package tcp

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/SkynetNext/protocol-sniffer-gateway/internal/config"
	"github.com/stretchr/testify/require"
)

// startEchoBackend listens on loopback and echoes back whatever it reads.
func startEchoBackend(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		io.Copy(conn, conn)
	}()
	return ln.Addr().String()
}

func TestHandleToProxiesBytesToBackend(t *testing.T) {
	backendAddr := startEchoBackend(t)

	h := NewHandler(&config.Config{}, nil)
	clientSide, serverSide := net.Pipe()

	done := make(chan struct{})
	go func() {
		h.HandleTo(serverSide, backendAddr, "tcp")
		close(done)
	}()

	_, err := clientSide.Write([]byte("hello"))
	require.NoError(t, err)

	clientSide.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 5)
	_, err = io.ReadFull(clientSide, buf)
	require.NoError(t, err)
	require.Equal(t, "hello", string(buf))

	clientSide.Close()
	<-done
}

func TestHandleToClosesWhenNoBackendConfigured(t *testing.T) {
	h := NewHandler(&config.Config{}, nil)
	clientSide, serverSide := net.Pipe()

	done := make(chan struct{})
	go func() {
		h.HandleTo(serverSide, "", "tls")
		close(done)
	}()

	buf := make([]byte, 1)
	_, err := clientSide.Read(buf)
	require.Error(t, err) // peer closed with no backend configured
	<-done
}
