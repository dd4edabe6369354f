package http

import (
	"io"
	"net"
	stdhttp "net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/SkynetNext/protocol-sniffer-gateway/internal/config"
	"github.com/stretchr/testify/require"
)

func TestServeConnToProxiesRequestToBackend(t *testing.T) {
	backend := httptest.NewServer(stdhttp.HandlerFunc(func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
		w.Write([]byte("hello from backend"))
	}))
	defer backend.Close()

	h := NewHandler(&config.Config{}, nil)

	clientSide, serverSide := net.Pipe()
	done := make(chan struct{})
	go func() {
		h.ServeConnTo(serverSide, backend.URL)
		close(done)
	}()

	clientSide.SetDeadline(time.Now().Add(2 * time.Second))
	_, err := clientSide.Write([]byte("GET / HTTP/1.1\r\nHost: example.com\r\nConnection: close\r\n\r\n"))
	require.NoError(t, err)

	resp, err := io.ReadAll(clientSide)
	require.NoError(t, err)
	require.Contains(t, string(resp), "200 OK")
	require.Contains(t, string(resp), "hello from backend")

	<-done
}

func TestServeConnToClosesWithoutBackend(t *testing.T) {
	h := NewHandler(&config.Config{}, nil)
	clientSide, serverSide := net.Pipe()

	done := make(chan struct{})
	go func() {
		h.ServeConnTo(serverSide, "")
		close(done)
	}()

	buf := make([]byte, 1)
	_, err := clientSide.Read(buf)
	require.Error(t, err)
	<-done
}
