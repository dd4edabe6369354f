package core

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPeekWindowReturnsLeadingBytesWithoutConsuming(t *testing.T) {
	clientSide, serverSide := net.Pipe()
	defer clientSide.Close()

	sc := NewSniffConn(serverSide)

	go func() {
		clientSide.Write([]byte("GET / HTTP/1.1\r\n"))
	}()

	window := sc.PeekWindow(3, time.Second)
	require.Equal(t, "GET", string(window))

	// The peeked bytes must still be readable afterwards.
	buf := make([]byte, 3)
	n, err := sc.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "GET", string(buf[:n]))
}

func TestPeekWindowTimesOutOnSilentPeer(t *testing.T) {
	_, serverSide := net.Pipe()
	sc := NewSniffConn(serverSide)

	window := sc.PeekWindow(16, 50*time.Millisecond)
	require.Empty(t, window)
}

func TestUnwrapReturnsUnderlyingConn(t *testing.T) {
	clientSide, serverSide := net.Pipe()
	defer clientSide.Close()
	defer serverSide.Close()

	sc := NewSniffConn(serverSide)
	require.Equal(t, serverSide, sc.Unwrap())
}
