package core

import (
	"bufio"
	"net"
	"time"
)

// SniffConn wraps net.Conn with Peek support so the listener can inspect
// leading bytes before committing to a protocol handler, without losing
// them off the wire.
type SniffConn struct {
	net.Conn
	r *bufio.Reader
}

func NewSniffConn(c net.Conn) *SniffConn {
	return &SniffConn{
		Conn: c,
		r:    bufio.NewReaderSize(c, 4096),
	}
}

// Read implements io.Reader, favoring buffer
func (s *SniffConn) Read(p []byte) (int, error) {
	return s.r.Read(p)
}

// Unwrap returns the underlying net.Conn for eBPF socket cookie extraction
// This satisfies pkg/ebpf's unexported unwrappableConn interface (implicitly, no import needed)
func (s *SniffConn) Unwrap() net.Conn {
	return s.Conn
}

// PeekWindow returns up to n leading bytes without consuming them from the
// stream a later handler will read. It bounds the wait with a read deadline
// so a peer that never sends anything can't hang the accept goroutine
// forever; the deadline is cleared before returning so handlers downstream
// get the connection's normal read behavior back.
func (s *SniffConn) PeekWindow(n int, deadline time.Duration) []byte {
	s.Conn.SetReadDeadline(time.Now().Add(deadline))
	defer s.Conn.SetReadDeadline(time.Time{})

	window, _ := s.r.Peek(n)
	// Peek returns a short slice (rather than erroring) when fewer than n
	// bytes are available; a copy is needed since the returned slice aliases
	// the bufio.Reader's internal buffer and would otherwise be invalidated
	// by the handler's subsequent reads.
	out := make([]byte, len(window))
	copy(out, window)
	return out
}
