package core

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/SkynetNext/protocol-sniffer-gateway/internal/config"
	"github.com/SkynetNext/protocol-sniffer-gateway/internal/middleware"
	"github.com/SkynetNext/protocol-sniffer-gateway/internal/observability"
	httpproxy "github.com/SkynetNext/protocol-sniffer-gateway/internal/protocol/http"
	tcpproxy "github.com/SkynetNext/protocol-sniffer-gateway/internal/protocol/tcp"
	"github.com/SkynetNext/protocol-sniffer-gateway/internal/protocoldetect"
	"github.com/SkynetNext/protocol-sniffer-gateway/internal/security"
	"github.com/SkynetNext/protocol-sniffer-gateway/pkg/ebpf"
	"github.com/SkynetNext/protocol-sniffer-gateway/pkg/xlog"
)

// sniffWindow bounds how many leading bytes the listener peeks before
// dispatch; large enough for every builtin probe's min_window with room to
// spare for a WebSocket upgrade's headers.
const sniffWindow = 4096

// sniffDeadline bounds how long the listener waits for sniffWindow bytes to
// arrive before falling back to TCP passthrough.
const sniffDeadline = 500 * time.Millisecond

type Listener struct {
	address  string
	listener net.Listener

	cfg      *config.Config
	security *security.Manager
	agent    *protocoldetect.Agent

	httpHandler *httpproxy.Handler
	tcpHandler  *tcpproxy.Handler
}

func NewListener(cfg *config.Config, sec *security.Manager) *Listener {
	l := &Listener{
		address:  cfg.Server.ListenAddr,
		cfg:      cfg,
		security: sec,
	}

	detector, err := protocoldetect.Build(cfg.Sniff.BuildDetectorConfig())
	if err != nil {
		xlog.Errorf("Invalid sniff configuration, falling back to defaults: %v", err)
		detector, _ = protocoldetect.Build(protocoldetect.DefaultConfig())
	}
	l.agent = protocoldetect.NewAgent(detector, protocoldetect.AgentConfig{
		Role:       protocoldetect.RoleServer,
		InstanceID: cfg.Server.ListenAddr,
	})

	// Create handlers (may return nil if config is missing)
	l.httpHandler = httpproxy.NewHandler(cfg, sec)
	l.tcpHandler = tcpproxy.NewHandler(cfg, sec)

	// eBPF acceleration is opportunistic: on a kernel/permission set that
	// doesn't support it, NewSockMapManager returns a disabled manager and
	// the passthrough handler quietly falls back to userspace io.Copy.
	if sockMap, err := ebpf.NewSockMapManager(); err != nil {
		xlog.Warnf("eBPF sockmap unavailable, using userspace proxy: %v", err)
	} else {
		l.tcpHandler.SetAccelerator(sockMap)
	}

	return l
}

func (l *Listener) Start() error {
	// Check if handlers are properly initialized
	if l.httpHandler == nil && l.tcpHandler == nil {
		xlog.Errorf("CRITICAL: No handlers available. Check business config in Redis.")
		return fmt.Errorf("no handlers available")
	}

	if l.address == "" {
		xlog.Errorf("CRITICAL: server.listen_addr is not configured")
		return fmt.Errorf("listen address not configured")
	}

	var err error
	l.listener, err = net.Listen("tcp", l.address)
	if err != nil {
		return err
	}

	xlog.Infof("Gateway listening on %s", l.address)

	go l.acceptLoop()
	return nil
}

func (l *Listener) Stop() {
	if l.listener != nil {
		l.listener.Close()
	}
}

// SniffStats exposes the running protocol-detection counters for the admin
// API's read-only stats endpoint.
func (l *Listener) SniffStats() protocoldetect.StatsSnapshot {
	return l.agent.DetectorStats()
}

func (l *Listener) acceptLoop() {
	for {
		conn, err := l.listener.Accept()
		if err != nil {
			// Check if listener was closed (normal shutdown during graceful shutdown)
			errStr := err.Error()
			if strings.Contains(errStr, "use of closed network connection") ||
				strings.Contains(errStr, "operation on closed") {
				// Listener was closed, exit gracefully (this is expected during shutdown)
				xlog.Infof("Listener closed, exiting accept loop")
				return
			}

			// Check for temporary errors (network issues, can retry)
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Temporary() {
				xlog.Warnf("Temporary accept error: %v", err)
				continue
			}

			// Other permanent errors
			xlog.Errorf("Accept error: %v", err)
			return
		}

		go l.handleConn(conn)
	}
}

func (l *Listener) handleConn(c net.Conn) {
	if l.security != nil {
		if err := l.security.CheckConnection(c.RemoteAddr()); err != nil {
			xlog.Warnf("Connection %s rejected: %v", c.RemoteAddr(), err)
			l.security.AuditTCP(c.RemoteAddr().String(), "", false, err.Error())
			c.Close()
			return
		}
	}

	// 1. Wrap connection (Support Peek)
	sniffConn := NewSniffConn(c)

	// 2. Sniff protocol from the leading bytes, without consuming them
	window := sniffConn.PeekWindow(sniffWindow, sniffDeadline)
	result, err := l.agent.Observe(window)
	tag := l.resolveTag(result, err, c)

	_, span := observability.StartSniffSpan(context.Background(), tag.String(), result.Method.String(), result.Info.Confidence, result.Elapsed)
	defer span.End()

	start := time.Now()
	if middleware.Instance != nil {
		defer func() {
			middleware.Instance.Log(&middleware.AccessLog{
				Timestamp:  start,
				ClientIP:   c.RemoteAddr().String(),
				Protocol:   tag.String(),
				DurationMs: time.Since(start).Milliseconds(),
			})
		}()
	}

	// 3. Dispatch
	switch {
	case tag.Equal(protocoldetect.HTTP1_0), tag.Equal(protocoldetect.HTTP1_1):
		if l.httpHandler == nil {
			xlog.Warnf("Conn %s -> %s but HTTP handler not configured, closing", c.RemoteAddr(), tag)
			c.Close()
			return
		}
		xlog.Debugf("Conn %s -> %s", c.RemoteAddr(), tag)
		l.httpHandler.ServeConnTo(sniffConn, l.cfg.Backends.BackendFor(tag))

	default:
		if l.tcpHandler == nil {
			xlog.Warnf("Conn %s -> %s but TCP handler not configured, closing", c.RemoteAddr(), tag)
			c.Close()
			return
		}
		xlog.Debugf("Conn %s -> %s (passthrough)", c.RemoteAddr(), tag)
		l.tcpHandler.HandleTo(sniffConn, l.cfg.Backends.TCPBackendFor(tag), protocoldetect.ShortCode(tag))
	}
}

// resolveTag turns an Observe outcome into a dispatchable tag, recording
// sniff metrics either way. InsufficientData and LowConfidence both fall
// back to plain TCP passthrough rather than closing the connection: a
// connection the pipeline can't confidently classify is still worth
// forwarding blind, the way the gateway always did before sniffing existed.
func (l *Listener) resolveTag(result protocoldetect.DetectionResult, err error, c net.Conn) protocoldetect.ProtocolTag {
	if err == nil {
		middleware.RecordSniff(result.Info.Tag.String(), result.Method.String(), result.Info.Confidence, result.Elapsed)
		return result.Info.Tag
	}

	var detErr *protocoldetect.DetectionError
	if errors.As(err, &detErr) {
		xlog.Debugf("Conn %s sniff outcome: %s", c.RemoteAddr(), detErr.Kind)
		middleware.RecordSniffMiss(detErr.Kind.String())
	} else {
		middleware.RecordSniffMiss("error")
	}
	return protocoldetect.TCP
}
