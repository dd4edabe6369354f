package tcp

import (
	"io"
	"net"
	"time"

	"github.com/SkynetNext/protocol-sniffer-gateway/internal/config"
	"github.com/SkynetNext/protocol-sniffer-gateway/internal/middleware"
	"github.com/SkynetNext/protocol-sniffer-gateway/internal/security"
	"github.com/SkynetNext/protocol-sniffer-gateway/pkg/ebpf"
	"github.com/SkynetNext/protocol-sniffer-gateway/pkg/xlog"
)

// Handler is a raw byte passthrough for any protocol tag that isn't parsed
// as HTTP: TLS, SSH, WebSocket, gRPC, MQTT, DNS, QUIC, and plain TCP all
// reach their backend unmodified through here, since rewriting their bytes
// in flight would break the protocol they're carrying.
type Handler struct {
	defaultAddr string
	timeout     time.Duration
	security    *security.Manager
	sockMap     *ebpf.SockMapManager
}

func NewHandler(cfg *config.Config, sec *security.Manager) *Handler {
	return &Handler{
		defaultAddr: cfg.Backends.TCP.TargetAddr,
		timeout:     cfg.Backends.TCP.Timeout,
		security:    sec,
	}
}

// SetAccelerator wires in an eBPF sockmap manager so raw passthrough
// connections get redirected at the kernel level instead of paying for a
// userspace io.Copy on every byte. Safe to call with nil or a disabled
// manager; HandleTo falls back to userspace copying either way.
func (h *Handler) SetAccelerator(mgr *ebpf.SockMapManager) {
	h.sockMap = mgr
}

// Handle proxies src to the default TCP backend.
func (h *Handler) Handle(src net.Conn) {
	h.HandleTo(src, h.defaultAddr, "tcp")
}

// HandleTo proxies src to backendAddr, falling back to the default TCP
// backend when backendAddr is empty (no per-protocol override configured).
// tag labels the connection/byte metrics so each protocol's traffic is
// distinguishable in Prometheus.
func (h *Handler) HandleTo(src net.Conn, backendAddr, tag string) {
	defer src.Close()

	if backendAddr == "" {
		backendAddr = h.defaultAddr
	}
	if backendAddr == "" {
		xlog.Warnf("No backend configured for %s, closing %s", tag, src.RemoteAddr())
		return
	}

	dialer := net.Dialer{Timeout: h.timeout}
	dst, err := dialer.Dial("tcp", backendAddr)
	if err != nil {
		xlog.Errorf("Failed to dial backend %s for %s: %v", backendAddr, tag, err)
		return
	}
	defer dst.Close()

	middleware.IncActiveConnections(tag)
	start := time.Now()
	defer func() {
		middleware.DecActiveConnections(tag)
		middleware.RecordConnectionDuration(tag, time.Since(start).Seconds())
	}()

	if h.security != nil {
		defer h.security.AuditTCP(src.RemoteAddr().String(), backendAddr, true, "")
	}

	if h.sockMap != nil && h.sockMap.IsEnabled() {
		if err := h.sockMap.RegisterSocketPair(src, dst, tag); err != nil {
			xlog.Debugf("eBPF acceleration unavailable for %s: %v", tag, err)
		} else {
			defer h.sockMap.UnregisterSocketPair(src, dst)
		}
	}

	errc := make(chan error, 2)
	go func() {
		n, err := io.Copy(dst, src)
		middleware.RequestBytes.WithLabelValues(tag, "in").Add(float64(n))
		// Pass the client's end of stream on so the backend can finish its side.
		if tc, ok := dst.(*net.TCPConn); ok {
			tc.CloseWrite()
		}
		errc <- err
	}()
	n, err := io.Copy(src, dst)
	middleware.RequestBytes.WithLabelValues(tag, "out").Add(float64(n))
	errc <- err
	<-errc
}
