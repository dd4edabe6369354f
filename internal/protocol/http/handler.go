package http

import (
	"errors"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"sync"
	"time"

	"github.com/SkynetNext/protocol-sniffer-gateway/internal/config"
	"github.com/SkynetNext/protocol-sniffer-gateway/internal/middleware"
	"github.com/SkynetNext/protocol-sniffer-gateway/internal/security"
	"github.com/SkynetNext/protocol-sniffer-gateway/pkg/xlog"
)

// Handler reverse-proxies HTTP/1.x and WebSocket upgrade requests (the only
// protocols this package actually parses rather than passes through as raw
// bytes). It keeps one httputil.ReverseProxy per backend address, built
// lazily, so per-protocol backend overrides don't pay a rebuild cost on
// every connection.
type Handler struct {
	defaultURL string
	timeout    time.Duration
	security   *security.Manager

	mu      sync.Mutex
	proxies map[string]*httputil.ReverseProxy
}

func NewHandler(cfg *config.Config, sec *security.Manager) *Handler {
	return &Handler{
		defaultURL: cfg.Backends.HTTP.TargetURL,
		timeout:    cfg.Backends.HTTP.Timeout,
		security:   sec,
		proxies:    make(map[string]*httputil.ReverseProxy),
	}
}

func (h *Handler) proxyFor(targetURL string) (*httputil.ReverseProxy, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if p, ok := h.proxies[targetURL]; ok {
		return p, nil
	}
	target, err := url.Parse(targetURL)
	if err != nil {
		return nil, err
	}
	p := httputil.NewSingleHostReverseProxy(target)
	p.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		xlog.Errorf("Upstream proxy error for %s %s -> %s: %v", r.Method, r.URL.Path, targetURL, err)
		w.WriteHeader(http.StatusBadGateway)
	}
	h.proxies[targetURL] = p
	return p, nil
}

// ServeConn proxies a single connection to the default HTTP backend.
func (h *Handler) ServeConn(c net.Conn) {
	h.ServeConnTo(c, h.defaultURL)
}

// ServeConnTo proxies a single already-sniffed connection to targetURL. It
// serves the connection through net/http's own request loop (rather than
// hand-parsing one request) so keep-alive, chunked bodies and WebSocket
// upgrades all work the way they would behind a normal http.Server;
// oneShotListener hands http.Serve exactly this one net.Conn.
func (h *Handler) ServeConnTo(c net.Conn, targetURL string) {
	if targetURL == "" {
		targetURL = h.defaultURL
	}
	if targetURL == "" {
		xlog.Warnf("No HTTP backend configured, closing %s", c.RemoteAddr())
		c.Close()
		return
	}

	proxy, err := h.proxyFor(targetURL)
	if err != nil {
		xlog.Errorf("Invalid HTTP backend URL %q: %v", targetURL, err)
		c.Close()
		return
	}

	middleware.IncActiveConnections("http")
	start := time.Now()
	defer func() {
		middleware.DecActiveConnections("http")
		middleware.RecordConnectionDuration("http", time.Since(start).Seconds())
	}()

	var handler http.Handler = proxy
	if h.security != nil {
		handler = h.auditWrap(proxy, targetURL)
	}
	handler = middleware.K8sProbeMiddleware(middleware.CloudNativeMiddleware(handler))

	ln := &oneShotListener{conn: c, done: make(chan struct{})}
	server := &http.Server{
		Handler:     handler,
		ReadTimeout: h.timeout,
		// Close the listener once the one connection is done with, so Serve
		// returns instead of waiting on a second Accept forever.
		ConnState: func(_ net.Conn, state http.ConnState) {
			if state == http.StateClosed || state == http.StateHijacked {
				ln.Close()
			}
		},
	}
	server.Serve(ln)
}

func (h *Handler) auditWrap(next http.Handler, targetURL string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r)
		h.security.AuditTCP(r.RemoteAddr, targetURL, true, r.Method+" "+r.URL.Path)
	})
}

// oneShotListener is a net.Listener that yields a single, already-accepted
// connection and then blocks until Close, so http.Server.Serve can drive a
// connection that the gateway's own accept loop handed it rather than one
// it accepted itself.
type oneShotListener struct {
	conn   net.Conn
	done   chan struct{}
	served bool
	mu     sync.Mutex
}

func (l *oneShotListener) Accept() (net.Conn, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.served {
		<-l.done
		return nil, errListenerClosed
	}
	l.served = true
	return l.conn, nil
}

func (l *oneShotListener) Close() error {
	select {
	case <-l.done:
	default:
		close(l.done)
	}
	return nil
}

func (l *oneShotListener) Addr() net.Addr { return l.conn.LocalAddr() }

var errListenerClosed = errors.New("oneShotListener: closed")
