package config

import (
	"strconv"
	"strings"

	"github.com/SkynetNext/protocol-sniffer-gateway/internal/discovery"
	"github.com/SkynetNext/protocol-sniffer-gateway/pkg/xlog"
)

// ResolveBackends rewrites bare "<service>:<port>" backend addresses (the
// TCP target addr and every per-protocol override) into resolved IP:port
// pairs using cluster DNS, when running in Kubernetes. The HTTP target URL
// is not rewritten. Addresses that are already FQDNs or IPs pass through
// unchanged.
func (c *Config) ResolveBackends() {
	if !discovery.IsRunningInK8s() {
		return
	}
	disc := discovery.NewK8sServiceDiscovery()

	if host, port, ok := splitServicePort(c.Backends.TCP.TargetAddr); ok {
		if resolved, err := disc.ResolveServiceWithPort(host, port); err == nil {
			c.Backends.TCP.TargetAddr = resolved
		} else {
			xlog.Warnf("Could not resolve TCP backend %s: %v", c.Backends.TCP.TargetAddr, err)
		}
	}

	for proto, addr := range c.Backends.Protocol {
		host, port, ok := splitServicePort(addr)
		if !ok {
			continue
		}
		if resolved, err := disc.ResolveServiceWithPort(host, port); err == nil {
			c.Backends.Protocol[proto] = resolved
		} else {
			xlog.Warnf("Could not resolve %s backend %s: %v", proto, addr, err)
		}
	}
}

// splitServicePort recognizes a bare "service:port" address (no dots, so not
// already an FQDN or dotted IPv4) worth resolving via cluster DNS.
func splitServicePort(addr string) (host string, port int, ok bool) {
	if addr == "" || strings.Contains(addr, "://") {
		return "", 0, false
	}
	h, p, found := strings.Cut(addr, ":")
	if !found || strings.Contains(h, ".") {
		return "", 0, false
	}
	portNum, err := strconv.Atoi(p)
	if err != nil {
		return "", 0, false
	}
	return h, portNum, true
}
