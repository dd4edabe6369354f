package config

import (
	"net/url"
	"strings"

	"github.com/SkynetNext/protocol-sniffer-gateway/internal/protocoldetect"
)

// BuildDetectorConfig translates the operator-facing SniffConfig into the
// protocoldetect package's DetectorConfig, resolving short codes and the
// strategy name string along the way. An empty EnabledProtocols list falls
// back to protocoldetect's own balanced default set.
func (s SniffConfig) BuildDetectorConfig() protocoldetect.DetectorConfig {
	cfg := protocoldetect.DefaultConfig()

	if len(s.EnabledProtocols) > 0 {
		tags := make(map[protocoldetect.ProtocolTag]bool, len(s.EnabledProtocols))
		for _, code := range s.EnabledProtocols {
			if tag, ok := protocoldetect.TagByShortCode(strings.TrimSpace(code)); ok {
				tags[tag] = true
			}
		}
		if len(tags) > 0 {
			cfg.EnabledProtocols = tags
		}
	}

	switch strings.ToLower(s.Strategy) {
	case "active":
		cfg.Strategy = protocoldetect.StrategyActive
	case "hybrid":
		cfg.Strategy = protocoldetect.StrategyHybrid
	default:
		cfg.Strategy = protocoldetect.StrategyPassive
	}

	if s.MinConfidence > 0 {
		cfg.MinConfidence = s.MinConfidence
	}
	if s.MinWindow > 0 {
		cfg.MinWindow = s.MinWindow
	}
	if s.Timeout > 0 {
		cfg.Timeout = s.Timeout
	}
	cfg.SIMDOn = s.SIMDOn
	cfg.HeuristicOn = s.HeuristicOn

	return cfg
}

// BackendFor resolves the dedicated backend address for a detected protocol,
// falling back to the TCP or HTTP backend depending on transport shape. The
// result is a full URL for unoverridden web tags, suitable only for the
// reverse-proxy (HTTP1.x) dispatch path; raw TCP passthrough must use
// TCPBackendFor instead.
func (b BackendsConfig) BackendFor(tag protocoldetect.ProtocolTag) string {
	if addr, ok := b.Protocol[protocoldetect.ShortCode(tag)]; ok && addr != "" {
		return addr
	}
	if protocoldetect.IsWeb(tag) {
		return b.HTTP.TargetURL
	}
	return b.TCP.TargetAddr
}

// TCPBackendFor resolves the dial address for raw TCP passthrough. Unlike
// BackendFor, a web tag with no per-protocol override resolves to the
// host:port parsed out of the HTTP backend's URL rather than the URL
// itself, since net.Dialer.Dial needs a bare address, not a URL.
func (b BackendsConfig) TCPBackendFor(tag protocoldetect.ProtocolTag) string {
	if addr, ok := b.Protocol[protocoldetect.ShortCode(tag)]; ok && addr != "" {
		return addr
	}
	if protocoldetect.IsWeb(tag) {
		return hostPort(b.HTTP.TargetURL)
	}
	return b.TCP.TargetAddr
}

// hostPort extracts a dialable host:port from rawURL, defaulting the port
// from the scheme (443 for https/wss, 80 otherwise) when rawURL has none.
func hostPort(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	if u.Port() != "" {
		return u.Host
	}
	port := "80"
	switch u.Scheme {
	case "https", "wss":
		port = "443"
	}
	return u.Host + ":" + port
}
