package protocoldetect

import (
	"bytes"
	"strings"
)

// http1Probe recognizes HTTP/1.0 and HTTP/1.1 request lines.
type http1Probe struct{}

func (http1Probe) Name() string             { return "http1" }
func (http1Probe) Supported() []ProtocolTag { return []ProtocolTag{HTTP1_0, HTTP1_1} }
func (http1Probe) MinWindow() int           { return 16 }

func matchHTTPMethodPrefix(window []byte) (method string, prefixLen int, ok bool) {
	for _, m := range httpMethods {
		if bytes.HasPrefix(window, []byte(m)) {
			return strings.TrimSpace(m), len(m), true
		}
	}
	return "", 0, false
}

func (p http1Probe) Probe(window []byte) Outcome {
	if len(window) < p.MinWindow() {
		return outcomeNeedMore(p.MinWindow())
	}
	method, prefixLen, ok := matchHTTPMethodPrefix(window)
	if !ok {
		return outcomeNotDetected()
	}

	rest := window[prefixLen:]
	info := ProtocolInfo{Features: NewOrderedMap(), Metadata: NewOrderedMap()}
	info.Features.Set("method", method)

	spaceIdx := bytes.IndexByte(rest, ' ')
	const token = " HTTP/1."
	tokenIdx := bytes.Index(rest, []byte(token))

	if tokenIdx >= 0 && tokenIdx+len(token) < len(rest) {
		minor := rest[tokenIdx+len(token)]
		tag := HTTP1_1
		version := "1." + string(minor)
		if minor == '0' {
			tag = HTTP1_0
			version = "1.0"
		} else if minor == '1' {
			version = "1.1"
		}
		info.Features.Set("version", version)

		targetEnd := tokenIdx
		if spaceIdx >= 0 && spaceIdx < targetEnd {
			targetEnd = spaceIdx
		}
		if targetEnd > 0 {
			setTarget(&info, rest[:targetEnd])
		}

		info.Tag = tag
		info.Confidence = 0.95
		return outcomeDetected(info)
	}

	if spaceIdx > 0 {
		setTarget(&info, rest[:spaceIdx])
	}
	info.Tag = HTTP1_1
	info.Confidence = 0.70
	return outcomePartial(info)
}

func setTarget(info *ProtocolInfo, target []byte) {
	if len(target) > 64 {
		target = target[:64]
	}
	info.Features.Set("target", string(target))
}
