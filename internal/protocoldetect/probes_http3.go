package protocoldetect

import "bytes"

// alpnH3Marker is the ALPN protocol-id entry ("\x02h3") as it appears,
// unencrypted, in a QUIC Initial packet's crypto frame when the client
// offers HTTP/3. Detecting it without a full TLS ClientHello parse is a
// deliberate approximation: it is cheap and matches in practice, at the
// cost of being spoofable by a crafted payload.
var alpnH3Marker = []byte{0x02, 'h', '3'}

// http3Probe recognizes HTTP/3 running over QUIC. A QUIC long header alone
// is ambiguous with bare QUIC (e.g. a future protocol riding the same
// transport); the probe reports QUIC with a candidate_http3 hint in that
// case and leaves the tag swap to Detector.sweep, which knows whether HTTP3
// or QUIC is the one actually enabled (resolves the ambiguity the
// fixed-function Probe interface can't see on its own).
type http3Probe struct{}

func (http3Probe) Name() string             { return "http3" }
func (http3Probe) Supported() []ProtocolTag { return []ProtocolTag{HTTP3} }
func (http3Probe) MinWindow() int           { return 16 }

func (p http3Probe) Probe(window []byte) Outcome {
	if len(window) < p.MinWindow() {
		return outcomeNeedMore(p.MinWindow())
	}
	if !matchQUICLongHeader(window) {
		return outcomeNotDetected()
	}

	info := ProtocolInfo{Features: NewOrderedMap(), Metadata: NewOrderedMap()}
	if bytes.Contains(window, alpnH3Marker) {
		info.Tag = HTTP3
		info.Metadata.Set("alpn", "h3")
		info.Confidence = 0.90
		return outcomeDetected(info)
	}

	info.Tag = QUIC
	info.Metadata.Set("candidate_http3", "true")
	info.Confidence = 0.60
	return outcomeDetected(info)
}
