package protocoldetect

// tlsProbe recognizes a TLS record layer header, refining confidence once
// enough bytes are present to see the handshake message type.
type tlsProbe struct{}

func (tlsProbe) Name() string             { return "tls" }
func (tlsProbe) Supported() []ProtocolTag { return []ProtocolTag{TLS} }
func (tlsProbe) MinWindow() int           { return 5 }

const tlsHandshakeClientHello = 0x01

func (p tlsProbe) Probe(window []byte) Outcome {
	if len(window) < p.MinWindow() {
		return outcomeNeedMore(p.MinWindow())
	}
	if !matchTLSRecordHeader(window) {
		return outcomeNotDetected()
	}

	info := ProtocolInfo{Tag: TLS, Features: NewOrderedMap(), Metadata: NewOrderedMap()}
	if len(window) >= 11 && window[5] == tlsHandshakeClientHello {
		info.Features.Set("handshake", "client_hello")
		info.Confidence = 0.95
		return outcomeDetected(info)
	}
	info.Confidence = 0.85
	return outcomeDetected(info)
}
