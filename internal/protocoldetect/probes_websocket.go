package protocoldetect

// websocketProbe recognizes an HTTP/1.1 upgrade request carrying WebSocket
// headers. It runs over the same window the http1Probe sees, so it needs a
// wider minimum to reach the header block. Its header scan is
// case-insensitive, so it always runs the scalar matcher; simdOn is passed
// through to containsCI but does not switch it to simdkit's kernels.
type websocketProbe struct{ simdOn bool }

func (websocketProbe) Name() string             { return "websocket" }
func (websocketProbe) Supported() []ProtocolTag { return []ProtocolTag{WebSocket} }
func (websocketProbe) MinWindow() int           { return 64 }

func (p websocketProbe) Probe(window []byte) Outcome {
	if len(window) < p.MinWindow() {
		return outcomeNeedMore(p.MinWindow())
	}
	if !containsCI(window, "Upgrade: websocket", p.simdOn) {
		return outcomeNotDetected()
	}

	info := ProtocolInfo{Tag: WebSocket, Features: NewOrderedMap(), Metadata: NewOrderedMap()}
	if containsCI(window, "Sec-WebSocket-Key:", p.simdOn) {
		info.Confidence = 0.95
		return outcomeDetected(info)
	}
	info.Confidence = 0.50
	return outcomePartial(info)
}
