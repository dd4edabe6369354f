package protocoldetect

import (
	"bytes"
	"encoding/binary"
)

const http2Preface = "PRI * HTTP/2.0\r\n\r\nSM\r\n\r\n"

// http2Probe recognizes the HTTP/2 connection preface, or failing that a
// plausible-looking frame header for connections that start mid-stream.
type http2Probe struct{}

func (http2Probe) Name() string             { return "http2" }
func (http2Probe) Supported() []ProtocolTag { return []ProtocolTag{HTTP2} }
func (http2Probe) MinWindow() int           { return 24 }

func (p http2Probe) Probe(window []byte) Outcome {
	if len(window) < p.MinWindow() {
		return outcomeNeedMore(p.MinWindow())
	}

	info := ProtocolInfo{Tag: HTTP2, Features: NewOrderedMap(), Metadata: NewOrderedMap()}
	if bytes.HasPrefix(window, []byte(http2Preface)) {
		info.Metadata.Set("match", "preface")
		info.Confidence = 1.00
		return outcomeDetected(info)
	}

	length := uint32(window[0])<<16 | uint32(window[1])<<8 | uint32(window[2])
	frameType := window[3]
	streamField := binary.BigEndian.Uint32(window[5:9])
	reserved := streamField >> 31
	if length <= maxRecordLength && frameType <= 9 && reserved == 0 {
		info.Metadata.Set("match", "frame_header")
		info.Confidence = 0.80
		return outcomeDetected(info)
	}
	return outcomeNotDetected()
}
