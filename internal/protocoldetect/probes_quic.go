package protocoldetect

import (
	"encoding/binary"
	"fmt"
)

// quicAllowedVersions is the whitelist of QUIC versions the probe accepts:
// RFC 9000 version 1, plus the draft-27..29 family still seen from older
// client libraries.
var quicAllowedVersions = map[uint32]bool{
	1:          true,
	0xff00001b: true,
	0xff00001c: true,
	0xff00001d: true,
}

// quicProbe recognizes a QUIC long-header packet with a version in the
// accepted whitelist. Short-header packets carry no version field and are
// left to the generic UDP classification.
type quicProbe struct{}

func (quicProbe) Name() string             { return "quic" }
func (quicProbe) Supported() []ProtocolTag { return []ProtocolTag{QUIC} }
func (quicProbe) MinWindow() int           { return 13 }

func (p quicProbe) Probe(window []byte) Outcome {
	if len(window) < p.MinWindow() {
		return outcomeNeedMore(p.MinWindow())
	}
	if window[0]&0x80 == 0 {
		return outcomeNotDetected()
	}

	version := binary.BigEndian.Uint32(window[1:5])
	if !quicAllowedVersions[version] {
		return outcomeNotDetected()
	}

	info := ProtocolInfo{Tag: QUIC, Features: NewOrderedMap(), Metadata: NewOrderedMap()}
	info.Features.Set("header", "long")
	info.Features.Set("version", fmt.Sprintf("0x%08x", version))
	info.Confidence = 0.70
	return outcomeDetected(info)
}
