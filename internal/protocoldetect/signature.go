package protocoldetect

import (
	"bytes"
	"encoding/binary"
	"sort"

	"github.com/SkynetNext/protocol-sniffer-gateway/internal/protocoldetect/simdkit"
)

// Signature is a literal byte-pattern match rule used by the magic-byte
// fast path (§4.B). Most signatures are plain offset+pattern+mask rules;
// a handful of protocols (TLS, QUIC, MQTT, DNS) need a few extra structural
// checks beyond a fixed byte pattern, so Match may hold a closure that
// performs those checks directly against the window instead.
type Signature struct {
	Tag            ProtocolTag
	Offset         int
	Pattern        []byte
	Mask           []byte
	CaseFold       bool
	Contains       bool
	BaseConfidence float64
	Description    string

	// Match, when non-nil, overrides Offset/Pattern/Mask/Contains entirely.
	Match func(window []byte) bool
}

func (s Signature) matches(window []byte, simdOn bool) bool {
	if s.Match != nil {
		return s.Match(window)
	}
	if s.Contains {
		return containsPattern(window, s.Pattern, s.CaseFold, simdOn)
	}
	return matchPatternAt(window, s.Offset, s.Pattern, s.Mask, s.CaseFold, simdOn)
}

func asciiUpper(b byte) byte {
	if b >= 'a' && b <= 'z' {
		return b - ('a' - 'A')
	}
	return b
}

// matchPatternAt checks pattern against window at offset. When simd_on is
// set and the match is a plain fixed-byte comparison (no mask, no case
// folding, pattern short enough for a single wide-word load), it delegates
// to simdkit.CompareFixed instead of the byte-at-a-time loop.
func matchPatternAt(window []byte, offset int, pattern, mask []byte, caseFold, simdOn bool) bool {
	if offset < 0 || offset+len(pattern) > len(window) {
		return false
	}
	if simdOn && mask == nil && !caseFold && len(pattern) <= 32 {
		return simdkit.CompareFixed(window, offset, pattern)
	}
	for i, pb := range pattern {
		wb := window[offset+i]
		if mask != nil {
			wb &= mask[i]
			pb &= mask[i]
		}
		if caseFold {
			wb = asciiUpper(wb)
			pb = asciiUpper(pb)
		}
		if wb != pb {
			return false
		}
	}
	return true
}

func containsPattern(window, pattern []byte, caseFold, simdOn bool) bool {
	if len(pattern) == 0 || len(pattern) > len(window) {
		return false
	}
	if simdOn && !caseFold && len(pattern) <= 32 {
		return containsPatternSIMD(window, pattern)
	}
	last := len(window) - len(pattern)
	for start := 0; start <= last; start++ {
		if matchPatternAt(window, start, pattern, nil, caseFold, simdOn) {
			return true
		}
	}
	return false
}

// containsPatternSIMD scans for pattern's first byte with simdkit.FindByte,
// then confirms the full match with simdkit.CompareFixed, instead of
// sliding a byte-at-a-time comparison across every offset in window.
func containsPatternSIMD(window, pattern []byte) bool {
	first := pattern[0]
	base := 0
	for base < len(window) {
		idx, ok := simdkit.FindByte(window[base:], first)
		if !ok {
			return false
		}
		at := base + idx
		if simdkit.CompareFixed(window, at, pattern) {
			return true
		}
		base = at + 1
	}
	return false
}

func containsCI(window []byte, s string, simdOn bool) bool {
	// Case-insensitive matching needs per-byte folding; simdkit has no
	// folding primitive, so this path always runs the scalar scan.
	return containsPattern(window, []byte(s), true, simdOn)
}

const maxRecordLength = 1 << 14

func matchTLSRecordHeader(window []byte) bool {
	if len(window) < 5 {
		return false
	}
	if window[0] != 0x16 || window[1] != 0x03 || window[2] > 0x04 {
		return false
	}
	length := int(window[3])<<8 | int(window[4])
	return length <= maxRecordLength
}

func matchQUICLongHeader(window []byte) bool {
	if len(window) < 5 {
		return false
	}
	if window[0]&0x80 == 0 {
		return false
	}
	version := binary.BigEndian.Uint32(window[1:5])
	return version != 0
}

// decodeVarLength parses an MQTT variable-length integer (up to 4 bytes)
// starting at off, returning the decoded value and the offset just past it.
func decodeVarLength(window []byte, off int) (value, next int, ok bool) {
	multiplier := 1
	for i := 0; i < 4; i++ {
		if off+i >= len(window) {
			return 0, 0, false
		}
		b := window[off+i]
		value += int(b&0x7F) * multiplier
		if b&0x80 == 0 {
			return value, off + i + 1, true
		}
		multiplier *= 128
	}
	return 0, 0, false
}

func matchMQTTConnect(window []byte) bool {
	if len(window) < 14 {
		return false
	}
	if window[0]>>4 != 1 {
		return false
	}
	_, off, ok := decodeVarLength(window, 1)
	if !ok || off+2 > len(window) {
		return false
	}
	nameLen := int(window[off])<<8 | int(window[off+1])
	off += 2
	if off+nameLen > len(window) {
		return false
	}
	name := window[off : off+nameLen]
	return bytes.Equal(name, []byte("MQTT")) || bytes.Equal(name, []byte("MQIsdp"))
}

func matchDNSQuery(window []byte) bool {
	if len(window) < 12 {
		return false
	}
	flags := window[2]
	if flags&0x80 != 0 {
		return false
	}
	opcode := (flags >> 3) & 0x0F
	if opcode > 5 {
		return false
	}
	qdcount := int(window[4])<<8 | int(window[5])
	return qdcount >= 1 && qdcount <= 32
}

func matchWebSocketUpgrade(simdOn bool) func([]byte) bool {
	return func(window []byte) bool {
		return containsCI(window, "Upgrade: websocket", simdOn) && containsCI(window, "Sec-WebSocket-Key:", simdOn)
	}
}

func matchHTTP1xToken(version string, simdOn bool) func([]byte) bool {
	needle := []byte(" HTTP/" + version + "\r\n")
	return func(window []byte) bool {
		return containsPattern(window, needle, false, simdOn)
	}
}

var httpMethods = []string{"GET ", "POST ", "PUT ", "DELETE ", "HEAD ", "OPTIONS ", "PATCH ", "TRACE ", "CONNECT "}

// builtinSignatures returns the signatures required by §4.B, in registration
// order (ties in confidence break by this order). simdOn is baked into the
// Match closures that can't receive it at call time (Signature.Match is a
// plain func([]byte) bool); the plain offset/contains signatures pick it up
// from Signature.matches instead.
func builtinSignatures(simdOn bool) []Signature {
	sigs := make([]Signature, 0, len(httpMethods)+8)

	for _, m := range httpMethods {
		sigs = append(sigs, Signature{
			Tag:            HTTP1_1,
			Offset:         0,
			Pattern:        []byte(m),
			BaseConfidence: 0.95,
			Description:    "HTTP method keyword " + m,
		})
	}

	sigs = append(sigs,
		Signature{
			Tag:            HTTP1_0,
			Contains:       true,
			BaseConfidence: 0.98,
			Description:    "HTTP/1.0 request line token",
			Match:          matchHTTP1xToken("1.0", simdOn),
		},
		Signature{
			Tag:            HTTP1_1,
			Contains:       true,
			BaseConfidence: 0.98,
			Description:    "HTTP/1.1 request line token",
			Match:          matchHTTP1xToken("1.1", simdOn),
		},
		Signature{
			Tag:            HTTP2,
			Offset:         0,
			Pattern:        []byte("PRI * HTTP/2.0\r\n\r\nSM\r\n\r\n"),
			BaseConfidence: 1.00,
			Description:    "HTTP/2 connection preface",
		},
		Signature{
			Tag:            TLS,
			BaseConfidence: 0.90,
			Description:    "TLS record header (handshake, version 3.0-3.4)",
			Match:          matchTLSRecordHeader,
		},
		Signature{
			Tag:            SSH,
			Offset:         0,
			Pattern:        []byte("SSH-"),
			BaseConfidence: 0.99,
			Description:    "SSH protocol banner prefix",
		},
		Signature{
			Tag:            QUIC,
			BaseConfidence: 0.70,
			Description:    "QUIC long header with non-zero version",
			Match:          matchQUICLongHeader,
		},
		Signature{
			Tag:            MQTT,
			BaseConfidence: 0.88,
			Description:    "MQTT CONNECT packet with MQTT/MQIsdp protocol name",
			Match:          matchMQTTConnect,
		},
		Signature{
			Tag:            DNS,
			BaseConfidence: 0.75,
			Description:    "DNS query header shape",
			Match:          matchDNSQuery,
		},
		Signature{
			Tag:            WebSocket,
			Contains:       true,
			BaseConfidence: 0.95,
			Description:    "WebSocket upgrade headers",
			Match:          matchWebSocketUpgrade(simdOn),
		},
	)

	return sigs
}

// MagicTable is the §4.B dispatch table: an O(1) bucket lookup on the first
// two bytes of the window, falling back to a short overflow list for
// signatures whose match cannot be pinned to a fixed two-byte prefix
// (non-zero offset, "contains anywhere", or bit-range/class conditions).
type MagicTable struct {
	buckets  map[[2]byte][]Signature
	overflow []Signature
}

// fixedKey reports the two-byte dispatch key for sig, if one can be derived
// statically: a literal pattern at offset 0 whose first two bytes are not
// masked out.
func fixedKey(sig Signature) ([2]byte, bool) {
	if sig.Match != nil || sig.Contains || sig.Offset != 0 || len(sig.Pattern) < 2 {
		return [2]byte{}, false
	}
	if sig.Mask != nil {
		if len(sig.Mask) < 2 || sig.Mask[0] != 0xFF || sig.Mask[1] != 0xFF {
			return [2]byte{}, false
		}
	}
	b0, b1 := sig.Pattern[0], sig.Pattern[1]
	if sig.CaseFold {
		b0, b1 = asciiUpper(b0), asciiUpper(b1)
	}
	return [2]byte{b0, b1}, true
}

// NewMagicTable builds a dispatch table from sigs, preserving registration
// order within a bucket/overflow list for tie-breaking, and sorting each by
// descending base confidence.
func NewMagicTable(sigs []Signature) *MagicTable {
	t := &MagicTable{buckets: make(map[[2]byte][]Signature)}
	for _, sig := range sigs {
		if key, ok := fixedKey(sig); ok {
			t.buckets[key] = append(t.buckets[key], sig)
			continue
		}
		t.overflow = append(t.overflow, sig)
	}
	for k := range t.buckets {
		stableSortByConfidence(t.buckets[k])
	}
	stableSortByConfidence(t.overflow)
	return t
}

func stableSortByConfidence(sigs []Signature) {
	sort.SliceStable(sigs, func(i, j int) bool {
		return sigs[i].BaseConfidence > sigs[j].BaseConfidence
	})
}

// QuickDetectResult is the outcome of a successful fast-path match.
type QuickDetectResult struct {
	Tag            ProtocolTag
	BaseConfidence float64
	Description    string
}

// QuickDetect implements §4.B's quick_detect: a bucket lookup on the first
// two bytes, falling through to the overflow list only when that bucket was
// never populated at build time. simdOn routes the underlying pattern match
// through simdkit's wide-word kernels (§4.H) instead of the scalar loop.
func (t *MagicTable) QuickDetect(window []byte, simdOn bool) (QuickDetectResult, bool) {
	if len(window) < 2 {
		return QuickDetectResult{}, false
	}
	key := [2]byte{window[0], window[1]}
	if bucket, ok := t.buckets[key]; ok {
		for _, sig := range bucket {
			if sig.matches(window, simdOn) {
				return QuickDetectResult{sig.Tag, sig.BaseConfidence, sig.Description}, true
			}
		}
		return QuickDetectResult{}, false
	}
	for _, sig := range t.overflow {
		if sig.matches(window, simdOn) {
			return QuickDetectResult{sig.Tag, sig.BaseConfidence, sig.Description}, true
		}
	}
	return QuickDetectResult{}, false
}
