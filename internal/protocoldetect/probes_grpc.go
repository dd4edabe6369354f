package protocoldetect

import "bytes"

// grpcContentType is searched for as a plain ASCII substring rather than
// decoded from HPACK. Non-Huffman HPACK literal header field values are
// stored as their raw bytes, so a plaintext gRPC content-type still appears
// verbatim in the window for the common case of a client that doesn't
// Huffman-encode this particular header; a Huffman-coded value will not
// match and falls through to the generic HTTP/2 classification instead.
const grpcContentType = "application/grpc"

// grpcProbe recognizes gRPC as HTTP/2 carrying the gRPC content-type.
type grpcProbe struct {
	http2 http2Probe
}

func (grpcProbe) Name() string             { return "grpc" }
func (grpcProbe) Supported() []ProtocolTag { return []ProtocolTag{GRPC} }
func (p grpcProbe) MinWindow() int         { return p.http2.MinWindow() }

func (p grpcProbe) Probe(window []byte) Outcome {
	out := p.http2.Probe(window)
	if out.Kind == NeedMoreData {
		return out
	}
	if out.Kind != Detected {
		return outcomeNotDetected()
	}
	if !bytes.Contains(window, []byte(grpcContentType)) {
		return outcomeNotDetected()
	}

	info := ProtocolInfo{Tag: GRPC, Features: NewOrderedMap(), Metadata: NewOrderedMap()}
	info.Features.Set("content_type", grpcContentType)
	if bytes.Contains(window, []byte("POST")) {
		info.Features.Set("method", "POST")
	}
	info.Confidence = 0.90
	return outcomeDetected(info)
}
