package protocoldetect

import "bytes"

// sshProbe recognizes an SSH version banner ("SSH-major.minor-...").
type sshProbe struct{}

func (sshProbe) Name() string             { return "ssh" }
func (sshProbe) Supported() []ProtocolTag { return []ProtocolTag{SSH} }
func (sshProbe) MinWindow() int           { return 8 }

func isASCIIDigit(b byte) bool { return b >= '0' && b <= '9' }

func (p sshProbe) Probe(window []byte) Outcome {
	if len(window) < p.MinWindow() {
		return outcomeNeedMore(p.MinWindow())
	}
	if !bytes.HasPrefix(window, []byte("SSH-")) {
		return outcomeNotDetected()
	}
	major, dot, minor, dash := window[4], window[5], window[6], window[7]
	if !isASCIIDigit(major) || dot != '.' || !isASCIIDigit(minor) || dash != '-' {
		return outcomeNotDetected()
	}

	end := len(window)
	if idx := bytes.Index(window, []byte("\r\n")); idx >= 0 {
		end = idx
	}
	if end > 255 {
		end = 255
	}

	info := ProtocolInfo{Tag: SSH, Features: NewOrderedMap(), Metadata: NewOrderedMap()}
	info.Features.Set("version", string(major)+"."+string(minor))
	info.Metadata.Set("banner", string(window[:end]))
	info.Confidence = 0.99
	return outcomeDetected(info)
}
