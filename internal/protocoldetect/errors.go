package protocoldetect

import "fmt"

// ErrorKind enumerates the closed set of pipeline-level failures. Probes
// never raise; malformed bytes make a probe return NotDetected, and only
// the pipeline surfaces a *DetectionError to the caller.
type ErrorKind int

const (
	ErrUnknown ErrorKind = iota
	ErrInsufficientData
	ErrLowConfidence
	ErrTimeout
	ErrConfigurationInvalid
	ErrProbeFailed
	ErrTransport
	ErrUpgradeNotSupported
)

func (k ErrorKind) String() string {
	switch k {
	case ErrInsufficientData:
		return "InsufficientData"
	case ErrLowConfidence:
		return "LowConfidence"
	case ErrTimeout:
		return "Timeout"
	case ErrConfigurationInvalid:
		return "ConfigurationInvalid"
	case ErrProbeFailed:
		return "ProbeFailed"
	case ErrTransport:
		return "TransportError"
	case ErrUpgradeNotSupported:
		return "UpgradeNotSupported"
	default:
		return "Unknown"
	}
}

// DetectionError is the single error type returned across the classifier
// surface. It carries at most one level of context, per §7.
type DetectionError struct {
	Kind ErrorKind

	// Required is set for ErrInsufficientData: the byte count at which a
	// retry would succeed.
	Required int

	// BestTag/BestConfidence are set for ErrLowConfidence.
	BestTag        ProtocolTag
	BestConfidence float64

	// ProbeName is set for ErrProbeFailed.
	ProbeName string

	// From/To are set for ErrUpgradeNotSupported.
	From, To ProtocolTag

	Reason string
}

func (e *DetectionError) Error() string {
	switch e.Kind {
	case ErrInsufficientData:
		return fmt.Sprintf("insufficient data: need %d bytes", e.Required)
	case ErrLowConfidence:
		return fmt.Sprintf("low confidence: best=%s confidence=%.2f", e.BestTag, e.BestConfidence)
	case ErrTimeout:
		return "detection timeout exceeded"
	case ErrConfigurationInvalid:
		return fmt.Sprintf("invalid configuration: %s", e.Reason)
	case ErrProbeFailed:
		return fmt.Sprintf("probe %q failed: %s", e.ProbeName, e.Reason)
	case ErrTransport:
		return fmt.Sprintf("transport error: %s", e.Reason)
	case ErrUpgradeNotSupported:
		return fmt.Sprintf("upgrade from %s to %s not supported", e.From, e.To)
	default:
		return fmt.Sprintf("detection error: %s", e.Reason)
	}
}

func errInsufficientData(required int) *DetectionError {
	return &DetectionError{Kind: ErrInsufficientData, Required: required}
}

func errLowConfidence(tag ProtocolTag, confidence float64) *DetectionError {
	return &DetectionError{Kind: ErrLowConfidence, BestTag: tag, BestConfidence: confidence}
}

func errTimeout() *DetectionError {
	return &DetectionError{Kind: ErrTimeout}
}

func errConfigInvalid(reason string) *DetectionError {
	return &DetectionError{Kind: ErrConfigurationInvalid, Reason: reason}
}

func errProbeFailed(name, reason string) *DetectionError {
	return &DetectionError{Kind: ErrProbeFailed, ProbeName: name, Reason: reason}
}

// ErrTransportFailed builds a TransportError, the one error kind an Agent's
// client-role probing may surface.
func ErrTransportFailed(reason string) *DetectionError {
	return &DetectionError{Kind: ErrTransport, Reason: reason}
}

// ErrUpgradeUnsupported builds an UpgradeNotSupported error for the
// Agent-adjacent upgrade negotiation surface.
func ErrUpgradeUnsupported(from, to ProtocolTag) *DetectionError {
	return &DetectionError{Kind: ErrUpgradeNotSupported, From: from, To: to}
}
