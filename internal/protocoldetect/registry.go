package protocoldetect

import "sort"

// registryEntry pairs a probe with its static priority and the order it was
// registered in, the latter used only to break ties deterministically.
type registryEntry struct {
	probe    Probe
	priority int
	order    int
}

// ProbeRegistry holds the probe sweep set and produces it in run order
// (§4.D): higher priority first, then narrower (smaller MinWindow, i.e.
// more selective) probes first, then registration order.
type ProbeRegistry struct {
	entries []registryEntry
}

// NewProbeRegistry returns an empty registry.
func NewProbeRegistry() *ProbeRegistry {
	return &ProbeRegistry{}
}

// Register adds probe to the sweep set at the given priority. Higher values
// run earlier. Registration order is preserved for probes with equal
// priority and equal MinWindow.
func (r *ProbeRegistry) Register(probe Probe, priority int) {
	r.entries = append(r.entries, registryEntry{probe: probe, priority: priority, order: len(r.entries)})
}

// Ordered returns every registered probe sorted per §4.D.
func (r *ProbeRegistry) Ordered() []Probe {
	sorted := make([]registryEntry, len(r.entries))
	copy(sorted, r.entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.priority != b.priority {
			return a.priority > b.priority
		}
		if a.probe.MinWindow() != b.probe.MinWindow() {
			return a.probe.MinWindow() < b.probe.MinWindow()
		}
		return a.order < b.order
	})
	out := make([]Probe, len(sorted))
	for i, e := range sorted {
		out[i] = e.probe
	}
	return out
}

// Filtered returns Ordered() restricted to probes that support at least one
// tag in enabled. A nil or empty enabled set disables filtering (all
// registered probes run).
func (r *ProbeRegistry) Filtered(enabled map[ProtocolTag]bool) []Probe {
	ordered := r.Ordered()
	if len(enabled) == 0 {
		return ordered
	}
	out := make([]Probe, 0, len(ordered))
	for _, p := range ordered {
		for _, tag := range p.Supported() {
			if enabled[tag] {
				out = append(out, p)
				break
			}
		}
	}
	return out
}

// defaultPriority assigns the builtin probes' relative run order: protocols
// with a hard, unambiguous magic byte run before the heuristic, header-sniffing
// ones (HTTP/1.x, WebSocket) that have to scan further into the window.
var defaultPriority = map[string]int{
	"http2":     90,
	"tls":       90,
	"ssh":       90,
	"quic":      80,
	"mqtt":      80,
	"dns":       80,
	"grpc":      70,
	"http3":     70,
	"http1":     50,
	"websocket": 40,
}

// builtinProbes returns every built-in Probe implementation (§4.C). simdOn
// is threaded into the probes whose header scan can run through simdkit.
func builtinProbes(simdOn bool) []Probe {
	return []Probe{
		http1Probe{},
		http2Probe{},
		http3Probe{},
		tlsProbe{},
		sshProbe{},
		websocketProbe{simdOn: simdOn},
		grpcProbe{},
		quicProbe{},
		mqttProbe{},
		dnsProbe{},
	}
}

// NewBuiltinRegistry returns a ProbeRegistry pre-loaded with every built-in
// probe at its default priority.
func NewBuiltinRegistry(simdOn bool) *ProbeRegistry {
	r := NewProbeRegistry()
	for _, p := range builtinProbes(simdOn) {
		r.Register(p, defaultPriority[p.Name()])
	}
	return r
}

// customProbePriority is the priority custom probes run at: below every
// builtin, so a registered custom recognizer never shadows a protocol the
// engine already knows natively.
const customProbePriority = 30

// filteredEntries returns registryEntry values (priority and registration
// order preserved) restricted to probes supporting a tag in enabled, sorted
// per §4.D. Used internally by the detection pipeline, which needs priority
// and order for tie-breaking beyond what Filtered's plain []Probe exposes.
func (r *ProbeRegistry) filteredEntries(enabled map[ProtocolTag]bool) []registryEntry {
	sorted := make([]registryEntry, len(r.entries))
	copy(sorted, r.entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.priority != b.priority {
			return a.priority > b.priority
		}
		if a.probe.MinWindow() != b.probe.MinWindow() {
			return a.probe.MinWindow() < b.probe.MinWindow()
		}
		return a.order < b.order
	})
	if len(enabled) == 0 {
		return sorted
	}
	out := make([]registryEntry, 0, len(sorted))
	for _, e := range sorted {
		for _, tag := range e.probe.Supported() {
			if enabled[tag] {
				out = append(out, e)
				break
			}
		}
	}
	return out
}
