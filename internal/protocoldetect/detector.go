package protocoldetect

import (
	"math"
	"sort"
	"time"
)

// Strategy selects which probes the pipeline is allowed to consult.
type Strategy int

const (
	// StrategyPassive restricts the sweep to probes that classify from
	// bytes the peer already sent.
	StrategyPassive Strategy = iota
	// StrategyActive additionally allows probes that may drive a peer
	// (used by Agent client-role capability probing).
	StrategyActive
	// StrategyHybrid runs passive first; only falls through to active
	// probes when no passive candidate clears min_confidence.
	StrategyHybrid
)

func (s Strategy) String() string {
	switch s {
	case StrategyActive:
		return "Active"
	case StrategyHybrid:
		return "Hybrid"
	default:
		return "Passive"
	}
}

// ActiveAware lets a custom probe declare that it requires sending bytes to
// a peer and so must be excluded under StrategyPassive. Builtin probes are
// all passive: every one of them classifies a window that was already
// observed, never drives the peer.
type ActiveAware interface {
	RequiresActive() bool
}

func requiresActive(p Probe) bool {
	if aa, ok := p.(ActiveAware); ok {
		return aa.RequiresActive()
	}
	return false
}

// DetectorConfig is the builder-consumed configuration surface (§6).
type DetectorConfig struct {
	EnabledProtocols map[ProtocolTag]bool
	CustomProbes     []Probe
	Strategy         Strategy
	Timeout          time.Duration
	MinConfidence    float64
	MinWindow        int
	BufferHint       int
	SIMDOn           bool
	HeuristicOn      bool
	StatsRingSize    int
}

// DefaultConfig returns the "balanced" preset defaults.
func DefaultConfig() DetectorConfig {
	return DetectorConfig{
		EnabledProtocols: allBuiltinTags(),
		Strategy:         StrategyPassive,
		Timeout:          100 * time.Millisecond,
		MinConfidence:    0.80,
		MinWindow:        16,
		SIMDOn:           false,
		HeuristicOn:      true,
		StatsRingSize:    256,
	}
}

// HighPerformanceConfig favors latency: passive-only, short timeout, SIMD on.
func HighPerformanceConfig() DetectorConfig {
	cfg := DefaultConfig()
	cfg.Strategy = StrategyPassive
	cfg.Timeout = 50 * time.Millisecond
	cfg.SIMDOn = true
	cfg.MinConfidence = 0.80
	return cfg
}

// HighAccuracyConfig favors correctness over latency.
func HighAccuracyConfig() DetectorConfig {
	cfg := DefaultConfig()
	cfg.HeuristicOn = true
	cfg.Timeout = 200 * time.Millisecond
	cfg.MinConfidence = 0.90
	return cfg
}

// BalancedConfig is an explicit alias for DefaultConfig, kept as its own
// named preset so callers can select it by name alongside the other two.
func BalancedConfig() DetectorConfig { return DefaultConfig() }

func allBuiltinTags() map[ProtocolTag]bool {
	return map[ProtocolTag]bool{
		HTTP1_0: true, HTTP1_1: true, HTTP2: true, HTTP3: true,
		TLS: true, SSH: true, WebSocket: true, GRPC: true,
		QUIC: true, MQTT: true, DNS: true, TCP: true, UDP: true,
	}
}

// Detector is the immutable, shared-safe classification engine built from a
// DetectorConfig. No field is mutated after Build returns except through
// Stats, whose own internals are concurrency-safe.
type Detector struct {
	magic         *MagicTable
	registry      *ProbeRegistry
	entries       []registryEntry
	enabledTags   map[ProtocolTag]bool
	strategy      Strategy
	minConfidence float64
	minWindow     int
	timeout       time.Duration
	simdOn        bool
	heuristicOn   bool
	stats         *Stats
}

// Build validates cfg and constructs an immutable Detector. All
// configuration errors are *DetectionError{Kind: ErrConfigurationInvalid}
// raised here, never at classification time (§7).
func Build(cfg DetectorConfig) (*Detector, error) {
	if len(cfg.EnabledProtocols) == 0 {
		return nil, errConfigInvalid("enabled_protocols must be non-empty")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 100 * time.Millisecond
	}
	if timeout < time.Millisecond {
		return nil, errConfigInvalid("timeout must be >= 1ms")
	}
	minConfidence := cfg.MinConfidence
	if minConfidence == 0 {
		minConfidence = 0.80
	}
	if minConfidence < 0 || minConfidence > 1 {
		return nil, errConfigInvalid("min_confidence must be in [0,1]")
	}
	minWindow := cfg.MinWindow
	if minWindow == 0 {
		minWindow = 16
	}
	if minWindow < 1 {
		return nil, errConfigInvalid("min_window must be >= 1")
	}

	registry := NewBuiltinRegistry(cfg.SIMDOn)
	for _, p := range cfg.CustomProbes {
		registry.Register(p, customProbePriority)
	}

	entries := registry.filteredEntries(cfg.EnabledProtocols)
	if len(entries) == 0 {
		return nil, errConfigInvalid("no probe supports any enabled protocol")
	}

	// min_window must be at least large enough for the smallest enabled
	// probe to have a chance of running; otherwise step 1 of the pipeline
	// would reject every window before a single probe could fire.
	smallest := entries[0].probe.MinWindow()
	for _, e := range entries[1:] {
		if e.probe.MinWindow() < smallest {
			smallest = e.probe.MinWindow()
		}
	}
	if minWindow < smallest {
		return nil, errConfigInvalid("min_window is smaller than every enabled probe's min_window")
	}

	ringSize := cfg.StatsRingSize
	if ringSize == 0 {
		ringSize = 256
	}

	return &Detector{
		magic:         NewMagicTable(builtinSignatures(cfg.SIMDOn)),
		registry:      registry,
		entries:       entries,
		enabledTags:   cfg.EnabledProtocols,
		strategy:      cfg.Strategy,
		minConfidence: minConfidence,
		minWindow:     minWindow,
		timeout:       timeout,
		simdOn:        cfg.SIMDOn,
		heuristicOn:   cfg.HeuristicOn,
		stats:         NewStats(ringSize),
	}, nil
}

// SupportedProtocols returns the tags this Detector was built to recognize.
func (d *Detector) SupportedProtocols() []ProtocolTag {
	out := make([]ProtocolTag, 0, len(d.enabledTags))
	for tag := range d.enabledTags {
		out = append(out, tag)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// Stats returns the Detector's live statistics accumulator.
func (d *Detector) Stats() *Stats { return d.stats }

type scoredCandidate struct {
	info        ProtocolInfo
	probeName   string
	priority    int
	order       int
	evidenceLen int
}

func evidenceLength(info ProtocolInfo) int {
	total := 0
	for _, k := range info.Features.Keys() {
		v, _ := info.Features.Get(k)
		total += len(v)
	}
	return total
}

// Detect runs the full classification pipeline (§4.E) against window.
func (d *Detector) Detect(window []byte) (DetectionResult, error) {
	start := time.Now()

	if len(window) < d.minWindow {
		return DetectionResult{}, errInsufficientData(d.minWindow)
	}

	// Step 2: fast path.
	magicHit, magicOK := d.magic.QuickDetect(window, d.simdOn)
	if magicOK && magicHit.BaseConfidence >= d.minConfidence {
		info := ProtocolInfo{
			Tag: magicHit.Tag, Confidence: magicHit.BaseConfidence,
			Features: NewOrderedMap(), Metadata: NewOrderedMap(),
		}
		info.Metadata.Set("signature", magicHit.Description)
		// Fold in the features (and any higher confidence) of the first
		// passive probe that detects the same tag; the method stays MagicByte.
		for _, e := range d.entries {
			if requiresActive(e.probe) || len(window) < e.probe.MinWindow() {
				continue
			}
			if out := e.probe.Probe(window); out.Kind == Detected && out.Info.Tag.Equal(magicHit.Tag) {
				for _, k := range out.Info.Features.Keys() {
					v, _ := out.Info.Features.Get(k)
					info.Features.Set(k, v)
				}
				info.Confidence = math.Max(info.Confidence, out.Info.Confidence)
				break
			}
		}
		result := DetectionResult{
			Info: info, Elapsed: time.Since(start),
			Method: MethodMagicByte, ProbeName: "magic_table",
		}
		d.stats.RecordSuccess(result)
		return result, nil
	}
	if time.Since(start) > d.timeout {
		d.stats.RecordFailure(time.Since(start))
		return DetectionResult{}, errTimeout()
	}

	// Steps 3-4: probe sweep, strategy-filtered. Hybrid sweeps passive probes
	// first; the active sweep covers every probe, so it replaces that result.
	firstPass := d.strategy
	if firstPass == StrategyHybrid {
		firstPass = StrategyPassive
	}
	candidates, minNeeded := d.sweep(window, firstPass)
	if d.strategy == StrategyHybrid && !anyMeetsThreshold(candidates, d.minConfidence) {
		candidates, minNeeded = d.sweep(window, StrategyActive)
	}
	if time.Since(start) > d.timeout {
		d.stats.RecordFailure(time.Since(start))
		return DetectionResult{}, errTimeout()
	}

	if magicOK {
		c := scoredCandidate{
			info:      ProtocolInfo{Tag: magicHit.Tag, Confidence: magicHit.BaseConfidence, Features: NewOrderedMap(), Metadata: NewOrderedMap()},
			probeName: "magic_table",
			priority:  math.MaxInt32,
			order:     -1,
		}
		c.info.Metadata.Set("signature", magicHit.Description)
		candidates = append(candidates, c)
	}

	if len(candidates) == 0 {
		elapsed := time.Since(start)
		d.stats.RecordFailure(elapsed)
		if minNeeded > 0 {
			return DetectionResult{}, errInsufficientData(minNeeded)
		}
		return DetectionResult{}, errLowConfidence(Unknown, 0)
	}

	// Step 5: winner selection.
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.info.Confidence != b.info.Confidence {
			return a.info.Confidence > b.info.Confidence
		}
		if a.evidenceLen != b.evidenceLen {
			return a.evidenceLen > b.evidenceLen
		}
		if a.priority != b.priority {
			return a.priority > b.priority
		}
		return a.order < b.order
	})
	winnerTag := candidates[0].info.Tag

	// Step 6: method stamping, grouped by winning tag.
	result := d.stampMethod(candidates, winnerTag, start)

	if result.Info.Confidence < d.minConfidence {
		d.stats.RecordFailure(time.Since(start))
		return DetectionResult{}, errLowConfidence(result.Info.Tag, result.Info.Confidence)
	}

	d.stats.RecordSuccess(result)
	return result, nil
}

func anyMeetsThreshold(candidates []scoredCandidate, threshold float64) bool {
	for _, c := range candidates {
		if c.info.Confidence >= threshold {
			return true
		}
	}
	return false
}

// sweep runs every registered probe that the strategy allows, returning
// candidates for Detected/Partial outcomes and the smallest required window
// among any NeedMoreData outcomes (0 if none).
func (d *Detector) sweep(window []byte, strategy Strategy) ([]scoredCandidate, int) {
	var candidates []scoredCandidate
	minNeeded := 0

	for _, e := range d.entries {
		if strategy == StrategyPassive && requiresActive(e.probe) {
			continue
		}
		if len(window) < e.probe.MinWindow() {
			if minNeeded == 0 || e.probe.MinWindow() < minNeeded {
				minNeeded = e.probe.MinWindow()
			}
			continue
		}
		out := e.probe.Probe(window)
		switch out.Kind {
		case Detected, Partial:
			info := out.Info
			// http3Probe reports the QUIC-shape-only case as a QUIC
			// candidate hinting it might be HTTP3 (candidate_http3); it can
			// only run when HTTP3 is enabled, so if QUIC itself isn't
			// enabled there's nothing else this candidate could mean.
			if info.Tag.Equal(QUIC) {
				if _, hinted := info.Metadata.Get("candidate_http3"); hinted && !d.enabledTags[QUIC] {
					info.Tag = HTTP3
				}
			}
			candidates = append(candidates, scoredCandidate{
				info: info, probeName: e.probe.Name(),
				priority: e.priority, order: e.order,
				evidenceLen: evidenceLength(info),
			})
		case NeedMoreData:
			if minNeeded == 0 || out.RequiredWindow < minNeeded {
				minNeeded = out.RequiredWindow
			}
		}
	}
	return candidates, minNeeded
}

// stampMethod determines the Method and final confidence for winnerTag per
// §4.E step 6, then builds the DetectionResult.
func (d *Detector) stampMethod(candidates []scoredCandidate, winnerTag ProtocolTag, start time.Time) DetectionResult {
	var magic *scoredCandidate
	var probes []scoredCandidate
	for i := range candidates {
		c := candidates[i]
		if !c.info.Tag.Equal(winnerTag) {
			continue
		}
		if c.priority == math.MaxInt32 && c.order == -1 && c.probeName == "magic_table" {
			magic = &candidates[i]
			continue
		}
		probes = append(probes, c)
	}

	var method Method
	var confidence float64
	var chosen ProtocolInfo
	var probeName string

	switch {
	case magic != nil && len(probes) >= 1:
		best := maxByConfidence(probes)
		method = MethodCombined
		confidence = math.Max(best.info.Confidence, magic.info.Confidence)
		chosen = best.info
		probeName = best.probeName

	case len(probes) >= 2 && countAtLeast(probes, 0.5) >= 2:
		qualifying := filterAtLeast(probes, 0.5)
		method = MethodStatistical
		confidence = math.Min(average(qualifying), maxConfidenceOf(qualifying))
		best := maxByConfidence(qualifying)
		chosen = best.info
		probeName = "statistical:" + best.probeName

	case magic != nil && len(probes) == 0:
		method = MethodMagicByte
		confidence = magic.info.Confidence
		chosen = magic.info
		probeName = "magic_table"

	default:
		best := maxByConfidence(probes)
		method = MethodHeuristic
		confidence = best.info.Confidence
		chosen = best.info
		probeName = best.probeName
	}

	chosen.Confidence = confidence
	return DetectionResult{
		Info: chosen, Elapsed: time.Since(start),
		Method: method, ProbeName: probeName,
	}
}

func maxByConfidence(cs []scoredCandidate) scoredCandidate {
	best := cs[0]
	for _, c := range cs[1:] {
		if c.info.Confidence > best.info.Confidence {
			best = c
		}
	}
	return best
}

func maxConfidenceOf(cs []scoredCandidate) float64 {
	return maxByConfidence(cs).info.Confidence
}

func countAtLeast(cs []scoredCandidate, threshold float64) int {
	n := 0
	for _, c := range cs {
		if c.info.Confidence >= threshold {
			n++
		}
	}
	return n
}

func filterAtLeast(cs []scoredCandidate, threshold float64) []scoredCandidate {
	out := make([]scoredCandidate, 0, len(cs))
	for _, c := range cs {
		if c.info.Confidence >= threshold {
			out = append(out, c)
		}
	}
	return out
}

func average(cs []scoredCandidate) float64 {
	sum := 0.0
	for _, c := range cs {
		sum += c.info.Confidence
	}
	return sum / float64(len(cs))
}

// DetectBatch runs Detect independently over each window.
func (d *Detector) DetectBatch(windows [][]byte) []BatchOutcome {
	out := make([]BatchOutcome, len(windows))
	for i, w := range windows {
		result, err := d.Detect(w)
		out[i] = BatchOutcome{Result: result, Err: err}
	}
	return out
}

// BatchOutcome is one element of a DetectBatch result.
type BatchOutcome struct {
	Result DetectionResult
	Err    error
}

// Confidence runs only the probe(s) that support tag and returns the
// highest confidence any of them reports for window, or 0 if none fire.
// Unlike Detect, it ignores Strategy and the magic-byte fast path: this is
// a diagnostic, single-tag query, not a full classification.
func (d *Detector) Confidence(window []byte, tag ProtocolTag) float64 {
	best := 0.0
	for _, e := range d.entries {
		supports := false
		for _, t := range e.probe.Supported() {
			if t.Equal(tag) {
				supports = true
				break
			}
		}
		if !supports || len(window) < e.probe.MinWindow() {
			continue
		}
		out := e.probe.Probe(window)
		if (out.Kind == Detected || out.Kind == Partial) && out.Info.Tag.Equal(tag) && out.Info.Confidence > best {
			best = out.Info.Confidence
		}
	}
	return best
}
