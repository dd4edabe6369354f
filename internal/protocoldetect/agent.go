package protocoldetect

import (
	"context"
	"errors"
	"io"
	"net"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/dgryski/go-rendezvous"

	"github.com/SkynetNext/protocol-sniffer-gateway/pkg/xlog"
)

// Role selects whether an Agent passively observes (server) or actively
// probes a peer (client).
type Role int

const (
	RoleServer Role = iota
	RoleClient
)

// LBStrategy selects how ClassifyAndRoute picks an endpoint among a fixed
// set once a tag has been classified.
type LBStrategy int

const (
	LBRoundRobin LBStrategy = iota
	LBLeastConn
	LBConsistentHash
)

// LoadBalancer holds the endpoint set and strategy-specific state for
// Agent.ClassifyAndRoute. Endpoints is fixed at construction; only the
// RoundRobin cursor mutates, and it does so atomically so a LoadBalancer
// can be shared the same way its owning Agent/Detector is.
type LoadBalancer struct {
	Strategy  LBStrategy
	Endpoints []string

	cursor atomic.Uint64
	hash   *rendezvous.Rendezvous
}

// NewLoadBalancer builds a LoadBalancer. For LBConsistentHash it builds the
// rendezvous (highest random weight) hash ring up front, so Pick is O(n)
// with no per-call allocation beyond the hash ring's own bookkeeping.
func NewLoadBalancer(strategy LBStrategy, endpoints []string) *LoadBalancer {
	lb := &LoadBalancer{Strategy: strategy, Endpoints: endpoints}
	if strategy == LBConsistentHash {
		lb.hash = rendezvous.New(endpoints, xxhash.Sum64String)
	}
	return lb
}

// Pick selects one endpoint for peerID, consulting connCounts for
// LBLeastConn (missing endpoints are treated as having zero connections).
func (lb *LoadBalancer) Pick(peerID string, connCounts map[string]int) (string, bool) {
	if lb == nil || len(lb.Endpoints) == 0 {
		return "", false
	}
	switch lb.Strategy {
	case LBRoundRobin:
		idx := lb.cursor.Add(1) - 1
		return lb.Endpoints[idx%uint64(len(lb.Endpoints))], true

	case LBLeastConn:
		best := lb.Endpoints[0]
		bestCount := connCounts[best]
		for _, ep := range lb.Endpoints[1:] {
			if c := connCounts[ep]; c < bestCount {
				best, bestCount = ep, c
			}
		}
		return best, true

	case LBConsistentHash:
		return lb.hash.Get(peerID), true

	default:
		return "", false
	}
}

// RouteDecision is the outcome of Agent.ClassifyAndRoute.
type RouteDecision struct {
	Result   DetectionResult
	Endpoint string
}

// AgentState is the Agent's re-entrant state machine position (§4.F):
// Idle -> Probing -> Detected|Failed -> Idle.
type AgentState int32

const (
	StateIdle AgentState = iota
	StateProbing
	StateDetected
	StateFailed
)

func (s AgentState) String() string {
	switch s {
	case StateProbing:
		return "Probing"
	case StateDetected:
		return "Detected"
	case StateFailed:
		return "Failed"
	default:
		return "Idle"
	}
}

// AgentConfig configures an Agent at construction.
type AgentConfig struct {
	Role         Role
	InstanceID   string
	LoadBalance  *LoadBalancer
	FallbackTags []ProtocolTag
}

// Agent wraps a Detector with role-dependent policy: passive observation
// for a server, active capability probing for a client. It borrows its
// Detector rather than owning it, so many Agents may share one Detector.
type Agent struct {
	detector *Detector
	cfg      AgentConfig
	state    atomic.Int32
}

// NewAgent builds an Agent around detector.
func NewAgent(detector *Detector, cfg AgentConfig) *Agent {
	return &Agent{detector: detector, cfg: cfg}
}

// State returns the Agent's current position in its state machine.
func (a *Agent) State() AgentState { return AgentState(a.state.Load()) }

// DetectorStats exposes the shared Detector's running counters, so an admin
// surface can report classification volume without reaching into internals.
func (a *Agent) DetectorStats() StatsSnapshot { return a.detector.Stats().Snapshot() }

// Observe runs the detection pipeline unmodified; this is the entire
// server-role surface (§4.F).
func (a *Agent) Observe(window []byte) (DetectionResult, error) {
	result, err := a.detector.Detect(window)
	if err != nil {
		xlog.WithFields("sniff classification failed", map[string]interface{}{
			"instance": a.cfg.InstanceID, "error": err.Error(),
		})
		return result, err
	}
	xlog.WithFields("sniff classification", map[string]interface{}{
		"instance": a.cfg.InstanceID, "tag": result.Info.Tag.String(),
		"method": result.Method.String(), "confidence": result.Info.Confidence,
	})
	return result, nil
}

// ClassifyAndRoute observes window, then derives a routing endpoint from
// the configured LoadBalancer, consulting connCounts only for LBLeastConn
// and peerID only for LBConsistentHash.
func (a *Agent) ClassifyAndRoute(window []byte, peerID string, connCounts map[string]int) (RouteDecision, error) {
	result, err := a.Observe(window)
	if err != nil {
		return RouteDecision{}, err
	}
	endpoint, _ := a.cfg.LoadBalance.Pick(peerID, connCounts)
	return RouteDecision{Result: result, Endpoint: endpoint}, nil
}

// Opener is one protocol-specific capability probe a client-role Agent may
// send to a peer, e.g. a TLS ClientHello carrying an ALPN list.
type Opener struct {
	Name string
	Send []byte
}

// readWindow bounds how much of a peer's response probe_capabilities reads
// before handing it to the pipeline; large enough for every builtin probe's
// min_window, small enough to bound one read.
const readWindow = 8192

// ProbeCapabilities implements the client-role surface (§4.F): it writes
// each opener in turn, reads up to readWindow bytes of response, and runs
// the pipeline on whatever came back. The whole call honours the
// Detector's timeout in total, not per opener; ctx lets the caller cancel
// between openers. A peer that never responds to any opener yields an
// empty, error-free set; only a transport write/read error that isn't a
// plain timeout (or, for reads, end of stream) is surfaced as
// ErrTransportFailed. A transport with a SetDeadline method, such as a
// net.Conn, has the overall deadline applied to its reads and writes.
func (a *Agent) ProbeCapabilities(ctx context.Context, transport io.ReadWriter, openers []Opener) (map[ProtocolTag]bool, error) {
	a.state.Store(int32(StateProbing))
	deadline := time.Now().Add(a.detector.timeout)
	if dl, ok := transport.(interface{ SetDeadline(time.Time) error }); ok {
		dl.SetDeadline(deadline)
		defer dl.SetDeadline(time.Time{})
	}
	isTimeout := func(err error) bool {
		var ne net.Error
		return errors.As(err, &ne) && ne.Timeout()
	}
	confirmed := make(map[ProtocolTag]bool)
	buf := make([]byte, readWindow)

	for _, op := range openers {
		select {
		case <-ctx.Done():
			a.state.Store(int32(StateFailed))
			return confirmed, nil
		default:
		}
		if time.Now().After(deadline) {
			break
		}

		if _, err := transport.Write(op.Send); err != nil {
			if isTimeout(err) {
				continue
			}
			a.state.Store(int32(StateFailed))
			return nil, ErrTransportFailed(err.Error())
		}
		n, err := transport.Read(buf)
		if err != nil && err != io.EOF && !isTimeout(err) {
			a.state.Store(int32(StateFailed))
			return nil, ErrTransportFailed(err.Error())
		}
		if n == 0 {
			continue
		}
		result, err := a.detector.Detect(buf[:n])
		if err == nil {
			confirmed[result.Info.Tag] = true
		}
	}

	if len(confirmed) > 0 {
		a.state.Store(int32(StateDetected))
	} else {
		a.state.Store(int32(StateFailed))
	}
	return confirmed, nil
}

// Negotiate picks a tag from confirmed by walking preferences, then
// cfg.FallbackTags, finally defaulting to TCP (the one transport-level tag
// every stream-capable peer can fall back to).
func (a *Agent) Negotiate(confirmed map[ProtocolTag]bool, preferences []ProtocolTag) ProtocolTag {
	for _, tag := range preferences {
		if confirmed[tag] {
			return tag
		}
	}
	for _, tag := range a.cfg.FallbackTags {
		if confirmed[tag] {
			return tag
		}
	}
	return TCP
}
