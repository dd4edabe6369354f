package protocoldetect

import (
	"encoding/binary"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// quicShapeWindow builds a QUIC long-header window (version 1, which
// quicProbe whitelists) with no ALPN h3 marker: the ambiguous case
// http3Probe reports as a candidate_http3-hinted QUIC outcome.
func quicShapeWindow() []byte {
	window := make([]byte, 20)
	window[0] = 0x80
	binary.BigEndian.PutUint32(window[1:5], 1)
	return window
}

func quicShapeWindowWithALPNH3() []byte {
	window := quicShapeWindow()
	return append(window, 0x02, 'h', '3')
}

func buildTestDetector(t *testing.T) *Detector {
	t.Helper()
	d, err := Build(DefaultConfig())
	require.NoError(t, err)
	return d
}

func TestDetectHTTP1Request(t *testing.T) {
	d := buildTestDetector(t)
	window := []byte("GET / HTTP/1.1\r\nHost: example.com\r\n\r\n")

	result, err := d.Detect(window)
	require.NoError(t, err)
	require.True(t, result.Info.Tag.Equal(HTTP1_1))
	require.GreaterOrEqual(t, result.Info.Confidence, 0.95)
	method, _ := result.Info.Features.Get("method")
	version, _ := result.Info.Features.Get("version")
	require.Equal(t, "GET", method)
	require.Equal(t, "1.1", version)
}

func TestDetectHTTP2Preface(t *testing.T) {
	d := buildTestDetector(t)
	window := append([]byte("PRI * HTTP/2.0\r\n\r\nSM\r\n\r\n"),
		0x00, 0x00, 0x00, 0x04, 0x00, 0x00, 0x00, 0x00, 0x00)

	result, err := d.Detect(window)
	require.NoError(t, err)
	require.True(t, result.Info.Tag.Equal(HTTP2))
	require.Equal(t, 1.00, result.Info.Confidence)
	require.Equal(t, MethodMagicByte, result.Method)
}

func TestDetectSSHBanner(t *testing.T) {
	d := buildTestDetector(t)
	window := []byte("SSH-2.0-OpenSSH_9.0\r\n")

	result, err := d.Detect(window)
	require.NoError(t, err)
	require.True(t, result.Info.Tag.Equal(SSH))
	require.GreaterOrEqual(t, result.Info.Confidence, 0.99)
	version, _ := result.Info.Features.Get("version")
	require.Equal(t, "2.0", version)
}

func TestDetectTLSClientHello(t *testing.T) {
	d := buildTestDetector(t)
	window := []byte{
		0x16, 0x03, 0x01, 0x00, 0x2F,
		0x01, 0x00, 0x00, 0x2B, 0x03, 0x03,
		0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
		0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}
	result, err := d.Detect(window)
	require.NoError(t, err)
	require.True(t, result.Info.Tag.Equal(TLS))
	require.GreaterOrEqual(t, result.Info.Confidence, 0.95)
}

func TestDetectDNSQuery(t *testing.T) {
	d := buildTestDetector(t)
	window := buildDNSQuery("www.example.com")

	result, err := d.Detect(window)
	require.NoError(t, err)
	require.True(t, result.Info.Tag.Equal(DNS))
	require.GreaterOrEqual(t, result.Info.Confidence, 0.92)
}

func TestDetectInsufficientData(t *testing.T) {
	d := buildTestDetector(t)
	window := make([]byte, 15)

	_, err := d.Detect(window)
	var detErr *DetectionError
	require.ErrorAs(t, err, &detErr)
	require.Equal(t, ErrInsufficientData, detErr.Kind)
	require.Equal(t, 16, detErr.Required)
}

func TestDetectIsReferentiallyTransparent(t *testing.T) {
	d := buildTestDetector(t)
	window := []byte("GET /index.html HTTP/1.1\r\nHost: example.com\r\n\r\n")

	first, err := d.Detect(window)
	require.NoError(t, err)
	second, err := d.Detect(window)
	require.NoError(t, err)
	require.Equal(t, first.Info.Tag, second.Info.Tag)
	require.Equal(t, first.Info.Confidence, second.Info.Confidence)
}

func TestDetectConcurrentClassificationAgrees(t *testing.T) {
	d := buildTestDetector(t)
	window := []byte("GET / HTTP/1.1\r\nHost: example.com\r\n\r\n")

	const n = 50
	var wg sync.WaitGroup
	tags := make([]ProtocolTag, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result, err := d.Detect(window)
			require.NoError(t, err)
			tags[i] = result.Info.Tag
		}(i)
	}
	wg.Wait()

	for _, tag := range tags {
		require.True(t, tag.Equal(HTTP1_1))
	}
	snap := d.Stats().Snapshot()
	require.Equal(t, uint64(n), snap.Successes)
}

func TestBuildRejectsEmptyProtocolSet(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EnabledProtocols = nil
	_, err := Build(cfg)
	require.Error(t, err)
}

func TestBuildRejectsSubMinimumWindow(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EnabledProtocols = map[ProtocolTag]bool{WebSocket: true}
	cfg.MinWindow = 4
	_, err := Build(cfg)
	require.Error(t, err)
}

func TestConfidenceRunsOnlyRequestedTagProbe(t *testing.T) {
	d := buildTestDetector(t)
	window := []byte("SSH-2.0-OpenSSH_9.0\r\n")

	require.Zero(t, d.Confidence(window, HTTP1_1))
	require.Greater(t, d.Confidence(window, SSH), 0.0)
}

func TestDetectBatchIsIndependent(t *testing.T) {
	d := buildTestDetector(t)
	windows := [][]byte{
		[]byte("GET / HTTP/1.1\r\nHost: x\r\n\r\n"),
		make([]byte, 4),
		[]byte("SSH-2.0-OpenSSH_9.0\r\n"),
	}
	results := d.DetectBatch(windows)
	require.Len(t, results, 3)
	require.NoError(t, results[0].Err)
	require.Error(t, results[1].Err)
	require.NoError(t, results[2].Err)
}

func buildDNSQuery(name string) []byte {
	header := []byte{0x12, 0x34, 0x01, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}
	var question []byte
	for _, label := range splitDNSName(name) {
		question = append(question, byte(len(label)))
		question = append(question, label...)
	}
	question = append(question, 0x00)
	question = append(question, 0x00, 0x01, 0x00, 0x01) // QTYPE=A, QCLASS=IN
	return append(header, question...)
}

func splitDNSName(name string) []string {
	var labels []string
	start := 0
	for i := 0; i <= len(name); i++ {
		if i == len(name) || name[i] == '.' {
			labels = append(labels, name[start:i])
			start = i + 1
		}
	}
	return labels
}

func TestStatsResetIsClean(t *testing.T) {
	d := buildTestDetector(t)
	_, err := d.Detect([]byte("SSH-2.0-OpenSSH_9.0\r\n"))
	require.NoError(t, err)
	require.Equal(t, uint64(1), d.Stats().Snapshot().Successes)

	d.Stats().Reset()
	snap := d.Stats().Snapshot()
	require.Zero(t, snap.Total)
	require.Zero(t, snap.Successes)
}

func TestSweepPromotesAmbiguousQUICToHTTP3WhenOnlyHTTP3Enabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EnabledProtocols = map[ProtocolTag]bool{HTTP3: true}
	d, err := Build(cfg)
	require.NoError(t, err)

	candidates, _ := d.sweep(quicShapeWindow(), StrategyPassive)
	require.Len(t, candidates, 1)
	require.True(t, candidates[0].info.Tag.Equal(HTTP3))
}

func TestSweepLeavesAmbiguousQUICAloneWhenQUICAlsoEnabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EnabledProtocols = map[ProtocolTag]bool{HTTP3: true, QUIC: true}
	d, err := Build(cfg)
	require.NoError(t, err)

	candidates, _ := d.sweep(quicShapeWindow(), StrategyPassive)
	require.Len(t, candidates, 2)
	for _, c := range candidates {
		require.True(t, c.info.Tag.Equal(QUIC))
	}
}

func TestSweepReportsHTTP3DirectlyWhenALPNMarkerPresent(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EnabledProtocols = map[ProtocolTag]bool{HTTP3: true}
	d, err := Build(cfg)
	require.NoError(t, err)

	candidates, _ := d.sweep(quicShapeWindowWithALPNH3(), StrategyPassive)
	require.Len(t, candidates, 1)
	require.True(t, candidates[0].info.Tag.Equal(HTTP3))
	require.Equal(t, 0.90, candidates[0].info.Confidence)
}

func TestSweepReportsQUICWhenOnlyQUICEnabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EnabledProtocols = map[ProtocolTag]bool{QUIC: true}
	d, err := Build(cfg)
	require.NoError(t, err)

	candidates, _ := d.sweep(quicShapeWindow(), StrategyPassive)
	require.Len(t, candidates, 1)
	require.True(t, candidates[0].info.Tag.Equal(QUIC))
}

func TestTimeoutIsRespectedAsLowerBound(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Timeout = time.Millisecond
	d, err := Build(cfg)
	require.NoError(t, err)
	// A well-formed SSH banner still classifies well within a 1ms budget.
	result, err := d.Detect([]byte("SSH-2.0-OpenSSH_9.0\r\n"))
	require.NoError(t, err)
	require.True(t, result.Info.Tag.Equal(SSH))
}
