package protocoldetect

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStatsMeanElapsedMatchesArithmeticMean(t *testing.T) {
	s := NewStats(8)
	durations := []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 30 * time.Millisecond}
	for _, d := range durations {
		s.RecordSuccess(DetectionResult{Info: ProtocolInfo{Tag: HTTP1_1, Confidence: 0.95}, Elapsed: d, Method: MethodMagicByte})
	}

	snap := s.Snapshot()
	require.Equal(t, uint64(3), snap.PerTag[HTTP1_1].Count)
	require.Equal(t, 20*time.Millisecond, snap.PerTag[HTTP1_1].MeanElapsed)
}

func TestStatsMostCommonProtocolBreaksTiesByRecency(t *testing.T) {
	s := NewStats(8)
	s.RecordSuccess(DetectionResult{Info: ProtocolInfo{Tag: HTTP1_1}, Elapsed: time.Millisecond})
	s.RecordSuccess(DetectionResult{Info: ProtocolInfo{Tag: SSH}, Elapsed: time.Millisecond})

	tag, ok := s.MostCommonProtocol()
	require.True(t, ok)
	require.True(t, tag.Equal(SSH))
}

func TestStatsRingKeepsMostRecentN(t *testing.T) {
	s := NewStats(2)
	s.RecordSuccess(DetectionResult{Info: ProtocolInfo{Tag: HTTP1_1}})
	s.RecordSuccess(DetectionResult{Info: ProtocolInfo{Tag: SSH}})
	s.RecordSuccess(DetectionResult{Info: ProtocolInfo{Tag: TLS}})

	snap := s.Snapshot()
	require.Len(t, snap.Recent, 2)
	require.True(t, snap.Recent[0].Tag.Equal(SSH))
	require.True(t, snap.Recent[1].Tag.Equal(TLS))
}
