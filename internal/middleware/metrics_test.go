package middleware

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRecordSniffIncrementsCounters(t *testing.T) {
	before := testutil.ToFloat64(SniffTotal.WithLabelValues("tls", "MagicByte", "detected"))

	RecordSniff("tls", "MagicByte", 0.97, 2*time.Microsecond)

	after := testutil.ToFloat64(SniffTotal.WithLabelValues("tls", "MagicByte", "detected"))
	require.Equal(t, before+1, after)
}

func TestRecordSniffMissUsesUnknownTag(t *testing.T) {
	before := testutil.ToFloat64(SniffTotal.WithLabelValues("unknown", "none", "LowConfidence"))

	RecordSniffMiss("LowConfidence")

	after := testutil.ToFloat64(SniffTotal.WithLabelValues("unknown", "none", "LowConfidence"))
	require.Equal(t, before+1, after)
}
