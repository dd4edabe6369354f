package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/SkynetNext/protocol-sniffer-gateway/internal/config"
	"github.com/SkynetNext/protocol-sniffer-gateway/internal/protocoldetect"
	"github.com/SkynetNext/protocol-sniffer-gateway/internal/security"
	"github.com/stretchr/testify/require"
)

type fakeSniffProvider struct {
	snapshot protocoldetect.StatsSnapshot
}

func (f fakeSniffProvider) SniffStats() protocoldetect.StatsSnapshot { return f.snapshot }

func newTestAdminAPI(sniff SniffStatsProvider) *AdminAPI {
	cfg := &config.Config{}
	sec := security.NewManager(cfg, nil)
	return NewAdminAPI(cfg, sec, nil, sniff)
}

func TestHandleSniffStatsReturnsJSON(t *testing.T) {
	detector, err := protocoldetect.Build(protocoldetect.DefaultConfig())
	require.NoError(t, err)
	_, _ = detector.Detect([]byte("SSH-2.0-OpenSSH_9.0\r\n"))
	snapshot := detector.Stats().Snapshot()

	a := newTestAdminAPI(fakeSniffProvider{snapshot: snapshot})

	req := httptest.NewRequest(http.MethodGet, "/admin/sniff/stats", nil)
	w := httptest.NewRecorder()
	a.handleSniffStats(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &decoded))
	require.EqualValues(t, snapshot.Total, decoded["Total"])
}

func TestHandleSniffStatsUnavailableWithoutProvider(t *testing.T) {
	a := newTestAdminAPI(nil)

	req := httptest.NewRequest(http.MethodGet, "/admin/sniff/stats", nil)
	w := httptest.NewRecorder()
	a.handleSniffStats(w, req)

	require.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHandleSniffStatsRejectsNonGet(t *testing.T) {
	a := newTestAdminAPI(fakeSniffProvider{})

	req := httptest.NewRequest(http.MethodPost, "/admin/sniff/stats", nil)
	w := httptest.NewRecorder()
	a.handleSniffStats(w, req)

	require.Equal(t, http.StatusMethodNotAllowed, w.Code)
}
