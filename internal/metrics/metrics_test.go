package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gather returns the metric families of m by name.
func gather(t *testing.T, m *Metrics) map[string]*dto.MetricFamily {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	out := make(map[string]*dto.MetricFamily, len(families))
	for _, f := range families {
		out[f.GetName()] = f
	}
	return out
}

func TestMetrics_Counters(t *testing.T) {
	m := New()
	m.IncTakes()
	m.IncTakes()
	m.IncRejected("playlist_not_active")
	m.ObserveTimeline(12)
	m.ObserveLockWait("user_playout", 10*time.Millisecond)

	fams := gather(t, m)
	assert.Equal(t, 2.0, fams["playout_takes_total"].GetMetric()[0].GetCounter().GetValue())

	rejected := fams["playout_actions_rejected_total"].GetMetric()
	require.Len(t, rejected, 1)
	assert.Equal(t, "playlist_not_active", rejected[0].GetLabel()[0].GetValue())
	assert.Equal(t, 1.0, rejected[0].GetCounter().GetValue())

	assert.Equal(t, 12.0, fams["playout_timeline_objects"].GetMetric()[0].GetGauge().GetValue())
	assert.Equal(t, uint64(1), fams["playout_lock_wait_seconds"].GetMetric()[0].GetHistogram().GetSampleCount())
}

func TestMetrics_IngestByOutcome(t *testing.T) {
	m := New()
	m.IncIngest("update_rundown", "applied")
	m.IncIngest("update_rundown", "applied")
	m.IncIngest("remove_rundown", "unsynced")

	ops := gather(t, m)["playout_ingest_operations_total"].GetMetric()
	require.Len(t, ops, 2)
	counts := map[string]float64{}
	for _, op := range ops {
		key := ""
		for _, l := range op.GetLabel() {
			key += l.GetName() + "=" + l.GetValue() + ";"
		}
		counts[key] = op.GetCounter().GetValue()
	}
	assert.Equal(t, 2.0, counts["operation=update_rundown;outcome=applied;"])
	assert.Equal(t, 1.0, counts["operation=remove_rundown;outcome=unsynced;"])
}

func TestRequestMiddleware(t *testing.T) {
	m := New()
	h := RequestMiddleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/bad" {
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ok", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/bad", nil))

	fams := gather(t, m)
	assert.Equal(t, 2.0, fams["playout_http_requests_total"].GetMetric()[0].GetCounter().GetValue())
	assert.Equal(t, 1.0, fams["playout_http_errors_total"].GetMetric()[0].GetCounter().GetValue())
}

func TestHandler(t *testing.T) {
	m := New()
	called := false
	srv := httptest.NewServer(m.Handler(func() {
		called = true
		m.SetActivePlaylists(3)
	}))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.True(t, called)
	assert.True(t, strings.Contains(string(body), "playout_active_playlists 3"))
}
