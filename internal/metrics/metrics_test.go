package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics(t *testing.T) {
	_, m := NewRegistry()
	require.NotNil(t, m)

	assert.NotNil(t, m.Sessions)
	assert.NotNil(t, m.SessionErrors)
	assert.NotNil(t, m.Commands)
	assert.NotNil(t, m.DispatchDuration)
	assert.NotNil(t, m.Deletions)
	assert.NotNil(t, m.Resolutions)
}

func TestRecordCounters(t *testing.T) {
	_, m := NewRegistry()

	m.RecordCommand("read_tasks", 0.01)
	m.RecordCommand("read_tasks", 0.02)
	m.RecordDeletion("deleted")
	m.RecordSessionError("no-speech")
	m.RecordSession("dispatched")
	m.RecordResolution("matched")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Commands.WithLabelValues("read_tasks")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Deletions.WithLabelValues("deleted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionErrors.WithLabelValues("no-speech")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Sessions.WithLabelValues("dispatched")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Resolutions.WithLabelValues("matched")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordCommand("motivate", 0)
		m.RecordDeletion("failed")
		m.RecordSessionError("other")
		m.RecordSession("stopped")
		m.RecordResolution("no_match")
	})
}

func TestHandlerFor(t *testing.T) {
	reg, m := NewRegistry()
	m.RecordCommand("add_task", 0.001)

	rec := httptest.NewRecorder()
	HandlerFor(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `tasker_voice_commands_total{intent="add_task"} 1`))
}
