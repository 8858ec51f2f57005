package metric

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordersUpdateCollectors(t *testing.T) {
	m := NewMetrics()

	m.RecordClassification("accepted")
	m.RecordClassification("accepted")
	m.RecordClassification("unclassified")
	m.RecordEvent("ws", "chunk")
	m.ConnectionOpened("raw")
	m.ConnectionOpened("raw")
	m.ConnectionClosed("raw")
	m.RecordHandshakeRejection()
	m.RecordSessionSaveFailure()
	m.RecordRelayFailure()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Classifications.WithLabelValues("accepted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Classifications.WithLabelValues("unclassified")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsSent.WithLabelValues("ws", "chunk")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActiveConnections.WithLabelValues("raw")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HandshakeRejections))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionSaveFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RelayFailures))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordClassification("accepted")
		m.RecordEvent("sse", "done")
		m.ConnectionOpened("ws")
		m.ConnectionClosed("ws")
		m.RecordHandshakeRejection()
		m.RecordSessionSaveFailure()
		m.RecordRelayFailure()
		m.ObservePipeline("joke", 0.1)
	})
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := NewMetrics()
	m.RecordClassification("uncertain")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `ai_chat_intent_classifications_total{status="uncertain"} 1`))
}
