package prometheus

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/marmos91/dittonet/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisabledReturnsNil(t *testing.T) {
	metrics.Reset()
	assert.Nil(t, metrics.NewBusMetrics())
	assert.Nil(t, metrics.NewNetFSMetrics())
	assert.Nil(t, metrics.NewSchedulerMetrics())
	assert.Nil(t, metrics.NewHTTPMetrics())
	assert.Nil(t, NewBusMetrics())

	var m *netfsMetrics
	m.ObserveOperation("tnfs", "open", time.Millisecond, nil)
}

func TestCollectors(t *testing.T) {
	metrics.InitRegistry()
	defer metrics.Reset()

	b := NewBusMetrics()
	b.ObserveDispatch("netfs", "READ", "complete", 2*time.Millisecond)
	b.RecordFrameError("checksum")
	assert.Equal(t, 1.0, testutil.ToFloat64(b.dispatchTotal.WithLabelValues("netfs", "READ", "complete")))
	assert.Equal(t, 1.0, testutil.ToFloat64(b.frameErrors.WithLabelValues("checksum")))

	n := NewNetFSMetrics()
	n.ObserveOperation("http", "open", time.Millisecond, errors.New("x"))
	n.RecordBytes("http", "read", 40)
	n.RecordBytes("http", "read", 0)
	assert.Equal(t, 1.0, testutil.ToFloat64(n.operationsTotal.WithLabelValues("http", "open", "error")))
	assert.Equal(t, 40.0, testutil.ToFloat64(n.bytesTransferred.WithLabelValues("http", "read")))

	s := NewSchedulerMetrics()
	s.ObserveTick(time.Microsecond)
	s.RecordServiceError("bus")
	assert.Equal(t, 1.0, testutil.ToFloat64(s.serviceErrors.WithLabelValues("bus")))

	h := NewHTTPMetrics()
	h.ObserveRequest("/print", 400, time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.requestsTotal.WithLabelValues("/print", "400")))
}

func TestHandlerServesRegistry(t *testing.T) {
	metrics.InitRegistry()
	defer metrics.Reset()

	require.NotNil(t, metrics.NewSchedulerMetrics())

	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "go_goroutines"))
}
