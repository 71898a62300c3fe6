package metrics

import (
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerExposesRegistry(t *testing.T) {
	InitRegistry()
	t.Cleanup(Reset)

	s := NewServer(0)
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() { _ = s.Stop(context.Background()) })

	resp, err := http.Get("http://" + s.Addr().String() + "/metrics")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestDisabledConstructorsReturnNil(t *testing.T) {
	Reset()
	assert.Nil(t, NewBusMetrics())
	assert.Nil(t, NewNetFSMetrics())
	assert.Nil(t, NewSchedulerMetrics())
	assert.Nil(t, NewHTTPMetrics())
}
