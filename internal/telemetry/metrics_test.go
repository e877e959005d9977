package telemetry

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRecordAndServe(t *testing.T) {
	m := New(nil)
	m.TurnsTotal.WithLabelValues("began").Inc()
	m.TurnsTotal.WithLabelValues("began").Inc()
	m.TurnErrorsTotal.Inc()
	m.TurnDuration.Observe(0.02)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.TurnsTotal.WithLabelValues("began")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TurnErrorsTotal))

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()
	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `botservice_turns_total{outcome="began"} 2`))
}

func TestNewIsolatedRegistries(t *testing.T) {
	a := New(nil)
	b := New(nil)
	a.PromptGaveUp.Inc()
	assert.Equal(t, 0.0, testutil.ToFloat64(b.PromptGaveUp))
}
