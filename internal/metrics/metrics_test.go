package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_CountAndServe(t *testing.T) {
	m := New()
	m.Uploads.WithLabelValues("image", Result(nil)).Inc()
	m.Uploads.WithLabelValues("video", Result(errors.New("x"))).Inc()
	m.PresentClients.Set(3)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Uploads.WithLabelValues("image", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Uploads.WithLabelValues("video", "error")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `tinytalk_uploads_total{result="ok",type="image"} 1`)
	assert.Contains(t, string(body), "tinytalk_present_clients 3")
}

func TestNew_IndependentRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		New()
		New()
	})
}
