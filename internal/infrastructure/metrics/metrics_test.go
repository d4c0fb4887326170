package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserve(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveWebhook("checkout.session.completed", "applied", 20*time.Millisecond)
	m.ObserveWebhook("checkout.session.completed", "applied", 10*time.Millisecond)
	m.ObserveWebhook("", "signature_invalid", time.Millisecond)
	m.ObserveCheckout("social_pack", "created")
	m.ObserveUsage("free", "quota_exceeded")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.webhookEvents.WithLabelValues("checkout.session.completed", "applied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.webhookEvents.WithLabelValues("unknown", "signature_invalid")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.checkouts.WithLabelValues("social_pack", "created")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.usage.WithLabelValues("free", "quota_exceeded")))
}

func TestEchoMiddleware(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	e := echo.New()
	e.Use(m.EchoMiddleware())
	e.GET("/api/user/:userId/plan", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"plan": "free"})
	})
	e.GET("/broken", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "down")
	})

	for _, path := range []string{"/api/user/u1/plan", "/api/user/u2/plan", "/broken"} {
		e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requestTotal.WithLabelValues("GET", "/api/user/:userId/plan", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requestTotal.WithLabelValues("GET", "/broken", "503")))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}
