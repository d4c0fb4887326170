package logger

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	apperrors "github.com/fullmeo/aimastery-billing/pkg/errors"
)

func TestNewZapLogger(t *testing.T) {
	l, err := NewZapLogger(Config{Level: "warn", Format: "console", Output: "stderr"})
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, l.Core().Enabled(zapcore.WarnLevel))

	l, err = NewZapLogger(Config{Level: "bogus"})
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zapcore.InfoLevel))
}

func TestWithEchoLoggerErrorBody(t *testing.T) {
	e := echo.New()
	WithEchoLogger(e, zap.NewNop())
	e.GET("/bad", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid plan")
	})
	e.GET("/boom", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "dial tcp 10.0.0.1: refused")
	})
	e.GET("/quota", func(c echo.Context) error {
		return apperrors.NewAppError(apperrors.ErrQuotaExceeded, "monthly quota exceeded", nil)
	})
	e.GET("/plain", func(c echo.Context) error {
		return errors.New("pq: password authentication failed")
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/bad", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"invalid plan"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"error":"Service Unavailable"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/quota", nil))
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	assert.JSONEq(t, `{"error":"monthly quota exceeded"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/plain", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Internal Server Error"}`, rec.Body.String())
}

func TestMaskHeader(t *testing.T) {
	assert.Equal(t, "application/json", maskHeader("Content-Type", "application/json"))
	assert.Equal(t, "[MASKED]", maskHeader("Authorization", "short"))
	assert.Equal(t, "t=16000000...abcde", maskHeader("Stripe-Signature", "t=1600000000,v1=0123456789abcde"))
}

func TestGormLoggerTrace(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	gl := NewGormLogger(zap.New(core), gormlogger.Warn, 10*time.Millisecond, true)

	sql := func() (string, int64) { return "SELECT 1", 1 }

	gl.Trace(context.Background(), time.Now(), sql, gorm.ErrRecordNotFound)
	assert.Equal(t, 0, logs.Len())

	gl.Trace(context.Background(), time.Now(), sql, errors.New("connection reset"))
	assert.Equal(t, 1, logs.FilterMessage("gorm query failed").Len())

	gl.Trace(context.Background(), time.Now().Add(-time.Second), sql, nil)
	assert.Equal(t, 1, logs.FilterMessage("gorm slow query").Len())

	gl.LogMode(gormlogger.Silent).Trace(context.Background(), time.Now(), sql, errors.New("ignored"))
	assert.Equal(t, 2, logs.Len())
}
