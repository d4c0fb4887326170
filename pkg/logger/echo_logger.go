// File: pkg/logger/echo_logger.go
package logger

import (
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"go.uber.org/zap"

	apperrors "github.com/fullmeo/aimastery-billing/pkg/errors"
)

// NewEchoRequestLogger returns an echo request logging middleware backed by zap.
func NewEchoRequestLogger(logger *zap.Logger) echo.MiddlewareFunc {
	config := middleware.RequestLoggerConfig{
		Skipper: func(c echo.Context) bool {
			return c.Request().URL.Path == "/health" || c.Request().URL.Path == "/metrics"
		},
		BeforeNextFunc: func(c echo.Context) {
			c.Set("request-start-time", time.Now())
		},
		HandleError: true,

		LogLatency:       true,
		LogProtocol:      true,
		LogRemoteIP:      true,
		LogHost:          true,
		LogMethod:        true,
		LogURI:           true,
		LogURIPath:       true,
		LogRoutePath:     true,
		LogRequestID:     true,
		LogReferer:       true,
		LogUserAgent:     true,
		LogStatus:        true,
		LogError:         true,
		LogContentLength: true,
		LogResponseSize:  true,

		LogHeaders:     []string{"Content-Type", "Accept", "Authorization", "Stripe-Signature"},
		LogQueryParams: []string{"plan", "status", "limit"},

		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			startTime, _ := c.Get("request-start-time").(time.Time)
			elapsed := time.Since(startTime)

			fields := []zap.Field{
				zap.String("request.remote_ip", v.RemoteIP),
				zap.String("request.host", v.Host),
				zap.String("request.protocol", v.Protocol),
				zap.String("request.method", v.Method),
				zap.String("request.uri", v.URI),
				zap.String("request.path", v.URIPath),
				zap.String("request.route", v.RoutePath),
				zap.String("request.user_agent", v.UserAgent),
				zap.String("request.referer", v.Referer),
				zap.Int("response.status", v.Status),
				zap.Duration("response.latency", v.Latency),
				zap.Duration("response.elapsed_since_before_next", elapsed),
				zap.String("request.request_id", v.RequestID),
				zap.Int64("response.response_size", v.ResponseSize),
				zap.String("request.content_length", v.ContentLength),
			}

			if len(v.Headers) > 0 {
				headers := make(map[string]string, len(v.Headers))
				for k, values := range v.Headers {
					if len(values) == 0 {
						continue
					}
					headers[k] = maskHeader(k, values[0])
				}
				fields = append(fields, zap.Any("request.headers", headers))
			}

			if len(v.QueryParams) > 0 {
				fields = append(fields, zap.Any("request.query_params", v.QueryParams))
			}

			if v.Error != nil {
				fields = append(fields, zap.Error(v.Error))
			}

			switch {
			case v.Status >= 500:
				logger.Error("Server error", fields...)
			case v.Status >= 400:
				logger.Warn("Client error", fields...)
			default:
				logger.Info("Request completed", fields...)
			}
			return nil
		},
	}

	return middleware.RequestLoggerWithConfig(config)
}

// credentials never reach the log in full
func maskHeader(name, value string) string {
	if name != "Authorization" && name != "Stripe-Signature" {
		return value
	}
	if len(value) > 15 {
		return value[:10] + "..." + value[len(value)-5:]
	}
	return "[MASKED]"
}

// WithEchoLogger installs the zap-backed echo Logger and an HTTPErrorHandler
// that answers {"error": "..."}. Errors are mapped with pkg/errors.ToHTTPError;
// 4xx errors expose the message, 5xx errors only the generic status text.
func WithEchoLogger(e *echo.Echo, logger *zap.Logger) {
	e.Logger = NewEchoZapLogger(logger)

	e.HTTPErrorHandler = func(err error, c echo.Context) {
		he := apperrors.ToHTTPError(err)
		code := he.Code
		message := http.StatusText(code)
		if msg, ok := he.Message.(string); ok && code < 500 && msg != "" {
			message = msg
		}

		fields := []zap.Field{
			zap.Error(err),
			zap.Int("status", code),
			zap.String("method", c.Request().Method),
			zap.String("path", c.Request().URL.Path),
			zap.String("ip", c.RealIP()),
		}
		if code >= 500 {
			logger.Error("HTTP error", fields...)
		} else {
			logger.Warn("HTTP error", fields...)
		}

		if c.Response().Committed {
			return
		}
		if c.Request().Method == http.MethodHead {
			err = c.NoContent(code)
		} else {
			err = c.JSON(code, map[string]interface{}{"error": message})
		}
		if err != nil {
			logger.Error("Failed to send error response", zap.Error(err))
		}
	}
}

// EchoZapLogger adapts zap to echo.Logger.
type EchoZapLogger struct {
	Logger *zap.Logger
}

// NewEchoZapLogger wraps logger as an echo.Logger.
func NewEchoZapLogger(logger *zap.Logger) *EchoZapLogger {
	return &EchoZapLogger{Logger: logger}
}

func (l *EchoZapLogger) Output() io.Writer {
	return &zapWriter{logger: l.Logger}
}

// SetOutput is a no-op; output is owned by the zap core.
func (l *EchoZapLogger) SetOutput(w io.Writer) {}

func (l *EchoZapLogger) Level() log.Lvl {
	return log.INFO
}

// SetLevel is a no-op; the level is owned by the zap core.
func (l *EchoZapLogger) SetLevel(v log.Lvl) {}

func (l *EchoZapLogger) SetHeader(h string) {}

func (l *EchoZapLogger) Prefix() string {
	return ""
}

func (l *EchoZapLogger) SetPrefix(p string) {}

func (l *EchoZapLogger) Print(i ...interface{}) {
	l.Logger.Sugar().Info(i...)
}

func (l *EchoZapLogger) Printf(format string, i ...interface{}) {
	l.Logger.Sugar().Infof(format, i...)
}

func (l *EchoZapLogger) Printj(j log.JSON) {
	l.Logger.Info("json_message", zap.Any("json", j))
}

func (l *EchoZapLogger) Debug(i ...interface{}) {
	l.Logger.Sugar().Debug(i...)
}

func (l *EchoZapLogger) Debugf(format string, i ...interface{}) {
	l.Logger.Sugar().Debugf(format, i...)
}

func (l *EchoZapLogger) Debugj(j log.JSON) {
	l.Logger.Debug("json_message", zap.Any("json", j))
}

func (l *EchoZapLogger) Info(i ...interface{}) {
	l.Logger.Sugar().Info(i...)
}

func (l *EchoZapLogger) Infof(format string, i ...interface{}) {
	l.Logger.Sugar().Infof(format, i...)
}

func (l *EchoZapLogger) Infoj(j log.JSON) {
	l.Logger.Info("json_message", zap.Any("json", j))
}

func (l *EchoZapLogger) Warn(i ...interface{}) {
	l.Logger.Sugar().Warn(i...)
}

func (l *EchoZapLogger) Warnf(format string, i ...interface{}) {
	l.Logger.Sugar().Warnf(format, i...)
}

func (l *EchoZapLogger) Warnj(j log.JSON) {
	l.Logger.Warn("json_message", zap.Any("json", j))
}

func (l *EchoZapLogger) Error(i ...interface{}) {
	l.Logger.Sugar().Error(i...)
}

func (l *EchoZapLogger) Errorf(format string, i ...interface{}) {
	l.Logger.Sugar().Errorf(format, i...)
}

func (l *EchoZapLogger) Errorj(j log.JSON) {
	l.Logger.Error("json_message", zap.Any("json", j))
}

func (l *EchoZapLogger) Fatal(i ...interface{}) {
	l.Logger.Sugar().Fatal(i...)
}

func (l *EchoZapLogger) Fatalf(format string, i ...interface{}) {
	l.Logger.Sugar().Fatalf(format, i...)
}

func (l *EchoZapLogger) Fatalj(j log.JSON) {
	l.Logger.Fatal("json_message", zap.Any("json", j))
}

func (l *EchoZapLogger) Panic(i ...interface{}) {
	l.Logger.Sugar().Panic(i...)
}

func (l *EchoZapLogger) Panicf(format string, i ...interface{}) {
	l.Logger.Sugar().Panicf(format, i...)
}

func (l *EchoZapLogger) Panicj(j log.JSON) {
	l.Logger.Panic("json_message", zap.Any("json", j))
}

type zapWriter struct {
	logger *zap.Logger
}

func (w *zapWriter) Write(p []byte) (n int, err error) {
	w.logger.Info(string(p))
	return len(p), nil
}
