package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	handlers "github.com/fullmeo/aimastery-billing/internal/adapter/handler/http"
	"github.com/fullmeo/aimastery-billing/internal/config"
	"github.com/fullmeo/aimastery-billing/internal/infrastructure/metrics"
	"github.com/fullmeo/aimastery-billing/internal/middleware/auth"
	"github.com/fullmeo/aimastery-billing/internal/usecase"
	"github.com/fullmeo/aimastery-billing/pkg/logger"
)

// Services are the use cases exposed over HTTP.
type Services struct {
	Checkout     *usecase.CheckoutService
	Webhooks     *usecase.WebhookProcessor
	Entitlements *usecase.EntitlementService
	Ledger       *usecase.RevenueLedger
}

type Server struct {
	config   *config.Config
	logger   *zap.Logger
	echo     *echo.Echo
	services Services
	registry *prometheus.Registry
	metrics  *metrics.Metrics
}

func NewServer(cfg *config.Config, logger *zap.Logger, services Services, registry *prometheus.Registry) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handlers.NewRequestValidator()

	s := &Server{
		config:   cfg,
		logger:   logger,
		echo:     e,
		services: services,
		registry: registry,
		metrics:  metrics.New(registry),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) Start() error {
	addr := s.config.Server.HTTP.Address()
	s.logger.Info("Starting HTTP server", zap.String("address", addr))

	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) setupMiddleware() {
	logger.WithEchoLogger(s.echo, s.logger)

	s.echo.Use(middleware.Recover())
	s.echo.Use(logger.NewEchoRequestLogger(s.logger))
	s.echo.Use(s.metrics.EchoMiddleware())
	s.echo.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{s.config.Service.ClientURL},
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAuthorization},
	}))
}

func (s *Server) setupRoutes() {
	s.echo.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "healthy",
			"service": s.config.Service.Name,
		})
	})
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))

	checkoutHandler := handlers.NewCheckoutHandler(s.services.Checkout, s.metrics, s.logger)
	webhookHandler := handlers.NewWebhookHandler(s.services.Webhooks, s.metrics, s.logger)
	plansHandler := handlers.NewPlansHandler(s.services.Entitlements, s.metrics, s.logger)
	revenueHandler := handlers.NewRevenueHandler(s.services.Ledger, s.logger)

	api := s.echo.Group("/api")

	api.POST("/payments/create-checkout", checkoutHandler.CreateCheckout)
	api.POST("/webhooks/stripe", webhookHandler.HandleStripeWebhook)

	user := api.Group("/user/:userId")
	user.GET("/plan", plansHandler.GetUserPlan)
	user.GET("/entitlement", plansHandler.GetEntitlement)
	user.GET("/features/:feature", plansHandler.GetFeature)
	user.POST("/usage", plansHandler.RecordUsage)

	v1 := api.Group("/v1")
	v1.GET("/plans", plansHandler.GetPlans)

	if s.config.JWT.Secret == "" {
		s.logger.Warn("jwt.secret not set; revenue reporting routes are disabled")
		return
	}

	revenue := v1.Group("/revenue",
		auth.JWTMiddleware(auth.JWTConfig{Secret: s.config.JWT.Secret, Logger: s.logger}),
		auth.RequireRole(s.config.JWT.AdminRole, s.logger))
	revenue.GET("/report", revenueHandler.GetReport)
	revenue.GET("/mrr", revenueHandler.GetMRR)
	revenue.GET("/top-customers", revenueHandler.GetTopCustomers)
	revenue.GET("/users/:userId", revenueHandler.GetUserRevenue)
}
