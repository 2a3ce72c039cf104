package http

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"studio-booking/http/handlers"
	"studio-booking/logger"
)

// Handlers bundles what the router serves. DLQ and Webhooks may be nil when
// their backing configuration is absent.
type Handlers struct {
	Verifications *handlers.VerificationHandler
	DLQ           *handlers.DLQHandler
	Webhooks      *handlers.WebhookHandler
	Health        handlers.HealthChecks
}

// NewRouter configures all HTTP routes and middleware
func NewRouter(h Handlers, log *logger.Logger) *echo.Echo {
	log = logger.OrDefault(log)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			log.Info("%s %s %d %s", v.Method, v.URI, v.Status, v.Latency)
			return nil
		},
	}))

	e.GET("/health", handlers.Health(h.Health))

	api := e.Group("/api")

	// Payment verification APIs
	api.POST("/verifications", h.Verifications.CreateVerification)
	api.GET("/verifications", h.Verifications.ListVerifications)
	api.GET("/verifications/export", h.Verifications.ExportVerifications)
	api.POST("/verifications/reconcile", h.Verifications.Reconcile)
	api.GET("/verifications/:id", h.Verifications.GetVerification)

	// Payment provider webhooks
	if h.Webhooks != nil {
		api.POST("/webhooks/razorpay", h.Webhooks.RazorpayWebhook)
	}

	// DLQ Management APIs
	if h.DLQ != nil {
		api.GET("/dlq", h.DLQ.GetDLQMessages)
		api.POST("/dlq/:id/resolve", h.DLQ.ResolveDLQMessage)
	}

	return e
}
