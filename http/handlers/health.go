package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// HealthChecks are the optional probes reported by /health.
type HealthChecks struct {
	Store          func(ctx context.Context) error
	KafkaConnected func() bool
	VerifierActive func() bool
	LastPass       func() (time.Time, error)
}

// Health reports dependency status
// GET /health
func Health(checks HealthChecks) echo.HandlerFunc {
	return func(c echo.Context) error {
		body := map[string]interface{}{"status": "ok"}
		status := http.StatusOK

		if checks.Store != nil {
			ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
			err := checks.Store(ctx)
			cancel()
			body["store"] = err == nil
			if err != nil {
				body["status"] = "degraded"
				status = http.StatusServiceUnavailable
			}
		}
		if checks.KafkaConnected != nil {
			body["kafka"] = checks.KafkaConnected()
		}
		if checks.VerifierActive != nil {
			body["verifier_running"] = checks.VerifierActive()
		}
		if checks.LastPass != nil {
			at, err := checks.LastPass()
			if !at.IsZero() {
				body["last_pass_at"] = at.Format(time.RFC3339)
			}
			if err != nil {
				body["last_pass_error"] = err.Error()
			}
		}

		return c.JSON(status, body)
	}
}
