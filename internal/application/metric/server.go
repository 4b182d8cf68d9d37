package metric

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const healthCheckTimeout = 2 * time.Second

// HealthCheck - проверка зависимости для /health, например ping postgres
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// NewServer - отдельный echo для /metrics и /health, наружу не публикуется
func NewServer(checks ...HealthCheck) *echo.Echo {
	e := echo.New()

	e.HideBanner = true
	e.HidePort = true

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	e.GET("/health", func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), healthCheckTimeout)
		defer cancel()

		status := http.StatusOK
		result := map[string]string{"status": "ok"}

		for _, hc := range checks {
			if err := hc.Check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				result["status"] = "degraded"
				result[hc.Name] = err.Error()
			}
		}

		return c.JSON(status, result)
	})

	return e
}
