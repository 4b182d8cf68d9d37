package middleware

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/qrave1/CareCall/internal/application/metric"
)

const unmatchedRoute = "unmatched"

// PrometheusMiddleware считает запросы по шаблону маршрута, id комнат в лейблы не попадают
func PrometheusMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			metric.RecordHTTPMetrics(c.Request().Method, routeLabel(c), responseStatus(c, err), time.Since(start))

			return err
		}
	}
}

func routeLabel(c echo.Context) string {
	if path := c.Path(); path != "" {
		return path
	}

	// 404 без маршрута: сырой URI раздул бы кардинальность
	return unmatchedRoute
}

// responseStatus - статус ещё не записан, если ошибку отдаст HTTPErrorHandler после middleware
func responseStatus(c echo.Context, err error) int {
	if c.Response().Committed {
		return c.Response().Status
	}

	if err == nil {
		return http.StatusOK
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}

	return http.StatusInternalServerError
}
