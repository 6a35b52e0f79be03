package handler // package handler holds the echo HTTP handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iliyamo/chat-ticketing/internal/metrics"
)

// Health is the liveness check used by load balancers.
func Health(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"ok": true})
}

var promHandler = promhttp.Handler()

// Metrics exposes the Prometheus registry, refreshing runtime gauges first.
func Metrics(c echo.Context) error {
	metrics.SampleRuntime()
	promHandler.ServeHTTP(c.Response(), c.Request())
	return nil
}
