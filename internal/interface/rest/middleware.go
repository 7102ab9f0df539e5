package rest

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

const headerRequestID = "X-Request-ID"

// RequestObserver records served requests, typically into Prometheus.
type RequestObserver interface {
	ObserveRequest(method, route string, status int, elapsed time.Duration)
}

// requestLogger tags each request with an id and logs its outcome.
func requestLogger(logger *slog.Logger, observer RequestObserver) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			requestID := req.Header.Get(headerRequestID)
			if requestID == "" {
				requestID = uuid.New().String()[:8]
			}
			c.Response().Header().Set(headerRequestID, requestID)

			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			elapsed := time.Since(start)

			status := c.Response().Status
			route := c.Path()
			if observer != nil {
				observer.ObserveRequest(req.Method, route, status, elapsed)
			}

			attrs := []any{
				"request_id", requestID,
				"method", req.Method,
				"route", route,
				"status", status,
				"elapsed", elapsed,
			}
			if status >= 500 {
				logger.Error("request failed", attrs...)
			} else {
				logger.Debug("request served", attrs...)
			}
			return nil
		}
	}
}
