package middleware

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

// HeaderRequestID carries the request id in both directions.
const HeaderRequestID = "X-Request-ID"

// LatencyObserver receives one observation per served request.
type LatencyObserver interface {
	ObserveHTTP(method, route string, status int, elapsed time.Duration)
}

// RequestLogger assigns a request id (reusing a sane incoming one), logs
// one line per request and reports its latency to obs when non-nil.
func RequestLogger(log logrus.FieldLogger, obs LatencyObserver) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()

			rid := req.Header.Get(HeaderRequestID)
			if _, err := uuid.Parse(rid); err != nil {
				rid = uuid.NewString()
			}
			c.Response().Header().Set(HeaderRequestID, rid)

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			status := c.Response().Status
			elapsed := time.Since(start)
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			if obs != nil {
				obs.ObserveHTTP(req.Method, route, status, elapsed)
			}

			entry := log.WithFields(logrus.Fields{
				"request_id": rid,
				"method":     req.Method,
				"route":      route,
				"path":       req.URL.Path,
				"status":     status,
				"latency_ms": elapsed.Milliseconds(),
				"ip":         c.RealIP(),
			})
			if a := ActorFrom(c); a.Authenticated() {
				entry = entry.WithField("user_id", a.UserID)
			}
			switch {
			case status >= http.StatusInternalServerError:
				var he *echo.HTTPError
				if err != nil && !errors.As(err, &he) {
					entry = entry.WithError(err)
				}
				entry.Error("request failed")
			case status >= http.StatusBadRequest:
				entry.Warn("request rejected")
			default:
				entry.Info("request served")
			}
			return nil
		}
	}
}
