// Package metrics defines the service's instrumentation points. NopMetrics
// discards everything; PrometheusCollector exports to a registry.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
)

// Recorder is implemented by every metrics backend.
type Recorder interface {
	// RecordAssignmentCreated counts an accepted create.
	RecordAssignmentCreated(exceptional bool)
	// RecordAssignmentRejected counts a create or update rejected with kind.
	RecordAssignmentRejected(kind string)
	RecordAssignmentUpdated()
	RecordAssignmentDeleted()
	// RecordNotification counts one delivery attempt on an alert channel.
	RecordNotification(channel string, ok bool)
	// ObserveRequest records one HTTP request.
	ObserveRequest(method, route string, status int, duration time.Duration)
}

// Middleware reports every request to rec, labelled by route template.
func Middleware(rec Recorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				} else if !c.Response().Committed {
					status = http.StatusInternalServerError
				}
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			rec.ObserveRequest(c.Request().Method, route, status, time.Since(start))
			return err
		}
	}
}

func statusLabel(status int) string {
	return strconv.Itoa(status)
}
