package middleware

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/fxledger/internal/observability"
)

// Metrics records request latency and counts labelled by route pattern.
func Metrics() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if fe, ok := err.(*fiber.Error); ok {
			status = fe.Code
		}
		path := c.Route().Path
		labels := []string{c.Method(), path, strconv.Itoa(status)}
		observability.HTTPRequestDuration.WithLabelValues(labels...).Observe(time.Since(start).Seconds())
		observability.HTTPRequestsTotal.WithLabelValues(labels...).Inc()
		return err
	}
}
