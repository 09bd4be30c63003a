package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// RequestTimeout sets a deadline on each request context and answers 504
// when the handler has not finished by then. The websocket route is exempt.
func RequestTimeout(timeout time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			// The websocket stays open for the life of the client.
			if c.Request().URL.Path == "/ws" {
				return next(c)
			}

			// Handlers see the deadline through the request context.
			ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
			defer cancel()
			c.SetRequest(c.Request().WithContext(ctx))

			// Buffered so the handler goroutine can finish after a timeout.
			done := make(chan error, 1)
			go func() {
				done <- next(c)
			}()

			select {
			case err := <-done:
				return err
			case <-ctx.Done():
				if errors.Is(ctx.Err(), context.DeadlineExceeded) {
					// A partly written response cannot be replaced.
					if !c.Response().Committed {
						return errorJSON(c, http.StatusGatewayTimeout, "request processing exceeded the allowed time limit")
					}
					return nil
				}
				// Client went away.
				return ctx.Err()
			}
		}
	}
}
