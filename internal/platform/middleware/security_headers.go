package middleware

import (
	"github.com/labstack/echo/v4"
)

// SecurityHeaders sets response headers for a JSON API that returns patient
// observations.
func SecurityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()

			// No MIME sniffing.
			h.Set("X-Content-Type-Options", "nosniff")

			// No framing.
			h.Set("X-Frame-Options", "DENY")

			// Legacy XSS filter off; CSP covers it.
			h.Set("X-XSS-Protection", "0")

			// JSON only: load nothing, embed nowhere.
			h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")

			// HSTS for one year including subdomains.
			h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")

			// No Referer to downstream services.
			h.Set("Referrer-Policy", "no-referrer")

			// Browser features the API never uses.
			h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")

			// Predictions are patient data and must not be cached.
			h.Set("Cache-Control", "no-store")

			return next(c)
		}
	}
}
