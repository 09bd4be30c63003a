package middleware

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// ErrorBody is the JSON envelope for every error response.
type ErrorBody struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	RequestID string `json:"requestId,omitempty"`
}

func errorJSON(c echo.Context, code int, msg string) error {
	rid, _ := c.Get("request_id").(string)
	return c.JSON(code, ErrorBody{Success: false, Error: msg, RequestID: rid})
}

// ErrorHandler renders echo.HTTPError values with their status and message.
// Any other error becomes a 500 whose detail is logged, not returned.
func ErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		code := http.StatusInternalServerError
		msg := http.StatusText(code)

		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
			msg = fmt.Sprint(he.Message)
			if he.Internal != nil {
				logger.Debug().Err(he.Internal).Int("status", code).Msg("http error")
			}
		} else {
			rid, _ := c.Get("request_id").(string)
			logger.Error().Err(err).Str("request_id", rid).Str("path", c.Request().URL.Path).Msg("unhandled error")
		}

		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(code)
			return
		}
		_ = errorJSON(c, code, msg)
	}
}
