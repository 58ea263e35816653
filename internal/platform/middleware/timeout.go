package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// RequestTimeout sets a deadline on each request context. The handler runs on
// the request goroutine and is expected to stop once the context is done; if
// the deadline has passed when it returns and nothing was written yet, a 504
// replaces its result. A zero timeout disables the middleware.
func RequestTimeout(timeout time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if timeout <= 0 {
			return next
		}
		return func(c echo.Context) error {
			ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
			defer cancel()

			c.SetRequest(c.Request().WithContext(ctx))

			err := next(c)
			if errors.Is(ctx.Err(), context.DeadlineExceeded) && !c.Response().Committed {
				return gatewayTimeout(c, timeout)
			}
			return err
		}
	}
}

func gatewayTimeout(c echo.Context, timeout time.Duration) error {
	return c.JSON(http.StatusGatewayTimeout, map[string]interface{}{
		"message": "request exceeded the " + timeout.String() + " time limit",
	})
}
