package middleware

import (
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/compareyuv/backend/internal/ratelimit"
	"github.com/labstack/echo/v4"
)

// RateLimitMiddleware throttles requests per client identity for one
// operation class and attaches the rate-limit headers to every response it
// handles. A nil store or a limiter fault admits the request: availability
// of the product outranks strict throttling.
func RateLimitMiddleware(store *ratelimit.Store, class ratelimit.Class, env string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if store == nil {
				return next(c)
			}

			identity := ratelimit.ClientIdentity(c.Request().Header, env)
			result, err := store.Check(class, identity)
			if err != nil {
				log.Printf("Rate limiting error, admitting request: %v", err)
				return next(c)
			}

			// Headers come from the read-only projection of the window
			// just counted against
			status, err := store.Remaining(class, identity)
			if err != nil {
				status = ratelimit.Status{Limit: result.Limit, Remaining: result.Remaining, ResetAt: result.ResetAt}
			}

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(status.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(status.Remaining))
			h.Set("X-RateLimit-Reset", status.ResetAt.UTC().Format(time.RFC3339))

			if !result.Allowed {
				h.Set("Retry-After", strconv.Itoa(result.RetryAfter))
				return echo.NewHTTPError(http.StatusTooManyRequests,
					fmt.Sprintf("Rate limit exceeded. Try again in %d seconds.", result.RetryAfter))
			}

			return next(c)
		}
	}
}
