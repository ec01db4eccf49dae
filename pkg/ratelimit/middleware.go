package ratelimit

import (
	"math"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"buildsite/pkg/logger"
)

// KeyFunc extracts the rate limit key from a request
type KeyFunc func(c echo.Context) string

// RealIP keys requests by client address
func RealIP(c echo.Context) string {
	return c.RealIP()
}

// Middleware rejects requests over the limit with 429 and a Retry-After
// header in whole seconds
func Middleware(kl *KeyedLimiter, route string, keyFn KeyFunc, log logger.Logger) echo.MiddlewareFunc {
	if keyFn == nil {
		keyFn = RealIP
	}
	if log == nil {
		log = logger.NewNopLogger()
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := keyFn(c)
			if kl.Allow(key) {
				return next(c)
			}

			retryAfter := kl.RetryAfter(key)
			seconds := int(math.Ceil(retryAfter.Seconds()))
			if seconds < 1 {
				seconds = 1
			}

			logger.LogRateLimit(log, route, key, retryAfter)
			c.Response().Header().Set("Retry-After", strconv.Itoa(seconds))
			return c.JSON(http.StatusTooManyRequests, map[string]string{
				"error": "too many requests, please try again later",
			})
		}
	}
}
