// Package middleware provides HTTP middleware functions.
package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// CORSMiddleware returns a CORS middleware. Origins listed in allowed are
// matched exactly and "*" admits any origin. With no list, localhost and
// CloudFront origins are allowed.
func CORSMiddleware(allowed ...string) echo.MiddlewareFunc {
	match := OriginMatcher(allowed...)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			origin := c.Request().Header.Get("Origin")

			if origin != "" && match(origin) {
				h := c.Response().Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				h.Set("Access-Control-Allow-Headers", "Content-Type")
				h.Set("Access-Control-Allow-Credentials", "true")
				h.Add("Vary", "Origin")
			}

			if c.Request().Method == http.MethodOptions {
				return c.NoContent(http.StatusNoContent)
			}

			return next(c)
		}
	}
}

// OriginMatcher returns the origin check used by CORSMiddleware.
func OriginMatcher(allowed ...string) func(origin string) bool {
	if len(allowed) == 0 {
		return defaultOrigin
	}
	return originList(allowed)
}

func originList(allowed []string) func(string) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[strings.TrimRight(strings.TrimSpace(o), "/")] = true
	}
	return func(origin string) bool {
		return set["*"] || set[origin]
	}
}

// defaultOrigin allows local development servers and CloudFront.
func defaultOrigin(origin string) bool {
	if strings.HasPrefix(origin, "http://localhost:") || strings.HasPrefix(origin, "http://127.0.0.1:") {
		return true
	}
	return strings.HasPrefix(origin, "https://") && strings.HasSuffix(origin, ".cloudfront.net")
}
