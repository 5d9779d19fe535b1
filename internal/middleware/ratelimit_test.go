package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestLimiter returns a limiter driven by the returned clock.
func newTestLimiter(t *testing.T, limit int, window time.Duration) (*RateLimiter, *time.Time) {
	t.Helper()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(limit, window)
	rl.now = func() time.Time { return now }
	t.Cleanup(rl.Stop)
	return rl, &now
}

func doRequest(e *echo.Echo, mw echo.MiddlewareFunc, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = remoteAddr
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	_ = mw(func(c echo.Context) error {
		return c.String(http.StatusOK, "OK")
	})(c)
	return rec
}

func TestRateLimitMiddleware(t *testing.T) {
	e := echo.New()
	rl, _ := newTestLimiter(t, 3, time.Minute)
	mw := rl.Middleware()

	t.Run("正常系: 制限内のリクエストは通る", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			rec := doRequest(e, mw, "192.168.1.1:12345")
			assert.Equal(t, http.StatusOK, rec.Code)
		}
	})

	t.Run("異常系: 制限を超えると429", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			doRequest(e, mw, "192.168.1.2:12345")
		}

		rec := doRequest(e, mw, "192.168.1.2:12345")

		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, "60", rec.Header().Get("Retry-After"))
		assert.Contains(t, rec.Body.String(), `"error":true`)
	})

	t.Run("正常系: IPごとに独立", func(t *testing.T) {
		for _, ip := range []string{"10.0.0.1:12345", "10.0.0.2:12345", "10.0.0.3:12345"} {
			rec := doRequest(e, mw, ip)
			assert.Equal(t, http.StatusOK, rec.Code)
		}
	})
}

func TestRateLimiter_WindowReset(t *testing.T) {
	rl, now := newTestLimiter(t, 2, 100*time.Millisecond)
	ip := "test-ip"

	ok, _ := rl.allow(ip)
	assert.True(t, ok)
	ok, _ = rl.allow(ip)
	assert.True(t, ok)
	ok, wait := rl.allow(ip)
	assert.False(t, ok)
	assert.Equal(t, 100*time.Millisecond, wait)

	*now = now.Add(150 * time.Millisecond)

	ok, _ = rl.allow(ip)
	assert.True(t, ok)
}

func TestRateLimiter_Sweep(t *testing.T) {
	rl, now := newTestLimiter(t, 1, time.Second)

	rl.allow("a")
	rl.allow("b")
	*now = now.Add(500 * time.Millisecond)
	rl.allow("c")

	*now = now.Add(600 * time.Millisecond)
	removed := rl.sweep()

	require.Equal(t, 2, removed)
	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.Len(t, rl.requests, 1)
	assert.Contains(t, rl.requests, "c")
}

func TestRateLimiter_StopTwice(t *testing.T) {
	rl := NewRateLimiter(1, time.Second)

	assert.NotPanics(t, func() {
		rl.Stop()
		rl.Stop()
	})
}
