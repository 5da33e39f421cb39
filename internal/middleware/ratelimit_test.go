package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/radiusdt/flowlens/internal/config"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func limitedRequest(h http.Handler, ip string) int {
	req := httptest.NewRequest(http.MethodGet, "/campaigns/c/upload", nil)
	req.Header.Set("X-Forwarded-For", ip)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr.Code
}

func TestRateLimitGlobal(t *testing.T) {
	rl := NewRateLimitMiddleware(config.RateLimitConfig{
		Enabled: true,
		RPS:     1,
		Burst:   2,
	}, zap.NewNop())
	h := rl.Handler(okHandler())

	assert.Equal(t, http.StatusOK, limitedRequest(h, "10.0.0.1"))
	assert.Equal(t, http.StatusOK, limitedRequest(h, "10.0.0.2"))
	// The global bucket is shared, so the third request is rejected no
	// matter which client sends it
	assert.Equal(t, http.StatusTooManyRequests, limitedRequest(h, "10.0.0.3"))
}

func TestRateLimitPerIP(t *testing.T) {
	rl := NewRateLimitMiddleware(config.RateLimitConfig{
		Enabled: true,
		RPS:     100,
		Burst:   20,
	}, zap.NewNop())
	h := rl.HandlerPerIP(okHandler())

	// Per-IP budget is a tenth of the global one: burst of 2 here
	assert.Equal(t, http.StatusOK, limitedRequest(h, "10.0.0.1"))
	assert.Equal(t, http.StatusOK, limitedRequest(h, "10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, limitedRequest(h, "10.0.0.1"))

	// A different client has its own bucket
	assert.Equal(t, http.StatusOK, limitedRequest(h, "10.0.0.2"))
}

func TestRateLimitDisabled(t *testing.T) {
	rl := NewRateLimitMiddleware(config.RateLimitConfig{Enabled: false}, zap.NewNop())

	for i := 0; i < 10; i++ {
		assert.Equal(t, http.StatusOK, limitedRequest(rl.Handler(okHandler()), "10.0.0.1"))
		assert.Equal(t, http.StatusOK, limitedRequest(rl.HandlerPerIP(okHandler()), "10.0.0.1"))
	}
}

func TestRateLimitCleanupResetsIPBuckets(t *testing.T) {
	rl := NewRateLimitMiddleware(config.RateLimitConfig{
		Enabled: true,
		RPS:     100,
		Burst:   20,
	}, zap.NewNop())
	h := rl.HandlerPerIP(okHandler())

	limitedRequest(h, "10.0.0.1")
	limitedRequest(h, "10.0.0.1")
	assert.Equal(t, http.StatusTooManyRequests, limitedRequest(h, "10.0.0.1"))

	rl.CleanupIPLimiters()
	assert.Equal(t, http.StatusOK, limitedRequest(h, "10.0.0.1"))
}
