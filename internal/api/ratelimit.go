package api

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// authRateLimiter bounds requests to the wallet-auth endpoints per client
// IP: one rate/burst pair rather than a per-route table, since auth is the
// only surface exposed to signature-verification abuse.
type authRateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*rate.Limiter
	ratePerS rate.Limit
	burst    int
}

func newAuthRateLimiter(perSecond float64, burst int) *authRateLimiter {
	return &authRateLimiter{
		visitors: make(map[string]*rate.Limiter),
		ratePerS: rate.Limit(perSecond),
		burst:    burst,
	}
}

func (rl *authRateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.limiterFor(clientIP(r)).Allow() {
			writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "too many requests"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (rl *authRateLimiter) limiterFor(id string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	limiter, ok := rl.visitors[id]
	if !ok {
		limiter = rate.NewLimiter(rl.ratePerS, rl.burst)
		rl.visitors[id] = limiter
	}
	return limiter
}

// prune periodically clears the visitor map so a long-lived process doesn't
// accumulate one limiter per distinct client forever.
func (rl *authRateLimiter) prune() {
	for range time.Tick(10 * time.Minute) {
		rl.mu.Lock()
		rl.visitors = make(map[string]*rate.Limiter)
		rl.mu.Unlock()
	}
}

func clientIP(r *http.Request) string {
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if comma := strings.IndexByte(fwd, ','); comma > 0 {
			fwd = fwd[:comma]
		}
		if parsed := net.ParseIP(strings.TrimSpace(fwd)); parsed != nil {
			return parsed.String()
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
