package web

import (
	"sync"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/time/rate"

	"github.com/teslashibe/go-focus/internal/log"
)

// rateLimiter keeps one token bucket per client IP.
type rateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
	rate    rate.Limit
	burst   int
}

func newRateLimiter(r rate.Limit, burst int) *rateLimiter {
	return &rateLimiter{
		buckets: make(map[string]*rate.Limiter),
		rate:    r,
		burst:   burst,
	}
}

func (r *rateLimiter) limiter(ip string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.buckets[ip]
	if !ok {
		l = rate.NewLimiter(r.rate, r.burst)
		r.buckets[ip] = l
	}
	return l
}

// middleware rejects requests over the per-IP rate with 429.
func (r *rateLimiter) middleware(c *fiber.Ctx) error {
	ip := c.IP()
	if !r.limiter(ip).Allow() {
		log.Warn("control rate limited", "ip", ip)
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
			"error": "Too many requests",
		})
	}
	return c.Next()
}
