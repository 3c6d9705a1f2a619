package server

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// IPRateLimiter keeps one token bucket per client IP. Buckets idle for
// longer than the refill window are dropped.
type IPRateLimiter struct {
	visitors sync.Map
	limit    rate.Limit
	burst    int
	idle     time.Duration
	log      *zap.Logger
	onReject func()
}

type visitor struct {
	limiter  *rate.Limiter
	mu       sync.Mutex
	lastSeen time.Time
}

// NewIPRateLimiter allows count requests per window and per IP; a zero
// count disables limiting. The cleanup loop stops when ctx is done.
func NewIPRateLimiter(ctx context.Context, count int, per time.Duration, log *zap.Logger) *IPRateLimiter {
	l := &IPRateLimiter{
		limit: rate.Inf,
		burst: max(count, 1),
		idle:  max(per, 5*time.Minute),
		log:   log,
	}
	if count > 0 && per > 0 {
		l.limit = rate.Every(per / time.Duration(count))
	}
	go l.cleanupVisitors(ctx)
	return l
}

func (l *IPRateLimiter) getLimiter(ip string) *rate.Limiter {
	v, _ := l.visitors.LoadOrStore(ip, &visitor{limiter: rate.NewLimiter(l.limit, l.burst)})
	vi := v.(*visitor)
	vi.mu.Lock()
	vi.lastSeen = time.Now()
	vi.mu.Unlock()
	return vi.limiter
}

func (l *IPRateLimiter) cleanupVisitors(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		cutoff := time.Now().Add(-l.idle)
		l.visitors.Range(func(k, v any) bool {
			vi := v.(*visitor)
			vi.mu.Lock()
			stale := vi.lastSeen.Before(cutoff)
			vi.mu.Unlock()
			if stale {
				l.visitors.Delete(k)
			}
			return true
		})
	}
}

func (l *IPRateLimiter) Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		ip := getIP(c)
		if !l.getLimiter(ip).Allow() {
			l.log.Warn("rate limit exceeded", zap.String("ip", ip), zap.String("path", c.Path()))
			if l.onReject != nil {
				l.onReject()
			}
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "rate limit exceeded"})
		}
		return c.Next()
	}
}

func getIP(c *fiber.Ctx) string {
	ip := c.IP()
	if ip == "" {
		ip = "unknown"
	}
	host, _, err := net.SplitHostPort(ip)
	if err == nil {
		return host
	}
	return ip
}
