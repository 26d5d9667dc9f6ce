package mw

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// staleAfter is how long an idle client keeps its limiter before eviction.
const staleAfter = 10 * time.Minute

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// IPRateLimiter stores a rate limiter per client IP, evicting idle entries
// so a fleet of devices cannot grow the map without bound.
type IPRateLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientLimiter
	r       rate.Limit
	b       int
}

// NewIPRateLimiter creates a new IPRateLimiter.
func NewIPRateLimiter(r rate.Limit, b int) *IPRateLimiter {
	return &IPRateLimiter{
		clients: make(map[string]*clientLimiter),
		r:       r,
		b:       b,
	}
}

// GetLimiter returns the rate limiter for an IP address, creating it on
// first sight and opportunistically evicting stale entries.
func (i *IPRateLimiter) GetLimiter(ip string) *rate.Limiter {
	i.mu.Lock()
	defer i.mu.Unlock()

	now := time.Now()
	c, exists := i.clients[ip]
	if !exists {
		if len(i.clients) > 0 && len(i.clients)%256 == 0 {
			i.evictStale(now)
		}
		c = &clientLimiter{limiter: rate.NewLimiter(i.r, i.b)}
		i.clients[ip] = c
	}
	c.lastSeen = now
	return c.limiter
}

func (i *IPRateLimiter) evictStale(now time.Time) {
	for ip, c := range i.clients {
		if now.Sub(c.lastSeen) > staleAfter {
			delete(i.clients, ip)
		}
	}
}

// RateLimiter is a middleware for IP-based rate limiting.
func RateLimiter(r rate.Limit, b int) gin.HandlerFunc {
	limiter := NewIPRateLimiter(r, b)
	return func(c *gin.Context) {
		if !limiter.GetLimiter(c.ClientIP()).Allow() {
			c.AbortWithStatus(http.StatusTooManyRequests)
			return
		}
		c.Next()
	}
}
