package middleware

import (
	"math"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/JonnyWalker81/cyclesense/backend/internal/apierror"
	"github.com/JonnyWalker81/cyclesense/backend/internal/logger"
)

// RateLimiter provides token-bucket rate limiting per caller
type RateLimiter struct {
	clients map[string]*clientInfo
	mu      sync.Mutex
	rps     rate.Limit
	burst   int
	idle    time.Duration // entries unused this long are dropped
	name    string        // identifier for logging
	stop    chan struct{}
	once    sync.Once
}

type clientInfo struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a limiter allowing rps requests per second with
// the given burst for each key. Call Stop to release the cleanup goroutine.
func NewRateLimiter(rps float64, burst int, name string) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	idle := 10 * time.Minute
	if rps > 0 {
		// long enough for an idle bucket to refill completely
		if refill := time.Duration(float64(burst) / rps * float64(time.Second)); refill > idle {
			idle = refill
		}
	}

	rl := &RateLimiter{
		clients: make(map[string]*clientInfo),
		rps:     rate.Limit(rps),
		burst:   burst,
		idle:    idle,
		name:    name,
		stop:    make(chan struct{}),
	}

	go rl.cleanup(idle / 2)

	logger.Default().Debug("rate limiter initialized",
		logger.String("name", name),
		logger.Float64("rps", rps),
		logger.Int("burst", burst),
	)

	return rl
}

// Stop ends the cleanup goroutine
func (rl *RateLimiter) Stop() {
	rl.once.Do(func() { close(rl.stop) })
}

// cleanup removes stale entries periodically
func (rl *RateLimiter) cleanup(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
		}

		rl.mu.Lock()
		now := time.Now()
		cleaned := 0
		for key, info := range rl.clients {
			if now.Sub(info.lastSeen) > rl.idle {
				delete(rl.clients, key)
				cleaned++
			}
		}
		remaining := len(rl.clients)
		rl.mu.Unlock()

		if cleaned > 0 {
			logger.Default().Debug("rate limiter cleanup completed",
				logger.String("name", rl.name),
				logger.Int("cleaned", cleaned),
				logger.Int("remaining", remaining),
			)
		}
	}
}

// isAllowed takes a token for key. When denied it returns how long the
// caller should wait before retrying.
func (rl *RateLimiter) isAllowed(key string) (bool, time.Duration) {
	rl.mu.Lock()
	info, ok := rl.clients[key]
	if !ok {
		info = &clientInfo{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.clients[key] = info
	}
	now := time.Now()
	info.lastSeen = now
	rl.mu.Unlock()

	r := info.limiter.ReserveN(now, 1)
	if !r.OK() {
		return false, rl.idle
	}
	delay := r.DelayFrom(now)
	if delay == 0 {
		return true, 0
	}
	r.CancelAt(now)
	return false, delay
}

// Middleware keys requests by the authenticated user, falling back to the
// client IP on unauthenticated routes.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetString(UserIDKey)
		if key == "" {
			key = c.ClientIP()
		}

		allowed, wait := rl.isAllowed(key)
		if !allowed {
			retryAfter := int(math.Ceil(wait.Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}

			log := logger.FromContext(c.Request.Context())
			log.Warn("rate limit exceeded",
				logger.String("limiter", rl.name),
				logger.String("key", key),
				logger.Int("retry_after", retryAfter),
			)

			apierror.WriteProblem(c, apierror.NewRateLimitError(apierror.GetRequestID(c), retryAfter))
			c.Abort()
			return
		}

		c.Next()
	}
}
