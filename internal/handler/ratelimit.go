package handler

import (
	"sync"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/fleetkit/napi/internal/domain"
)

// RateLimitMiddleware throttles requests per actor (falling back to client IP
// for unauthenticated routes) using a token-bucket limiter per key.
func RateLimitMiddleware(rps float64, burst int) gin.HandlerFunc {
	var mu sync.Mutex
	limiters := map[string]*rate.Limiter{}

	limiterFor := func(key string) *rate.Limiter {
		mu.Lock()
		defer mu.Unlock()
		l, ok := limiters[key]
		if !ok {
			l = rate.NewLimiter(rate.Limit(rps), burst)
			limiters[key] = l
		}
		return l
	}

	return func(c *gin.Context) {
		key := c.ClientIP()
		if actor, ok := actorFromContext(c); ok && actor.OwnerUUID != "" {
			key = actor.OwnerUUID
		}
		if !limiterFor(key).Allow() {
			derr := domain.NewError(domain.ErrRateLimited, "too many requests", nil)
			derr.RetryAfter = 1
			errorResponse(c, derr)
			c.Abort()
			return
		}
		c.Next()
	}
}
