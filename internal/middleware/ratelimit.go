package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// AccountLimiter hands out one token bucket per account.
type AccountLimiter struct {
	mu       sync.Mutex
	limiters map[int64]*limiterEntry
	limit    rate.Limit
	burst    int
	ttl      time.Duration
}

type limiterEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// NewAccountLimiter allows perMinute events per account, all of which may
// arrive at once. A non-positive perMinute disables limiting.
func NewAccountLimiter(perMinute int) *AccountLimiter {
	al := &AccountLimiter{
		limiters: make(map[int64]*limiterEntry),
		limit:    rate.Inf,
		burst:    1,
		ttl:      10 * time.Minute,
	}
	if perMinute > 0 {
		al.limit = rate.Every(time.Minute / time.Duration(perMinute))
		al.burst = perMinute
	}
	return al
}

func (al *AccountLimiter) Allow(accountID int64) bool {
	al.mu.Lock()
	defer al.mu.Unlock()

	now := time.Now()
	entry, ok := al.limiters[accountID]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(al.limit, al.burst)}
		al.limiters[accountID] = entry
	}
	entry.lastAccess = now
	return entry.limiter.AllowN(now, 1)
}

// Cleanup drops buckets idle for longer than the TTL. An idle bucket is full
// again, so dropping it changes nothing for the account.
func (al *AccountLimiter) Cleanup() {
	al.mu.Lock()
	defer al.mu.Unlock()

	cutoff := time.Now().Add(-al.ttl)
	for id, entry := range al.limiters {
		if entry.lastAccess.Before(cutoff) {
			delete(al.limiters, id)
		}
	}
}

// Middleware must run after AuthMiddleware.
func (al *AccountLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		accountID, ok := AccountID(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Account ID not found in context"})
			return
		}
		if !al.Allow(accountID) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Too many attempts, please wait a minute and try again"})
			return
		}
		c.Next()
	}
}
