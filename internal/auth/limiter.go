package auth

import (
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/time/rate"
)

// maxTrackedEmails bounds the limiter. The least recently used address is
// forgotten first and starts over with a full bucket.
const maxTrackedEmails = 10000

// EmailLimiter throttles magic-link requests per address so a form cannot be
// used to flood someone's inbox.
type EmailLimiter struct {
	mu       sync.Mutex
	limiters *lru.Cache
	every    rate.Limit
	burst    int
}

func NewEmailLimiter(interval time.Duration, burst int) *EmailLimiter {
	return newEmailLimiter(interval, burst, maxTrackedEmails)
}

func newEmailLimiter(interval time.Duration, burst, size int) *EmailLimiter {
	if size <= 0 {
		size = maxTrackedEmails
	}
	// New only fails for a non-positive size.
	cache, _ := lru.New(size)
	return &EmailLimiter{
		limiters: cache,
		every:    rate.Every(interval),
		burst:    burst,
	}
}

func (l *EmailLimiter) Allow(email string) bool {
	key := strings.ToLower(strings.TrimSpace(email))

	l.mu.Lock()
	var lim *rate.Limiter
	if v, ok := l.limiters.Get(key); ok {
		lim = v.(*rate.Limiter)
	} else {
		lim = rate.NewLimiter(l.every, l.burst)
		l.limiters.Add(key, lim)
	}
	l.mu.Unlock()

	return lim.Allow()
}

// Len reports how many addresses are currently tracked.
func (l *EmailLimiter) Len() int {
	return l.limiters.Len()
}
