package httpadapter

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// maxTrackedUsers bounds the per-user limiter table; past it the table is reset.
const maxTrackedUsers = 4096

// rejectFunc is told why traffic control turned a request away.
type rejectFunc func(reason string)

// userLimiters hands out one token bucket per X-User-Id. Requests without a user share a bucket.
type userLimiters struct {
	limit rate.Limit
	burst int

	mu      sync.Mutex
	buckets map[string]*rate.Limiter
}

func newUserLimiters(rps float64, burst int) *userLimiters {
	if burst <= 0 {
		burst = int(math.Ceil(rps))
	}
	return &userLimiters{
		limit:   rate.Limit(rps),
		burst:   burst,
		buckets: make(map[string]*rate.Limiter),
	}
}

func (l *userLimiters) get(user string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if lim, ok := l.buckets[user]; ok {
		return lim
	}
	if len(l.buckets) >= maxTrackedUsers {
		clear(l.buckets)
	}
	lim := rate.NewLimiter(l.limit, l.burst)
	l.buckets[user] = lim
	return lim
}

// retryAfterSeconds is how long until lim would admit one more request, at least one second.
func retryAfterSeconds(lim *rate.Limiter) string {
	res := lim.Reserve()
	delay := res.Delay()
	res.Cancel()
	return strconv.Itoa(max(1, int(math.Ceil(delay.Seconds()))))
}

// rateLimitMiddleware answers 429 with Retry-After once a user's bucket is empty.
func rateLimitMiddleware(next http.Handler, rps float64, burst int, onReject rejectFunc) http.Handler {
	if rps <= 0 {
		return next
	}
	limiters := newUserLimiters(rps, burst)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lim := limiters.get(userID(r))
		if lim.Allow() {
			next.ServeHTTP(w, r)
			return
		}
		w.Header().Set("Retry-After", retryAfterSeconds(lim))
		if onReject != nil {
			onReject("rate_limit")
		}
		writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded", "code": "rate_limited"})
	})
}

// backpressureMiddleware caps concurrent requests across all users. A request waits up to wait
// for a slot and gets 503 when none frees up.
func backpressureMiddleware(next http.Handler, limit int, wait time.Duration, onReject rejectFunc) http.Handler {
	if limit <= 0 {
		return next
	}
	slots := make(chan struct{}, limit)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !acquire(r, slots, wait) {
			if r.Context().Err() != nil {
				return
			}
			if onReject != nil {
				onReject("backpressure")
			}
			w.Header().Set("Retry-After", "1")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "server is busy, retry later", "code": "overloaded"})
			return
		}
		defer func() { <-slots }()
		next.ServeHTTP(w, r)
	})
}

func acquire(r *http.Request, slots chan struct{}, wait time.Duration) bool {
	select {
	case slots <- struct{}{}:
		return true
	default:
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case slots <- struct{}{}:
		return true
	case <-timer.C:
		return false
	case <-r.Context().Done():
		return false
	}
}
