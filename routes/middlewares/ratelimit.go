package middlewares

import (
	"net/http"
	"sync"
	"time"

	"github.com/mbolis/survey-builder/formflow"
	"github.com/mbolis/survey-builder/httpx"
	"github.com/mbolis/survey-builder/log"
	"golang.org/x/time/rate"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter allows each client IP a number of requests per minute, with
// bursts up to the same number.
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    rate.Limit
	burst    int
	idle     time.Duration
	now      func() time.Time
}

func NewRateLimiter(perMinute int) *RateLimiter {
	return &RateLimiter{
		visitors: map[string]*visitor{},
		limit:    rate.Limit(float64(perMinute) / 60),
		burst:    perMinute,
		idle:     10 * time.Minute,
		now:      time.Now,
	}
}

func (rl *RateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for key, v := range rl.visitors {
		if now.Sub(v.lastSeen) > rl.idle {
			delete(rl.visitors, key)
		}
	}

	v, ok := rl.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.visitors[ip] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.allow(httpx.ClientIP(r)) {
			httpx.LogFailure(w, r, http.StatusTooManyRequests, log.InfoLevel, "submit.rate_limit", "Too many submissions. Please try again later.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type ipCheck struct {
	start  bool
	ip     string
	result chan<- bool
}

// OneAtATime rejects a request while another one from the same client IP is
// still being served.
func OneAtATime(next http.Handler) http.Handler {
	checks := make(chan ipCheck)
	go func() {
		inFlight := make(map[string]bool)
		for req := range checks {
			if req.start {
				req.result <- inFlight[req.ip]
				inFlight[req.ip] = true
			} else {
				delete(inFlight, req.ip)
			}
		}
	}()

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := httpx.ClientIP(r)
		busy := make(chan bool)
		checks <- ipCheck{true, ip, busy}
		if <-busy {
			httpx.LogFailure(w, r, http.StatusConflict, log.DebugLevel, "submit.in_flight", formflow.Message(formflow.ErrAlreadySubmitting))
			return
		}
		defer func() { checks <- ipCheck{false, ip, nil} }()

		next.ServeHTTP(w, r)
	})
}
