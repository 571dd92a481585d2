package middleware

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// RateLimiter throttles requests per caller. Authenticated callers are
// keyed by user ID, anonymous ones by IP. Endpoint overrides let the
// expensive sync triggers carry a much tighter budget than reads.
type RateLimiter struct {
	mu      sync.Mutex
	callers map[string]*callerWindow

	limit  int
	window time.Duration

	overrides map[string]*endpointOverride
}

type callerWindow struct {
	count     int
	expiresAt time.Time
}

type endpointOverride struct {
	limit   int
	window  time.Duration
	mu      sync.Mutex
	callers map[string]*callerWindow
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		callers:   make(map[string]*callerWindow),
		limit:     limit,
		window:    window,
		overrides: make(map[string]*endpointOverride),
	}

	go func() {
		ticker := time.NewTicker(time.Minute)
		for range ticker.C {
			rl.cleanup()
		}
	}()

	return rl
}

// Override sets a stricter limit for paths starting with prefix.
func (rl *RateLimiter) Override(prefix string, limit int, window time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.overrides[prefix] = &endpointOverride{
		limit:   limit,
		window:  window,
		callers: make(map[string]*callerWindow),
	}
}

func (rl *RateLimiter) cleanup() {
	now := time.Now()

	rl.mu.Lock()
	for key, w := range rl.callers {
		if now.After(w.expiresAt) {
			delete(rl.callers, key)
		}
	}
	overrides := make([]*endpointOverride, 0, len(rl.overrides))
	for _, eo := range rl.overrides {
		overrides = append(overrides, eo)
	}
	rl.mu.Unlock()

	for _, eo := range overrides {
		eo.mu.Lock()
		for key, w := range eo.callers {
			if now.After(w.expiresAt) {
				delete(eo.callers, key)
			}
		}
		eo.mu.Unlock()
	}
}

func (rl *RateLimiter) Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Method() == fiber.MethodOptions {
			return c.Next()
		}

		key := c.IP()
		if userID, ok := c.Locals("user_id").(uuid.UUID); ok {
			key = userID.String()
		}

		path := c.Path()
		for prefix, eo := range rl.overrides {
			if strings.HasPrefix(path, prefix) {
				if ok, err := take(c, &eo.mu, eo.callers, key, eo.limit, eo.window); !ok {
					return err
				}
			}
		}

		if ok, err := take(c, &rl.mu, rl.callers, key, rl.limit, rl.window); !ok {
			return err
		}
		return c.Next()
	}
}

// take consumes one slot from the caller's window. Returns false with
// the written 429 response when the budget is exhausted.
func take(c *fiber.Ctx, mu *sync.Mutex, callers map[string]*callerWindow, key string, limit int, window time.Duration) (bool, error) {
	mu.Lock()
	now := time.Now()
	w, exists := callers[key]
	if !exists || now.After(w.expiresAt) {
		w = &callerWindow{expiresAt: now.Add(window)}
		callers[key] = w
	}
	if w.count >= limit {
		mu.Unlock()
		setRateLimitHeaders(c, limit, 0, w.expiresAt)
		return false, c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
			"error":       "rate limit exceeded",
			"code":        "RATE_LIMITED",
			"retry_after": int(time.Until(w.expiresAt).Seconds()),
		})
	}
	w.count++
	remaining := limit - w.count
	mu.Unlock()

	setRateLimitHeaders(c, limit, remaining, w.expiresAt)
	return true, nil
}

func setRateLimitHeaders(c *fiber.Ctx, limit, remaining int, reset time.Time) {
	c.Set("X-RateLimit-Limit", fmt.Sprintf("%d", limit))
	c.Set("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))
	c.Set("X-RateLimit-Reset", fmt.Sprintf("%d", reset.Unix()))
}
