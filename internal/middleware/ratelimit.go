package middleware

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"postboard/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// FailPolicy defines the behavior when the rate limit store (Redis) is unavailable.
type FailPolicy int

const (
	// FailOpen allows the request to proceed if Redis is unavailable.
	FailOpen FailPolicy = iota
	// FailClosed blocks the request (503 Service Unavailable) if Redis is unavailable.
	FailClosed
)

// RateRule is a fixed-window limit on one resource, counted per user when
// authenticated and per client IP otherwise.
type RateRule struct {
	Resource string
	Limit    int
	Window   time.Duration
	Policy   FailPolicy
}

// Limits applied to the public API.
var (
	RegisterRule       = RateRule{Resource: "register", Limit: 3, Window: 10 * time.Minute}
	LoginRule          = RateRule{Resource: "login", Limit: 10, Window: 5 * time.Minute}
	ForgotPasswordRule = RateRule{Resource: "forgot_password", Limit: 3, Window: 15 * time.Minute}
	ResetPasswordRule  = RateRule{Resource: "reset_password", Limit: 5, Window: 15 * time.Minute}
	CreatePostRule     = RateRule{Resource: "create_post", Limit: 10, Window: 5 * time.Minute}
)

// RateLimiter enforces RateRules with counters in Redis. A disabled limiter
// lets every request through; development and test run that way.
type RateLimiter struct {
	rdb     *redis.Client
	enabled bool
}

func NewRateLimiter(rdb *redis.Client, enabled bool) *RateLimiter {
	return &RateLimiter{rdb: rdb, enabled: enabled}
}

func rateKey(resource, id string) string {
	return fmt.Sprintf("postboard:ratelimit:%s:%s", resource, id)
}

// Allow counts one hit for id against rule and reports whether it is within
// the limit. The window starts at the first hit.
func (l *RateLimiter) Allow(ctx context.Context, rule RateRule, id string) (bool, error) {
	if !l.enabled {
		return true, nil
	}
	if l.rdb == nil {
		return false, fmt.Errorf("redis client is nil")
	}

	key := rateKey(rule.Resource, id)
	cnt, err := l.rdb.Incr(ctx, key).Result()
	if err != nil {
		return false, err
	}
	if cnt == 1 {
		if err := l.rdb.Expire(ctx, key, rule.Window).Err(); err != nil {
			return false, err
		}
	}
	return cnt <= int64(rule.Limit), nil
}

// Handler returns a Fiber middleware enforcing rule.
func (l *RateLimiter) Handler(rule RateRule) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var id string
		if uid := c.Locals("userID"); uid != nil {
			id = fmt.Sprintf("user:%v", uid)
		} else {
			id = "ip:" + c.IP()
		}

		allowed, err := l.Allow(c.UserContext(), rule, id)
		if err != nil {
			if rule.Policy == FailClosed {
				Logger.WarnContext(c.UserContext(), "rate limit fail-closed",
					"resource", rule.Resource, "path", c.Path(), "error", err)
				return models.RespondWithError(c, fiber.StatusServiceUnavailable,
					models.NewInternalError(err))
			}
			Logger.WarnContext(c.UserContext(), "rate limit fail-open",
				"resource", rule.Resource, "path", c.Path(), "error", err)
			return c.Next()
		}

		if !allowed {
			RateLimitRejections.WithLabelValues(rule.Resource).Inc()
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(rule.Window.Seconds())))
			return models.RespondWithError(c, fiber.StatusTooManyRequests, models.NewRateLimitedError())
		}
		return c.Next()
	}
}
