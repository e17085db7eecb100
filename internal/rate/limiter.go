package rate

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds login throttle tuning parameters.
type Config struct {
	// MaxAttempts is the number of login attempts allowed per Window.
	MaxAttempts int
	Window      time.Duration
	// EnableIPThrottle adds a per-IP budget on top of the per-identifier one.
	EnableIPThrottle bool
}

// DefaultConfig allows 10 attempts per identifier and per IP every minute.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:      10,
		Window:           time.Minute,
		EnableIPThrottle: true,
	}
}

// Limiter throttles login attempts before they reach the authenticator.
type Limiter interface {
	// Allow consumes one attempt for identifier and ip and returns
	// ErrRateLimited when either budget is exhausted.
	Allow(ctx context.Context, identifier, ip string) error
	// Reset clears the identifier budget after a successful login.
	Reset(ctx context.Context, identifier, ip string) error
}

// Redis is a fixed-window [Limiter] shared across processes.
type Redis struct {
	redis  redis.UniversalClient
	config Config
}

// NewRedis creates a [Redis] limiter backed by the given client.
func NewRedis(redisClient redis.UniversalClient, cfg Config) *Redis {
	return &Redis{
		redis:  redisClient,
		config: cfg,
	}
}

func (l *Redis) Allow(ctx context.Context, identifier, ip string) error {
	count, err := l.incrementWithTTL(ctx, loginUserKey(identifier), l.config.Window)
	if err != nil {
		return err
	}
	if count > int64(l.config.MaxAttempts) {
		return ErrRateLimited
	}

	if l.config.EnableIPThrottle && ip != "" {
		count, err = l.incrementWithTTL(ctx, loginIPKey(ip), l.config.Window)
		if err != nil {
			return err
		}
		if count > int64(l.config.MaxAttempts) {
			return ErrRateLimited
		}
	}

	return nil
}

// Reset clears the identifier counter. The IP counter keeps running so one
// address cannot alternate valid and invalid logins to dodge the budget.
func (l *Redis) Reset(ctx context.Context, identifier, _ string) error {
	if err := l.redis.Del(ctx, loginUserKey(identifier)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (l *Redis) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}

func loginUserKey(identifier string) string {
	return "authcore:rl:login:" + identifier
}

func loginIPKey(ip string) string {
	return "authcore:rl:ip:" + ip
}
