package revocation

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces revocation keys.
const DefaultKeyPrefix = "authcore:revoked:"

// Redis stores revoked ids as keys that expire with the token.
type Redis struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewRedis wraps client. An empty prefix selects [DefaultKeyPrefix].
func NewRedis(client redis.UniversalClient, prefix string) *Redis {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &Redis{client: client, prefix: prefix, now: time.Now}
}

func (r *Redis) key(tokenID string) string {
	return r.prefix + tokenID
}

// Revoke stores tokenID with a TTL that ends at expiresAt.
func (r *Redis) Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error {
	if tokenID == "" {
		return ErrEmptyTokenID
	}
	ttl, ok := r.ttl(expiresAt)
	if !ok {
		return nil
	}
	if err := r.client.Set(ctx, r.key(tokenID), "1", ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Consume stores tokenID with SET NX and reports whether this call created the
// key.
func (r *Redis) Consume(ctx context.Context, tokenID string, expiresAt time.Time) (bool, error) {
	if tokenID == "" {
		return false, ErrEmptyTokenID
	}
	ttl, ok := r.ttl(expiresAt)
	if !ok {
		return true, nil
	}
	created, err := r.client.SetNX(ctx, r.key(tokenID), "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return created, nil
}

func (r *Redis) ttl(expiresAt time.Time) (time.Duration, bool) {
	ttl := expiresAt.Sub(r.now())
	if ttl <= 0 {
		return 0, false
	}
	// Sub-millisecond TTLs would round to zero and persist the key forever.
	if ttl < time.Millisecond {
		ttl = time.Millisecond
	}
	return ttl, true
}

// IsRevoked reports whether the key for tokenID exists.
func (r *Redis) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := r.client.Exists(ctx, r.key(tokenID)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return n > 0, nil
}

// Ping checks connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
