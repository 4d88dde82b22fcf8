package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const dedupKeyPrefix = "jobharbor:dedup:"

// RedisIndex is the Redis-backed Index. The New/Duplicate decision rides on
// SETNX, which Redis serializes, so two concurrent claims of one fingerprint
// resolve to exactly one New. TTL 0 disables eviction.
type RedisIndex struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisIndex connects to Redis and verifies connectivity.
func NewRedisIndex(ctx context.Context, url string, ttl time.Duration) (*RedisIndex, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis.ParseURL(%q): %w", url, err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &RedisIndex{client: client, ttl: ttl}, nil
}

// CheckAndMark claims the fingerprint with SETNX; duplicates get their
// last-seen hash field advanced and the TTL refreshed.
func (r *RedisIndex) CheckAndMark(ctx context.Context, fingerprint, canonicalID string) (DedupResult, error) {
	key := dedupKeyPrefix + fingerprint
	now := time.Now().UTC().Format(time.RFC3339Nano)

	claimed, err := r.client.HSetNX(ctx, key, "canonical_id", canonicalID).Result()
	if err != nil {
		return ResultDuplicate, fmt.Errorf("dedup claim: %w", err)
	}

	if claimed {
		if err := r.client.HSet(ctx, key, "first_seen_at", now, "last_seen_at", now).Err(); err != nil {
			return ResultDuplicate, fmt.Errorf("dedup mark: %w", err)
		}
		if r.ttl > 0 {
			r.client.Expire(ctx, key, r.ttl)
		}
		return ResultNew, nil
	}

	if err := r.client.HSet(ctx, key, "last_seen_at", now).Err(); err != nil {
		return ResultDuplicate, fmt.Errorf("dedup touch: %w", err)
	}
	if r.ttl > 0 {
		r.client.Expire(ctx, key, r.ttl)
	}
	return ResultDuplicate, nil
}

// Forget drops the fingerprint key.
func (r *RedisIndex) Forget(ctx context.Context, fingerprint string) error {
	return r.client.Del(ctx, dedupKeyPrefix+fingerprint).Err()
}

// Entry reads the recorded entry for a fingerprint.
func (r *RedisIndex) Entry(ctx context.Context, fingerprint string) (DedupEntry, bool, error) {
	fields, err := r.client.HGetAll(ctx, dedupKeyPrefix+fingerprint).Result()
	if err != nil {
		return DedupEntry{}, false, fmt.Errorf("dedup read: %w", err)
	}
	if len(fields) == 0 {
		return DedupEntry{}, false, nil
	}

	entry := DedupEntry{CanonicalID: fields["canonical_id"]}
	if t, err := time.Parse(time.RFC3339Nano, fields["first_seen_at"]); err == nil {
		entry.FirstSeenAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, fields["last_seen_at"]); err == nil {
		entry.LastSeenAt = t
	}
	return entry, true, nil
}

// Close closes the Redis connection.
func (r *RedisIndex) Close() error {
	return r.client.Close()
}
