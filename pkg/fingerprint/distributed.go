package fingerprint

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DistributedMutex coordinates the at-most-one-build guarantee across
// multiple core processes sharing one cache directory, fronting the
// in-process Mutex with a Redis-backed lock for the multi-process
// deployment case described in SPEC_FULL.md's domain stack. Single-process
// deployments do not need this; Mutex alone is sufficient there.
type DistributedMutex struct {
	client *redis.Client
	ttl    time.Duration
}

// NewDistributedMutex wraps a Redis client configured the same way as the
// ambient cache package's RedisCache.
func NewDistributedMutex(client *redis.Client, ttl time.Duration) *DistributedMutex {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &DistributedMutex{client: client, ttl: ttl}
}

// TryLock attempts to acquire the distributed lock for fp using SET NX with
// a TTL as a lease (so a crashed holder cannot wedge the fingerprint
// forever). It returns a token used to release the lock and whether
// acquisition succeeded.
func (d *DistributedMutex) TryLock(ctx context.Context, flowID int64, fp string) (token string, acquired bool, err error) {
	key := lockKey(flowID, fp)
	token = uuid.NewString()

	ok, err := d.client.SetNX(ctx, key, token, d.ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("distributed lock acquire: %w", err)
	}
	return token, ok, nil
}

// Unlock releases the lock if and only if it is still held by token,
// avoiding releasing a lease that has since been re-acquired by someone
// else after TTL expiry.
func (d *DistributedMutex) Unlock(ctx context.Context, flowID int64, fp, token string) error {
	key := lockKey(flowID, fp)
	current, err := d.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("distributed lock check: %w", err)
	}
	if current != token {
		return nil
	}
	return d.client.Del(ctx, key).Err()
}

// MarkSealed records in Redis that a fingerprint's disk entry is sealed, so
// other processes can skip a filesystem stat in the common case. This is a
// performance hint only; HasDisk against the filesystem remains
// authoritative per §4.2.
func (d *DistributedMutex) MarkSealed(ctx context.Context, flowID int64, fp string) error {
	return d.client.Set(ctx, sealedKey(flowID, fp), "1", 24*time.Hour).Err()
}

// IsSealedHint reports the Redis-side hint for whether fp is sealed.
func (d *DistributedMutex) IsSealedHint(ctx context.Context, flowID int64, fp string) (bool, error) {
	n, err := d.client.Exists(ctx, sealedKey(flowID, fp)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func lockKey(flowID int64, fp string) string {
	return fmt.Sprintf("flowfile:fpmutex:%d:%s", flowID, fp)
}

func sealedKey(flowID int64, fp string) string {
	return fmt.Sprintf("flowfile:fpsealed:%d:%s", flowID, fp)
}
