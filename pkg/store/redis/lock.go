// Package redis provides a distributed per-job evaluation lock so
// multiple daemon instances sharing one database never evaluate the
// same monitoring job concurrently. Single-instance deployments can
// rely on the store's atomic claim alone and skip this layer.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "ghostcart:joblock:"

// ErrLockLost means the lock expired or was taken over by another
// holder before a renew could land.
var ErrLockLost = errors.New("job lock lost")

// The holder check and the mutation must not interleave with a
// competing acquirer, so renew and release run as Lua.
var (
	renewScript = redis.NewScript(`
		if redis.call("GET", KEYS[1]) ~= ARGV[1] then
			return 0
		end
		return redis.call("PEXPIRE", KEYS[1], ARGV[2])
	`)
	releaseScript = redis.NewScript(`
		if redis.call("GET", KEYS[1]) ~= ARGV[1] then
			return 0
		end
		return redis.call("DEL", KEYS[1])
	`)
)

// JobLock holds per-job evaluation locks in Redis.
type JobLock struct {
	client *redis.Client
}

func NewJobLock(client *redis.Client) *JobLock {
	return &JobLock{client: client}
}

// Acquire takes the evaluation lock for a job. Returns false when
// another holder already has it. A holder re-acquiring its own lock
// renews the TTL instead.
func (l *JobLock) Acquire(ctx context.Context, jobID, holderID string, ttl time.Duration) (bool, error) {
	key := keyPrefix + jobID

	ok, err := l.client.SetNX(ctx, key, holderID, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("job lock acquire: %w", err)
	}
	if ok {
		return true, nil
	}

	holder, err := l.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		// Expired between SetNX and Get; the next tick picks it up.
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("job lock inspect: %w", err)
	}
	if holder == holderID {
		return true, l.Renew(ctx, jobID, holderID, ttl)
	}

	return false, nil
}

// Renew extends the lock TTL. Returns ErrLockLost when the caller no
// longer holds the lock.
func (l *JobLock) Renew(ctx context.Context, jobID, holderID string, ttl time.Duration) error {
	n, err := renewScript.Run(ctx, l.client,
		[]string{keyPrefix + jobID}, holderID, ttl.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("job lock renew: %w", err)
	}
	if n == 0 {
		return ErrLockLost
	}
	return nil
}

// Release drops the lock if held by holderID. Releasing a lock that
// was already lost is not an error.
func (l *JobLock) Release(ctx context.Context, jobID, holderID string) error {
	if _, err := releaseScript.Run(ctx, l.client,
		[]string{keyPrefix + jobID}, holderID).Result(); err != nil {
		return fmt.Errorf("job lock release: %w", err)
	}
	return nil
}

// Holder reports who currently holds a job's lock, if anyone.
func (l *JobLock) Holder(ctx context.Context, jobID string) (string, bool, error) {
	holder, err := l.client.Get(ctx, keyPrefix+jobID).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("job lock inspect: %w", err)
	}
	return holder, true, nil
}
