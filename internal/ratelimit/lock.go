package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// Deleting only when the stored token matches keeps a holder whose TTL
// expired from releasing a lock someone else now owns.
const releaseIfOwnedScript = `
local holder = redis.call("GET", KEYS[1])
if holder == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

// Lock is a best-effort distributed lock over a single redis key. It
// protects work that is safe to duplicate but wasteful to repeat; it is
// not a fencing lock.
type Lock struct {
	client  *redis.Client
	key     string
	release *redis.Script
}

func NewLock(client *redis.Client, key string) *Lock {
	if client == nil || key == "" {
		return nil
	}
	return &Lock{
		client:  client,
		key:     key,
		release: redis.NewScript(releaseIfOwnedScript),
	}
}

// Acquire takes the lock for ttl. The returned token proves ownership
// and must be handed back to Release.
func (l *Lock) Acquire(ctx context.Context, ttl time.Duration) (string, bool, error) {
	if l == nil || l.client == nil {
		return "", false, errors.New("lock client not configured")
	}
	if ttl <= 0 {
		return "", false, errors.New("lock ttl must be positive")
	}

	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	return token, ok, nil
}

func (l *Lock) Release(ctx context.Context, token string) error {
	if l == nil || l.client == nil || token == "" {
		return nil
	}
	return l.release.Run(ctx, l.client, []string{l.key}, token).Err()
}
