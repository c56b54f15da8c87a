package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"

	"github.com/mhminhas/thinklab/internal/config"
)

const (
	keyActionsAccount = "ratelimit:actions:account:%s"
	keySweepLock      = "sweep:stale_refund:lock"
)

// NewRedisClient returns nil when no redis address is configured. All
// consumers of the client tolerate a nil value.
func NewRedisClient(lc fx.Lifecycle, cfg config.Config) *redis.Client {
	if cfg.RedisAddr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return client.Close()
		},
	})
	return client
}

// ActionLimiter throttles action submissions per account.
type ActionLimiter struct {
	enabled bool
	bucket  *TokenBucket
	rate    float64
	burst   int
}

func NewActionLimiter(cfg config.Config, client *redis.Client) (*ActionLimiter, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		return nil, nil
	}
	if client == nil {
		return nil, errors.New("rate limit requires a redis address")
	}
	if limitCfg.ActionsRate <= 0 || limitCfg.ActionsBurst <= 0 {
		return nil, errors.New("actions rate limit must be positive")
	}
	return &ActionLimiter{
		enabled: true,
		bucket:  NewTokenBucket(client),
		rate:    limitCfg.ActionsRate,
		burst:   limitCfg.ActionsBurst,
	}, nil
}

func (l *ActionLimiter) Enabled() bool {
	return l != nil && l.enabled
}

func (l *ActionLimiter) Allow(ctx context.Context, accountID snowflake.ID) (*Result, error) {
	if !l.Enabled() {
		return &Result{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyActionsAccount, accountID.String()), l.rate, l.burst)
}

// SweepLock serializes the stale refund sweep across replicas. The sweep
// is idempotent, so a lost lock only costs duplicate reads.
type SweepLock struct {
	lock *Lock
	ttl  time.Duration
}

func NewSweepLock(cfg config.Config, client *redis.Client) *SweepLock {
	if client == nil {
		return nil
	}
	ttl := time.Duration(cfg.RateLimit.SweepLockTTLS) * time.Second
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &SweepLock{
		lock: NewLock(client, keySweepLock),
		ttl:  ttl,
	}
}

// Acquire reports whether this replica should run the sweep. A nil lock
// always grants, so single-node deployments run without redis.
func (s *SweepLock) Acquire(ctx context.Context) (string, bool, error) {
	if s == nil || s.lock == nil {
		return "", true, nil
	}
	return s.lock.Acquire(ctx, s.ttl)
}

func (s *SweepLock) Release(ctx context.Context, token string) error {
	if s == nil || s.lock == nil {
		return nil
	}
	return s.lock.Release(ctx, token)
}
