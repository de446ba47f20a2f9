package api

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "careerhub:"

// loginGuard 基于 Redis 的登录限流与连续失败锁定。Redis 不可用时放行。
type loginGuard struct {
	redis     redis.UniversalClient
	perHour   int
	lockAfter int
	lockTTL   time.Duration
	now       func() time.Time
}

func newLoginGuard(client redis.UniversalClient, perHour, lockAfter int, lockTTL time.Duration) *loginGuard {
	if lockTTL <= 0 {
		lockTTL = 15 * time.Minute
	}
	return &loginGuard{
		redis:     client,
		perHour:   perHour,
		lockAfter: lockAfter,
		lockTTL:   lockTTL,
		now:       time.Now,
	}
}

func (g *loginGuard) attemptsKey(ip, email string) string {
	return fmt.Sprintf("%slogin:attempts:%s:%s:%s", redisKeyPrefix, g.now().UTC().Format("2006010215"), ip, email)
}

func failuresKey(email string) string { return redisKeyPrefix + "login:failures:" + email }
func lockKey(email string) string     { return redisKeyPrefix + "login:lock:" + email }

// bump 原子地自增计数并在首次写入时设置过期时间。
func (g *loginGuard) bump(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	var incr *redis.IntCmd
	_, err := g.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// allow 记录一次登录尝试，超过每小时上限时返回 false。
func (g *loginGuard) allow(ctx context.Context, ip, email string) bool {
	if g.perHour <= 0 {
		return true
	}
	count, err := g.bump(ctx, g.attemptsKey(ip, email), time.Hour)
	if err != nil {
		return true
	}
	return count <= int64(g.perHour)
}

func (g *loginGuard) locked(ctx context.Context, email string) bool {
	ttl, err := g.redis.TTL(ctx, lockKey(email)).Result()
	return err == nil && ttl > 0
}

// recordFailure 累计失败次数，达到阈值后锁定账号 lockTTL。
func (g *loginGuard) recordFailure(ctx context.Context, email string) error {
	count, err := g.bump(ctx, failuresKey(email), g.lockTTL)
	if err != nil {
		return err
	}
	if g.lockAfter > 0 && count >= int64(g.lockAfter) {
		return g.redis.Set(ctx, lockKey(email), "1", g.lockTTL).Err()
	}
	return nil
}

func (g *loginGuard) reset(ctx context.Context, email string) {
	_ = g.redis.Del(ctx, failuresKey(email)).Err()
}

// refreshRevocations 记录已作废的刷新令牌 jti，直到令牌自然过期。
type refreshRevocations struct {
	redis      redis.UniversalClient
	defaultTTL time.Duration
}

func revokedKey(jti string) string { return redisKeyPrefix + "auth:refresh:revoked:" + jti }

func (r refreshRevocations) revoke(ctx context.Context, jti string, expiresAt *jwt.NumericDate) error {
	ttl := r.defaultTTL
	if expiresAt != nil {
		ttl = time.Until(expiresAt.Time)
	}
	if ttl <= 0 {
		ttl = time.Second
	}
	return r.redis.Set(ctx, revokedKey(jti), "revoked", ttl).Err()
}

func (r refreshRevocations) isRevoked(ctx context.Context, jti string) (bool, error) {
	err := r.redis.Get(ctx, revokedKey(jti)).Err()
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, redis.Nil):
		return false, nil
	default:
		return false, err
	}
}
