package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"EstouBem/storage/redis"
)

// 基于 SET NX PX 的分布式锁，value 为持有者 token，释放时比对 token 再删除，避免误删他人的锁
const (
	lockPrefix = "lock"
)

var unlockScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// Locker 按 key 互斥，跨进程生效
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	Unlock(ctx context.Context, key, token string) error
}

// TryLock 获取锁，ok=false 表示锁被其他持有者占用
func TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	fullKey := redis.Key(lockPrefix, key)

	ok, err := redis.Client().SetNX(ctx, fullKey, token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// Unlock 仅当 token 匹配时删除；锁已过期或被他人持有时静默返回
func Unlock(ctx context.Context, key, token string) error {
	fullKey := redis.Key(lockPrefix, key)

	if err := unlockScript.Run(ctx, redis.Client(), []string{fullKey}, token).Err(); err != nil {
		return fmt.Errorf("failed to release lock %s: %w", key, err)
	}
	return nil
}

// RedisLocker 将包级函数适配为 Locker
type RedisLocker struct{}

func (RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	return TryLock(ctx, key, ttl)
}

func (RedisLocker) Unlock(ctx context.Context, key, token string) error {
	return Unlock(ctx, key, token)
}

// NotifyLockKey 每个用户的通知互斥 key
func NotifyLockKey(userID string) string {
	return "notify:" + userID
}
