// internal/pkg/lock/redis.go
package lock

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// 只有持有者本人才能删除租约，防止误删其他实例在 TTL 过期后重新获取的租约
var releaseScript = redis.NewScript(`
-- KEYS[1]: 租约 key
-- ARGV[1]: 持有者标识
if redis.call('get', KEYS[1]) == ARGV[1] then
    return redis.call('del', KEYS[1])
end
return 0
`)

// RedisLocker 基于 SET NX PX 的租约实现
type RedisLocker struct {
	client redis.UniversalClient
	key    string
	owner  string
	ttl    time.Duration
}

// NewRedisLocker 创建租约；ttl 应大于一次轮询的最长耗时
func NewRedisLocker(client redis.UniversalClient, key string, ttl time.Duration) *RedisLocker {
	return &RedisLocker{
		client: client,
		key:    key,
		owner:  ownerID(),
		ttl:    ttl,
	}
}

func (l *RedisLocker) TryLock(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.owner, l.ttl).Result()
	if err != nil {
		return false, errors.Wrapf(err, "acquire redis lease %s", l.key)
	}
	return ok, nil
}

func (l *RedisLocker) Unlock(ctx context.Context) error {
	if err := releaseScript.Run(ctx, l.client, []string{l.key}, l.owner).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return errors.Wrapf(err, "release redis lease %s", l.key)
	}
	return nil
}

func (l *RedisLocker) Close() error {
	return l.client.Close()
}
