package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// releaseScript 仅在持有者令牌匹配时删除键，避免释放他人持有的锁
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// ErrNotAcquired 锁已被其他进程持有
var ErrNotAcquired = errors.New("lock already held")

// Config Redis配置
type Config struct {
	Host     string
	Port     int
	Password string
	DB       int
	Prefix   string
}

// RedisLocker 基于 SET NX PX 的分布式锁
type RedisLocker struct {
	client *redis.Client
	prefix string
}

// NewRedisLocker 创建Redis锁实例
func NewRedisLocker(config *Config) *RedisLocker {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", config.Host, config.Port),
		Password: config.Password,
		DB:       config.DB,
	})
	return NewRedisLockerWithClient(client, config.Prefix)
}

// NewRedisLockerWithClient 使用已有客户端创建锁
func NewRedisLockerWithClient(client *redis.Client, prefix string) *RedisLocker {
	if prefix == "" {
		prefix = "sales_admin"
	}
	return &RedisLocker{
		client: client,
		prefix: prefix,
	}
}

// Acquire 尝试获取锁，成功时返回释放函数
func (l *RedisLocker) Acquire(ctx context.Context, name string, ttl time.Duration) (func(), error) {
	key := l.key(name)
	token := uuid.New().String()

	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, ErrNotAcquired
	}

	release := func() {
		// 释放使用独立上下文，调用方上下文可能已取消
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		releaseScript.Run(releaseCtx, l.client, []string{key}, token)
	}
	return release, nil
}

// Ping 测试Redis连接
func (l *RedisLocker) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

// Close 关闭Redis连接
func (l *RedisLocker) Close() error {
	return l.client.Close()
}

func (l *RedisLocker) key(name string) string {
	return l.prefix + ":lock:" + name
}
