package database

import (
	"sync"

	"salesadmin/pkg/config"
	"salesadmin/pkg/lock"
)

var (
	redisLockerInstance *lock.RedisLocker
	redisLockerOnce     sync.Once
)

// GetRedisLocker 获取Redis锁的单例实例，未启用Redis时返回nil
func GetRedisLocker() *lock.RedisLocker {
	cfg := config.GetConfig()
	if !cfg.Redis.Enabled {
		return nil
	}
	redisLockerOnce.Do(func() {
		redisLockerInstance = lock.NewRedisLocker(&lock.Config{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		})
	})
	return redisLockerInstance
}

// CloseRedis 关闭Redis连接
func CloseRedis() error {
	if redisLockerInstance != nil {
		return redisLockerInstance.Close()
	}
	return nil
}
