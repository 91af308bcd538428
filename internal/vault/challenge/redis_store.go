package challenge

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// RedisStore 基于 Redis 的分布式实现
// 多副本部署时 challenge 的一次性语义需要共享存储
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore 创建 Redis 存储
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Get 读取键
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "failed to get key from redis")
	}
	return value, true, nil
}

// Put 写入键值，TTL 由 Redis 负责过期
func (s *RedisStore) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return errors.Wrap(err, "failed to set key in redis")
	}
	return nil
}

// Expire 删除键
func (s *RedisStore) Expire(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return errors.Wrap(err, "failed to delete key from redis")
	}
	return nil
}

// Consume GETDEL 原子取出并删除，多副本并发消费同一键只有一个成功
func (s *RedisStore) Consume(ctx context.Context, key string) (bool, error) {
	err := s.client.GetDel(ctx, key).Err()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "failed to consume key from redis")
	}
	return true, nil
}
