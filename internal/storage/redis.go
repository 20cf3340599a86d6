package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore Redis 存储层，保存长轮询游标等易失状态
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore 创建 Redis 存储实例
func NewRedisStore(addr, password string, db int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return &RedisStore{client: client}, nil
}

// Close 关闭 Redis 连接
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// keyUpdateOffset 长轮询游标 String
const keyUpdateOffset = "update_offset"

// UpdateOffset 读取长轮询游标，未设置时返回 0
//
// 游标落在 Redis 而非内存，重启后不会重放已处理的更新。
func (s *RedisStore) UpdateOffset(ctx context.Context) (int64, error) {
	offset, err := s.client.Get(ctx, keyUpdateOffset).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read update offset: %w", err)
	}
	return offset, nil
}

// SetUpdateOffset 写入长轮询游标
func (s *RedisStore) SetUpdateOffset(ctx context.Context, offset int64) error {
	if err := s.client.Set(ctx, keyUpdateOffset, offset, 0).Err(); err != nil {
		return fmt.Errorf("failed to save update offset: %w", err)
	}
	return nil
}
