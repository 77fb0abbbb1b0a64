// 文件: pkg/price/redis_store.go
// 价格服务 - Redis 共享缓存实现
//
// 多实例部署时行情进程写, 交易进程读。
// 报价带写入时间, 超过 MaxAge 视为不可用 (停更的价格比没有价格更危险)

package price

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStoreConfig Redis 价格缓存配置
type RedisStoreConfig struct {
	// MaxAge 报价最大可用年龄, 超过视为过期
	MaxAge time.Duration

	// KeyTTL Redis key 过期时间, 兜底清理停更的资产
	KeyTTL time.Duration
}

// DefaultRedisStoreConfig 默认配置
func DefaultRedisStoreConfig() RedisStoreConfig {
	return RedisStoreConfig{
		MaxAge: 30 * time.Second,
		KeyTTL: 5 * time.Minute,
	}
}

// RedisStore Redis 价格缓存
type RedisStore struct {
	client *redis.Client
	config RedisStoreConfig
}

// NewRedisStore 创建 Redis 价格缓存
func NewRedisStore(client *redis.Client, cfg RedisStoreConfig) *RedisStore {
	return &RedisStore{client: client, config: cfg}
}

var (
	_ Source = (*RedisStore)(nil)
	_ Sink   = (*RedisStore)(nil)
)

func priceKey(asset string) string {
	return "price:" + asset
}

// SetPrice 写入报价
func (s *RedisStore) SetPrice(ctx context.Context, asset string, price int64) error {
	q := Quote{Asset: asset, Price: price, AsOf: time.Now()}
	data, err := json.Marshal(q)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, priceKey(asset), data, s.config.KeyTTL).Err()
}

// GetCurrentPrice 读取报价
func (s *RedisStore) GetCurrentPrice(ctx context.Context, asset string) (Quote, error) {
	data, err := s.client.Get(ctx, priceKey(asset)).Bytes()
	if err == redis.Nil {
		return Quote{}, ErrPriceUnavailable
	}
	if err != nil {
		return Quote{}, err
	}

	var q Quote
	if err := json.Unmarshal(data, &q); err != nil {
		return Quote{}, err
	}

	if q.Price <= 0 || time.Since(q.AsOf) > s.config.MaxAge {
		return Quote{}, ErrPriceUnavailable
	}
	return q, nil
}
