// 文件: pkg/price/price_test.go
// 价格服务测试

package price

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moon.com/pkg/fund"
)

// =============================================================================
// 内存价格服务
// =============================================================================

// TestMemoryService_SetGet 基本读写与不可用语义
func TestMemoryService_SetGet(t *testing.T) {
	s := NewMemoryService()
	ctx := context.Background()

	// 无报价
	_, err := s.GetCurrentPrice(ctx, "BTC")
	assert.ErrorIs(t, err, ErrPriceUnavailable)

	require.NoError(t, s.SetPrice(ctx, "BTC", fund.ToFixed(50000)))

	q, err := s.GetCurrentPrice(ctx, "BTC")
	require.NoError(t, err)
	assert.Equal(t, "BTC", q.Asset)
	assert.Equal(t, fund.ToFixed(50000), q.Price)
	assert.False(t, q.AsOf.IsZero())

	// 非正价格视为不可用
	require.NoError(t, s.SetPrice(ctx, "JUNK", 0))
	_, err = s.GetCurrentPrice(ctx, "JUNK")
	assert.ErrorIs(t, err, ErrPriceUnavailable)
}

// TestMemoryService_OnUpdate 价格更新回调
func TestMemoryService_OnUpdate(t *testing.T) {
	s := NewMemoryService()
	ctx := context.Background()

	var got []Quote
	s.OnUpdate(func(q Quote) { got = append(got, q) })

	require.NoError(t, s.SetPrice(ctx, "ETH", fund.ToFixed(2000)))
	require.NoError(t, s.SetPrice(ctx, "ETH", fund.ToFixed(2100)))

	require.Len(t, got, 2)
	assert.Equal(t, fund.ToFixed(2100), got[1].Price)
}

// TestFetchQuotes 批量取价整体成败
func TestFetchQuotes(t *testing.T) {
	s := NewMemoryService()
	ctx := context.Background()

	require.NoError(t, s.SetPrice(ctx, "BTC", fund.ToFixed(50000)))
	require.NoError(t, s.SetPrice(ctx, "XRP", fund.ToFixed(3)))

	quotes, err := FetchQuotes(ctx, s, []string{"BTC", "XRP"})
	require.NoError(t, err)
	assert.Len(t, quotes, 2)
	assert.Equal(t, fund.ToFixed(3), quotes["XRP"].Price)

	// 缺一个就整体失败
	_, err = FetchQuotes(ctx, s, []string{"BTC", "ETH"})
	assert.ErrorIs(t, err, ErrPriceUnavailable)

	// 空列表
	quotes, err = FetchQuotes(ctx, s, nil)
	require.NoError(t, err)
	assert.Empty(t, quotes)
}

// =============================================================================
// 资产目录
// =============================================================================

// TestStaticCatalog 静态目录查询
func TestStaticCatalog(t *testing.T) {
	c := NewStaticCatalog(
		&AssetSpec{Asset: "BTC", Status: AssetStatusTrading, MinOrderQty: 1000},
		&AssetSpec{Asset: "LUNA", Status: AssetStatusDelisted},
	)

	spec, ok := c.Get("BTC")
	require.True(t, ok)
	assert.True(t, spec.Tradable())
	assert.Equal(t, int64(1000), spec.MinOrderQty)

	spec, ok = c.Get("LUNA")
	require.True(t, ok)
	assert.False(t, spec.Tradable())

	_, ok = c.Get("NOPE")
	assert.False(t, ok)

	assert.True(t, c.IsTradable("BTC"))
	assert.False(t, c.IsTradable("LUNA"))
	assert.False(t, c.IsTradable("NOPE"))
}

// TestAssetStatus_String 状态可读名
func TestAssetStatus_String(t *testing.T) {
	assert.Equal(t, "TRADING", AssetStatusTrading.String())
	assert.Equal(t, "HALTED", AssetStatusHalted.String())
}

// =============================================================================
// 模拟行情
// =============================================================================

// TestSimTicker_PositivePrices GBM 生成的价格恒正且持续更新
func TestSimTicker_PositivePrices(t *testing.T) {
	s := NewMemoryService()

	var updates atomic.Int64
	s.OnUpdate(func(q Quote) {
		updates.Add(1)
		if q.Price <= 0 {
			t.Errorf("non-positive price generated: %d", q.Price)
		}
	})

	tk := NewSimTicker("BTC", 50000, 5*time.Millisecond, s)
	tk.Start()
	time.Sleep(100 * time.Millisecond)
	tk.Stop()

	assert.Greater(t, updates.Load(), int64(5))
}

// =============================================================================
// Redis 缓存集成测试 (需要本机 Redis)
// =============================================================================

func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	rdb := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	return rdb
}

// TestRedisStore_RoundTrip 写读闭环与缺失语义
func TestRedisStore_RoundTrip(t *testing.T) {
	rdb := setupRedis(t)
	defer rdb.Close()

	s := NewRedisStore(rdb, DefaultRedisStoreConfig())
	ctx := context.Background()

	require.NoError(t, s.SetPrice(ctx, "IT_BTC", fund.ToFixed(50000)))

	q, err := s.GetCurrentPrice(ctx, "IT_BTC")
	require.NoError(t, err)
	assert.Equal(t, fund.ToFixed(50000), q.Price)

	_, err = s.GetCurrentPrice(ctx, "IT_MISSING")
	assert.ErrorIs(t, err, ErrPriceUnavailable)
}

// TestRedisStore_Staleness 停更报价过 MaxAge 后不可用
func TestRedisStore_Staleness(t *testing.T) {
	rdb := setupRedis(t)
	defer rdb.Close()

	cfg := DefaultRedisStoreConfig()
	cfg.MaxAge = 50 * time.Millisecond
	s := NewRedisStore(rdb, cfg)
	ctx := context.Background()

	require.NoError(t, s.SetPrice(ctx, "IT_STALE", fund.ToFixed(1)))

	_, err := s.GetCurrentPrice(ctx, "IT_STALE")
	require.NoError(t, err)

	time.Sleep(80 * time.Millisecond)

	_, err = s.GetCurrentPrice(ctx, "IT_STALE")
	assert.ErrorIs(t, err, ErrPriceUnavailable)
}
