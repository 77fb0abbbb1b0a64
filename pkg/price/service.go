// 文件: pkg/price/service.go
// 价格服务 - 接口与内存实现
//
// 市价单按执行时刻的报价成交, 不做滑点保护:
// 报价拿不到就让本次下单失败, 不在请求内静默重试 (调用方自行重新提交)

package price

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrPriceUnavailable = errors.New("price unavailable")

// Quote 单资产报价
type Quote struct {
	Asset string    `json:"asset"`
	Price int64     `json:"price"` // 1e8 定点数
	AsOf  time.Time `json:"as_of"`
}

// Source 价格源
// 实现: MemoryService (进程内), RedisStore (跨进程共享缓存)
type Source interface {
	// GetCurrentPrice 获取当前报价, 无报价或报价过期返回 ErrPriceUnavailable
	GetCurrentPrice(ctx context.Context, asset string) (Quote, error)
}

// Sink 价格写入端, 行情订阅器往这里推
type Sink interface {
	SetPrice(ctx context.Context, asset string, price int64) error
}

// =============================================================================
// MemoryService - 进程内价格服务
// =============================================================================

// MemoryService 进程内价格表
// 单进程部署和测试用; 支持价格更新回调 (通知旁路系统)
type MemoryService struct {
	mu     sync.RWMutex
	quotes map[string]Quote

	onUpdate func(q Quote)
}

// NewMemoryService 创建内存价格服务
func NewMemoryService() *MemoryService {
	return &MemoryService{
		quotes: make(map[string]Quote),
	}
}

var (
	_ Source = (*MemoryService)(nil)
	_ Sink   = (*MemoryService)(nil)
)

// GetCurrentPrice 获取当前报价
func (s *MemoryService) GetCurrentPrice(_ context.Context, asset string) (Quote, error) {
	s.mu.RLock()
	q, ok := s.quotes[asset]
	s.mu.RUnlock()

	if !ok || q.Price <= 0 {
		return Quote{}, ErrPriceUnavailable
	}
	return q, nil
}

// SetPrice 更新报价
func (s *MemoryService) SetPrice(_ context.Context, asset string, price int64) error {
	q := Quote{Asset: asset, Price: price, AsOf: time.Now()}

	s.mu.Lock()
	s.quotes[asset] = q
	s.mu.Unlock()

	if s.onUpdate != nil {
		s.onUpdate(q)
	}
	return nil
}

// OnUpdate 设置价格更新回调
func (s *MemoryService) OnUpdate(callback func(q Quote)) {
	s.onUpdate = callback
}

// GetAll 获取全部报价 (快照副本)
func (s *MemoryService) GetAll() map[string]Quote {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]Quote, len(s.quotes))
	for k, v := range s.quotes {
		result[k] = v
	}
	return result
}

// =============================================================================
// 批量查价
// =============================================================================

// FetchQuotes 按资产列表批量取价
// 组合估值用: 任何一个资产缺价都整体失败, 估值不能只算一半
func FetchQuotes(ctx context.Context, src Source, assets []string) (map[string]Quote, error) {
	quotes := make(map[string]Quote, len(assets))
	for _, asset := range assets {
		q, err := src.GetCurrentPrice(ctx, asset)
		if err != nil {
			return nil, err
		}
		quotes[asset] = q
	}
	return quotes, nil
}
