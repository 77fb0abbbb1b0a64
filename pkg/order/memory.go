// 文件: pkg/order/memory.go
package order

import (
	"context"
	"sync"
	"time"
)

// MemoryRepository 内存订单仓库, 终态迁移语义与 MySQL 版一致
type MemoryRepository struct {
	mu     sync.Mutex
	orders map[int64]*Order
	seq    []int64 // 插入顺序
}

// NewMemoryRepository 创建内存仓库
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{orders: make(map[int64]*Order)}
}

var _ Repository = (*MemoryRepository)(nil)

func (r *MemoryRepository) Create(ctx context.Context, o *Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := *o
	r.orders[o.OrderID] = &stored
	r.seq = append(r.seq, o.OrderID)
	return nil
}

func (r *MemoryRepository) GetByOrderID(ctx context.Context, orderID int64) (*Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[orderID]
	if !ok {
		return nil, nil
	}
	copied := *o
	return &copied, nil
}

func (r *MemoryRepository) GetByUser(ctx context.Context, username string, limit int) ([]*Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*Order
	// 新单在前
	for i := len(r.seq) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if o := r.orders[r.seq[i]]; o.Username == username {
			copied := *o
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *MemoryRepository) MarkCompleted(ctx context.Context, orderID, executionPrice, totalAmount int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[orderID]
	if !ok || o.Status != StatusPending {
		return nil
	}
	o.Status = StatusCompleted
	o.ExecutionPrice = executionPrice
	o.TotalAmount = totalAmount
	o.CompletedAt = time.Now().UnixMilli()
	return nil
}

func (r *MemoryRepository) MarkFailed(ctx context.Context, orderID int64, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[orderID]
	if !ok || o.Status != StatusPending {
		return nil
	}
	o.Status = StatusFailed
	o.Reason = reason
	o.CompletedAt = time.Now().UnixMilli()
	return nil
}
