// 文件: pkg/order/repository.go
package order

import "context"

type Repository interface {
	// 创建
	Create(ctx context.Context, order *Order) error

	// 查询
	GetByOrderID(ctx context.Context, orderID int64) (*Order, error)
	GetByUser(ctx context.Context, username string, limit int) ([]*Order, error)

	// 终态写入 (条件更新, 只允许从 PENDING 迁移; 重复调用幂等)
	MarkCompleted(ctx context.Context, orderID, executionPrice, totalAmount int64) error
	MarkFailed(ctx context.Context, orderID int64, reason string) error
}
