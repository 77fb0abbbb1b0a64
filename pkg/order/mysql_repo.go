// 文件: pkg/order/mysql_repo.go
package order

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type MySQLRepository struct {
	db *gorm.DB
}

func NewMySQLRepository(db *gorm.DB) *MySQLRepository {
	return &MySQLRepository{db: db}
}

var _ Repository = (*MySQLRepository)(nil)

func (r *MySQLRepository) Create(ctx context.Context, order *Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

// GetByOrderID 查询订单, 不存在返回 nil
func (r *MySQLRepository) GetByOrderID(ctx context.Context, orderID int64) (*Order, error) {
	var order Order
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&order).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *MySQLRepository) GetByUser(ctx context.Context, username string, limit int) ([]*Order, error) {
	var orders []*Order
	err := r.db.WithContext(ctx).
		Where("username = ?", username).
		Order("created_at DESC").
		Limit(limit).
		Find(&orders).Error
	return orders, err
}

// MarkCompleted 写入成交终态
// WHERE status = PENDING: 终态只设置一次, 对已完成订单重复调用是 no-op
func (r *MySQLRepository) MarkCompleted(ctx context.Context, orderID, executionPrice, totalAmount int64) error {
	return r.db.WithContext(ctx).
		Model(&Order{}).
		Where("order_id = ? AND status = ?", orderID, StatusPending).
		Updates(map[string]any{
			"status":          StatusCompleted,
			"execution_price": executionPrice,
			"total_amount":    totalAmount,
			"completed_at":    time.Now().UnixMilli(),
		}).Error
}

// MarkFailed 写入失败终态
func (r *MySQLRepository) MarkFailed(ctx context.Context, orderID int64, reason string) error {
	return r.db.WithContext(ctx).
		Model(&Order{}).
		Where("order_id = ? AND status = ?", orderID, StatusPending).
		Updates(map[string]any{
			"status":       StatusFailed,
			"reason":       reason,
			"completed_at": time.Now().UnixMilli(),
		}).Error
}
