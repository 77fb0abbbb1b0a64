// 文件: pkg/order/model.go
// 订单模型 - 市价单
//
// 状态机只有三个状态: PENDING → COMPLETED | FAILED, 终态只设置一次。
// 终态写入用条件更新 (WHERE status = PENDING) 保证, 不依赖调用方自律

package order

import "time"

// =============================================================================
// 订单状态
// =============================================================================

type Status int8

const (
	StatusPending   Status = iota // 执行中
	StatusCompleted               // 已成交
	StatusFailed                  // 已失败
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "PENDING"
	case StatusCompleted:
		return "COMPLETED"
	case StatusFailed:
		return "FAILED"
	}
	return "UNKNOWN"
}

// =============================================================================
// 订单类型
// =============================================================================

type Type int8

const (
	TypeMarketBuy  Type = iota + 1 // 市价买入
	TypeMarketSell                 // 市价卖出
)

func (t Type) String() string {
	switch t {
	case TypeMarketBuy:
		return "MARKET_BUY"
	case TypeMarketSell:
		return "MARKET_SELL"
	}
	return "UNKNOWN"
}

// =============================================================================
// Order - 订单
// =============================================================================

type Order struct {
	ID      uint  `gorm:"primaryKey;autoIncrement"`
	OrderID int64 `gorm:"column:order_id;uniqueIndex"` // 雪花ID

	Username string `gorm:"column:username;index:idx_user_created"`
	Asset    string `gorm:"column:asset;type:varchar(32)"`
	Type     Type   `gorm:"column:order_type"`

	// 数量与成交信息 (1e8 定点数)
	Quantity       int64 `gorm:"column:quantity"`
	ExecutionPrice int64 `gorm:"column:execution_price"` // 成交前为 0
	TotalAmount    int64 `gorm:"column:total_amount"`    // quantity × price

	Status Status `gorm:"column:status;index"`
	Reason string `gorm:"column:reason;type:varchar(128)"` // 失败原因, 成功为空

	CreatedAt   int64 `gorm:"column:created_at;index:idx_user_created"` // Unix 毫秒
	CompletedAt int64 `gorm:"column:completed_at"`                      // 终态时间, 0 表示未到终态
}

func (Order) TableName() string {
	return "orders"
}

// Terminal 是否已到终态
func (o *Order) Terminal() bool {
	return o.Status == StatusCompleted || o.Status == StatusFailed
}

// New 创建一个待执行订单
func New(username, asset string, orderType Type, quantity int64) *Order {
	return &Order{
		OrderID:   GenerateOrderID(),
		Username:  username,
		Asset:     asset,
		Type:      orderType,
		Quantity:  quantity,
		Status:    StatusPending,
		CreatedAt: time.Now().UnixMilli(),
	}
}
