// 文件: pkg/spot/stores.go
// 现货交易 - 存储接口
//
// 执行器只依赖接口: 生产装配 fund 的 GORM 仓库, 测试/模拟器装配内存实现。
// 接口语义即"单行条件写": Debit 自带非负守卫, 拒绝时无任何变更

package spot

import (
	"context"

	"moon.com/pkg/fund"
)

// BalanceStore 现金余额存储
type BalanceStore interface {
	Get(ctx context.Context, username string) (*fund.BalanceRecord, error)
	Credit(ctx context.Context, username string, amount int64) (int64, error)
	Debit(ctx context.Context, username string, amount int64) (int64, error)
}

// AssetStore 资产余额存储
type AssetStore interface {
	Get(ctx context.Context, username, asset string) (*fund.AssetBalanceRecord, error)
	GetAllByUser(ctx context.Context, username string) ([]*fund.AssetBalanceRecord, error)
	Credit(ctx context.Context, username, asset string, qty int64) (int64, error)
	Debit(ctx context.Context, username, asset string, qty int64) (int64, error)
}

// TransactionStore 流水存储 (按 order_id 幂等)
type TransactionStore interface {
	InsertBalanceTx(ctx context.Context, tx *fund.BalanceTransaction) error
	InsertAssetTx(ctx context.Context, tx *fund.AssetTransaction) error
	GetBalanceTxByOrder(ctx context.Context, orderID int64) (*fund.BalanceTransaction, error)
	GetAssetTxByOrder(ctx context.Context, orderID int64) (*fund.AssetTransaction, error)
}

// EventSink 账本事件出口 (Kafka), 可选装配
type EventSink interface {
	PublishBalanceTx(tx *fund.BalanceTransaction) error
	PublishAssetTx(tx *fund.AssetTransaction) error
	PublishReconcileTask(task *fund.ReconcileTask) error
}

// EventBus 订单生命周期事件出口 (NATS), 可选装配
type EventBus interface {
	Publish(subject string, data any) error
}

// GORM 仓库满足存储接口
var (
	_ BalanceStore     = (*fund.BalanceRepo)(nil)
	_ AssetStore       = (*fund.AssetRepo)(nil)
	_ TransactionStore = (*fund.TransactionRepo)(nil)
	_ EventSink        = (*fund.EventPublisher)(nil)
)
