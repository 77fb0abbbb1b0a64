// 文件: pkg/fund/reconciler.go
// 账本模块 - 修复 worker
//
// 消费修复任务, 把越过"不可回退点"但没走完的订单补写完整:
// - 现金变更永不回滚 (它可能已经和账户上的其他活动交织)
// - 剩余写入全部以 order_id 为幂等键, 重复执行安全
//
// 从 Kafka 消费, 改编自冷资产写入器的消费-落库模式

package fund

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"moon.com/pkg/kafka"
)

// OrderFinalizer 订单终态写入
// 窄接口, 避免 fund 依赖 order 包; 实现方是 order.MySQLOrderRepository 的包装
type OrderFinalizer interface {
	MarkCompleted(ctx context.Context, orderID, price, total int64) error
}

// ReconcilerConfig 修复 worker 配置
type ReconcilerConfig struct {
	Brokers []string // Kafka brokers
	GroupID string   // 消费者组
}

// DefaultReconcilerConfig 默认配置
func DefaultReconcilerConfig(brokers []string) ReconcilerConfig {
	return ReconcilerConfig{
		Brokers: brokers,
		GroupID: "ledger_reconciler",
	}
}

// ReconcilerStats 修复统计
type ReconcilerStats struct {
	ReceivedCount int64
	RepairedCount int64
	ErrorCount    int64
}

// Reconciler 修复 worker
type Reconciler struct {
	assets    *AssetRepo
	txs       *TransactionRepo
	finalizer OrderFinalizer
	newTxID   func() int64 // 雪花ID生成, 由装配方注入
	consumer  *kafka.Consumer

	received atomic.Int64
	repaired atomic.Int64
	errors   atomic.Int64
}

// NewReconciler 创建修复 worker
func NewReconciler(cfg ReconcilerConfig, assets *AssetRepo, txs *TransactionRepo, finalizer OrderFinalizer, newTxID func() int64) (*Reconciler, error) {
	r := &Reconciler{
		assets:    assets,
		txs:       txs,
		finalizer: finalizer,
		newTxID:   newTxID,
	}

	consumerCfg := kafka.DefaultConsumerConfig(cfg.Brokers, cfg.GroupID, []string{TopicReconcileTasks})
	consumerCfg.OffsetInitial = kafka.OffsetOldest // 任务不能丢

	consumer, err := kafka.NewConsumer(consumerCfg, r.handleMessage)
	if err != nil {
		return nil, fmt.Errorf("create consumer: %w", err)
	}
	r.consumer = consumer

	return r, nil
}

// Start 启动消费
func (r *Reconciler) Start() {
	r.consumer.Start()
}

// Stop 停止消费
func (r *Reconciler) Stop() error {
	return r.consumer.Stop()
}

// Stats 获取统计
func (r *Reconciler) Stats() ReconcilerStats {
	return ReconcilerStats{
		ReceivedCount: r.received.Load(),
		RepairedCount: r.repaired.Load(),
		ErrorCount:    r.errors.Load(),
	}
}

func (r *Reconciler) handleMessage(_ string, _ int32, _ int64, _, value []byte) error {
	var task ReconcileTask
	if err := task.FromJSON(value); err != nil {
		r.errors.Add(1)
		return fmt.Errorf("unmarshal reconcile task: %w", err)
	}

	r.received.Add(1)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := r.Repair(ctx, &task); err != nil {
		r.errors.Add(1)
		// 返回错误只记日志, 任务保留在统计里等下一轮投递
		return fmt.Errorf("repair order %d: %w", task.OrderID, err)
	}

	r.repaired.Add(1)
	log.Printf("[Reconciler] repaired order %d (user=%s, step=%s)", task.OrderID, task.Username, task.Step)
	return nil
}

// Repair 执行一次修复
// 任意步骤重复执行安全, 可被多次投递
func (r *Reconciler) Repair(ctx context.Context, task *ReconcileTask) error {
	step := task.Step

	if step == StepAssetWrite {
		if err := r.repairAssetWrite(ctx, task); err != nil {
			return err
		}
		step = StepAuditWrite
	}

	if step == StepAuditWrite {
		if err := r.repairAuditWrite(ctx, task); err != nil {
			return err
		}
		step = StepOrderStatus
	}

	return r.finalizer.MarkCompleted(ctx, task.OrderID, task.Price, task.TotalAmount)
}

// repairAssetWrite 补资产余额变更
// 以资产流水行是否存在作为"已变更"的标记: 协议保证流水总在资产变更之后写入。
// 如果原始失败是"写入结果未知"(超时), 这里存在一次重复加减的残余风险,
// 与锁租约一样属于记录在案的取舍
func (r *Reconciler) repairAssetWrite(ctx context.Context, task *ReconcileTask) error {
	existing, err := r.txs.GetAssetTxByOrder(ctx, task.OrderID)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil // 流水已存在, 说明资产变更 + 流水都已落库
	}

	if task.OrderType == "MARKET_SELL" {
		_, err = r.assets.Debit(ctx, task.Username, task.Asset, task.Quantity)
		if errors.Is(err, ErrInsufficientAsset) {
			// 持仓守卫拒绝: 大概率是原次写入其实已生效。人工对账兜底
			log.Printf("[RECONCILE] order %d: asset debit rejected, likely already applied (user=%s asset=%s qty=%d)",
				task.OrderID, task.Username, task.Asset, task.Quantity)
			err = nil
		}
	} else {
		_, err = r.assets.Credit(ctx, task.Username, task.Asset, task.Quantity)
	}
	return err
}

// repairAuditWrite 补流水行 (INSERT IGNORE, 天然幂等)
func (r *Reconciler) repairAuditWrite(ctx context.Context, task *ReconcileTask) error {
	orderID := task.OrderID

	assetType := AssetTxBuy
	balanceType := BalanceTxOrderPayment
	balanceAmount := -task.TotalAmount
	if task.OrderType == "MARKET_SELL" {
		assetType = AssetTxSell
		balanceType = BalanceTxOrderProceeds
		balanceAmount = task.TotalAmount
	}

	if err := r.txs.InsertAssetTx(ctx, &AssetTransaction{
		TxID:        r.newTxID(),
		Username:    task.Username,
		Asset:       task.Asset,
		Type:        assetType,
		Quantity:    task.Quantity,
		Price:       task.Price,
		TotalAmount: task.TotalAmount,
		OrderID:     orderID,
		CreatedAt:   time.Now(),
	}); err != nil {
		return err
	}

	return r.txs.InsertBalanceTx(ctx, &BalanceTransaction{
		TxID:             r.newTxID(),
		Username:         task.Username,
		Type:             balanceType,
		Amount:           balanceAmount,
		ResultingBalance: task.ResultingBalance,
		OrderID:          &orderID,
		CreatedAt:        time.Now(),
	})
}
