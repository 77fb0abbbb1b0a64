// 文件: pkg/spot/executor.go
// 现货交易 - 订单执行器
//
// 底层存储没有多行事务, 订单提交靠固定顺序的单行条件写:
//
//   建单(PENDING) → 锁外快检 → 拿用户锁 → 锁内权威复查 → 取执行价
//        → [不可回退点] 现金条件写 → 资产变更 → 流水落库 → 订单终态 → 放锁
//
// 现金条件写是唯一还允许把整单打失败的一步 (守卫在写入时刻再断言一次资金充足)。
// 它之后的写入都以 order_id 为幂等键, 属于"必须最终成功": 有限退避重试,
// 耗尽后订单仍按成交处理, 打上修复标记交给修复 worker ——
// 事后冲正一笔可能已和账户其他活动交织的现金变更, 比一个有标记、
// 终将补齐的流水缺口风险更大。

package spot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"moon.com/pkg/fund"
	"moon.com/pkg/lock"
	"moon.com/pkg/nats"
	"moon.com/pkg/order"
	"moon.com/pkg/price"
)

// =============================================================================
// 配置
// =============================================================================

// ExecutorConfig 执行器配置
type ExecutorConfig struct {
	// LockWait 拿锁的最长等待时间, 超时直接把可重试错误还给调用方
	LockWait time.Duration

	// LeaseMargin 不可回退点之前要求的最小租约余量
	LeaseMargin time.Duration

	// RetryAttempts 不可回退点之后每步写入的最大尝试次数
	RetryAttempts int

	// RetryBackoff 首次重试间隔, 之后逐次翻倍
	RetryBackoff time.Duration
}

// DefaultExecutorConfig 默认配置
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		LockWait:      500 * time.Millisecond,
		LeaseMargin:   time.Second,
		RetryAttempts: 3,
		RetryBackoff:  50 * time.Millisecond,
	}
}

// =============================================================================
// OrderEvent - 订单生命周期事件 (NATS)
// =============================================================================

// OrderEvent 订单事件
type OrderEvent struct {
	OrderID     int64  `json:"order_id"`
	Username    string `json:"username"`
	Asset       string `json:"asset"`
	OrderType   string `json:"order_type"`
	Quantity    int64  `json:"quantity"`
	Price       int64  `json:"price,omitempty"`
	TotalAmount int64  `json:"total_amount,omitempty"`
	Status      string `json:"status"`
	Reason      string `json:"reason,omitempty"`
	At          int64  `json:"at"` // Unix 毫秒
}

// =============================================================================
// Executor - 订单执行器
// =============================================================================

// Executor 订单执行器
// 充值/提现与订单的现金变更走同一个 BalanceStore 守卫, 非负不变量只实现一处
type Executor struct {
	config    ExecutorConfig
	locks     lock.Locker
	validator *Validator
	prices    price.Source
	balances  BalanceStore
	assets    AssetStore
	txs       TransactionStore
	orders    order.Repository

	events EventSink // Kafka 流水镜像 + 修复任务, 可为 nil
	bus    EventBus  // NATS 订单事件, 可为 nil
}

// NewExecutor 创建执行器
func NewExecutor(
	cfg ExecutorConfig,
	locks lock.Locker,
	validator *Validator,
	prices price.Source,
	balances BalanceStore,
	assets AssetStore,
	txs TransactionStore,
	orders order.Repository,
) *Executor {
	return &Executor{
		config:    cfg,
		locks:     locks,
		validator: validator,
		prices:    prices,
		balances:  balances,
		assets:    assets,
		txs:       txs,
		orders:    orders,
	}
}

// SetEventSink 设置 Kafka 事件出口
func (e *Executor) SetEventSink(sink EventSink) {
	e.events = sink
}

// SetEventBus 设置 NATS 事件出口
func (e *Executor) SetEventBus(bus EventBus) {
	e.bus = bus
}

// =============================================================================
// 下单
// =============================================================================

// PlaceOrder 执行一笔市价单
// 业务拒绝时返回的 error 可用 errors.Is 判定, 订单行已标记 FAILED;
// 返回 nil error 时订单成交 (极端情况下带修复标记, 但对调用方就是成交)
func (e *Executor) PlaceOrder(ctx context.Context, username, asset string, orderType order.Type, quantity int64) (*order.Order, error) {
	// Step 1: 建单, 状态 PENDING
	o := order.New(username, asset, orderType, quantity)
	if err := e.orders.Create(ctx, o); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	req := Request{Username: username, Asset: asset, Type: orderType, Quantity: quantity}

	// Step 2: 锁外快检, 不合法的请求不参与锁竞争
	if err := e.validator.Check(ctx, req); err != nil {
		return o, e.fail(ctx, o, err)
	}

	// Step 3: 拿用户锁, 有界等待, 超时不排队
	h, err := e.locks.Acquire(ctx, username, "order", e.config.LockWait)
	if err != nil {
		return o, e.fail(ctx, o, err)
	}
	defer e.release(h)

	// Step 4: 锁内权威复查 (新读数)
	if err := e.validator.Check(ctx, req); err != nil {
		return o, e.fail(ctx, o, err)
	}

	// Step 5: 取执行价, 失败不重试, 调用方重新提交
	quote, err := e.prices.GetCurrentPrice(ctx, asset)
	if err != nil {
		return o, e.fail(ctx, o, err)
	}

	total := fund.QuoteValue(quantity, quote.Price)
	if total <= 0 {
		// 数量×价格截断到 0 的微尘单, 成交没有意义
		return o, e.fail(ctx, o, ErrInvalidQuantity)
	}

	// 租约余量检查: 快到期就续约, 续不上就在写入前放弃
	// (本地时钟判断, 不是存储侧 fencing)
	if !h.Alive(e.config.LeaseMargin) {
		if err := e.locks.Extend(ctx, h); err != nil {
			return o, e.fail(ctx, o, lock.ErrLockTimeout)
		}
	}

	// Step 6: 不可回退点 —— 现金条件写
	// 买单扣款的守卫重新断言 amount >= total: 即使权威复查用了过期读数,
	// 余额也不可能被写成负数。被守卫拒绝 = 整单失败, 此时别的什么都没写
	var resulting int64
	if orderType == order.TypeMarketBuy {
		resulting, err = e.balances.Debit(ctx, username, total)
	} else {
		resulting, err = e.balances.Credit(ctx, username, total)
	}
	if err != nil {
		return o, e.fail(ctx, o, err)
	}

	// 此后不再回头: 剩余写入必须最终成功
	e.finish(ctx, o, quote.Price, total, resulting)
	return o, nil
}

// finish 不可回退点之后的提交尾部 (Step 7-9)
// 每步有限重试; 耗尽即打修复标记并继续, 绝不反向冲正现金
func (e *Executor) finish(ctx context.Context, o *order.Order, execPrice, total, resulting int64) {
	task := &fund.ReconcileTask{
		OrderID:          o.OrderID,
		Username:         o.Username,
		Asset:            o.Asset,
		OrderType:        o.Type.String(),
		Quantity:         o.Quantity,
		Price:            execPrice,
		TotalAmount:      total,
		ResultingBalance: resulting,
	}

	// Step 7: 资产变更
	// 买入建行/加仓; 卖出减仓 (锁内复查过持仓, 守卫拒绝只会发生在存储异常)
	err := e.retry(ctx, "asset write", func() error {
		var werr error
		if o.Type == order.TypeMarketBuy {
			_, werr = e.assets.Credit(ctx, o.Username, o.Asset, o.Quantity)
		} else {
			_, werr = e.assets.Debit(ctx, o.Username, o.Asset, o.Quantity)
		}
		return werr
	})
	if err != nil {
		e.flag(o, task, fund.StepAssetWrite, err)
		return
	}

	// Step 8: 流水落库, order_id 幂等键, 重复写安全
	btx, atx := buildAuditRows(o, execPrice, total, resulting)
	err = e.retry(ctx, "audit write", func() error {
		if ierr := e.txs.InsertAssetTx(ctx, atx); ierr != nil {
			return ierr
		}
		return e.txs.InsertBalanceTx(ctx, btx)
	})
	if err != nil {
		e.flag(o, task, fund.StepAuditWrite, err)
		return
	}

	// Step 9: 订单终态 (条件更新, 只从 PENDING 迁移)
	err = e.retry(ctx, "order status", func() error {
		return e.orders.MarkCompleted(ctx, o.OrderID, execPrice, total)
	})
	if err != nil {
		e.flag(o, task, fund.StepOrderStatus, err)
		return
	}

	o.Status = order.StatusCompleted
	o.ExecutionPrice = execPrice
	o.TotalAmount = total
	o.CompletedAt = time.Now().UnixMilli()

	e.mirror(btx, atx)
	e.publishEvent(nats.SubjectOrderCompleted, o, "")
}

// buildAuditRows 构造一对流水行
func buildAuditRows(o *order.Order, execPrice, total, resulting int64) (*fund.BalanceTransaction, *fund.AssetTransaction) {
	assetType := fund.AssetTxBuy
	balanceType := fund.BalanceTxOrderPayment
	balanceAmount := -total
	if o.Type == order.TypeMarketSell {
		assetType = fund.AssetTxSell
		balanceType = fund.BalanceTxOrderProceeds
		balanceAmount = total
	}

	orderID := o.OrderID
	btx := &fund.BalanceTransaction{
		TxID:             order.GenerateTxID(),
		Username:         o.Username,
		Type:             balanceType,
		Amount:           balanceAmount,
		ResultingBalance: resulting,
		OrderID:          &orderID,
		CreatedAt:        time.Now(),
	}
	atx := &fund.AssetTransaction{
		TxID:        order.GenerateTxID(),
		Username:    o.Username,
		Asset:       o.Asset,
		Type:        assetType,
		Quantity:    o.Quantity,
		Price:       execPrice,
		TotalAmount: total,
		OrderID:     orderID,
		CreatedAt:   time.Now(),
	}
	return btx, atx
}

// =============================================================================
// 充值 / 提现
// =============================================================================

// Deposit 充值, 返回变更后余额
func (e *Executor) Deposit(ctx context.Context, username string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, fund.ErrInvalidAmount
	}

	h, err := e.locks.Acquire(ctx, username, "deposit", e.config.LockWait)
	if err != nil {
		return 0, err
	}
	defer e.release(h)

	newBalance, err := e.balances.Credit(ctx, username, amount)
	if err != nil {
		return 0, err
	}

	e.recordCashFlow(ctx, username, fund.BalanceTxDeposit, amount, newBalance)
	return newBalance, nil
}

// Withdraw 提现, 余额不足返回 ErrInsufficientFunds
func (e *Executor) Withdraw(ctx context.Context, username string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, fund.ErrInvalidAmount
	}

	h, err := e.locks.Acquire(ctx, username, "withdraw", e.config.LockWait)
	if err != nil {
		return 0, err
	}
	defer e.release(h)

	newBalance, err := e.balances.Debit(ctx, username, amount)
	if err != nil {
		return 0, err
	}

	e.recordCashFlow(ctx, username, fund.BalanceTxWithdraw, -amount, newBalance)
	return newBalance, nil
}

// recordCashFlow 充提流水
// 余额变更已生效, 流水写入失败只能标记, 不能回滚
func (e *Executor) recordCashFlow(ctx context.Context, username string, txType fund.BalanceTxType, amount, resulting int64) {
	btx := &fund.BalanceTransaction{
		TxID:             order.GenerateTxID(),
		Username:         username,
		Type:             txType,
		Amount:           amount,
		ResultingBalance: resulting,
		CreatedAt:        time.Now(),
	}

	if err := e.retry(ctx, "cash flow audit", func() error {
		return e.txs.InsertBalanceTx(ctx, btx)
	}); err != nil {
		log.Printf("[RECONCILE] cash flow audit lost: user=%s type=%s amount=%d err=%v",
			username, txType, amount, err)
		return
	}

	if e.events != nil {
		if err := e.events.PublishBalanceTx(btx); err != nil {
			log.Printf("[Executor] publish balance tx: %v", err)
		}
	}
}

// =============================================================================
// 内部工具
// =============================================================================

// fail 把订单标记失败并返回原因
// 终态写入本身失败只记日志: 失败订单没有账本变更, 留在 PENDING 也只是
// 展示问题, 不值得为它引入更多失败路径
func (e *Executor) fail(ctx context.Context, o *order.Order, cause error) error {
	if err := e.orders.MarkFailed(ctx, o.OrderID, cause.Error()); err != nil {
		log.Printf("[Executor] mark order %d failed: %v (cause: %v)", o.OrderID, err, cause)
	}
	o.Status = order.StatusFailed
	o.Reason = cause.Error()
	o.CompletedAt = time.Now().UnixMilli()

	e.publishEvent(nats.SubjectOrderFailed, o, cause.Error())
	return cause
}

// retry 有限退避重试
func (e *Executor) retry(ctx context.Context, step string, fn func() error) error {
	backoff := e.config.RetryBackoff

	var err error
	for attempt := 1; attempt <= e.config.RetryAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}

		// 守卫拒绝不是瞬时故障, 重试同样会被拒, 直接交给修复通道
		if errors.Is(err, fund.ErrInsufficientFunds) || errors.Is(err, fund.ErrInsufficientAsset) {
			return err
		}

		if attempt < e.config.RetryAttempts {
			log.Printf("[Executor] %s attempt %d/%d failed: %v", step, attempt, e.config.RetryAttempts, err)
			select {
			case <-ctx.Done():
				return err
			case <-time.After(backoff):
			}
			backoff *= 2
		}
	}
	return err
}

// flag 打修复标记
// 现金已提交, 订单对调用方按成交处理; 最高级别日志 + 修复任务入队,
// 订单终态也尽力写一次 (修复 worker 的收尾同样会写, 幂等)
func (e *Executor) flag(o *order.Order, task *fund.ReconcileTask, step fund.ReconcileStep, cause error) {
	task.Step = step
	task.Reason = cause.Error()
	task.FlaggedAt = time.Now()

	log.Printf("[RECONCILE] order %d flagged: step=%s user=%s asset=%s qty=%d total=%d err=%v",
		o.OrderID, step, o.Username, o.Asset, o.Quantity, task.TotalAmount, cause)

	if e.events != nil {
		if err := e.events.PublishReconcileTask(task); err != nil {
			// 任务都发不出去只剩日志兜底, 对账脚本按 [RECONCILE] 前缀扫
			log.Printf("[RECONCILE] publish task for order %d failed: %v", o.OrderID, err)
		}
	}

	bgCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.orders.MarkCompleted(bgCtx, o.OrderID, task.Price, task.TotalAmount); err != nil {
		log.Printf("[RECONCILE] order %d terminal write failed: %v", o.OrderID, err)
	}

	o.Status = order.StatusCompleted
	o.ExecutionPrice = task.Price
	o.TotalAmount = task.TotalAmount
	o.CompletedAt = time.Now().UnixMilli()

	e.publishEvent(nats.SubjectOrderCompleted, o, "")
}

// mirror 流水镜像到 Kafka (尽力而为, 失败只记日志)
func (e *Executor) mirror(btx *fund.BalanceTransaction, atx *fund.AssetTransaction) {
	if e.events == nil {
		return
	}
	if err := e.events.PublishBalanceTx(btx); err != nil {
		log.Printf("[Executor] publish balance tx: %v", err)
	}
	if err := e.events.PublishAssetTx(atx); err != nil {
		log.Printf("[Executor] publish asset tx: %v", err)
	}
}

// publishEvent 发布订单事件 (尽力而为)
func (e *Executor) publishEvent(subject string, o *order.Order, reason string) {
	if e.bus == nil {
		return
	}

	evt := OrderEvent{
		OrderID:     o.OrderID,
		Username:    o.Username,
		Asset:       o.Asset,
		OrderType:   o.Type.String(),
		Quantity:    o.Quantity,
		Price:       o.ExecutionPrice,
		TotalAmount: o.TotalAmount,
		Status:      o.Status.String(),
		Reason:      reason,
		At:          time.Now().UnixMilli(),
	}
	if err := e.bus.Publish(subject, evt); err != nil {
		log.Printf("[Executor] publish order event: %v", err)
	}
}

// release 放锁
// 租约过期后的释放是安全 no-op, 只记日志
func (e *Executor) release(h *lock.Handle) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := e.locks.Release(ctx, h); err != nil && !errors.Is(err, lock.ErrNotLockHolder) {
		log.Printf("[Executor] release lock for %s: %v", h.Username, err)
	}
}
