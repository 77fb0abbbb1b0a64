// 文件: pkg/fund/model.go
// 账本模块 - 数据模型
//
// 包含现金余额、资产余额两张可变行表, 以及两张只追加的流水表。
// 底层存储只提供"单行条件写" (UPDATE ... WHERE 守卫 + RowsAffected 判断),
// 没有多行事务: 一致性由上层的有序提交协议保证, 不在这里引入 DB 事务。

package fund

import (
	"encoding/json"
	"errors"
	"time"
)

// =============================================================================
// 常量定义
// =============================================================================

// Precision 金额/数量精度因子
// 所有金额存储为 int64, 乘以 10^8
// 例: 1.5 BTC = 150_000_000, 500.00 USD = 50_000_000_000
const Precision = 100_000_000

// Kafka Topic
const (
	TopicBalanceTransactions = "ledger_balance_transactions" // 现金流水镜像
	TopicAssetTransactions   = "ledger_asset_transactions"   // 资产流水镜像
	TopicReconcileTasks      = "ledger_reconcile_tasks"      // 待修复订单
)

// 账本错误
// 非负守卫只在这里实现一次: 充提接口和订单执行器走的是同一个守卫
var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInsufficientAsset = errors.New("insufficient asset")
	ErrInvalidAmount     = errors.New("amount must be positive")
)

// =============================================================================
// 流水类型
// =============================================================================

// BalanceTxType 现金流水类型
type BalanceTxType string

const (
	BalanceTxDeposit       BalanceTxType = "DEPOSIT"        // 充值
	BalanceTxWithdraw      BalanceTxType = "WITHDRAW"       // 提现
	BalanceTxOrderPayment  BalanceTxType = "ORDER_PAYMENT"  // 买单付款
	BalanceTxOrderProceeds BalanceTxType = "ORDER_PROCEEDS" // 卖单收款
)

// AssetTxType 资产流水类型
type AssetTxType string

const (
	AssetTxBuy  AssetTxType = "BUY"
	AssetTxSell AssetTxType = "SELL"
)

// =============================================================================
// 可变行: 余额
// =============================================================================

// BalanceRecord 现金余额表
// 每个用户一行, 只能在持有该用户锁的前提下修改
type BalanceRecord struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	Username  string    `gorm:"column:username;type:varchar(64);uniqueIndex"`
	Amount    int64     `gorm:"column:amount"` // 不变量: >= 0
	Version   int       `gorm:"column:version"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (BalanceRecord) TableName() string {
	return "balances"
}

// AssetBalanceRecord 资产余额表
// 每个 (用户, 资产) 一行, 首次买入时创建
type AssetBalanceRecord struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	Username  string    `gorm:"column:username;type:varchar(64);uniqueIndex:uk_user_asset"`
	Asset     string    `gorm:"column:asset;type:varchar(32);uniqueIndex:uk_user_asset"`
	Quantity  int64     `gorm:"column:quantity"` // 不变量: >= 0
	Version   int       `gorm:"column:version"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (AssetBalanceRecord) TableName() string {
	return "asset_balances"
}

// =============================================================================
// 只追加行: 流水
// =============================================================================

// BalanceTransaction 现金流水
// OrderID 为空表示充提流水; (order_id, type) 唯一, 按订单重试写入是幂等的
type BalanceTransaction struct {
	ID               uint          `gorm:"primaryKey;autoIncrement"`
	TxID             int64         `gorm:"column:tx_id;uniqueIndex"` // 雪花ID
	Username         string        `gorm:"column:username;index"`
	Type             BalanceTxType `gorm:"column:type;type:varchar(16);uniqueIndex:uk_btx_order"`
	Amount           int64         `gorm:"column:amount"` // 有符号: 入账为正, 出账为负
	ResultingBalance int64         `gorm:"column:resulting_balance"`
	OrderID          *int64        `gorm:"column:order_id;uniqueIndex:uk_btx_order"`
	CreatedAt        time.Time     `gorm:"column:created_at;index"`
}

func (BalanceTransaction) TableName() string {
	return "balance_transactions"
}

// AssetTransaction 资产流水
// 每个订单恰好一条, order_id 唯一即幂等键
type AssetTransaction struct {
	ID          uint        `gorm:"primaryKey;autoIncrement"`
	TxID        int64       `gorm:"column:tx_id;uniqueIndex"`
	Username    string      `gorm:"column:username;index"`
	Asset       string      `gorm:"column:asset;type:varchar(32);index"`
	Type        AssetTxType `gorm:"column:type;type:varchar(8)"`
	Quantity    int64       `gorm:"column:quantity"`
	Price       int64       `gorm:"column:price"`
	TotalAmount int64       `gorm:"column:total_amount"`
	OrderID     int64       `gorm:"column:order_id;uniqueIndex"`
	CreatedAt   time.Time   `gorm:"column:created_at;index"`
}

func (AssetTransaction) TableName() string {
	return "asset_transactions"
}

// =============================================================================
// 修复任务
// =============================================================================

// ReconcileStep 修复起点
// 提交协议越过"不可回退点"之后的某一步重试耗尽时, 记录从哪一步继续
type ReconcileStep string

const (
	StepAssetWrite  ReconcileStep = "ASSET_WRITE"  // 资产余额变更未确认
	StepAuditWrite  ReconcileStep = "AUDIT_WRITE"  // 流水行缺失
	StepOrderStatus ReconcileStep = "ORDER_STATUS" // 订单终态未落库
)

// ReconcileTask 待修复订单
// 现金变更已提交且不回滚, 任务描述剩余的幂等写入
type ReconcileTask struct {
	OrderID     int64  `json:"order_id"`
	Username    string `json:"username"`
	Asset       string `json:"asset"`
	OrderType   string `json:"order_type"` // MARKET_BUY / MARKET_SELL
	Quantity    int64  `json:"quantity"`
	Price       int64  `json:"price"`
	TotalAmount int64  `json:"total_amount"`

	// ResultingBalance 不可回退点写入后的现金余额, 补写现金流水时使用
	ResultingBalance int64 `json:"resulting_balance"`

	Step      ReconcileStep `json:"step"`
	Reason    string        `json:"reason"` // 最后一次失败的错误文本
	FlaggedAt time.Time     `json:"flagged_at"`
}

// ToJSON 序列化 (供 Kafka 发送)
func (t *ReconcileTask) ToJSON() ([]byte, error) {
	return json.Marshal(t)
}

// FromJSON 反序列化
func (t *ReconcileTask) FromJSON(data []byte) error {
	return json.Unmarshal(data, t)
}
