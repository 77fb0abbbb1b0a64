// 文件: pkg/spot/memory.go
// 现货交易 - 内存账本
//
// 与 GORM 仓库同语义的内存实现: Debit 带非负守卫, 流水按 order_id 去重。
// 并发测试和本地模拟用它, 行为偏差会直接体现为测试失真, 改守卫语义要两边同步。
// 现金和资产接口的方法名相同, 通过 Balances()/Assets() 视图分别暴露

package spot

import (
	"context"
	"sync"
	"time"

	"moon.com/pkg/fund"
)

// MemoryLedger 内存账本
// Balances()/Assets() 返回存储视图, 流水接口直接实现在本体上
type MemoryLedger struct {
	mu sync.Mutex

	balances map[string]int64            // username -> 现金
	assets   map[string]map[string]int64 // username -> asset -> 数量

	balanceTxs []*fund.BalanceTransaction
	assetTxs   []*fund.AssetTransaction

	// 幂等键, 对应 MySQL 的唯一索引
	balanceTxByOrder map[orderTxKey]*fund.BalanceTransaction
	assetTxByOrder   map[int64]*fund.AssetTransaction
}

type orderTxKey struct {
	txType  fund.BalanceTxType
	orderID int64
}

// NewMemoryLedger 创建空账本
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		balances:         make(map[string]int64),
		assets:           make(map[string]map[string]int64),
		balanceTxByOrder: make(map[orderTxKey]*fund.BalanceTransaction),
		assetTxByOrder:   make(map[int64]*fund.AssetTransaction),
	}
}

// Balances 现金存储视图
func (m *MemoryLedger) Balances() BalanceStore { return balanceView{m} }

// Assets 资产存储视图
func (m *MemoryLedger) Assets() AssetStore { return assetView{m} }

var _ TransactionStore = (*MemoryLedger)(nil)

// =============================================================================
// 现金视图
// =============================================================================

type balanceView struct{ m *MemoryLedger }

func (v balanceView) Get(ctx context.Context, username string) (*fund.BalanceRecord, error) {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()

	amount, ok := v.m.balances[username]
	if !ok {
		return nil, nil
	}
	return &fund.BalanceRecord{Username: username, Amount: amount}, nil
}

func (v balanceView) Credit(ctx context.Context, username string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, fund.ErrInvalidAmount
	}

	v.m.mu.Lock()
	defer v.m.mu.Unlock()

	v.m.balances[username] += amount
	return v.m.balances[username], nil
}

func (v balanceView) Debit(ctx context.Context, username string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, fund.ErrInvalidAmount
	}

	v.m.mu.Lock()
	defer v.m.mu.Unlock()

	current := v.m.balances[username]
	if current < amount {
		return 0, fund.ErrInsufficientFunds
	}
	v.m.balances[username] = current - amount
	return v.m.balances[username], nil
}

// =============================================================================
// 资产视图
// =============================================================================

type assetView struct{ m *MemoryLedger }

func (v assetView) Get(ctx context.Context, username, asset string) (*fund.AssetBalanceRecord, error) {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()

	qty, ok := v.m.assets[username][asset]
	if !ok {
		return nil, nil
	}
	return &fund.AssetBalanceRecord{Username: username, Asset: asset, Quantity: qty}, nil
}

func (v assetView) GetAllByUser(ctx context.Context, username string) ([]*fund.AssetBalanceRecord, error) {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()

	var out []*fund.AssetBalanceRecord
	for asset, qty := range v.m.assets[username] {
		if qty > 0 {
			out = append(out, &fund.AssetBalanceRecord{Username: username, Asset: asset, Quantity: qty})
		}
	}
	return out, nil
}

func (v assetView) Credit(ctx context.Context, username, asset string, qty int64) (int64, error) {
	if qty <= 0 {
		return 0, fund.ErrInvalidAmount
	}

	v.m.mu.Lock()
	defer v.m.mu.Unlock()

	if v.m.assets[username] == nil {
		v.m.assets[username] = make(map[string]int64)
	}
	v.m.assets[username][asset] += qty
	return v.m.assets[username][asset], nil
}

func (v assetView) Debit(ctx context.Context, username, asset string, qty int64) (int64, error) {
	if qty <= 0 {
		return 0, fund.ErrInvalidAmount
	}

	v.m.mu.Lock()
	defer v.m.mu.Unlock()

	current := v.m.assets[username][asset]
	if current < qty {
		return 0, fund.ErrInsufficientAsset
	}
	v.m.assets[username][asset] = current - qty
	return v.m.assets[username][asset], nil
}

// =============================================================================
// TransactionStore
// =============================================================================

func (m *MemoryLedger) InsertBalanceTx(ctx context.Context, tx *fund.BalanceTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if tx.OrderID != nil {
		key := orderTxKey{txType: tx.Type, orderID: *tx.OrderID}
		if _, dup := m.balanceTxByOrder[key]; dup {
			return nil // INSERT IGNORE
		}
		m.balanceTxByOrder[key] = tx
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now()
	}
	m.balanceTxs = append(m.balanceTxs, tx)
	return nil
}

func (m *MemoryLedger) InsertAssetTx(ctx context.Context, tx *fund.AssetTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, dup := m.assetTxByOrder[tx.OrderID]; dup {
		return nil
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now()
	}
	m.assetTxByOrder[tx.OrderID] = tx
	m.assetTxs = append(m.assetTxs, tx)
	return nil
}

func (m *MemoryLedger) GetBalanceTxByOrder(ctx context.Context, orderID int64) (*fund.BalanceTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, tx := range m.balanceTxs {
		if tx.OrderID != nil && *tx.OrderID == orderID {
			return tx, nil
		}
	}
	return nil, nil
}

func (m *MemoryLedger) GetAssetTxByOrder(ctx context.Context, orderID int64) (*fund.AssetTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.assetTxByOrder[orderID], nil
}

// =============================================================================
// 对账快照 (测试/模拟器用)
// =============================================================================

// BalanceTxsByUser 取用户现金流水快照
func (m *MemoryLedger) BalanceTxsByUser(username string) []*fund.BalanceTransaction {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*fund.BalanceTransaction
	for _, tx := range m.balanceTxs {
		if tx.Username == username {
			out = append(out, tx)
		}
	}
	return out
}

// AssetTxsByUser 取用户资产流水快照
func (m *MemoryLedger) AssetTxsByUser(username string) []*fund.AssetTransaction {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*fund.AssetTransaction
	for _, tx := range m.assetTxs {
		if tx.Username == username {
			out = append(out, tx)
		}
	}
	return out
}
