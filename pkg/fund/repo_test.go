// 文件: pkg/fund/repo_test.go
// 账本仓库集成测试
//
// 依赖本机 MySQL, 连不上则跳过。重点验证条件写守卫与幂等键
// 在真实数据库上的行为 (内存实现的语义测试在 spot 包里)

package fund

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testDSN = "root:123456@tcp(127.0.0.1:3307)/my_cex?charset=utf8mb4&parseTime=True&loc=Local"

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(mysql.Open(testDSN), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Skipf("MySQL not available: %v", err)
	}

	if err := db.AutoMigrate(&BalanceRecord{}, &AssetBalanceRecord{}, &BalanceTransaction{}, &AssetTransaction{}); err != nil {
		t.Skipf("migrate failed: %v", err)
	}
	return db
}

// testUser 每次测试用独立用户名, 避免脏数据互相干扰
func testUser(prefix string) string {
	return fmt.Sprintf("%s_%d", prefix, time.Now().UnixNano())
}

// =============================================================================
// 现金余额
// =============================================================================

// TestBalanceRepo_CreditDebit 入账出账闭环
func TestBalanceRepo_CreditDebit(t *testing.T) {
	db := setupTestDB(t)
	repo := NewBalanceRepo(db)
	ctx := context.Background()
	user := testUser("it_cash")

	// 不存在的用户
	rec, err := repo.Get(ctx, user)
	require.NoError(t, err)
	assert.Nil(t, rec)

	// 首次入账创建行
	newBal, err := repo.Credit(ctx, user, 100*Precision)
	require.NoError(t, err)
	assert.Equal(t, int64(100*Precision), newBal)

	// 再次入账走 upsert 累加
	newBal, err = repo.Credit(ctx, user, 50*Precision)
	require.NoError(t, err)
	assert.Equal(t, int64(150*Precision), newBal)

	// 出账
	newBal, err = repo.Debit(ctx, user, 30*Precision)
	require.NoError(t, err)
	assert.Equal(t, int64(120*Precision), newBal)

	// 超额出账被守卫拒绝, 余额不动
	_, err = repo.Debit(ctx, user, 500*Precision)
	require.ErrorIs(t, err, ErrInsufficientFunds)

	rec, err = repo.Get(ctx, user)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, int64(120*Precision), rec.Amount)

	// 非正金额
	_, err = repo.Debit(ctx, user, 0)
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = repo.Credit(ctx, user, -1)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

// TestBalanceRepo_ConcurrentDebit 并发出账: 守卫保证总扣减不超过余额
// 这是不依赖用户锁的数据库层兜底 (两个 60 扣 100, 恰好一个成功)
func TestBalanceRepo_ConcurrentDebit(t *testing.T) {
	db := setupTestDB(t)
	repo := NewBalanceRepo(db)
	ctx := context.Background()
	user := testUser("it_race")

	_, err := repo.Credit(ctx, user, 100*Precision)
	require.NoError(t, err)

	var succeeded atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, derr := repo.Debit(ctx, user, 60*Precision); derr == nil {
				succeeded.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), succeeded.Load())

	rec, err := repo.Get(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, int64(40*Precision), rec.Amount)
}

// =============================================================================
// 资产余额
// =============================================================================

// TestAssetRepo_Guard 资产守卫与多资产隔离
func TestAssetRepo_Guard(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAssetRepo(db)
	ctx := context.Background()
	user := testUser("it_asset")

	_, err := repo.Credit(ctx, user, "BTC", 5*Precision)
	require.NoError(t, err)
	_, err = repo.Credit(ctx, user, "XRP", 57*Precision)
	require.NoError(t, err)

	// 只减指定资产
	newQty, err := repo.Debit(ctx, user, "XRP", 25*Precision)
	require.NoError(t, err)
	assert.Equal(t, int64(32*Precision), newQty)

	rec, err := repo.Get(ctx, user, "BTC")
	require.NoError(t, err)
	assert.Equal(t, int64(5*Precision), rec.Quantity)

	// 超额卖出
	_, err = repo.Debit(ctx, user, "XRP", 100*Precision)
	assert.ErrorIs(t, err, ErrInsufficientAsset)

	// 没有持仓的资产
	_, err = repo.Debit(ctx, user, "ETH", Precision)
	assert.ErrorIs(t, err, ErrInsufficientAsset)

	all, err := repo.GetAllByUser(ctx, user)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

// =============================================================================
// 流水幂等
// =============================================================================

// TestTransactionRepo_Idempotent order_id 幂等键下重复写入安全
func TestTransactionRepo_Idempotent(t *testing.T) {
	db := setupTestDB(t)
	repo := NewTransactionRepo(db)
	ctx := context.Background()
	user := testUser("it_tx")
	orderID := time.Now().UnixNano()

	atx := &AssetTransaction{
		TxID:     orderID + 1,
		Username: user, Asset: "BTC",
		Type: AssetTxBuy, Quantity: Precision,
		Price: 50000 * Precision, TotalAmount: 50000 * Precision,
		OrderID: orderID, CreatedAt: time.Now(),
	}
	require.NoError(t, repo.InsertAssetTx(ctx, atx))

	// 同一订单重复写 (修复 worker 重放): 不报错, 不产生第二行
	dup := *atx
	dup.ID = 0
	dup.TxID = orderID + 2
	require.NoError(t, repo.InsertAssetTx(ctx, &dup))

	got, err := repo.GetAssetTxByOrder(ctx, orderID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, orderID+1, got.TxID) // 第一次写入的那行

	btx := &BalanceTransaction{
		TxID: orderID + 3, Username: user,
		Type: BalanceTxOrderPayment, Amount: -50000 * Precision,
		ResultingBalance: 0, OrderID: &orderID, CreatedAt: time.Now(),
	}
	require.NoError(t, repo.InsertBalanceTx(ctx, btx))

	dupB := *btx
	dupB.ID = 0
	dupB.TxID = orderID + 4
	require.NoError(t, repo.InsertBalanceTx(ctx, &dupB))

	gotB, err := repo.GetBalanceTxByOrder(ctx, orderID)
	require.NoError(t, err)
	require.NotNil(t, gotB)
	assert.Equal(t, orderID+3, gotB.TxID)
}

// =============================================================================
// 修复流程
// =============================================================================

type fakeFinalizer struct {
	completed atomic.Int64
}

func (f *fakeFinalizer) MarkCompleted(_ context.Context, _, _, _ int64) error {
	f.completed.Add(1)
	return nil
}

// TestReconciler_Repair 从 ASSET_WRITE 起步的完整修复, 重复执行幂等
func TestReconciler_Repair(t *testing.T) {
	db := setupTestDB(t)
	assets := NewAssetRepo(db)
	txs := NewTransactionRepo(db)
	ctx := context.Background()
	user := testUser("it_repair")
	orderID := time.Now().UnixNano()

	var seq atomic.Int64
	seq.Store(orderID + 100)
	finalizer := &fakeFinalizer{}
	r := &Reconciler{
		assets:    assets,
		txs:       txs,
		finalizer: finalizer,
		newTxID:   func() int64 { return seq.Add(1) },
	}

	task := &ReconcileTask{
		OrderID:          orderID,
		Username:         user,
		Asset:            "BTC",
		OrderType:        "MARKET_BUY",
		Quantity:         Precision / 100, // 0.01
		Price:            50000 * Precision,
		TotalAmount:      500 * Precision,
		ResultingBalance: 500 * Precision,
		Step:             StepAssetWrite,
	}

	require.NoError(t, r.Repair(ctx, task))

	// 资产到账
	rec, err := assets.Get(ctx, user, "BTC")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, Precision/int64(100), rec.Quantity)

	// 流水补齐
	atx, err := txs.GetAssetTxByOrder(ctx, orderID)
	require.NoError(t, err)
	require.NotNil(t, atx)
	btx, err := txs.GetBalanceTxByOrder(ctx, orderID)
	require.NoError(t, err)
	require.NotNil(t, btx)
	assert.Equal(t, int64(1), finalizer.completed.Load())

	// 重复投递: 资产流水已存在, 资产不会二次到账
	require.NoError(t, r.Repair(ctx, task))
	rec, err = assets.Get(ctx, user, "BTC")
	require.NoError(t, err)
	assert.Equal(t, Precision/int64(100), rec.Quantity)
	assert.Equal(t, int64(2), finalizer.completed.Load()) // 终态写入幂等, 多写无害
}
