// 文件: pkg/spot/portfolio_test.go
// 组合估值测试

package spot

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moon.com/pkg/fund"
	"moon.com/pkg/price"
)

// TestValuator_Value 现金 + 两个持仓
func TestValuator_Value(t *testing.T) {
	ledger := NewMemoryLedger()
	prices := price.NewMemoryService()
	ctx := context.Background()

	_, err := ledger.Balances().Credit(ctx, "alice", fund.ToFixed(500))
	require.NoError(t, err)
	_, err = ledger.Assets().Credit(ctx, "alice", "BTC", fund.ToFixed(0.01))
	require.NoError(t, err)
	_, err = ledger.Assets().Credit(ctx, "alice", "XRP", fund.ToFixed(100))
	require.NoError(t, err)

	require.NoError(t, prices.SetPrice(ctx, "BTC", fund.ToFixed(50000)))
	require.NoError(t, prices.SetPrice(ctx, "XRP", fund.ToFixed(3)))

	v := NewValuator(ledger.Balances(), ledger.Assets(), prices)
	p, err := v.Value(ctx, "alice")
	require.NoError(t, err)

	// 500 现金 + 0.01×50000 + 100×3 = 500 + 500 + 300 = 1300
	assert.Equal(t, fund.ToFixed(500), p.CashBalance)
	assert.Equal(t, fund.ToFixed(1300), p.TotalValue)
	require.Len(t, p.Positions, 2)

	// 按市值降序: BTC (500) 在 XRP (300) 前
	assert.Equal(t, "BTC", p.Positions[0].Asset)
	assert.Equal(t, fund.ToFixed(500), p.Positions[0].Value)
	assert.Equal(t, "XRP", p.Positions[1].Asset)
	assert.Equal(t, fund.ToFixed(300), p.Positions[1].Value)

	// 配比: BTC 500/1300 ≈ 38.4615%, XRP 300/1300 ≈ 23.0769%, 现金其余
	assert.True(t, p.Positions[0].Allocation.Equal(decimal.RequireFromString("38.4615")),
		"BTC allocation = %s", p.Positions[0].Allocation)
	assert.True(t, p.Positions[1].Allocation.Equal(decimal.RequireFromString("23.0769")),
		"XRP allocation = %s", p.Positions[1].Allocation)
	assert.True(t, p.CashAllocation().Equal(decimal.RequireFromString("38.4615")),
		"cash allocation = %s", p.CashAllocation())
}

// TestValuator_CashOnly 只有现金的账户
func TestValuator_CashOnly(t *testing.T) {
	ledger := NewMemoryLedger()
	prices := price.NewMemoryService()
	ctx := context.Background()

	_, err := ledger.Balances().Credit(ctx, "bob", fund.ToFixed(42))
	require.NoError(t, err)

	v := NewValuator(ledger.Balances(), ledger.Assets(), prices)
	p, err := v.Value(ctx, "bob")
	require.NoError(t, err)

	assert.Equal(t, fund.ToFixed(42), p.TotalValue)
	assert.Empty(t, p.Positions)
	assert.True(t, p.CashAllocation().Equal(decimal.NewFromInt(100)))
}

// TestValuator_EmptyAccount 空账户估值为零, 不报错
func TestValuator_EmptyAccount(t *testing.T) {
	ledger := NewMemoryLedger()
	prices := price.NewMemoryService()

	v := NewValuator(ledger.Balances(), ledger.Assets(), prices)
	p, err := v.Value(context.Background(), "ghost")
	require.NoError(t, err)

	assert.Zero(t, p.TotalValue)
	assert.True(t, p.CashAllocation().IsZero())
}

// TestValuator_MissingPrice 任一持仓无报价, 整体失败
func TestValuator_MissingPrice(t *testing.T) {
	ledger := NewMemoryLedger()
	prices := price.NewMemoryService()
	ctx := context.Background()

	_, err := ledger.Assets().Credit(ctx, "carol", "BTC", fund.ToFixed(1))
	require.NoError(t, err)
	_, err = ledger.Assets().Credit(ctx, "carol", "ETH", fund.ToFixed(1))
	require.NoError(t, err)
	require.NoError(t, prices.SetPrice(ctx, "BTC", fund.ToFixed(50000)))
	// ETH 无报价

	v := NewValuator(ledger.Balances(), ledger.Assets(), prices)
	_, err = v.Value(ctx, "carol")
	assert.ErrorIs(t, err, price.ErrPriceUnavailable)
}
