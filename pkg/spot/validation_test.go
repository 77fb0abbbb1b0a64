// 文件: pkg/spot/validation_test.go
// 业务校验器测试

package spot

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moon.com/pkg/fund"
	"moon.com/pkg/order"
	"moon.com/pkg/price"
)

func newTestValidator(t *testing.T) (*Validator, *MemoryLedger, *price.MemoryService) {
	t.Helper()

	ledger := NewMemoryLedger()
	prices := price.NewMemoryService()
	catalog := price.NewStaticCatalog(
		&price.AssetSpec{
			Asset: "BTC", Status: price.AssetStatusTrading,
			MinOrderQty: fund.ToFixed(0.001), MaxOrderQty: fund.ToFixed(10),
		},
		&price.AssetSpec{Asset: "XRP", Status: price.AssetStatusTrading},
		&price.AssetSpec{Asset: "LUNA", Status: price.AssetStatusDelisted},
	)

	return NewValidator(catalog, prices, ledger.Balances(), ledger.Assets()), ledger, prices
}

// TestValidator_QuantityBounds 数量边界: 低于 min / 高于 max / 区间内
func TestValidator_QuantityBounds(t *testing.T) {
	v, ledger, prices := newTestValidator(t)
	ctx := context.Background()

	require.NoError(t, prices.SetPrice(ctx, "BTC", fund.ToFixed(50000)))
	_, err := ledger.Balances().Credit(ctx, "alice", fund.ToFixed(1000000))
	require.NoError(t, err)

	buy := func(qty int64) error {
		return v.Check(ctx, Request{Username: "alice", Asset: "BTC", Type: order.TypeMarketBuy, Quantity: qty})
	}

	assert.ErrorIs(t, buy(fund.ToFixed(0.0001)), ErrQuantityOutOfRange)
	assert.ErrorIs(t, buy(fund.ToFixed(11)), ErrQuantityOutOfRange)
	assert.NoError(t, buy(fund.ToFixed(0.001)))
	assert.NoError(t, buy(fund.ToFixed(10)))
	assert.ErrorIs(t, buy(0), ErrInvalidQuantity)
	assert.ErrorIs(t, buy(-5), ErrInvalidQuantity)
}

// TestValidator_Catalog 目录状态
func TestValidator_Catalog(t *testing.T) {
	v, _, prices := newTestValidator(t)
	ctx := context.Background()

	require.NoError(t, prices.SetPrice(ctx, "XRP", fund.ToFixed(3)))

	err := v.Check(ctx, Request{Username: "bob", Asset: "NOPE", Type: order.TypeMarketBuy, Quantity: fund.ToFixed(1)})
	assert.ErrorIs(t, err, ErrUnknownAsset)

	err = v.Check(ctx, Request{Username: "bob", Asset: "LUNA", Type: order.TypeMarketSell, Quantity: fund.ToFixed(1)})
	assert.ErrorIs(t, err, ErrAssetNotTrading)
}

// TestValidator_Funds 买单资金预检用当前报价
func TestValidator_Funds(t *testing.T) {
	v, ledger, prices := newTestValidator(t)
	ctx := context.Background()

	require.NoError(t, prices.SetPrice(ctx, "XRP", fund.ToFixed(3)))
	_, err := ledger.Balances().Credit(ctx, "carol", fund.ToFixed(30))
	require.NoError(t, err)

	req := Request{Username: "carol", Asset: "XRP", Type: order.TypeMarketBuy, Quantity: fund.ToFixed(10)}
	// 30 元正好买 10 个 3 元的
	assert.NoError(t, v.Check(ctx, req))

	// 多一个最小可表示单位
	req.Quantity = fund.ToFixed(10) + 1
	assert.ErrorIs(t, v.Check(ctx, req), ErrInsufficientFunds)

	// 没开过户 = 余额为零
	req.Username = "nobody"
	req.Quantity = fund.ToFixed(1)
	assert.ErrorIs(t, v.Check(ctx, req), ErrInsufficientFunds)
}

// TestValidator_Holding 卖单持仓检查
func TestValidator_Holding(t *testing.T) {
	v, ledger, prices := newTestValidator(t)
	ctx := context.Background()

	require.NoError(t, prices.SetPrice(ctx, "XRP", fund.ToFixed(3)))
	_, err := ledger.Assets().Credit(ctx, "dave", "XRP", fund.ToFixed(57))
	require.NoError(t, err)

	req := Request{Username: "dave", Asset: "XRP", Type: order.TypeMarketSell, Quantity: fund.ToFixed(57)}
	assert.NoError(t, v.Check(ctx, req))

	req.Quantity = fund.ToFixed(57) + 1
	assert.ErrorIs(t, v.Check(ctx, req), ErrInsufficientAsset)

	req.Username = "nobody"
	req.Quantity = fund.ToFixed(1)
	assert.ErrorIs(t, v.Check(ctx, req), ErrInsufficientAsset)
}

// TestValidator_PriceRequired 买单预检依赖报价, 卖单不依赖
func TestValidator_PriceRequired(t *testing.T) {
	v, ledger, _ := newTestValidator(t)
	ctx := context.Background()

	_, err := ledger.Balances().Credit(ctx, "erin", fund.ToFixed(1000))
	require.NoError(t, err)
	_, err = ledger.Assets().Credit(ctx, "erin", "XRP", fund.ToFixed(5))
	require.NoError(t, err)

	err = v.Check(ctx, Request{Username: "erin", Asset: "XRP", Type: order.TypeMarketBuy, Quantity: fund.ToFixed(1)})
	assert.ErrorIs(t, err, ErrPriceUnavailable)

	// 卖单只看持仓
	err = v.Check(ctx, Request{Username: "erin", Asset: "XRP", Type: order.TypeMarketSell, Quantity: fund.ToFixed(1)})
	assert.NoError(t, err)
}
