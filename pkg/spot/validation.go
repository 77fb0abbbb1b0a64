// 文件: pkg/spot/validation.go
// 现货交易 - 业务校验器
//
// 无副作用的前置检查, 每个订单跑两次:
// 1. 锁外快速检查: 乐观、可能基于过期读数, 作用只是把明显非法的请求
//    挡在锁竞争之外
// 2. 锁内权威复查: 基于持锁后的新读数, 只有这次的失败才有资格否决变更
// 即使权威复查也可能在写入前失真 (锁租约边缘), 最终兜底是写入时刻的守卫

package spot

import (
	"context"

	"moon.com/pkg/fund"
	"moon.com/pkg/order"
	"moon.com/pkg/price"
)

// Request 下单请求
type Request struct {
	Username string
	Asset    string
	Type     order.Type
	Quantity int64 // 1e8 定点数
}

// Validator 业务校验器
type Validator struct {
	catalog  *price.Catalog
	prices   price.Source
	balances BalanceStore
	assets   AssetStore
}

// NewValidator 创建校验器
func NewValidator(catalog *price.Catalog, prices price.Source, balances BalanceStore, assets AssetStore) *Validator {
	return &Validator{
		catalog:  catalog,
		prices:   prices,
		balances: balances,
		assets:   assets,
	}
}

// Check 校验一笔下单请求
// 买单用当前报价估算所需资金, 卖单检查持仓数量
func (v *Validator) Check(ctx context.Context, req Request) error {
	if req.Quantity <= 0 {
		return ErrInvalidQuantity
	}

	spec, ok := v.catalog.Get(req.Asset)
	if !ok {
		return ErrUnknownAsset
	}
	if !spec.Tradable() {
		return ErrAssetNotTrading
	}
	if spec.MinOrderQty > 0 && req.Quantity < spec.MinOrderQty {
		return ErrQuantityOutOfRange
	}
	if spec.MaxOrderQty > 0 && req.Quantity > spec.MaxOrderQty {
		return ErrQuantityOutOfRange
	}

	switch req.Type {
	case order.TypeMarketBuy:
		return v.checkFunds(ctx, req)
	case order.TypeMarketSell:
		return v.checkHolding(ctx, req)
	default:
		return ErrInvalidQuantity
	}
}

// checkFunds 买单: 余额 ≥ 数量 × 参考价
// 参考价就是当前报价; 成交价以执行时刻为准, 这里只是资金预检
func (v *Validator) checkFunds(ctx context.Context, req Request) error {
	quote, err := v.prices.GetCurrentPrice(ctx, req.Asset)
	if err != nil {
		return err
	}

	cost := fund.QuoteValue(req.Quantity, quote.Price)

	record, err := v.balances.Get(ctx, req.Username)
	if err != nil {
		return err
	}
	if record == nil || record.Amount < cost {
		return ErrInsufficientFunds
	}
	return nil
}

// checkHolding 卖单: 持仓 ≥ 卖出数量
func (v *Validator) checkHolding(ctx context.Context, req Request) error {
	record, err := v.assets.Get(ctx, req.Username, req.Asset)
	if err != nil {
		return err
	}
	if record == nil || record.Quantity < req.Quantity {
		return ErrInsufficientAsset
	}
	return nil
}
