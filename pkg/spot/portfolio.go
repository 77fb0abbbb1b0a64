// 文件: pkg/spot/portfolio.go
// 现货交易 - 组合估值
//
// 估值是只读旁路, 不拿用户锁: 读数之间允许被并发订单穿插,
// 结果是"某一瞬间附近"的快照, 对展示足够。价格缺一个整单失败,
// 部分估值比明确的不可用更误导人

package spot

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"moon.com/pkg/fund"
	"moon.com/pkg/price"
)

// Position 单资产持仓估值
type Position struct {
	Asset    string `json:"asset"`
	Quantity int64  `json:"quantity"`
	Price    int64  `json:"price"`
	Value    int64  `json:"value"`

	// Allocation 占组合总值比例 (百分数, 4 位小数)
	Allocation decimal.Decimal `json:"allocation"`
}

// Portfolio 用户组合快照
type Portfolio struct {
	Username    string     `json:"username"`
	CashBalance int64      `json:"cash_balance"`
	Positions   []Position `json:"positions"`
	TotalValue  int64      `json:"total_value"`
	AsOf        time.Time  `json:"as_of"`
}

// Valuator 组合估值器
type Valuator struct {
	balances BalanceStore
	assets   AssetStore
	prices   price.Source
}

// NewValuator 创建估值器
func NewValuator(balances BalanceStore, assets AssetStore, prices price.Source) *Valuator {
	return &Valuator{balances: balances, assets: assets, prices: prices}
}

// Value 估值: 现金 + Σ(持仓 × 现价)
// 任一持仓资产无价即返回 ErrPriceUnavailable
func (v *Valuator) Value(ctx context.Context, username string) (*Portfolio, error) {
	balance, err := v.balances.Get(ctx, username)
	if err != nil {
		return nil, err
	}
	var cash int64
	if balance != nil {
		cash = balance.Amount
	}

	holdings, err := v.assets.GetAllByUser(ctx, username)
	if err != nil {
		return nil, err
	}

	assetNames := make([]string, 0, len(holdings))
	for _, h := range holdings {
		assetNames = append(assetNames, h.Asset)
	}

	quotes, err := price.FetchQuotes(ctx, v.prices, assetNames)
	if err != nil {
		return nil, err
	}

	p := &Portfolio{
		Username:    username,
		CashBalance: cash,
		TotalValue:  cash,
		AsOf:        time.Now(),
	}

	for _, h := range holdings {
		q := quotes[h.Asset]
		value := fund.QuoteValue(h.Quantity, q.Price)
		p.TotalValue += value
		p.Positions = append(p.Positions, Position{
			Asset:    h.Asset,
			Quantity: h.Quantity,
			Price:    q.Price,
			Value:    value,
		})
	}

	if p.TotalValue > 0 {
		total := decimal.NewFromInt(p.TotalValue)
		hundred := decimal.NewFromInt(100)
		for i := range p.Positions {
			p.Positions[i].Allocation = decimal.NewFromInt(p.Positions[i].Value).
				Mul(hundred).DivRound(total, 4)
		}
	}

	sort.Slice(p.Positions, func(i, j int) bool {
		if p.Positions[i].Value != p.Positions[j].Value {
			return p.Positions[i].Value > p.Positions[j].Value
		}
		return p.Positions[i].Asset < p.Positions[j].Asset
	})

	return p, nil
}

// CashAllocation 现金占比 (百分数, 4 位小数)
func (p *Portfolio) CashAllocation() decimal.Decimal {
	if p.TotalValue <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(p.CashBalance).
		Mul(decimal.NewFromInt(100)).
		DivRound(decimal.NewFromInt(p.TotalValue), 4)
}
