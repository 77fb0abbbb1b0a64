// 文件: pkg/fund/fixedpoint.go
// 定点数乘除
//
// qty 和 price 都是 1e8 定点数, 乘积会超过 int64 范围
// (0.01 BTC × 50000 USD: 1e6 × 5e12 = 5e18, 已逼近 9.2e18 上限),
// 中间结果走 128 位

package fund

import "math/big"

// QuoteValue 计算 qty × price 的报价金额 (结果仍是 1e8 定点数)
// 向零截断: 买单少付卖单少收, 截断方向对账户安全
func QuoteValue(qty, price int64) int64 {
	n := new(big.Int).Mul(big.NewInt(qty), big.NewInt(price))
	n.Quo(n, big.NewInt(Precision))
	return n.Int64()
}

// ToFixed 浮点转定点 (仅模拟器/测试入口使用, 账本内部不出现浮点)
func ToFixed(v float64) int64 {
	return int64(v * Precision)
}

// ToFloat 定点转浮点 (仅日志展示用)
func ToFloat(v int64) float64 {
	return float64(v) / Precision
}
