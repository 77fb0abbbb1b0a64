// 文件: pkg/spot/errors.go
// 现货交易 - 错误分类
//
// 四类调用方可见错误:
// - 校验错误: 请求本身不合法, 未持锁未产生任何副作用
// - 业务拒绝: 余额/持仓不足, 订单标记失败, 无账本变更
// - 锁超时: 瞬时竞争, 可立即重试, 无部分状态
// - 价格不可用: 本次失败, 调用方重新提交
// 越过不可回退点之后的失败不在这里: 订单对调用方是成功的, 走修复通道

package spot

import (
	"errors"

	"moon.com/pkg/fund"
	"moon.com/pkg/lock"
	"moon.com/pkg/price"
)

// 校验错误
var (
	ErrInvalidQuantity    = errors.New("quantity must be positive")
	ErrQuantityOutOfRange = errors.New("quantity outside asset limits")
	ErrUnknownAsset       = errors.New("unknown asset")
	ErrAssetNotTrading    = errors.New("asset is not trading")
)

// 业务拒绝 / 瞬时错误, 账本和依赖包是权威定义, 这里只是统一出口
var (
	ErrInsufficientFunds = fund.ErrInsufficientFunds
	ErrInsufficientAsset = fund.ErrInsufficientAsset
	ErrLockTimeout       = lock.ErrLockTimeout
	ErrPriceUnavailable  = price.ErrPriceUnavailable
)
