// 文件: pkg/price/simticker.go
// 模拟行情生成器
//
// 本地开发/模拟器用: 几何布朗运动 (GBM) 生成价格, 定频写入价格缓存。
// 用 GBM 而不是随机游走: 乘法更新保证价格恒正, 且符合对数正态分布

package price

import (
	"context"
	"math"
	"math/rand"
	"time"

	"moon.com/pkg/fund"
)

// SimTicker 模拟行情生成器
type SimTicker struct {
	Asset      string
	Volatility float64 // 年化波动率, 如 0.5 = 50%
	Interval   time.Duration

	price       float64
	lastUpdated time.Time
	sink        Sink
	stopChan    chan struct{}
}

// NewSimTicker 创建模拟行情生成器
func NewSimTicker(asset string, startPrice float64, interval time.Duration, sink Sink) *SimTicker {
	return &SimTicker{
		Asset:       asset,
		Volatility:  0.5, // 加密资产典型年化波动率
		Interval:    interval,
		price:       startPrice,
		lastUpdated: time.Now(),
		sink:        sink,
		stopChan:    make(chan struct{}),
	}
}

// Start 后台运行
func (t *SimTicker) Start() {
	go t.loop()
}

// Stop 停止生成
func (t *SimTicker) Stop() {
	close(t.stopChan)
}

func (t *SimTicker) loop() {
	ticker := time.NewTicker(t.Interval)
	defer ticker.Stop()

	// 独立随机源, 避开全局 rand 的锁
	r := rand.New(rand.NewSource(time.Now().UnixNano()))

	for {
		select {
		case <-t.stopChan:
			return

		case now := <-ticker.C:
			// dt 单位是年
			dt := now.Sub(t.lastUpdated).Hours() / 24 / 365
			if dt <= 0 {
				dt = 1e-9
			}

			// S_new = S * exp(-0.5*σ²*dt + σ*sqrt(dt)*Z), 无漂移
			sigma := t.Volatility
			z := r.NormFloat64()
			t.price *= math.Exp(-0.5*sigma*sigma*dt + sigma*math.Sqrt(dt)*z)
			t.lastUpdated = now

			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			_ = t.sink.SetPrice(ctx, t.Asset, fund.ToFixed(t.price))
			cancel()
		}
	}
}
