// 文件: pkg/price/feed.go
// 行情接入 - NATS 订阅器
//
// 行情进程在 price.ticks 上推 Quote, 这里收下来写进价格缓存

package price

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"moon.com/pkg/nats"
)

// Feed 行情订阅器
type Feed struct {
	sub  *nats.Subscriber
	sink Sink

	received atomic.Int64
	dropped  atomic.Int64
}

// NewFeed 创建行情订阅器并开始接收
func NewFeed(natsURL string, sink Sink) (*Feed, error) {
	f := &Feed{sink: sink}

	sub, err := nats.NewSubscriber(natsURL, f.handle)
	if err != nil {
		return nil, err
	}
	f.sub = sub

	if err := sub.Subscribe(nats.SubjectPriceTicks); err != nil {
		sub.Close()
		return nil, err
	}
	return f, nil
}

func (f *Feed) handle(_ string, data []byte) error {
	var q Quote
	if err := json.Unmarshal(data, &q); err != nil {
		f.dropped.Add(1)
		return fmt.Errorf("unmarshal quote: %w", err)
	}
	if q.Asset == "" || q.Price <= 0 {
		f.dropped.Add(1)
		return fmt.Errorf("invalid quote: asset=%q price=%d", q.Asset, q.Price)
	}

	f.received.Add(1)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return f.sink.SetPrice(ctx, q.Asset, q.Price)
}

// Received 已接收报价数
func (f *Feed) Received() int64 {
	return f.received.Load()
}

// Close 停止订阅
func (f *Feed) Close() {
	f.sub.Close()
}
