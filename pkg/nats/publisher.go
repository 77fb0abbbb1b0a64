// 文件: pkg/nats/publisher.go
// NATS 消息发布者
//
// 订单生命周期事件走 NATS (轻量, 订阅方是通知/风控等旁路系统)

package nats

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
)

// 订单事件 subject
const (
	SubjectOrderCompleted = "order.completed"
	SubjectOrderFailed    = "order.failed"
	SubjectPriceTicks     = "price.ticks"
)

// Publisher NATS 发布者
type Publisher struct {
	conn *nats.Conn
}

// NewPublisher 创建发布者
func NewPublisher(url string) (*Publisher, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return &Publisher{conn: conn}, nil
}

// Publish 发布消息 (JSON 序列化)
func (p *Publisher) Publish(subject string, data any) error {
	bytes, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return p.conn.Publish(subject, bytes)
}

// PublishRaw 发布原始消息
func (p *Publisher) PublishRaw(subject string, data []byte) error {
	return p.conn.Publish(subject, data)
}

// Close 关闭连接
func (p *Publisher) Close() {
	p.conn.Close()
}
