// 文件: pkg/fund/publisher.go
// 账本模块 - 事件发布器
//
// 提交协议完成后把流水镜像到 Kafka (下游对账/分析消费),
// 修复任务也走同一个 producer, 单独 topic。
// 流水事件实现 kafka.Message 接口, 按用户名分区保证单用户有序。

package fund

import (
	"encoding/json"

	"moon.com/pkg/kafka"
)

// =============================================================================
// kafka.Message 实现
// =============================================================================

// Topic 返回 Kafka topic
func (t *BalanceTransaction) Topic() string {
	return TopicBalanceTransactions
}

// Key 返回分区 key
func (t *BalanceTransaction) Key() string {
	return t.Username
}

// Value 返回序列化后的消息体
func (t *BalanceTransaction) Value() ([]byte, error) {
	return json.Marshal(t)
}

// Topic 返回 Kafka topic
func (t *AssetTransaction) Topic() string {
	return TopicAssetTransactions
}

// Key 返回分区 key
func (t *AssetTransaction) Key() string {
	return t.Username
}

// Value 返回序列化后的消息体
func (t *AssetTransaction) Value() ([]byte, error) {
	return json.Marshal(t)
}

// Topic 返回 Kafka topic
func (t *ReconcileTask) Topic() string {
	return TopicReconcileTasks
}

// Key 返回分区 key (同一用户的任务有序)
func (t *ReconcileTask) Key() string {
	return t.Username
}

// Value 返回序列化后的消息体
func (t *ReconcileTask) Value() ([]byte, error) {
	return json.Marshal(t)
}

// =============================================================================
// EventPublisher - 账本事件发布器
// =============================================================================

// EventPublisher 账本事件发布器
type EventPublisher struct {
	producer *kafka.Producer
}

// NewEventPublisher 创建事件发布器
func NewEventPublisher(brokers []string) (*EventPublisher, error) {
	cfg := kafka.DefaultProducerConfig(brokers)
	producer, err := kafka.NewProducer(cfg)
	if err != nil {
		return nil, err
	}
	return &EventPublisher{producer: producer}, nil
}

// PublishBalanceTx 发布现金流水
func (p *EventPublisher) PublishBalanceTx(tx *BalanceTransaction) error {
	return p.producer.Send(tx)
}

// PublishAssetTx 发布资产流水
func (p *EventPublisher) PublishAssetTx(tx *AssetTransaction) error {
	return p.producer.Send(tx)
}

// PublishReconcileTask 发布修复任务
func (p *EventPublisher) PublishReconcileTask(task *ReconcileTask) error {
	return p.producer.Send(task)
}

// Stats 发送统计
func (p *EventPublisher) Stats() kafka.ProducerStats {
	return p.producer.Stats()
}

// Close 关闭发布器
func (p *EventPublisher) Close() error {
	return p.producer.Close()
}
