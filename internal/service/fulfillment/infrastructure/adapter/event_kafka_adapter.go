package adapter

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"

	"digital-fulfillment/internal/pkg/mq"
	"digital-fulfillment/internal/service/fulfillment/domain/port"
)

// EventKafkaAdapter 实现了 port.EventPublisher 接口。
type EventKafkaAdapter struct {
	writer mq.MessageWriter
}

// NewEventKafkaAdapter 创建一个新的事件生产者适配器。
func NewEventKafkaAdapter(writer mq.MessageWriter) *EventKafkaAdapter {
	return &EventKafkaAdapter{writer: writer}
}

// Publish 以订单 ID 作为消息 key，保证同一订单的事件进入同一分区。
func (a *EventKafkaAdapter) Publish(ctx context.Context, event port.FulfillmentEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "marshal fulfillment event")
	}
	header := kafka.Header{Key: "event-type", Value: []byte(event.Type)}
	if err := mq.ProduceMessage(ctx, a.writer, []byte(event.OrderID), payload, header); err != nil {
		return errors.Wrapf(err, "publish %s for order %s", event.Type, event.OrderID)
	}
	return nil
}

// Close 关闭底层的 Kafka writer。
func (a *EventKafkaAdapter) Close() error {
	return a.writer.Close()
}

// NoopEventPublisher 在未配置 Kafka 时使用
type NoopEventPublisher struct{}

func (NoopEventPublisher) Publish(context.Context, port.FulfillmentEvent) error { return nil }
