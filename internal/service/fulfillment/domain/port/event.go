package port

import (
	"context"
	"time"

	"digital-fulfillment/internal/service/fulfillment/domain"
)

const (
	EventOrderFulfilled    = "order.fulfilled"
	EventDeliveryFailed    = "order.delivery_failed"
	EventInventoryShortage = "inventory.shortage"
)

// FulfillmentEvent 是发货流水线对外广播的事件
type FulfillmentEvent struct {
	Type       string    `json:"type"`
	RunID      string    `json:"run_id"`
	OrderID    string    `json:"order_id"`
	ItemID     string    `json:"item_id,omitempty"`
	Units      int       `json:"units,omitempty"`
	Available  int       `json:"available,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// EventPublisher 是事件广播的出站端口。发布失败不应影响订单处理结果。
type EventPublisher interface {
	Publish(ctx context.Context, event FulfillmentEvent) error
}

// EligibilityPolicy 判断订单是否可以自动发货
type EligibilityPolicy interface {
	Eligible(ctx context.Context, order *domain.Order) (bool, error)
}
