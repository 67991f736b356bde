package pipeline

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"

	"digital-fulfillment/internal/pkg/logger"
	"digital-fulfillment/internal/service/fulfillment/domain"
	"digital-fulfillment/internal/service/fulfillment/domain/port"
)

// FulfillmentContext 在发货责任链中传递单个订单的上下文数据。
type FulfillmentContext struct {
	Ctx    context.Context
	RunID  string
	Order  *domain.Order
	Item   domain.LineItem // 需要发货的商品行，Count 至少为 1
	Tracer trace.Tracer
	Now    func() time.Time

	// 依赖出站端口
	Inventory domain.InventoryStore
	Gateway   port.DeliveryGateway
	Events    port.EventPublisher
	Formatter *CodeFormatter

	ActivationValidity time.Duration
	ActivateTillLayout string

	// 链路执行过程中产生的状态
	Reservation domain.Reservation
	Outcome     domain.Outcome
}

// Publish 发布事件，失败只记录日志，不影响订单处理结果。
func (c *FulfillmentContext) Publish(ctx context.Context, eventType string, fill func(e *port.FulfillmentEvent)) {
	if c.Events == nil {
		return
	}
	event := port.FulfillmentEvent{
		Type:       eventType,
		RunID:      c.RunID,
		OrderID:    c.Order.ID,
		ItemID:     c.Item.ID,
		OccurredAt: c.Now().UTC(),
	}
	if fill != nil {
		fill(&event)
	}
	if err := c.Events.Publish(ctx, event); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("order_id", c.Order.ID).Str("event", eventType).Msg("Failed to publish fulfillment event")
	}
}

// Handler 是责任链中的一个步骤。返回 error 表示意外失败；
// 正常终止（如库存不足）时设置 Outcome 并返回 nil，不再调用下一步。
type Handler interface {
	SetNext(handler Handler) Handler
	Handle(fc *FulfillmentContext) error
}

type NextHandler struct {
	next Handler
}

func (h *NextHandler) SetNext(handler Handler) Handler {
	h.next = handler
	return handler
}

func (h *NextHandler) executeNext(fc *FulfillmentContext) error {
	if h.next != nil {
		return h.next.Handle(fc)
	}
	return nil
}

// BuildChain 组装 幂等检查 → 预占 → 发货 → 确认售出 的处理链
func BuildChain() Handler {
	chain := new(IdempotencyHandler)
	chain.
		SetNext(new(ReservationHandler)).
		SetNext(new(DeliveryHandler)).
		SetNext(new(FinalizeHandler))
	return chain
}
