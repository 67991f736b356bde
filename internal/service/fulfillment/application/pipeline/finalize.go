package pipeline

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"digital-fulfillment/internal/pkg/logger"
	"digital-fulfillment/internal/service/fulfillment/domain"
	"digital-fulfillment/internal/service/fulfillment/domain/port"
)

// FinalizeHandler 在市场确认后把单元标记为 sold。
type FinalizeHandler struct {
	NextHandler
}

// markSoldTimeout 独立于订单超时
const markSoldTimeout = 30 * time.Second

func (h *FinalizeHandler) Handle(fc *FulfillmentContext) error {
	// 市场已经确认收货，订单超时不能再打断落库，否则单元会一直停在 reserved
	ctx, cancel := context.WithTimeout(context.WithoutCancel(fc.Ctx), markSoldTimeout)
	defer cancel()
	ctx, span := fc.Tracer.Start(ctx, "pipeline.MarkSold")
	defer span.End()

	n, err := fc.Inventory.MarkSold(ctx, fc.Order.ID)
	if err != nil {
		// 已经发货但没能落库，单元仍绑定在订单上，幂等检查会阻止重复发货
		span.RecordError(err)
		span.SetStatus(codes.Error, "mark sold failed")
		return errors.Wrap(err, "mark units sold after delivery")
	}
	span.SetAttributes(attribute.Int64("units.sold", n))

	logger.Ctx(ctx).Info().Str("order_id", fc.Order.ID).Int64("units", n).Msg("Order fulfilled")
	fc.Outcome = domain.OutcomeFulfilled
	fc.Publish(ctx, port.EventOrderFulfilled, func(e *port.FulfillmentEvent) {
		e.Units = int(n)
	})
	return h.executeNext(fc)
}
