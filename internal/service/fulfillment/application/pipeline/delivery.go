package pipeline

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"digital-fulfillment/internal/pkg/logger"
	"digital-fulfillment/internal/service/fulfillment/domain"
	"digital-fulfillment/internal/service/fulfillment/domain/port"
)

// DeliveryHandler 把预占的账号提交给市场。
// 发货失败时单元保持 reserved，不做补偿，等待人工对账。
type DeliveryHandler struct {
	NextHandler
}

func (h *DeliveryHandler) Handle(fc *FulfillmentContext) error {
	ctx, span := fc.Tracer.Start(fc.Ctx, "pipeline.Deliver")
	defer span.End()

	units := fc.Reservation.Units
	codesOut, err := fc.Formatter.Format(units)
	if err == nil {
		req := port.DeliveryRequest{
			OrderID:      fc.Order.ID,
			ItemID:       fc.Item.ID,
			Codes:        codesOut,
			Slip:         units[0].Payload.Instruction,
			ActivateTill: fc.Now().Add(fc.ActivationValidity).Format(fc.ActivateTillLayout),
		}
		span.SetAttributes(
			attribute.Int("codes.count", len(req.Codes)),
			attribute.String("activate_till", req.ActivateTill),
		)
		err = fc.Gateway.Deliver(ctx, req)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "delivery failed")
		logger.Ctx(ctx).Error().Err(err).
			Str("order_id", fc.Order.ID).
			Int("reserved_units", len(units)).
			Msg("Delivery failed, units stay reserved")
		fc.Outcome = domain.OutcomeDeliveryFailed
		fc.Publish(ctx, port.EventDeliveryFailed, func(e *port.FulfillmentEvent) {
			e.Units = len(units)
			e.Reason = err.Error()
		})
		return nil
	}

	span.AddEvent("delivery confirmed by marketplace")
	return h.executeNext(fc)
}
