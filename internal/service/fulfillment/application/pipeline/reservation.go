package pipeline

import (
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"digital-fulfillment/internal/pkg/logger"
	"digital-fulfillment/internal/service/fulfillment/domain"
	"digital-fulfillment/internal/service/fulfillment/domain/port"
)

// ReservationHandler 负责库存预占步骤。库存不足不是错误，订单留到下次轮询。
type ReservationHandler struct {
	NextHandler
}

func (h *ReservationHandler) Handle(fc *FulfillmentContext) error {
	ctx, span := fc.Tracer.Start(fc.Ctx, "pipeline.Reserve")
	defer span.End()

	span.SetAttributes(
		attribute.String("item.id", fc.Item.ID),
		attribute.Int("item.count", fc.Item.Count),
	)

	res, err := fc.Inventory.Reserve(ctx, fc.Order.ID, fc.Item.Count)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "reservation failed")
		return errors.Wrap(err, "reserve inventory")
	}
	fc.Reservation = res

	if res.Outcome == domain.ReservationInsufficient {
		span.AddEvent("insufficient inventory")
		logger.Ctx(ctx).Warn().
			Str("order_id", fc.Order.ID).
			Int("requested", fc.Item.Count).
			Int("available", res.Available).
			Msg("Not enough free inventory, order deferred")
		fc.Outcome = domain.OutcomeDeferred
		fc.Publish(ctx, port.EventInventoryShortage, func(e *port.FulfillmentEvent) {
			e.Units = fc.Item.Count
			e.Available = res.Available
		})
		return nil
	}

	ids := make([]int64, 0, len(res.Units))
	for _, u := range res.Units {
		ids = append(ids, u.ID)
	}
	span.SetAttributes(attribute.Int64Slice("unit.ids", ids))
	logger.Ctx(ctx).Info().Str("order_id", fc.Order.ID).Ints64("unit_ids", ids).Msg("Inventory reserved")

	return h.executeNext(fc)
}
