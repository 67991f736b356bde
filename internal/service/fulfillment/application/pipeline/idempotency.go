package pipeline

import (
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"digital-fulfillment/internal/pkg/logger"
	"digital-fulfillment/internal/service/fulfillment/domain"
)

// IdempotencyHandler 跳过已经绑定过库存的订单，保证同一订单不会被重复发货。
type IdempotencyHandler struct {
	NextHandler
}

func (h *IdempotencyHandler) Handle(fc *FulfillmentContext) error {
	ctx, span := fc.Tracer.Start(fc.Ctx, "pipeline.IdempotencyCheck")
	defer span.End()

	done, err := fc.Inventory.IsAlreadyFulfilled(ctx, fc.Order.ID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "idempotency check failed")
		return errors.Wrap(err, "idempotency check")
	}
	span.SetAttributes(attribute.Bool("order.already_fulfilled", done))

	if done {
		logger.Ctx(ctx).Info().Str("order_id", fc.Order.ID).Msg("Order already has inventory bound, skipping")
		fc.Outcome = domain.OutcomeAlreadyFulfilled
		return nil
	}
	return h.executeNext(fc)
}
