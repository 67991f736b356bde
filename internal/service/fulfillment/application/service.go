// internal/service/fulfillment/application/service.go
package application

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"digital-fulfillment/internal/pkg/logger"
	"digital-fulfillment/internal/pkg/metrics"
	"digital-fulfillment/internal/service/fulfillment/application/pipeline"
	"digital-fulfillment/internal/service/fulfillment/domain"
	"digital-fulfillment/internal/service/fulfillment/domain/port"
)

var errMissingOrderID = errors.New("order has no id")

// Options 是发货流程的可调参数
type Options struct {
	BatchSize             int
	OrderTimeout          time.Duration
	ActivationValidity    time.Duration
	ActivateTillLayout    string
	StaleReservationAfter time.Duration
}

// FulfillmentService 只关注业务流程编排：拉单、记账、逐单发货。
type FulfillmentService struct {
	source    port.OrderSource
	ledger    domain.OrderLedger
	inventory domain.InventoryStore
	gateway   port.DeliveryGateway
	policy    port.EligibilityPolicy
	events    port.EventPublisher
	formatter *pipeline.CodeFormatter
	metrics   *metrics.Collector
	tracer    trace.Tracer
	opts      Options
	now       func() time.Time
}

func NewFulfillmentService(source port.OrderSource, ledger domain.OrderLedger, inventory domain.InventoryStore, gateway port.DeliveryGateway, policy port.EligibilityPolicy, events port.EventPublisher, formatter *pipeline.CodeFormatter, collector *metrics.Collector, tracer trace.Tracer, opts Options) *FulfillmentService {
	return &FulfillmentService{
		source: source, ledger: ledger, inventory: inventory,
		gateway: gateway, policy: policy, events: events,
		formatter: formatter, metrics: collector, tracer: tracer,
		opts: opts, now: time.Now,
	}
}

// RunOnce 执行一次完整的轮询。只有拉单失败会返回 error；单个订单的失败记录在报告里。
func (s *FulfillmentService) RunOnce(ctx context.Context) (*PollReport, error) {
	start := s.now()
	runID := RunIDFrom(ctx)
	if runID == "" {
		runID = uuid.NewString()
		ctx = WithRunID(ctx, runID)
	}

	ctx, span := s.tracer.Start(ctx, "app.RunOnce", trace.WithAttributes(attribute.String("run.id", runID)))
	defer span.End()

	log := logger.Ctx(ctx)
	log.Info().Msg("Worker started")

	orders, err := s.source.FetchOrders(ctx, s.opts.BatchSize)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch orders failed")
		return nil, errors.Wrap(err, "poll aborted")
	}
	span.SetAttributes(attribute.Int("orders.received", len(orders)))
	log.Info().Int("count", len(orders)).Msg("Orders received")

	report := &PollReport{RunID: runID, Received: len(orders)}

	// 所有订单先记账，再开始任何预占
	for i := range orders {
		if orders[i].ID == "" {
			continue
		}
		s.recordObservation(ctx, &orders[i], report)
	}

	for i := range orders {
		order := &orders[i]
		if order.ID == "" {
			// 没有订单号既不能记账也不能发货
			logger.Ctx(ctx).Error().Str("item_id", order.PrimaryItemID()).Msg("Skipping order without id")
			report.Orders = append(report.Orders, OrderResult{Outcome: domain.OutcomeFailed, Err: errMissingOrderID})
			s.metrics.ObserveOutcome(string(domain.OutcomeFailed))
			continue
		}
		outcome, err := s.processOrder(ctx, runID, order)
		report.Orders = append(report.Orders, OrderResult{OrderID: order.ID, Outcome: outcome, Err: err})
		s.metrics.ObserveOutcome(string(outcome))
	}

	report.Duration = s.now().Sub(start)
	log.Info().
		Int("received", report.Received).
		Int("fulfilled", report.Count(domain.OutcomeFulfilled)).
		Int("deferred", report.Count(domain.OutcomeDeferred)).
		Int("delivery_failed", report.Count(domain.OutcomeDeliveryFailed)).
		Int("failed", report.Count(domain.OutcomeFailed)).
		Dur("duration", report.Duration).
		Msg("Worker finished")
	return report, nil
}

func (s *FulfillmentService) recordObservation(ctx context.Context, order *domain.Order, report *PollReport) {
	change, err := s.ledger.RecordObservation(ctx, order)
	if err != nil {
		report.LedgerErrors++
		logger.Ctx(ctx).Error().Err(err).Str("order_id", order.ID).Msg("Failed to record order status")
		return
	}
	switch change {
	case domain.LedgerInserted:
		report.LedgerInserted++
		logger.Ctx(ctx).Info().Str("order_id", order.ID).Str("status", string(order.Status)).Msg("New order observed")
	case domain.LedgerUpdated:
		report.LedgerUpdated++
		logger.Ctx(ctx).Info().Str("order_id", order.ID).Str("status", string(order.Status)).Msg("Order status changed")
	}
}

// processOrder 在独立的超时内处理单个订单，任何 error 或 panic 都被限制在这个订单内。
func (s *FulfillmentService) processOrder(ctx context.Context, runID string, order *domain.Order) (outcome domain.Outcome, err error) {
	ctx, span := s.tracer.Start(ctx, "app.ProcessOrder", trace.WithAttributes(
		attribute.String("order.id", order.ID),
		attribute.String("order.status", string(order.Status)),
	))
	defer span.End()

	ctx = logger.WithContext(ctx, map[string]string{"order_id": order.ID})
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while processing order %s: %v", order.ID, r)
			outcome = domain.OutcomeFailed
			span.RecordError(err)
			span.SetStatus(codes.Error, "panic")
			logger.Ctx(ctx).Error().Err(err).Msg("Recovered from panic")
		}
		span.SetAttributes(attribute.String("order.outcome", string(outcome)))
	}()

	eligible, err := s.policy.Eligible(ctx, order)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "eligibility check failed")
		logger.Ctx(ctx).Error().Err(err).Msg("Eligibility check failed")
		return domain.OutcomeFailed, err
	}
	if !eligible {
		return domain.OutcomeSkipped, nil
	}

	item, ok := order.PrimaryItem()
	if !ok {
		err = errors.Errorf("order %s has no line items", order.ID)
		span.RecordError(err)
		span.SetStatus(codes.Error, "no line items")
		logger.Ctx(ctx).Error().Msg("Eligible order has no line items")
		return domain.OutcomeFailed, err
	}

	orderCtx, cancel := context.WithTimeout(ctx, s.opts.OrderTimeout)
	defer cancel()

	fc := &pipeline.FulfillmentContext{
		Ctx:                orderCtx,
		RunID:              runID,
		Order:              order,
		Item:               item,
		Tracer:             s.tracer,
		Now:                s.now,
		Inventory:          s.inventory,
		Gateway:            s.gateway,
		Events:             s.events,
		Formatter:          s.formatter,
		ActivationValidity: s.opts.ActivationValidity,
		ActivateTillLayout: s.opts.ActivateTillLayout,
	}

	logger.Ctx(ctx).Info().Str("item_id", item.ID).Int("count", item.Count).Msg("Processing eligible order")
	if err := pipeline.BuildChain().Handle(fc); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fulfillment chain failed")
		logger.Ctx(ctx).Error().Err(err).Msg("Order processing failed")
		return domain.OutcomeFailed, err
	}
	if fc.Outcome == domain.OutcomeDeliveryFailed {
		span.SetStatus(codes.Error, "delivery failed")
	}
	return fc.Outcome, nil
}

// InspectInventory 刷新库存指标，并对长时间未售出的预占发出告警。
// 这些预占需要人工对账，本服务不会自动释放。
func (s *FulfillmentService) InspectInventory(ctx context.Context) (*InventorySnapshot, error) {
	ctx, span := s.tracer.Start(ctx, "app.InspectInventory")
	defer span.End()

	counts, err := s.inventory.CountByState(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "count inventory failed")
		return nil, err
	}
	byName := make(map[string]int, len(counts))
	for state, n := range counts {
		byName[string(state)] = n
	}
	s.metrics.SetInventory(byName)

	snapshot := &InventorySnapshot{ByState: counts}
	if s.opts.StaleReservationAfter <= 0 {
		return snapshot, nil
	}

	stale, err := s.inventory.ListStaleReservations(ctx, s.now().Add(-s.opts.StaleReservationAfter))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list stale reservations failed")
		return nil, err
	}
	snapshot.StaleReservations = stale
	s.metrics.SetStaleReservations(len(stale))
	for _, u := range stale {
		e := logger.Ctx(ctx).Warn().Int64("unit_id", u.ID).Str("order_id", u.OrderID)
		if u.ReservedAt != nil {
			e = e.Time("reserved_at", *u.ReservedAt)
		}
		e.Msg("Stale reservation needs manual reconciliation")
	}
	return snapshot, nil
}
