package application

import (
	"context"
	"time"

	"digital-fulfillment/internal/service/fulfillment/domain"
)

// OrderResult 是单个订单在本轮轮询中的处理结果
type OrderResult struct {
	OrderID string
	Outcome domain.Outcome
	Err     error
}

// PollReport 汇总一次轮询的结果
type PollReport struct {
	RunID          string
	Received       int
	LedgerInserted int
	LedgerUpdated  int
	LedgerErrors   int
	Orders         []OrderResult
	Duration       time.Duration
}

// Count 返回指定结果的订单数量
func (r *PollReport) Count(outcome domain.Outcome) int {
	n := 0
	for _, o := range r.Orders {
		if o.Outcome == outcome {
			n++
		}
	}
	return n
}

// InventorySnapshot 是库存的只读概览，用于指标和告警
type InventorySnapshot struct {
	ByState           map[domain.UnitState]int
	StaleReservations []domain.InventoryUnit
}

type runIDKey struct{}

// WithRunID 把轮询 ID 放进 ctx，事件和日志都会带上它
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

func RunIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}
