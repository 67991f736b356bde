// internal/service/fulfillment/domain/repository.go
package domain

import (
	"context"
	"errors"
	"time"
)

var (
	ErrRecordNotFound = errors.New("order status record not found")
	ErrInvalidCount   = errors.New("reservation count must be at least 1")
)

// OrderLedger 定义了订单状态账本的持久化接口。
// 它位于领域层，但由基础设施层实现。
type OrderLedger interface {
	// RecordObservation 记录一次订单快照；状态未变化时不写库
	RecordObservation(ctx context.Context, order *Order) (LedgerChange, error)

	// Get 根据订单 ID 查找账本记录，不存在时返回 ErrRecordNotFound
	Get(ctx context.Context, orderID string) (*OrderStatusRecord, error)
}

// InventoryStore 定义了库存单元的持久化接口
type InventoryStore interface {
	// IsAlreadyFulfilled 判断是否已有库存单元绑定到该订单（reserved 或 sold）
	IsAlreadyFulfilled(ctx context.Context, orderID string) (bool, error)

	// Reserve 在独占事务中一次性预占 count 个空闲单元，全有或全无
	Reserve(ctx context.Context, orderID string, count int) (Reservation, error)

	// MarkSold 把订单名下的全部单元标记为 sold，可重复调用
	MarkSold(ctx context.Context, orderID string) (int64, error)

	// CountByState 返回各状态的单元数量
	CountByState(ctx context.Context) (map[UnitState]int, error)

	// ListStaleReservations 返回预占时间早于 olderThan 且仍未售出的单元
	ListStaleReservations(ctx context.Context, olderThan time.Time) ([]InventoryUnit, error)
}
