// internal/service/fulfillment/infrastructure/ledger.go
package infrastructure

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"digital-fulfillment/internal/service/fulfillment/domain"
)

// SQLOrderLedger 是 domain.OrderLedger 的 GORM 实现
type SQLOrderLedger struct {
	db  *Database
	now func() time.Time
}

func NewSQLOrderLedger(db *Database) *SQLOrderLedger {
	return &SQLOrderLedger{db: db, now: time.Now}
}

// RecordObservation 插入新订单；已有订单仅在状态变化时更新，first_seen_at 永不修改。
func (l *SQLOrderLedger) RecordObservation(ctx context.Context, order *domain.Order) (domain.LedgerChange, error) {
	orm := l.db.orm.WithContext(ctx)

	var existing OrderStatusModel
	err := orm.Select("status").Where("order_id = ?", order.ID).Take(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		if err := orm.Create(FromDomainOrder(order, l.now())).Error; err != nil {
			return domain.LedgerUnchanged, errors.Wrapf(err, "insert order status %s", order.ID)
		}
		return domain.LedgerInserted, nil
	case err != nil:
		return domain.LedgerUnchanged, errors.Wrapf(err, "query order status %s", order.ID)
	}

	if existing.Status == string(order.Status) {
		return domain.LedgerUnchanged, nil
	}

	updateData := map[string]interface{}{
		"status":          string(order.Status),
		"payment_type":    string(order.Payment),
		"delivery_type":   string(order.Delivery),
		"item_id":         order.PrimaryItemID(),
		"last_updated_at": formatTime(l.now()),
	}
	err = orm.Model(&OrderStatusModel{}).Where("order_id = ?", order.ID).Updates(updateData).Error
	if err != nil {
		return domain.LedgerUnchanged, errors.Wrapf(err, "update order status %s", order.ID)
	}
	return domain.LedgerUpdated, nil
}

func (l *SQLOrderLedger) Get(ctx context.Context, orderID string) (*domain.OrderStatusRecord, error) {
	var model OrderStatusModel
	err := l.db.orm.WithContext(ctx).Where("order_id = ?", orderID).Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrRecordNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get order status %s", orderID)
	}
	return ToDomainOrderStatus(&model)
}
