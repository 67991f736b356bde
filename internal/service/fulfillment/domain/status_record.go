// internal/service/fulfillment/domain/status_record.go
package domain

import "time"

// OrderStatusRecord 是账本中一张订单的最后已知状态，每个订单 ID 只有一条
type OrderStatusRecord struct {
	OrderID       string
	ItemID        string
	Status        OrderStatus
	Payment       PaymentType
	Delivery      DeliveryType
	FirstSeenAt   time.Time // 首次观察到的时间，之后不再修改
	LastUpdatedAt time.Time
}

// LedgerChange 描述一次观察对账本造成的影响
type LedgerChange int

const (
	LedgerUnchanged LedgerChange = iota
	LedgerInserted
	LedgerUpdated
)

func (c LedgerChange) String() string {
	switch c {
	case LedgerInserted:
		return "inserted"
	case LedgerUpdated:
		return "updated"
	default:
		return "unchanged"
	}
}
