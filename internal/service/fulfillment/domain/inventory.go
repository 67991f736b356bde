// internal/service/fulfillment/domain/inventory.go
package domain

import "time"

// UnitState 定义了库存单元的生命周期: free → reserved → sold
type UnitState string

const (
	UnitFree     UnitState = "free"
	UnitReserved UnitState = "reserved" // 已绑定订单，尚未确认发货
	UnitSold     UnitState = "sold"     // 市场已确认收到发货内容
)

// AccountPayload 是发给买家的账号凭据
type AccountPayload struct {
	Login           string
	MailPassword    string
	ServicePassword string
	UserName        string
	Instruction     string
}

// InventoryUnit 是一份可售卖的数字资产（预先开好的账号）。
// OrderID 非空当且仅当 State 为 reserved 或 sold。
type InventoryUnit struct {
	ID         int64
	State      UnitState
	OrderID    string
	ReservedAt *time.Time
	SoldAt     *time.Time
	CreatedAt  time.Time
	Payload    AccountPayload
}

// ReservationOutcome 区分预占成功与库存不足，二者都不是错误
type ReservationOutcome int

const (
	ReservationReserved ReservationOutcome = iota + 1
	ReservationInsufficient
)

func (o ReservationOutcome) String() string {
	switch o {
	case ReservationReserved:
		return "reserved"
	case ReservationInsufficient:
		return "insufficient"
	default:
		return "unknown"
	}
}

// Reservation 是一次原子预占的结果
type Reservation struct {
	Outcome   ReservationOutcome
	Units     []InventoryUnit // 仅在 Reserved 时非空
	Requested int
	Available int // 仅在 Insufficient 时有意义：事务内看到的空闲数量
}
