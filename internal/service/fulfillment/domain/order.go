// internal/service/fulfillment/domain/order.go
package domain

// OrderStatus 是市场侧的订单状态
type OrderStatus string

const (
	StatusPlaced     OrderStatus = "PLACING"
	StatusUnpaid     OrderStatus = "UNPAID"
	StatusPending    OrderStatus = "PENDING"
	StatusProcessing OrderStatus = "PROCESSING" // 已支付，等待商家发货
	StatusDelivery   OrderStatus = "DELIVERY"
	StatusPickup     OrderStatus = "PICKUP"
	StatusDelivered  OrderStatus = "DELIVERED"
	StatusCancelled  OrderStatus = "CANCELLED"
)

// PaymentType 是支付方式
type PaymentType string

const (
	PaymentPrepaid  PaymentType = "PREPAID"
	PaymentPostpaid PaymentType = "POSTPAID"
)

// DeliveryType 是配送方式
type DeliveryType string

const (
	DeliveryDigital DeliveryType = "DIGITAL"
	DeliveryCourier DeliveryType = "DELIVERY"
	DeliveryPickup  DeliveryType = "PICKUP"
)

// LineItem 是订单中的一行商品
type LineItem struct {
	ID    string
	Count int
}

// Order 是市场返回的订单快照，对本系统只读
type Order struct {
	ID       string
	Status   OrderStatus
	Payment  PaymentType
	Delivery DeliveryType
	Items    []LineItem
}

// PrimaryItem 返回需要发货的商品行。只处理第一行，与市场侧数字商品一单一品的约定一致。
func (o *Order) PrimaryItem() (LineItem, bool) {
	if len(o.Items) == 0 {
		return LineItem{}, false
	}
	item := o.Items[0]
	if item.Count < 1 {
		item.Count = 1
	}
	return item, true
}

// PrimaryItemID 返回第一行商品的 ID，没有商品时为空字符串
func (o *Order) PrimaryItemID() string {
	if len(o.Items) == 0 {
		return ""
	}
	return o.Items[0].ID
}
