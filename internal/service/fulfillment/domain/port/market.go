package port

import (
	"context"

	"digital-fulfillment/internal/service/fulfillment/domain"
)

// OrderSource 是市场订单查询的出站端口。
type OrderSource interface {
	// FetchOrders 拉取最多 limit 个订单，请求失败时返回 error，调用方应放弃本轮轮询。
	FetchOrders(ctx context.Context, limit int) ([]domain.Order, error)
}

// DeliveryRequest 是一次数字商品发货的请求内容
type DeliveryRequest struct {
	OrderID      string
	ItemID       string
	Codes        []string
	Slip         string
	ActivateTill string
}

// DeliveryGateway 是向市场提交发货内容的出站端口。
// 它封装了所有与外部服务通信的技术细节。
type DeliveryGateway interface {
	// Deliver 仅在市场明确确认后返回 nil。
	Deliver(ctx context.Context, req DeliveryRequest) error
}
