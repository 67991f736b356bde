package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"net/url"
	"strconv"

	"github.com/pkg/errors"

	"digital-fulfillment/internal/pkg/httpclient"
	"digital-fulfillment/internal/service/fulfillment/domain"
	"digital-fulfillment/internal/service/fulfillment/domain/port"
)

// MarketEndpoint 描述市场 API 的地址和店铺标识
type MarketEndpoint struct {
	BaseURL    string
	BusinessID string
	CampaignID string
}

// flexibleID 兼容市场 API 把 ID 写成数字或字符串两种形式
type flexibleID string

func (id *flexibleID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = flexibleID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = flexibleID(n.String())
	return nil
}

type ordersResponse struct {
	Orders []orderDTO `json:"orders"`
}

type orderDTO struct {
	ID          flexibleID `json:"orderId"`
	Status      string     `json:"status"`
	PaymentType string     `json:"paymentType"`
	Delivery    struct {
		Type string `json:"type"`
	} `json:"delivery"`
	Items []struct {
		ID    flexibleID `json:"id"`
		Count int        `json:"count"`
	} `json:"items"`
}

func (o orderDTO) toDomain() domain.Order {
	order := domain.Order{
		ID:       string(o.ID),
		Status:   domain.OrderStatus(o.Status),
		Payment:  domain.PaymentType(o.PaymentType),
		Delivery: domain.DeliveryType(o.Delivery.Type),
		Items:    make([]domain.LineItem, 0, len(o.Items)),
	}
	for _, it := range o.Items {
		order.Items = append(order.Items, domain.LineItem{ID: string(it.ID), Count: it.Count})
	}
	return order
}

// MarketOrderSource 是 port.OrderSource 接口的 HTTP 实现。
type MarketOrderSource struct {
	client   *httpclient.Client
	endpoint MarketEndpoint
}

// NewMarketOrderSource 创建一个新的订单源适配器。鉴权头由 client.Header 提供。
func NewMarketOrderSource(client *httpclient.Client, endpoint MarketEndpoint) *MarketOrderSource {
	return &MarketOrderSource{client: client, endpoint: endpoint}
}

// FetchOrders 拉取一批订单。市场返回非 2xx 时整批失败，本轮轮询不做任何写入。
func (a *MarketOrderSource) FetchOrders(ctx context.Context, limit int) ([]domain.Order, error) {
	rawURL, err := url.JoinPath(a.endpoint.BaseURL, "v1", "businesses", a.endpoint.BusinessID, "orders")
	if err != nil {
		return nil, errors.Wrap(err, "build orders url")
	}
	rawURL += "?limit=" + strconv.Itoa(limit)

	var resp ordersResponse
	if err := a.client.PostJSON(ctx, "market.FetchOrders", rawURL, struct{}{}, &resp); err != nil {
		return nil, errors.Wrap(err, "fetch orders")
	}

	orders := make([]domain.Order, 0, len(resp.Orders))
	for _, o := range resp.Orders {
		orders = append(orders, o.toDomain())
	}
	return orders, nil
}

type deliverRequest struct {
	Items []deliverItem `json:"items"`
}

type deliverItem struct {
	ID           any      `json:"id"`
	Codes        []string `json:"codes"`
	Slip         string   `json:"slip"`
	ActivateTill string   `json:"activate_till"`
}

// MarketDeliveryGateway 是 port.DeliveryGateway 接口的 HTTP 实现。
type MarketDeliveryGateway struct {
	client   *httpclient.Client
	endpoint MarketEndpoint
}

func NewMarketDeliveryGateway(client *httpclient.Client, endpoint MarketEndpoint) *MarketDeliveryGateway {
	return &MarketDeliveryGateway{client: client, endpoint: endpoint}
}

// Deliver 提交发货内容，只有 2xx 才视为市场已确认。
func (a *MarketDeliveryGateway) Deliver(ctx context.Context, req port.DeliveryRequest) error {
	rawURL, err := url.JoinPath(a.endpoint.BaseURL, "v2", "campaigns", a.endpoint.CampaignID,
		"orders", req.OrderID, "deliverDigitalGoods")
	if err != nil {
		return errors.Wrap(err, "build delivery url")
	}

	body := deliverRequest{Items: []deliverItem{{
		ID:           itemIDValue(req.ItemID),
		Codes:        req.Codes,
		Slip:         req.Slip,
		ActivateTill: req.ActivateTill,
	}}}
	if err := a.client.PostJSON(ctx, "market.DeliverDigitalGoods", rawURL, body, nil); err != nil {
		return errors.Wrapf(err, "deliver digital goods for order %s", req.OrderID)
	}
	return nil
}

// itemIDValue 数字 ID 原样按数字发送，其它情况按字符串发送
func itemIDValue(id string) any {
	if _, err := strconv.ParseInt(id, 10, 64); err == nil {
		return json.Number(id)
	}
	return id
}
