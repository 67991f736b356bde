package infrastructure

import (
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"digital-fulfillment/internal/service/fulfillment/domain"
)

// ToDomainOrderStatus 将数据库模型转换为领域模型
func ToDomainOrderStatus(model *OrderStatusModel) (*domain.OrderStatusRecord, error) {
	rec := &domain.OrderStatusRecord{
		OrderID:  model.OrderID,
		ItemID:   model.ItemID,
		Status:   domain.OrderStatus(model.Status),
		Payment:  domain.PaymentType(model.PaymentType),
		Delivery: domain.DeliveryType(model.DeliveryType),
	}
	var err error
	if rec.FirstSeenAt, err = parseTime(model.FirstSeenAt); err != nil {
		return nil, errors.Wrapf(err, "parse first_seen_at of %s", model.OrderID)
	}
	if rec.LastUpdatedAt, err = parseTime(model.LastUpdatedAt); err != nil {
		return nil, errors.Wrapf(err, "parse last_updated_at of %s", model.OrderID)
	}
	return rec, nil
}

// FromDomainOrder 把首次观察到的订单转换为数据库模型 (用于插入)
func FromDomainOrder(order *domain.Order, observedAt time.Time) *OrderStatusModel {
	now := formatTime(observedAt)
	return &OrderStatusModel{
		OrderID:       order.ID,
		ItemID:        order.PrimaryItemID(),
		Status:        string(order.Status),
		PaymentType:   string(order.Payment),
		DeliveryType:  string(order.Delivery),
		FirstSeenAt:   now,
		LastUpdatedAt: now,
	}
}

// ToDomainInventoryUnit 将数据库模型转换为领域模型
func ToDomainInventoryUnit(model *DigitalAccountModel) (domain.InventoryUnit, error) {
	u := domain.InventoryUnit{
		ID:      model.ID,
		State:   domain.UnitState(model.Status),
		OrderID: model.OrderID.String,
		Payload: domain.AccountPayload{
			Login:           model.Login.String,
			MailPassword:    model.PasswordMail.String,
			ServicePassword: model.ServicePassword.String,
			UserName:        model.UserName.String,
			Instruction:     model.Instruction.String,
		},
		CreatedAt: parseCreatedAt(model.CreatedAt.String),
	}
	var err error
	if u.ReservedAt, err = parseNullTime(model.ReservedAt); err != nil {
		return u, errors.Wrapf(err, "parse reserved_at of unit %d", model.ID)
	}
	if u.SoldAt, err = parseNullTime(model.SoldAt); err != nil {
		return u, errors.Wrapf(err, "parse sold_at of unit %d", model.ID)
	}
	return u, nil
}

// ToDomainInventoryUnits 批量转换，任意一行解析失败即返回错误
func ToDomainInventoryUnits(models []DigitalAccountModel) ([]domain.InventoryUnit, error) {
	units := make([]domain.InventoryUnit, 0, len(models))
	for i := range models {
		u, err := ToDomainInventoryUnit(&models[i])
		if err != nil {
			return nil, err
		}
		units = append(units, u)
	}
	return units, nil
}

// FromDomainAccountPayload 把待入库的账号转换为空闲单元
func FromDomainAccountPayload(p domain.AccountPayload, createdAt time.Time) DigitalAccountModel {
	return DigitalAccountModel{
		Status:          string(domain.UnitFree),
		CreatedAt:       nullString(formatTime(createdAt)),
		Login:           nullString(p.Login),
		PasswordMail:    nullString(p.MailPassword),
		ServicePassword: nullString(p.ServicePassword),
		UserName:        nullString(p.UserName),
		Instruction:     nullString(p.Instruction),
	}
}

// nullString 总是写入非 NULL 值，表结构要求这些列 NOT NULL
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: true}
}
