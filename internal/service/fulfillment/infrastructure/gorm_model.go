package infrastructure

import (
	"database/sql"
)

// OrderStatusModel 对应数据库中的 orders_status 表
type OrderStatusModel struct {
	OrderID       string `gorm:"column:order_id;primaryKey"`
	ItemID        string `gorm:"column:item_id"`
	Status        string `gorm:"column:status"`
	PaymentType   string `gorm:"column:payment_type"`
	DeliveryType  string `gorm:"column:delivery_type"`
	FirstSeenAt   string `gorm:"column:first_seen_at"`
	LastUpdatedAt string `gorm:"column:last_updated_at"`
}

// TableName 指定 GORM 应该使用的表名
func (OrderStatusModel) TableName() string {
	return "orders_status"
}

// DigitalAccountModel 对应数据库中的 digital_accounts 表。
// 时间戳以固定宽度的文本保存，见 timeLayout。
type DigitalAccountModel struct {
	ID              int64          `gorm:"column:id;primaryKey;autoIncrement"`
	Status          string         `gorm:"column:status"`
	OrderID         sql.NullString `gorm:"column:order_id"`
	ReservedAt      sql.NullString `gorm:"column:reserved_at"`
	SoldAt          sql.NullString `gorm:"column:sold_at"`
	CreatedAt       sql.NullString `gorm:"column:created_at;autoCreateTime:false"`
	Login           sql.NullString `gorm:"column:login"`
	PasswordMail    sql.NullString `gorm:"column:password_mail"`
	ServicePassword sql.NullString `gorm:"column:service_password"`
	UserName        sql.NullString `gorm:"column:user_name"`
	Instruction     sql.NullString `gorm:"column:instruction"`
}

// TableName 指定 GORM 应该使用的表名
func (DigitalAccountModel) TableName() string {
	return "digital_accounts"
}

// stateCount 是按状态分组计数的一行
type stateCount struct {
	Status string `gorm:"column:status"`
	N      int    `gorm:"column:n"`
}
