// internal/service/fulfillment/infrastructure/inventory.go
package infrastructure

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"digital-fulfillment/internal/service/fulfillment/domain"
)

// SQLInventoryStore 是 domain.InventoryStore 的 GORM 实现
type SQLInventoryStore struct {
	db  *Database
	now func() time.Time
}

func NewSQLInventoryStore(db *Database) *SQLInventoryStore {
	return &SQLInventoryStore{db: db, now: time.Now}
}

// IsAlreadyFulfilled 只要有任何单元绑定到该订单就返回 true，不区分 reserved 和 sold。
func (s *SQLInventoryStore) IsAlreadyFulfilled(ctx context.Context, orderID string) (bool, error) {
	var n int64
	err := s.db.orm.WithContext(ctx).Model(&DigitalAccountModel{}).Where("order_id = ?", orderID).Count(&n).Error
	if err != nil {
		return false, errors.Wrapf(err, "check fulfillment of order %s", orderID)
	}
	return n > 0, nil
}

// Reserve 原子地预占 count 个最早入库的空闲单元。库存不足时回滚并返回 Insufficient，不是错误。
func (s *SQLInventoryStore) Reserve(ctx context.Context, orderID string, count int) (domain.Reservation, error) {
	if count < 1 {
		return domain.Reservation{}, domain.ErrInvalidCount
	}

	res := domain.Reservation{Requested: count}
	errInsufficient := errors.New("insufficient inventory")

	err := s.db.withWriteTx(ctx, func(tx *gorm.DB) error {
		query := tx.Where("status = ?", string(domain.UnitFree)).Order("id ASC").Limit(count)
		if s.db.dialect == DialectMySQL {
			query = query.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		var models []DigitalAccountModel
		if err := query.Find(&models).Error; err != nil {
			return errors.Wrap(err, "select free units")
		}
		if len(models) < count {
			res.Available = len(models)
			return errInsufficient
		}

		units, err := ToDomainInventoryUnits(models)
		if err != nil {
			return errors.Wrap(err, "select free units")
		}
		ids := make([]int64, 0, len(units))
		for _, u := range units {
			ids = append(ids, u.ID)
		}

		reservedAt := s.now()
		result := tx.Model(&DigitalAccountModel{}).
			Where("status = ? AND id IN ?", string(domain.UnitFree), ids).
			Updates(map[string]interface{}{
				"status":      string(domain.UnitReserved),
				"order_id":    orderID,
				"reserved_at": formatTime(reservedAt),
			})
		if result.Error != nil {
			return errors.Wrap(result.Error, "reserve units")
		}
		if result.RowsAffected != int64(len(units)) {
			return errors.Errorf("reserve units: updated %d rows, expected %d", result.RowsAffected, len(units))
		}

		for i := range units {
			units[i].State = domain.UnitReserved
			units[i].OrderID = orderID
			units[i].ReservedAt = &reservedAt
		}
		res.Units = units
		return nil
	})

	switch {
	case errors.Is(err, errInsufficient):
		res.Outcome = domain.ReservationInsufficient
		return res, nil
	case err != nil:
		return domain.Reservation{}, errors.Wrapf(err, "reserve %d units for order %s", count, orderID)
	}
	res.Outcome = domain.ReservationReserved
	return res, nil
}

// MarkSold 把订单名下的单元全部标记为 sold，已售出的单元保持原 sold_at 不变。
func (s *SQLInventoryStore) MarkSold(ctx context.Context, orderID string) (int64, error) {
	result := s.db.orm.WithContext(ctx).Model(&DigitalAccountModel{}).
		Where("order_id = ? AND status = ?", orderID, string(domain.UnitReserved)).
		Updates(map[string]interface{}{
			"status":  string(domain.UnitSold),
			"sold_at": formatTime(s.now()),
		})
	if result.Error != nil {
		return 0, errors.Wrapf(result.Error, "mark units of order %s sold", orderID)
	}
	return result.RowsAffected, nil
}

func (s *SQLInventoryStore) CountByState(ctx context.Context) (map[domain.UnitState]int, error) {
	var rows []stateCount
	err := s.db.orm.WithContext(ctx).Model(&DigitalAccountModel{}).
		Select("status, COUNT(*) AS n").Group("status").Scan(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "count units by state")
	}

	counts := map[domain.UnitState]int{
		domain.UnitFree:     0,
		domain.UnitReserved: 0,
		domain.UnitSold:     0,
	}
	for _, r := range rows {
		counts[domain.UnitState(r.Status)] = r.N
	}
	return counts, nil
}

func (s *SQLInventoryStore) ListStaleReservations(ctx context.Context, olderThan time.Time) ([]domain.InventoryUnit, error) {
	var models []DigitalAccountModel
	err := s.db.orm.WithContext(ctx).
		Where("status = ? AND reserved_at < ?", string(domain.UnitReserved), formatTime(olderThan)).
		Order("id ASC").Find(&models).Error
	if err != nil {
		return nil, errors.Wrap(err, "list stale reservations")
	}
	units, err := ToDomainInventoryUnits(models)
	if err != nil {
		return nil, errors.Wrap(err, "list stale reservations")
	}
	return units, nil
}

// AddUnits 入库新的空闲单元，返回分配的 ID。
func (s *SQLInventoryStore) AddUnits(ctx context.Context, payloads []domain.AccountPayload) ([]int64, error) {
	if len(payloads) == 0 {
		return nil, nil
	}
	createdAt := s.now()
	models := make([]DigitalAccountModel, 0, len(payloads))
	for _, p := range payloads {
		models = append(models, FromDomainAccountPayload(p, createdAt))
	}
	if err := s.db.orm.WithContext(ctx).Create(&models).Error; err != nil {
		return nil, errors.Wrap(err, "add units")
	}

	ids := make([]int64, 0, len(models))
	for _, m := range models {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

// parseCreatedAt 兼容外部入库脚本写入的 CURRENT_TIMESTAMP 格式，无法识别时留零值
func parseCreatedAt(s string) time.Time {
	for _, layout := range []string{timeLayout, time.RFC3339Nano, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
