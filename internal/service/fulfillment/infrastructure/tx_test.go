package infrastructure

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"

	"digital-fulfillment/internal/service/fulfillment/domain"
)

var unitColumnNames = []string{
	"id", "status", "order_id", "reserved_at", "sold_at", "created_at",
	"login", "password_mail", "service_password", "user_name", "instruction",
}

func newMockDatabase(t *testing.T, dialect Dialect) (*Database, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	// 语句由 withWriteTx 和 GORM 生成，方言只影响加锁方式，这里统一用 MySQL 的 SQL 生成器
	orm, err := gorm.Open(gormmysql.New(gormmysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), gormConfig())
	require.NoError(t, err)
	return NewDatabase(orm, dialect), mock
}

func freeRows(ids ...int64) *sqlmock.Rows {
	rows := sqlmock.NewRows(unitColumnNames)
	for _, id := range ids {
		rows.AddRow(id, "free", nil, nil, nil, "", "login", "mail", "svc", "name", "instr")
	}
	return rows
}

func TestReserve_SQLiteTakesWriteLockAndCommits(t *testing.T) {
	db, mock := newMockDatabase(t, DialectSQLite)
	store := NewSQLInventoryStore(db)

	mock.ExpectExec("BEGIN IMMEDIATE").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT \\* FROM `digital_accounts` WHERE status = \\? ORDER BY id ASC LIMIT").
		WillReturnRows(freeRows(1, 2))
	mock.ExpectExec("UPDATE `digital_accounts` SET .+ WHERE status = \\? AND id IN \\(\\?,\\?\\)").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("COMMIT").WillReturnResult(sqlmock.NewResult(0, 0))

	res, err := store.Reserve(context.Background(), "A", 2)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationReserved, res.Outcome)
	assert.Len(t, res.Units, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReserve_SQLiteRollsBackOnInsufficient(t *testing.T) {
	db, mock := newMockDatabase(t, DialectSQLite)
	store := NewSQLInventoryStore(db)

	mock.ExpectExec("BEGIN IMMEDIATE").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT .+ FROM .digital_accounts.").WillReturnRows(freeRows(7))
	mock.ExpectExec("ROLLBACK").WillReturnResult(sqlmock.NewResult(0, 0))

	res, err := store.Reserve(context.Background(), "A", 3)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationInsufficient, res.Outcome)
	assert.Equal(t, 1, res.Available)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReserve_SQLiteRollsBackOnUpdateFailure(t *testing.T) {
	db, mock := newMockDatabase(t, DialectSQLite)
	store := NewSQLInventoryStore(db)

	mock.ExpectExec("BEGIN IMMEDIATE").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT .+ FROM .digital_accounts.").WillReturnRows(freeRows(1))
	mock.ExpectExec("UPDATE .digital_accounts.").WillReturnError(errors.New("disk I/O error"))
	mock.ExpectExec("ROLLBACK").WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := store.Reserve(context.Background(), "A", 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk I/O error")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReserve_SQLiteRollsBackOnPartialUpdate(t *testing.T) {
	db, mock := newMockDatabase(t, DialectSQLite)
	store := NewSQLInventoryStore(db)

	mock.ExpectExec("BEGIN IMMEDIATE").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT .+ FROM .digital_accounts.").WillReturnRows(freeRows(1, 2))
	mock.ExpectExec("UPDATE .digital_accounts.").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("ROLLBACK").WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := store.Reserve(context.Background(), "A", 2)
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReserve_SQLiteBusyIsReported(t *testing.T) {
	db, mock := newMockDatabase(t, DialectSQLite)
	store := NewSQLInventoryStore(db)

	mock.ExpectExec("BEGIN IMMEDIATE").WillReturnError(errors.New("database is locked"))

	_, err := store.Reserve(context.Background(), "A", 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "begin immediate")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReserve_MySQLLocksRowsForUpdate(t *testing.T) {
	db, mock := newMockDatabase(t, DialectMySQL)
	store := NewSQLInventoryStore(db)

	mock.ExpectBegin()
	mock.ExpectQuery("ORDER BY id ASC LIMIT .+ FOR UPDATE").WillReturnRows(freeRows(4))
	mock.ExpectExec("UPDATE .digital_accounts.").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	res, err := store.Reserve(context.Background(), "A", 1)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationReserved, res.Outcome)
	assert.EqualValues(t, 4, res.Units[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReserve_MySQLRollsBackOnInsufficient(t *testing.T) {
	db, mock := newMockDatabase(t, DialectMySQL)
	store := NewSQLInventoryStore(db)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WillReturnRows(freeRows())
	mock.ExpectRollback()

	res, err := store.Reserve(context.Background(), "A", 1)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationInsufficient, res.Outcome)
	assert.Equal(t, 0, res.Available)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate_MySQLCreatesTables(t *testing.T) {
	db, mock := newMockDatabase(t, DialectMySQL)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS orders_status").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS digital_accounts").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, db.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedger_QueryFailureIsWrapped(t *testing.T) {
	db, mock := newMockDatabase(t, DialectSQLite)
	ledger := NewSQLOrderLedger(db)

	mock.ExpectQuery("SELECT .+ FROM `orders_status` WHERE order_id = \\?").
		WillReturnError(errors.New("connection reset"))

	_, err := ledger.RecordObservation(context.Background(), &domain.Order{ID: "42", Status: domain.StatusProcessing})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query order status 42")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithWriteTx_SQLiteRollsBackWhenCallbackPanics(t *testing.T) {
	db, mock := newMockDatabase(t, DialectSQLite)

	mock.ExpectExec("BEGIN IMMEDIATE").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("ROLLBACK").WillReturnResult(sqlmock.NewResult(0, 0))

	assert.PanicsWithValue(t, "scan exploded", func() {
		_ = db.withWriteTx(context.Background(), func(*gorm.DB) error {
			panic("scan exploded")
		})
	})
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithWriteTx_SQLiteRollsBackOnCommitFailure(t *testing.T) {
	db, mock := newMockDatabase(t, DialectSQLite)

	mock.ExpectExec("BEGIN IMMEDIATE").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("COMMIT").WillReturnError(errors.New("disk full"))
	mock.ExpectExec("ROLLBACK").WillReturnResult(sqlmock.NewResult(0, 0))

	err := db.withWriteTx(context.Background(), func(*gorm.DB) error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "commit")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithWriteTx_MySQLRollsBackWhenCallbackPanics(t *testing.T) {
	db, mock := newMockDatabase(t, DialectMySQL)

	mock.ExpectBegin()
	mock.ExpectRollback()

	assert.Panics(t, func() {
		_ = db.withWriteTx(context.Background(), func(*gorm.DB) error {
			panic("scan exploded")
		})
	})
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkSold_OnlyTouchesReservedUnits(t *testing.T) {
	db, mock := newMockDatabase(t, DialectSQLite)
	store := NewSQLInventoryStore(db)

	mock.ExpectExec("UPDATE `digital_accounts` SET .+ WHERE order_id = \\? AND status = \\?").
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := store.MarkSold(context.Background(), "A")
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// txOptionsRecorder 是只支持开启和提交事务的连接，用来观察事务隔离级别
type txOptionsRecorder struct {
	opts []driver.TxOptions
}

func (r *txOptionsRecorder) Connect(context.Context) (driver.Conn, error) { return &recordingConn{r: r}, nil }
func (r *txOptionsRecorder) Driver() driver.Driver                        { return nil }

type recordingConn struct {
	r *txOptionsRecorder
}

func (c *recordingConn) Prepare(string) (driver.Stmt, error) {
	return nil, errors.New("statements are not supported")
}
func (c *recordingConn) Close() error              { return nil }
func (c *recordingConn) Begin() (driver.Tx, error) { return c, nil }
func (c *recordingConn) BeginTx(_ context.Context, opts driver.TxOptions) (driver.Tx, error) {
	c.r.opts = append(c.r.opts, opts)
	return c, nil
}
func (c *recordingConn) Commit() error   { return nil }
func (c *recordingConn) Rollback() error { return nil }

func TestWithWriteTx_MySQLIsSerializable(t *testing.T) {
	recorder := &txOptionsRecorder{}
	sqlDB := sql.OpenDB(recorder)
	t.Cleanup(func() { _ = sqlDB.Close() })
	orm, err := gorm.Open(gormmysql.New(gormmysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), gormConfig())
	require.NoError(t, err)

	db := NewDatabase(orm, DialectMySQL)
	require.NoError(t, db.withWriteTx(context.Background(), func(*gorm.DB) error { return nil }))

	require.Len(t, recorder.opts, 1)
	assert.Equal(t, driver.IsolationLevel(sql.LevelSerializable), recorder.opts[0].Isolation)
}
