// internal/service/fulfillment/infrastructure/db.go
package infrastructure

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Dialect 区分两种后端，它们的建表语句和独占事务写法不同
type Dialect string

const (
	DialectSQLite Dialect = "sqlite"
	DialectMySQL  Dialect = "mysql"
)

// timeLayout 固定宽度，保证文本形式的时间戳可以直接按字典序比较
const timeLayout = "2006-01-02T15:04:05.000000000Z"

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS orders_status (
		order_id        TEXT PRIMARY KEY,
		item_id         TEXT NOT NULL DEFAULT '',
		status          TEXT NOT NULL,
		payment_type    TEXT NOT NULL DEFAULT '',
		delivery_type   TEXT NOT NULL DEFAULT '',
		first_seen_at   TEXT NOT NULL,
		last_updated_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS digital_accounts (
		id               INTEGER PRIMARY KEY AUTOINCREMENT,
		status           TEXT NOT NULL DEFAULT 'free' CHECK (status IN ('free', 'reserved', 'sold')),
		order_id         TEXT,
		reserved_at      TEXT,
		sold_at          TEXT,
		login            TEXT NOT NULL DEFAULT '',
		password_mail    TEXT NOT NULL DEFAULT '',
		service_password TEXT NOT NULL DEFAULT '',
		user_name        TEXT NOT NULL DEFAULT '',
		instruction      TEXT NOT NULL DEFAULT '',
		created_at       TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_digital_accounts_order_id ON digital_accounts(order_id)`,
	`CREATE INDEX IF NOT EXISTS idx_digital_accounts_status ON digital_accounts(status)`,
}

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS orders_status (
		order_id        VARCHAR(64) NOT NULL PRIMARY KEY,
		item_id         VARCHAR(64) NOT NULL DEFAULT '',
		status          VARCHAR(32) NOT NULL,
		payment_type    VARCHAR(32) NOT NULL DEFAULT '',
		delivery_type   VARCHAR(32) NOT NULL DEFAULT '',
		first_seen_at   VARCHAR(32) NOT NULL,
		last_updated_at VARCHAR(32) NOT NULL
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS digital_accounts (
		id               BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
		status           VARCHAR(16) NOT NULL DEFAULT 'free',
		order_id         VARCHAR(64) NULL,
		reserved_at      VARCHAR(32) NULL,
		sold_at          VARCHAR(32) NULL,
		login            VARCHAR(255) NOT NULL DEFAULT '',
		password_mail    VARCHAR(255) NOT NULL DEFAULT '',
		service_password VARCHAR(255) NOT NULL DEFAULT '',
		user_name        VARCHAR(255) NOT NULL DEFAULT '',
		instruction      TEXT NULL,
		created_at       VARCHAR(32) NOT NULL DEFAULT '',
		KEY idx_digital_accounts_order_id (order_id),
		KEY idx_digital_accounts_status (status)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// Database 包装 GORM 连接池。连接按操作从池中获取，所有路径上都会归还。
type Database struct {
	orm     *gorm.DB
	dialect Dialect
}

// Open 按方言打开连接池。SQLite 的 dsn 是文件路径，会附加 busy_timeout。
func Open(ctx context.Context, driver, dsn string, busyTimeout time.Duration) (*Database, error) {
	dialect := Dialect(driver)
	var (
		dialector gorm.Dialector
		mysqlPool *sql.DB
	)
	switch dialect {
	case DialectSQLite:
		dialector = sqlite.Open(sqliteDSN(dsn, busyTimeout))
	case DialectMySQL:
		var err error
		if mysqlPool, err = openMySQL(dsn); err != nil {
			return nil, errors.Wrapf(err, "open %s database", driver)
		}
		dialector = gormmysql.New(gormmysql.Config{Conn: mysqlPool})
	default:
		return nil, errors.Errorf("unsupported database driver %q", driver)
	}

	orm, err := gorm.Open(dialector, gormConfig())
	if err != nil {
		if mysqlPool != nil {
			_ = mysqlPool.Close()
		}
		return nil, errors.Wrapf(err, "open %s database", driver)
	}
	db := NewDatabase(orm, dialect)
	sqlDB, err := orm.DB()
	if err != nil {
		return nil, errors.Wrapf(err, "open %s database", driver)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, errors.Wrapf(err, "ping %s database", driver)
	}
	return db, nil
}

// NewDatabase 包装一个已经打开的 GORM 实例
func NewDatabase(orm *gorm.DB, dialect Dialect) *Database {
	return &Database{orm: orm, dialect: dialect}
}

// gormConfig 关闭 GORM 的隐式写事务：SQLite 的写事务由 withWriteTx 在固定连接上显式开启，
// 嵌套的 BeginTx 会失败。SQL 日志由调用方通过 zerolog 输出错误，GORM 自身保持静默。
func gormConfig() *gorm.Config {
	return &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
	}
}

func sqliteDSN(path string, busyTimeout time.Duration) string {
	if strings.HasPrefix(path, "file:") || strings.Contains(path, "_pragma=") {
		return path
	}
	return fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=foreign_keys(1)", path, busyTimeout.Milliseconds())
}

func openMySQL(dsn string) (*sql.DB, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, err
	}
	cfg.ParseTime = false
	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, err
	}
	return sql.OpenDB(connector), nil
}

// Migrate 建表，可重复执行
func (d *Database) Migrate(ctx context.Context) error {
	stmts := sqliteSchema
	if d.dialect == DialectMySQL {
		stmts = mysqlSchema
	}
	for _, stmt := range stmts {
		if err := d.orm.WithContext(ctx).Exec(stmt).Error; err != nil {
			return errors.Wrap(err, "migrate schema")
		}
	}
	return nil
}

func (d *Database) Close() error {
	sqlDB, err := d.orm.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// withWriteTx 在独占写事务中执行 fn，fn 返回 error 或 panic 时整体回滚。
// SQLite 固定一个连接并用 BEGIN IMMEDIATE 在事务开始时就拿到写锁；
// MySQL 使用可串行化事务，由调用方的 SELECT ... FOR UPDATE 加行锁。
func (d *Database) withWriteTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if d.dialect == DialectMySQL {
		return d.orm.WithContext(ctx).Transaction(fn, &sql.TxOptions{Isolation: sql.LevelSerializable})
	}

	return d.orm.WithContext(ctx).Connection(func(pinned *gorm.DB) error {
		// 每条语句都从干净的 Statement 开始，但仍然使用同一个连接
		conn := pinned.Session(&gorm.Session{NewDB: true})
		if err := conn.Exec("BEGIN IMMEDIATE").Error; err != nil {
			return errors.Wrap(err, "begin immediate")
		}
		committed := false
		defer func() {
			if !committed {
				// ctx 可能已取消，回滚不能依赖它；连接归还连接池前必须结束事务
				_ = conn.WithContext(context.Background()).Exec("ROLLBACK").Error
			}
		}()

		if err := fn(conn); err != nil {
			return err
		}
		if err := conn.Exec("COMMIT").Error; err != nil {
			return errors.Wrap(err, "commit")
		}
		committed = true
		return nil
	})
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
