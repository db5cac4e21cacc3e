// Package databases 基于 xorm 的记录存储, 支持 mysql / postgres / sqlite
package databases

import (
	"errors"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	pkgerrors "github.com/pkg/errors"
	"github.com/stardustagi/ChatRelay/libs/logs"
	"github.com/stardustagi/ChatRelay/utils"
	_ "modernc.org/sqlite"
	"xorm.io/xorm"
	"xorm.io/xorm/names"
)

var (
	ErrMigrateTableIDEmpty   = errors.New("migration table id is empty")
	ErrMigrateTableNameEmpty = errors.New("migration table bean is empty")
	ErrUnsupportedDriver     = errors.New("unsupported database driver")
)

// DBInterface xorm.Engine 和 xorm.EngineGroup 都满足
type DBInterface = xorm.EngineInterface

// Config 对应配置文件里的 [database]
type Config struct {
	Driver          string `json:"driver" toml:"driver"` // mysql | postgres | sqlite
	DSN             string `json:"dsn" toml:"dsn"`
	ShowSQL         bool   `json:"show_sql" toml:"show_sql"`
	MaxOpenConns    int    `json:"max_open_conns" toml:"max_open_conns"`
	MaxIdleConns    int    `json:"max_idle_conns" toml:"max_idle_conns"`
	ConnMaxLifetime int    `json:"conn_max_lifetime" toml:"conn_max_lifetime"` // 秒
}

// driverName 配置里的名字到 database/sql 驱动名
func driverName(d string) (string, error) {
	switch strings.ToLower(d) {
	case "mysql":
		return "mysql", nil
	case "postgres", "postgresql", "pg":
		return "postgres", nil
	case "sqlite", "sqlite3", "":
		// modernc.org/sqlite 注册的名字
		return "sqlite", nil
	default:
		return "", pkgerrors.Wrap(ErrUnsupportedDriver, d)
	}
}

// Open 解析 [database] 段并建立连接
func Open(config []byte) (*xorm.Engine, error) {
	cfg, err := utils.Bytes2Struct[Config](config)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "parse database config")
	}
	return OpenWith(cfg)
}

func OpenWith(cfg Config) (*xorm.Engine, error) {
	name, err := driverName(cfg.Driver)
	if err != nil {
		return nil, err
	}
	dsn := cfg.DSN
	if name == "sqlite" {
		if dsn == "" {
			dsn = "chatrelay.db"
		}
		// sqlite 单写, 多连接只会得到 SQLITE_BUSY
		cfg.MaxOpenConns = 1
	}
	engine, err := xorm.NewEngine(name, dsn)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "open %s", name)
	}
	engine.SetMapper(names.GonicMapper{})
	engine.SetLogger(newSQLLogger(logs.GetLogger("database")))
	engine.ShowSQL(cfg.ShowSQL)
	if cfg.MaxOpenConns > 0 {
		engine.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		engine.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		engine.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)
	}
	if err := engine.Ping(); err != nil {
		_ = engine.Close()
		return nil, pkgerrors.Wrapf(err, "ping %s", name)
	}
	return engine, nil
}

// Pageable 分页参数
type Pageable interface {
	Limit() int
	Skip() int
	Sort() string
}

type PageRequest struct {
	Page     int    `json:"page" query:"page"`
	PageSize int    `json:"page_size" query:"page_size"`
	OrderBy  string `json:"sort" query:"sort"`
}

func NewPageRequest(page, size int, sort string) *PageRequest {
	return &PageRequest{Page: page, PageSize: size, OrderBy: sort}
}

func (m *PageRequest) Limit() int {
	if m.PageSize <= 0 {
		return 20
	}
	if m.PageSize > 200 {
		return 200
	}
	return m.PageSize
}

func (m *PageRequest) Skip() int {
	if m.Page <= 1 {
		return 0
	}
	return (m.Page - 1) * m.Limit()
}

func (m *PageRequest) Sort() string {
	return m.OrderBy
}
