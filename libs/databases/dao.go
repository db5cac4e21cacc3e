package databases

import (
	"context"

	"xorm.io/xorm"
	"xorm.io/xorm/migrate"
)

type Dao interface {
	Count(bean interface{}) (int64, error)
	Exists(bean interface{}) (bool, error)

	InsertOne(entry interface{}) (int64, error)
	InsertMany(entries ...interface{}) (int64, error)

	Update(bean interface{}, where ...interface{}) (int64, error)
	UpdateById(id interface{}, bean interface{}, cols ...string) (int64, error)
	Upsert(where interface{}, bean interface{}) (int64, error)

	Delete(bean interface{}) (int64, error)
	DeleteById(id interface{}, bean interface{}) (int64, error)

	FindById(id interface{}, bean interface{}) (bool, error)
	FindOne(bean interface{}, orderBy ...string) (bool, error)
	FindMany(rowsSlicePtr interface{}, orderBy string, condiBean ...interface{}) error
	FindAndCount(rowsSlicePtr interface{}, pageable Pageable, condiBean ...interface{}) (int64, error)

	Native() DBInterface
	Migrations(opt *migrate.Options, tables []map[string]interface{}) error
}

type SessionDao interface {
	Dao
	Session() *xorm.Session
	Begin() error
	Commit() error
	Rollback() error
	Close()
}

type BaseDao interface {
	Dao
	NewSession() SessionDao
	// WithContext 单次操作使用, 执行完自动关闭
	WithContext(ctx context.Context) Dao
	// Transaction fn 返回错误时回滚
	Transaction(ctx context.Context, fn func(SessionDao) error) error
}

type OrmBaseDao struct {
	conn    DBInterface
	session *xorm.Session
}

// NewBaseDao 不持有 session, 可在多个 goroutine 间共享
func NewBaseDao(conn DBInterface) BaseDao {
	return &OrmBaseDao{conn: conn}
}

func (m *OrmBaseDao) Session() *xorm.Session {
	return m.session
}

// NewSession 创建一个session, 只能在单个 goroutine 中使用
func (m *OrmBaseDao) NewSession() SessionDao {
	return &OrmBaseDao{conn: m.conn, session: m.conn.NewSession()}
}

func (m *OrmBaseDao) WithContext(ctx context.Context) Dao {
	return &OrmBaseDao{conn: m.conn, session: m.conn.Context(ctx)}
}

func (m *OrmBaseDao) Transaction(ctx context.Context, fn func(SessionDao) error) error {
	sess := &OrmBaseDao{conn: m.conn, session: m.conn.NewSession().Context(ctx)}
	defer sess.Close()
	if err := sess.Begin(); err != nil {
		return err
	}
	if err := fn(sess); err != nil {
		_ = sess.Rollback()
		return err
	}
	return sess.Commit()
}

// Begin 开启事务
func (m *OrmBaseDao) Begin() error {
	return m.session.Begin()
}

// Close 关闭session
func (m *OrmBaseDao) Close() {
	if m.session != nil {
		_ = m.session.Close()
	}
}

func (m *OrmBaseDao) Commit() error {
	return m.session.Commit()
}

func (m *OrmBaseDao) Rollback() error {
	return m.session.Rollback()
}

// db 有 session 时走 session, 否则每次新建
func (m *OrmBaseDao) db() xorm.Interface {
	if m.session != nil {
		return m.session
	}
	return m.conn
}

func (m *OrmBaseDao) InsertOne(entry interface{}) (int64, error) {
	return m.db().InsertOne(entry)
}

func (m *OrmBaseDao) InsertMany(entries ...interface{}) (int64, error) {
	return m.db().Insert(entries...)
}

func (m *OrmBaseDao) Update(bean interface{}, where ...interface{}) (int64, error) {
	return m.db().Update(bean, where...)
}

// UpdateById cols 为空时只更新非零字段
func (m *OrmBaseDao) UpdateById(id interface{}, bean interface{}, cols ...string) (int64, error) {
	q := m.db().ID(id)
	if len(cols) > 0 {
		q = q.Cols(cols...)
	}
	return q.Update(bean)
}

// Upsert 如果数据存在则更新，不存在则插入
func (m *OrmBaseDao) Upsert(where interface{}, bean interface{}) (int64, error) {
	exists, err := m.Exists(where)
	if err != nil {
		return 0, err
	}
	if exists {
		return m.Update(bean, where)
	}
	return m.InsertOne(bean)
}

func (m *OrmBaseDao) Delete(bean interface{}) (int64, error) {
	return m.db().Delete(bean)
}

func (m *OrmBaseDao) DeleteById(id interface{}, bean interface{}) (int64, error) {
	return m.db().ID(id).Delete(bean)
}

// FindById bean 上的非零字段会作为额外的查询条件, 传入前先置零
func (m *OrmBaseDao) FindById(id interface{}, bean interface{}) (bool, error) {
	return m.db().ID(id).Get(bean)
}

func (m *OrmBaseDao) FindOne(bean interface{}, orderBy ...string) (bool, error) {
	if len(orderBy) > 0 && orderBy[0] != "" {
		return m.db().OrderBy(orderBy[0]).Get(bean)
	}
	return m.db().Get(bean)
}

func (m *OrmBaseDao) Count(bean interface{}) (int64, error) {
	return m.db().Count(bean)
}

func (m *OrmBaseDao) Exists(bean interface{}) (bool, error) {
	return m.db().Exist(bean)
}

func (m *OrmBaseDao) FindMany(rowsSlicePtr interface{}, orderBy string, condiBean ...interface{}) error {
	return m.db().OrderBy(orderBy).Find(rowsSlicePtr, condiBean...)
}

func (m *OrmBaseDao) FindAndCount(rowsSlicePtr interface{}, pageable Pageable, condiBean ...interface{}) (int64, error) {
	return m.db().
		Limit(pageable.Limit(), pageable.Skip()).
		OrderBy(pageable.Sort()).
		FindAndCount(rowsSlicePtr, condiBean...)
}

func (m *OrmBaseDao) Native() DBInterface {
	return m.conn
}

// Migrations 每张表一个迁移, 首次运行时直接同步全部表结构
func (m *OrmBaseDao) Migrations(opt *migrate.Options, tables []map[string]interface{}) error {
	var migrations []*migrate.Migration
	for _, table := range tables {
		id, ok := table["id"].(string)
		if !ok || id == "" {
			return ErrMigrateTableIDEmpty
		}
		bean, ok := table["name"]
		if !ok || bean == nil {
			return ErrMigrateTableNameEmpty
		}
		migrations = append(migrations, &migrate.Migration{
			ID: id,
			Migrate: func(tx *xorm.Engine) error {
				return tx.Sync(bean)
			},
			Rollback: func(tx *xorm.Engine) error {
				return tx.DropTables(bean)
			},
		})
	}

	engine, ok := m.conn.(*xorm.Engine)
	if !ok {
		return ErrUnsupportedDriver
	}
	if opt == nil {
		opt = migrate.DefaultOptions
	}
	x := migrate.New(engine, opt, migrations)
	x.InitSchema(func(tx *xorm.Engine) error {
		for _, table := range tables {
			if err := tx.Sync(table["name"]); err != nil {
				return err
			}
		}
		return nil
	})
	return x.Migrate()
}
