// Package services 按配置组装各个服务, 并管理它们的启动和退出
package services

import (
	"context"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/pkg/errors"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stardustagi/ChatRelay/libs/conf"
	"github.com/stardustagi/ChatRelay/libs/databases"
	"github.com/stardustagi/ChatRelay/libs/logs"
	"github.com/stardustagi/ChatRelay/libs/nats"
	"github.com/stardustagi/ChatRelay/libs/option"
	"github.com/stardustagi/ChatRelay/libs/redis"
	"github.com/stardustagi/ChatRelay/libs/server"
	"github.com/stardustagi/ChatRelay/libs/storage"
	"github.com/stardustagi/ChatRelay/llm/clients"
	"github.com/stardustagi/ChatRelay/services/auth"
	"github.com/stardustagi/ChatRelay/services/file"
	"github.com/stardustagi/ChatRelay/services/message"
	"github.com/stardustagi/ChatRelay/services/project"
	"github.com/stardustagi/ChatRelay/services/proxy"
	"github.com/stardustagi/ChatRelay/services/relay"
	"github.com/stardustagi/ChatRelay/utils"
	"go.uber.org/zap"
	"xorm.io/xorm"
)

// 需要登录的接口都挂在 /api/v1 下
const privateGroup = "v1"

// Service 统一所有服务的行为
type Service interface {
	Start() error
	Stop()
	IsRunning() bool
}

// App 除了代理以外的组件都是可选的, 对应配置段不存在就不启用
type App struct {
	opts    *option.Options
	global  conf.Global
	backend *server.Backend
	logger  *zap.Logger

	engine    *xorm.Engine
	rdb       *goredis.Client
	rdbPrefix string
	natsConn  *nats.NatsConnection
	store     storage.IStorage
	manager   server.IClientManager

	Proxy    *proxy.Service
	Relay    *relay.Relay
	Auth     *auth.Service
	Projects *project.Service
	Messages *message.Service
	Files    *file.Service

	stopWatch func()
	isRun     atomic.Bool
}

var _ Service = (*App)(nil)

func section[T any](name string) (T, bool, error) {
	var v T
	raw := conf.Get(name)
	if raw == nil {
		return v, false, nil
	}
	v, err := utils.Bytes2Struct[T](raw)
	if err != nil {
		return v, true, errors.Wrapf(err, "parse [%s]", name)
	}
	return v, true, nil
}

// NewApp conf 必须已经加载
func NewApp(ctx context.Context, opts *option.Options) (*App, error) {
	app := &App{opts: opts, logger: logs.GetLogger("app")}
	if err := app.init(ctx); err != nil {
		app.Stop()
		return nil, err
	}
	return app, nil
}

func (m *App) init(ctx context.Context) error {
	global, _, err := section[conf.Global]("global")
	if err != nil {
		return err
	}
	m.global = global

	m.backend, err = server.NewBackend(m.opts)
	if err != nil {
		return err
	}
	if err := m.initProxy(); err != nil {
		return err
	}
	if err := m.initStores(ctx); err != nil {
		return err
	}
	return m.initRecords()
}

func (m *App) initProxy() error {
	upstream, _, err := section[clients.Config]("upstream")
	if err != nil {
		return err
	}
	popts := []proxy.Option{proxy.WithMetrics(m.backend.Metrics)}
	if raw := conf.Get("nats"); raw != nil {
		cfg, err := nats.ParseConfig(raw)
		if err != nil {
			return err
		}
		m.natsConn, err = nats.NewNatsConnect(cfg)
		if err != nil {
			return err
		}
		popts = append(popts, proxy.WithEventPublisher(nats.NewEventPublisher(m.natsConn, cfg.Subject[0])))
	}
	m.Proxy = proxy.NewService(upstream, popts...)
	m.backend.AddAnyHandler("chat", server.NewNativeHandler("chat", nil, m.Proxy.Handle))

	ws, _, err := section[server.HttpWebSocketConfig]("websocket")
	if err != nil {
		return err
	}
	m.manager = server.NewClientManager(logs.GetLogger("websocketClientManager"), m.backend.Metrics)
	m.Relay = relay.New(m.Proxy, m.manager, ws, m.backend.Metrics)
	return nil
}

func (m *App) initStores(ctx context.Context) error {
	if raw := conf.Get("database"); raw != nil {
		engine, err := databases.Open(raw)
		if err != nil {
			return err
		}
		m.engine = engine
	}
	if raw := conf.Get("redis"); raw != nil {
		rdb, cfg, err := redis.NewClient(ctx, raw)
		if err != nil {
			return err
		}
		m.rdb = rdb
		if cfg.Prefix == "" {
			cfg.Prefix = m.global.RedisKeyPrefix
		}
		if cfg.Prefix == "" {
			cfg.Prefix = m.global.AppName
		}
		m.rdbPrefix = cfg.Prefix
	}
	if raw := conf.Get("storage"); raw != nil {
		store, err := storage.New(ctx, raw)
		if err != nil {
			return err
		}
		m.store = store
	}
	return nil
}

// initRecords 项目、消息和附件都要求登录, 没有鉴权时不注册
func (m *App) initRecords() error {
	authCfg, ok, err := section[auth.Config]("auth")
	if err != nil {
		return err
	}
	wsHandler := m.Relay.Handle
	if !ok {
		m.logger.Warn("[auth] not configured, record APIs disabled")
		m.backend.AddHandler(http.MethodGet, "chat/ws", server.NewNativeHandler("chat/ws", nil, wsHandler))
		return nil
	}
	if m.engine == nil || m.rdb == nil {
		return errors.New("[auth] requires [database] and [redis]")
	}

	dao := databases.NewBaseDao(m.engine)
	var tables []map[string]interface{}
	tables = append(tables, auth.Tables()...)
	tables = append(tables, project.Tables()...)
	tables = append(tables, message.Tables()...)
	if err := dao.Migrations(nil, tables); err != nil {
		return errors.Wrap(err, "migrate")
	}

	rds := redis.NewRedisView(m.rdb, m.rdbPrefix, nil)
	m.Auth, err = auth.NewService(authCfg, dao, rds, auth.NewSessions())
	if err != nil {
		return err
	}
	m.Auth.Register(m.backend, "")
	m.backend.AddHandler(http.MethodGet, "chat/ws", server.NewNativeHandler("chat/ws", nil, m.Auth.Middleware()(wsHandler)))

	m.backend.AddGroup(privateGroup, m.Auth.Middleware())
	m.Projects = project.NewService(dao)
	m.Projects.Register(m.backend, privateGroup)
	m.Messages = message.NewService(dao, m.Projects)
	m.Messages.Register(m.backend, privateGroup)

	if m.store != nil {
		m.Files = file.NewService(m.store)
		m.Files.Register(m.backend, privateGroup)
		if local, ok := m.store.(*storage.Local); ok {
			if base := local.PublicURL(""); strings.HasPrefix(base, "/") {
				m.backend.Engine().Static(strings.TrimSuffix(base, "/"), local.Root())
			}
		}
	}
	return nil
}

func (m *App) Backend() *server.Backend {
	return m.backend
}

// Start 阻塞到 http 服务关闭
func (m *App) Start() error {
	if m.Auth != nil {
		stop, err := m.Auth.Watch(context.Background())
		if err != nil {
			return errors.Wrap(err, "watch auth events")
		}
		m.stopWatch = stop
	}
	m.isRun.Store(true)
	defer m.isRun.Store(false)
	m.logger.Info("chatrelay starting", logs.String("app", m.global.AppName), logs.String("version", m.global.AppVersion))
	return m.backend.Start()
}

// Stop 可以在初始化失败后调用, 只释放已经建立的资源
func (m *App) Stop() {
	if m.backend != nil {
		m.backend.Stop()
	}
	if m.manager != nil {
		m.manager.Stop()
	}
	if m.stopWatch != nil {
		m.stopWatch()
		m.stopWatch = nil
	}
	if m.natsConn != nil {
		m.natsConn.Stop()
	}
	if m.rdb != nil {
		_ = m.rdb.Close()
	}
	if m.engine != nil {
		_ = m.engine.Close()
	}
	if m.store != nil {
		_ = m.store.Close()
	}
	m.isRun.Store(false)
}

func (m *App) IsRunning() bool {
	return m.isRun.Load()
}
