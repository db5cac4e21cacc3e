// Package auth 邮箱密码注册登录, 令牌会话保存在 redis
package auth

import (
	"context"
	stderrors "errors"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stardustagi/ChatRelay/libs/databases"
	"github.com/stardustagi/ChatRelay/libs/errors"
	"github.com/stardustagi/ChatRelay/libs/jwt"
	"github.com/stardustagi/ChatRelay/libs/logs"
	"github.com/stardustagi/ChatRelay/libs/redis"
	"github.com/stardustagi/ChatRelay/libs/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// AuthChannel 多实例之间广播登录状态
const AuthChannel = "chatrelay.auth"

const (
	MsgInvalidCredentials = "Invalid login credentials"
	MsgUserExists         = "User already registered"
	MsgInvalidSession     = "Invalid or expired session"
	MsgWeakPassword       = "Password should be at least 6 characters"
	MsgInvalidEmail       = "Unable to validate email address: invalid format"

	MinPasswordLength = 6
)

// Config 对应配置文件里的 [auth]
type Config struct {
	JwtSecret string `json:"jwt_secret" toml:"jwt_secret"`
	TokenTTL  string `json:"token_ttl" toml:"token_ttl"`
}

type User struct {
	ID           int64  `json:"id,string" xorm:"pk bigint"`
	Email        string `json:"email" xorm:"varchar(255) notnull unique"`
	PasswordHash string `json:"-" xorm:"varchar(100) notnull"`
	Name         string `json:"name" xorm:"varchar(255)"`
	Avatar       string `json:"avatar,omitempty" xorm:"varchar(512)"`
	CreatedAt    int64  `json:"createdAt" xorm:"bigint notnull"`
}

func (User) TableName() string { return "users" }

func Tables() []map[string]interface{} {
	return []map[string]interface{}{
		{"id": "202601010000_users", "name": new(User)},
	}
}

// DisplayName 名字为空时取邮箱 @ 前的部分, 再为空时为 User
func DisplayName(name, email string) string {
	if name != "" {
		return name
	}
	if local, _, _ := strings.Cut(email, "@"); local != "" {
		return local
	}
	return "User"
}

type Session struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresAt   int64  `json:"expires_at"`
	User        *User  `json:"user"`
}

// sessionValue redis 里保存的内容
type sessionValue struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

// authMessage 广播给其它实例
type authMessage struct {
	Origin string    `json:"origin"`
	State  AuthState `json:"state"`
}

type Service struct {
	dao      databases.BaseDao
	rds      redis.RedisView
	signer   *jwt.Signer
	sessions *Sessions
	instance string
	cost     int
	logger   *zap.Logger
	now      func() time.Time
}

func NewService(cfg Config, dao databases.BaseDao, rds redis.RedisView, sessions *Sessions) (*Service, error) {
	var ttl time.Duration
	if cfg.TokenTTL != "" {
		d, err := time.ParseDuration(cfg.TokenTTL)
		if err != nil {
			return nil, err
		}
		ttl = d
	}
	signer, err := jwt.NewSigner(cfg.JwtSecret, ttl)
	if err != nil {
		return nil, err
	}
	if sessions == nil {
		sessions = NewSessions()
	}
	return &Service{
		dao:      dao,
		rds:      rds,
		signer:   signer,
		sessions: sessions,
		instance: uuid.RequestID(),
		cost:     bcrypt.DefaultCost,
		logger:   logs.GetLogger("auth"),
		now:      time.Now,
	}, nil
}

func (m *Service) Sessions() *Sessions {
	return m.sessions
}

// OnAuthStateChange 见 Sessions.OnAuthStateChange
func (m *Service) OnAuthStateChange(cb func(AuthState)) func() {
	return m.sessions.OnAuthStateChange(cb)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (m *Service) SignUp(ctx context.Context, email, password, name string) (*Session, error) {
	email = normalizeEmail(email)
	if _, domain, ok := strings.Cut(email, "@"); !ok || domain == "" {
		return nil, errors.Validation(MsgInvalidEmail)
	}
	if len(password) < MinPasswordLength {
		return nil, errors.Validation(MsgWeakPassword)
	}
	exists, err := m.dao.WithContext(ctx).Exists(&User{Email: email})
	if err != nil {
		return nil, errors.Internal(err)
	}
	if exists {
		return nil, errors.Conflict(MsgUserExists)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), m.cost)
	if err != nil {
		return nil, errors.Internal(err)
	}
	user := &User{
		ID:           uuid.NextID(),
		Email:        email,
		PasswordHash: string(hash),
		Name:         DisplayName(strings.TrimSpace(name), email),
		CreatedAt:    m.now().UnixMilli(),
	}
	if _, err := m.dao.WithContext(ctx).InsertOne(user); err != nil {
		return nil, errors.Internal(err)
	}
	m.logger.Info("user signed up", logs.Int64("user", user.ID))
	return m.startSession(ctx, user)
}

func (m *Service) SignIn(ctx context.Context, email, password string) (*Session, error) {
	user := &User{Email: normalizeEmail(email)}
	ok, err := m.dao.WithContext(ctx).FindOne(user)
	if err != nil {
		return nil, errors.Internal(err)
	}
	if !ok || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, errors.Unauthorized(MsgInvalidCredentials)
	}
	return m.startSession(ctx, user)
}

func (m *Service) startSession(ctx context.Context, user *User) (*Session, error) {
	uid := strconv.FormatInt(user.ID, 10)
	token, claims, err := m.signer.Issue(uid, user.Email)
	if err != nil {
		return nil, errors.Internal(err)
	}
	val, _ := json.Marshal(sessionValue{UserID: uid, Email: user.Email})
	if err := m.rds.Set(ctx, jwt.SessionKey(claims.TokenID()), val, m.signer.TTL().String()); err != nil {
		return nil, errors.Internal(err)
	}
	m.notify(ctx, AuthState{Event: SignedIn, User: user})
	return &Session{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresAt:   claims.ExpiresAt,
		User:        user,
	}, nil
}

// GetSession 令牌有效且会话未被注销
func (m *Service) GetSession(ctx context.Context, token string) (*Session, error) {
	claims, err := m.signer.Parse(token)
	if err != nil {
		return nil, errors.Unauthorized(MsgInvalidSession)
	}
	if _, err := m.rds.Get(ctx, jwt.SessionKey(claims.TokenID())); err != nil {
		if stderrors.Is(err, goredis.Nil) {
			return nil, errors.Unauthorized(MsgInvalidSession)
		}
		return nil, errors.Internal(err)
	}
	id, err := strconv.ParseInt(claims.UserID(), 10, 64)
	if err != nil {
		return nil, errors.Unauthorized(MsgInvalidSession)
	}
	user := &User{}
	ok, err := m.dao.WithContext(ctx).FindById(id, user)
	if err != nil {
		return nil, errors.Internal(err)
	}
	if !ok {
		return nil, errors.Unauthorized(MsgInvalidSession)
	}
	return &Session{AccessToken: token, TokenType: "bearer", ExpiresAt: claims.ExpiresAt, User: user}, nil
}

// SignOut 令牌已失效时什么都不做
func (m *Service) SignOut(ctx context.Context, token string) error {
	claims, err := m.signer.Parse(token)
	if err != nil {
		return nil
	}
	n, err := m.rds.Del(ctx, jwt.SessionKey(claims.TokenID()))
	if err != nil {
		return errors.Internal(err)
	}
	if n > 0 {
		m.logger.Info("user signed out", logs.String("user", claims.UserID()))
		m.notify(ctx, AuthState{Event: SignedOut})
	}
	return nil
}

// notify 先通知本实例, 再广播给其它实例
func (m *Service) notify(ctx context.Context, state AuthState) {
	m.sessions.Emit(state)
	payload, err := json.Marshal(authMessage{Origin: m.instance, State: state})
	if err != nil {
		return
	}
	if _, err := m.rds.Publish(ctx, AuthChannel, payload); err != nil {
		m.logger.Warn("publish auth state failed", logs.ErrorInfo(err))
	}
}

// Watch 订阅其它实例的登录状态变化, 转发给本地 Sessions; 返回时订阅已生效
func (m *Service) Watch(ctx context.Context) (stop func(), err error) {
	ps, err := m.rds.Subscribe(ctx, AuthChannel)
	if err != nil {
		return nil, err
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range ps.Channel() {
			var am authMessage
			if err := json.Unmarshal([]byte(msg.Payload), &am); err != nil {
				m.logger.Warn("bad auth message", logs.ErrorInfo(err))
				continue
			}
			if am.Origin == m.instance {
				continue
			}
			m.sessions.Emit(am.State)
		}
	}()
	return func() {
		_ = ps.Close()
		<-done
	}, nil
}
