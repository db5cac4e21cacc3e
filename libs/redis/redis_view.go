// Package redis 带 key 前缀的 redis 视图, 会话存储和登录事件广播都基于它
package redis

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/stardustagi/ChatRelay/libs/logs"
	"github.com/stardustagi/ChatRelay/utils"
	"go.uber.org/zap"
)

// Config 对应配置文件里的 [redis]
type Config struct {
	Addr     string `json:"addr" toml:"addr"`
	Password string `json:"password" toml:"password"`
	DB       int    `json:"db" toml:"db"`
	Prefix   string `json:"prefix" toml:"prefix"`
}

type RedisView interface {
	KeyPrefix() string
	NativeCmd() redis.Cmdable
	Set(ctx context.Context, key string, value []byte, expire string) error
	Get(ctx context.Context, key string) ([]byte, error)
	SetNX(ctx context.Context, key string, value []byte, expire string) (bool, error)
	Del(ctx context.Context, keys ...string) (int64, error)
	Expire(ctx context.Context, key string, expire string) error
	TTL(ctx context.Context, key string) (time.Duration, error)
	Scan(ctx context.Context, cursor uint64, match string, count int64) ([]string, error)
	XAdd(ctx context.Context, args redis.XAddArgs) *redis.StringCmd
	Subscribe(ctx context.Context, channels ...string) (*redis.PubSub, error)
	PSubscribe(ctx context.Context, channels ...string) (*redis.PubSub, error)
	Publish(ctx context.Context, channel string, message interface{}) (int64, error)
}

type redisView struct {
	cmd    redis.Cmdable
	prefix string
	logger *zap.Logger
}

// NewRedisView prefix 为空时不加前缀
func NewRedisView(cmd redis.Cmdable, prefix string, logger *zap.Logger) RedisView {
	if logger == nil {
		logger = logs.GetLogger("redis")
	}
	return &redisView{cmd: cmd, prefix: prefix, logger: logger}
}

// NewClient 根据配置建立连接并 ping 一次
func NewClient(ctx context.Context, config []byte) (*redis.Client, Config, error) {
	cfg, err := utils.Bytes2Struct[Config](config)
	if err != nil {
		return nil, cfg, errors.Wrap(err, "parse redis config")
	}
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:6379"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, cfg, errors.Wrapf(err, "ping redis %s", cfg.Addr)
	}
	return client, cfg, nil
}

func (r *redisView) KeyPrefix() string {
	return r.prefix
}

func (r *redisView) NativeCmd() redis.Cmdable {
	return r.cmd
}

func (r *redisView) key(k string) string {
	if r.prefix == "" || strings.HasPrefix(k, r.prefix+":") {
		return k
	}
	return r.prefix + ":" + k
}

// parseExpire 空字符串表示不过期
func parseExpire(expire string) (time.Duration, error) {
	if expire == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(expire)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid expire %q", expire)
	}
	return d, nil
}

func (r *redisView) Set(ctx context.Context, key string, value []byte, expire string) error {
	d, err := parseExpire(expire)
	if err != nil {
		return err
	}
	if err := r.cmd.Set(ctx, r.key(key), value, d).Err(); err != nil {
		r.logger.Error("redis set failed", logs.String("key", key), logs.ErrorInfo(err))
		return err
	}
	return nil
}

// Get 键不存在时返回 redis.Nil
func (r *redisView) Get(ctx context.Context, key string) ([]byte, error) {
	return r.cmd.Get(ctx, r.key(key)).Bytes()
}

func (r *redisView) SetNX(ctx context.Context, key string, value []byte, expire string) (bool, error) {
	d, err := parseExpire(expire)
	if err != nil {
		return false, err
	}
	return r.cmd.SetNX(ctx, r.key(key), value, d).Result()
}

func (r *redisView) Del(ctx context.Context, keys ...string) (int64, error) {
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = r.key(k)
	}
	return r.cmd.Del(ctx, full...).Result()
}

func (r *redisView) Expire(ctx context.Context, key string, expire string) error {
	d, err := parseExpire(expire)
	if err != nil {
		return err
	}
	return r.cmd.Expire(ctx, r.key(key), d).Err()
}

func (r *redisView) TTL(ctx context.Context, key string) (time.Duration, error) {
	return r.cmd.TTL(ctx, r.key(key)).Result()
}

// Scan 返回带前缀的完整 key
func (r *redisView) Scan(ctx context.Context, cursor uint64, match string, count int64) ([]string, error) {
	var out []string
	for {
		keys, next, err := r.cmd.Scan(ctx, cursor, r.key(match), count).Result()
		if err != nil {
			return nil, err
		}
		out = append(out, keys...)
		if next == 0 {
			return out, nil
		}
		cursor = next
	}
}

func (r *redisView) XAdd(ctx context.Context, args redis.XAddArgs) *redis.StringCmd {
	args.Stream = r.key(args.Stream)
	return r.cmd.XAdd(ctx, &args)
}
