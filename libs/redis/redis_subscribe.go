package redis

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// ErrUnsupported 底层连接不支持订阅(如 pipeline)
var ErrUnsupported = errors.New("UnSupported")

type subscriber interface {
	Subscribe(context.Context, ...string) *redis.PubSub
	PSubscribe(context.Context, ...string) *redis.PubSub
}

// Subscribe 订阅, 频道名不加前缀
func (r *redisView) Subscribe(ctx context.Context, channels ...string) (*redis.PubSub, error) {
	v, ok := r.cmd.(subscriber)
	if !ok {
		return nil, ErrUnsupported
	}
	ps := v.Subscribe(ctx, channels...)
	// 等待订阅确认, 之后发布的消息不会丢
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}
	return ps, nil
}

// PSubscribe 模式订阅
func (r *redisView) PSubscribe(ctx context.Context, patterns ...string) (*redis.PubSub, error) {
	v, ok := r.cmd.(subscriber)
	if !ok {
		return nil, ErrUnsupported
	}
	ps := v.PSubscribe(ctx, patterns...)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}
	return ps, nil
}

// Publish 发布消息, 返回收到消息的订阅者数量
func (r *redisView) Publish(ctx context.Context, channel string, message interface{}) (int64, error) {
	return r.cmd.Publish(ctx, channel, message).Result()
}
