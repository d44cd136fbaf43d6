package bus

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisBus delivers notifications over redis pub/sub, for deployments where
// processes do not share a postgres instance or where notification volume
// should stay off the database connection. Payloads are msgpack.
type RedisBus struct {
	*handlerSet
	client *redis.Client
	log    *zap.Logger
	mu     sync.Mutex
	sub    *redis.PubSub
	closed bool
}

// RedisConfig holds the redis connection settings of the bus.
type RedisConfig struct {
	Addr     string `json:"addr" yaml:"addr"`
	Password string `json:"password" yaml:"password"`
	Database int    `json:"database" yaml:"database"`
	PoolSize int    `json:"pool_size" yaml:"pool_size"`
}

// NewRedisBus creates a pub/sub bus on the given redis instance. The
// connection is verified with a ping before the bus is returned.
func NewRedisBus(ctx context.Context, config RedisConfig, log *zap.Logger) (*RedisBus, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.Database,
		PoolSize: config.PoolSize,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return &RedisBus{
		handlerSet: newHandlerSet(),
		client:     client,
		log:        log,
	}, nil
}

func (b *RedisBus) Codec() Codec { return MsgpackCodec{} }

func (b *RedisBus) Publish(ctx context.Context, topic string, payload any) error {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return ErrClosed
	}
	data, err := b.Codec().Marshal(payload)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, topic, data).Err()
}

func (b *RedisBus) Subscribe(topic string, fn Handler) {
	b.add(topic, fn)
	b.mu.Lock()
	sub := b.sub
	b.mu.Unlock()
	if sub != nil {
		if err := sub.Subscribe(context.Background(), topic); err != nil {
			b.log.Error("redis bus: subscribe failed", zap.String("topic", topic), zap.Error(err))
		}
	}
}

// Listen opens the pub/sub connection, subscribes every registered topic and
// blocks delivering messages until the context is cancelled. The go-redis
// pub/sub reconnects and resubscribes on its own after connection loss.
func (b *RedisBus) Listen(ctx context.Context) error {
	sub := b.client.Subscribe(ctx, b.topics()...)
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		sub.Close()
		return ErrClosed
	}
	b.sub = sub
	b.mu.Unlock()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return ErrClosed
			}
			b.dispatch(msg.Channel, []byte(msg.Payload))
		}
	}
}

func (b *RedisBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	if b.sub != nil {
		if err := b.sub.Close(); err != nil {
			b.log.Warn("redis bus: close pubsub", zap.Error(err))
		}
	}
	return b.client.Close()
}
