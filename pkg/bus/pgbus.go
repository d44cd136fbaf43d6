package bus

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

const (
	pgMinReconnect = 10 * time.Second
	pgMaxReconnect = time.Minute
	pgPingInterval = 90 * time.Second
)

// PGBus delivers notifications over postgres LISTEN/NOTIFY, so processes
// sharing one database need no extra infrastructure. Payloads are JSON
// (NOTIFY carries text). Listener-level connection errors are logged and
// the listener reconnects on its own; they are never surfaced to request
// handling code.
type PGBus struct {
	*handlerSet
	dsn      string
	log      *zap.Logger
	db       *sql.DB
	mu       sync.Mutex
	listener *pq.Listener
	closed   bool
}

// NewPGBus creates a LISTEN/NOTIFY bus on the given postgres DSN. The
// notification connection is separate from any database client connection.
func NewPGBus(dsn string, log *zap.Logger) (*PGBus, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	return &PGBus{
		handlerSet: newHandlerSet(),
		dsn:        dsn,
		log:        log,
		db:         db,
	}, nil
}

func (b *PGBus) Codec() Codec { return JSONCodec{} }

func (b *PGBus) Publish(ctx context.Context, topic string, payload any) error {
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
	_, err = b.db.ExecContext(ctx, "SELECT pg_notify($1, $2)", topic, string(data))
	return err
}

func (b *PGBus) Subscribe(topic string, fn Handler) {
	b.add(topic, fn)
	b.mu.Lock()
	listener := b.listener
	b.mu.Unlock()
	if listener != nil {
		if err := listener.Listen(topic); err != nil && err != pq.ErrChannelAlreadyOpen {
			b.log.Error("pg bus: listen failed", zap.String("topic", topic), zap.Error(err))
		}
	}
}

// Listen opens the listener connection, subscribes every registered topic
// and blocks delivering notifications until the context is cancelled.
func (b *PGBus) Listen(ctx context.Context) error {
	listener := pq.NewListener(b.dsn, pgMinReconnect, pgMaxReconnect, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			b.log.Error("pg bus: listener event", zap.Int("event", int(ev)), zap.Error(err))
		}
	})
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		listener.Close()
		return ErrClosed
	}
	b.listener = listener
	b.mu.Unlock()

	for _, topic := range b.topics() {
		if err := listener.Listen(topic); err != nil && err != pq.ErrChannelAlreadyOpen {
			b.log.Error("pg bus: listen failed", zap.String("topic", topic), zap.Error(err))
		}
	}

	ticker := time.NewTicker(pgPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case notification, ok := <-listener.Notify:
			if !ok {
				return ErrClosed
			}
			// nil notifications signal a reconnect; subscribed state is
			// restored by the listener itself
			if notification == nil {
				continue
			}
			b.dispatch(notification.Channel, []byte(notification.Extra))
		case <-ticker.C:
			if err := listener.Ping(); err != nil {
				b.log.Warn("pg bus: ping failed", zap.Error(err))
			}
		}
	}
}

func (b *PGBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	if b.listener != nil {
		if err := b.listener.Close(); err != nil {
			b.log.Warn("pg bus: close listener", zap.Error(err))
		}
	}
	return b.db.Close()
}
