package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"

	"github.com/buildtall-systems/printq/internal/logging"
)

// Redis carries changes over redis PUBLISH/SUBSCRIBE, one channel per
// collection. go-redis re-subscribes after a network error; the stream is
// reported dropped until the subscribe confirmation comes back.
type Redis struct {
	rdb    *redis.Client
	prefix string
	logger *slog.Logger
}

func NewRedis(rdb *redis.Client, prefix string, logger *slog.Logger) *Redis {
	return &Redis{rdb: rdb, prefix: prefix, logger: logging.OrDiscard(logger)}
}

// NewRedisClient dials addr with short timeouts.
func NewRedisClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  -1,
		WriteTimeout: 2 * time.Second,
	})
}

func (r *Redis) channel(collection string) string {
	return r.prefix + ":" + collection
}

func (r *Redis) Publish(ctx context.Context, c Change) error {
	payload, err := Encode(c)
	if err != nil {
		return fmt.Errorf("encoding change: %w", err)
	}
	if err := r.rdb.Publish(ctx, r.channel(c.Collection), payload).Err(); err != nil {
		return fmt.Errorf("publishing to redis: %w", err)
	}
	return nil
}

func (r *Redis) Open(ctx context.Context, collection string, sink Sink) (Conn, error) {
	ps := r.rdb.Subscribe(ctx, r.channel(collection))
	// The first reply confirms the subscription.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribing to %s: %w", r.channel(collection), err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	conn := &redisConn{ps: ps, cancel: cancel, done: make(chan struct{})}
	go r.receive(loopCtx, conn, collection, sink)
	return conn, nil
}

func (r *Redis) receive(ctx context.Context, conn *redisConn, collection string, sink Sink) {
	defer close(conn.done)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxInterval = 10 * time.Second
	bo.MaxElapsedTime = 0

	dropped := false
	for {
		msg, err := conn.ps.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if !dropped {
				dropped = true
				sink.Dropped(err)
			}
			wait := bo.NextBackOff()
			r.logger.Debug("redis receive failed", "collection", collection, "error", err, "retry_in", wait)
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
			continue
		}

		switch m := msg.(type) {
		case *redis.Subscription:
			if dropped && m.Kind == "subscribe" {
				dropped = false
				bo.Reset()
				sink.Resumed(ctx)
			}
		case *redis.Message:
			sink.Deliver(ctx, []byte(m.Payload))
		case *redis.Pong:
		}
	}
}

func (r *Redis) Close() error {
	return r.rdb.Close()
}

type redisConn struct {
	ps     *redis.PubSub
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
	err    error
}

func (c *redisConn) Close() error {
	c.once.Do(func() {
		c.cancel()
		c.err = c.ps.Close()
	})
	return c.err
}
