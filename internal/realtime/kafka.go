package realtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/buildtall-systems/printq/internal/logging"
)

// Kafka carries changes over one topic per collection. Every change of a
// collection is keyed by the collection name so it lands on one partition
// and keeps commit order. Each connection reads with its own consumer group
// from the latest offset, so every subscriber sees every change published
// after it connected.
type Kafka struct {
	brokers []string
	prefix  string
	writer  *kafka.Writer
	logger  *slog.Logger
}

func NewKafka(brokers []string, prefix string, logger *slog.Logger) *Kafka {
	return &Kafka{
		brokers: brokers,
		prefix:  prefix,
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
		},
		logger: logging.OrDiscard(logger),
	}
}

func (k *Kafka) topic(collection string) string {
	return k.prefix + "." + collection
}

func (k *Kafka) Publish(ctx context.Context, c Change) error {
	payload, err := Encode(c)
	if err != nil {
		return fmt.Errorf("encoding change: %w", err)
	}
	err = k.writer.WriteMessages(ctx, kafka.Message{
		Topic: k.topic(c.Collection),
		Key:   []byte(c.Collection),
		Value: payload,
		Time:  c.CommittedAt,
	})
	if err != nil {
		return fmt.Errorf("writing to kafka: %w", err)
	}
	return nil
}

func (k *Kafka) Open(_ context.Context, collection string, sink Sink) (Conn, error) {
	if len(k.brokers) == 0 {
		return nil, errors.New("no kafka brokers configured")
	}

	conn := &kafkaConn{done: make(chan struct{})}
	conn.reader = kafka.NewReader(kafka.ReaderConfig{
		Brokers:        k.brokers,
		GroupID:        "printq-" + uuid.NewString(),
		Topic:          k.topic(collection),
		StartOffset:    kafka.LastOffset,
		MinBytes:       1,
		MaxBytes:       10e6,
		MaxWait:        500 * time.Millisecond,
		CommitInterval: time.Second,
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			conn.fail(fmt.Errorf(msg, args...))
		}),
	})

	loopCtx, cancel := context.WithCancel(context.Background())
	conn.cancel = cancel
	go k.read(loopCtx, conn, collection, sink)
	return conn, nil
}

func (k *Kafka) read(ctx context.Context, conn *kafkaConn, collection string, sink Sink) {
	defer close(conn.done)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxInterval = 10 * time.Second
	bo.MaxElapsedTime = 0

	dropped := false
	for {
		m, err := conn.reader.ReadMessage(ctx)
		if err == nil && conn.takeFailure() != nil && !dropped {
			// The reader recovered on its own between two reads.
			sink.Dropped(errors.New("kafka reader reported errors"))
			dropped = true
		}
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return
			}
			if !dropped {
				dropped = true
				sink.Dropped(err)
			}
			wait := bo.NextBackOff()
			k.logger.Debug("kafka read failed", "collection", collection, "error", err, "retry_in", wait)
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
			continue
		}

		if dropped {
			dropped = false
			bo.Reset()
			sink.Resumed(ctx)
		}
		sink.Deliver(ctx, m.Value)
	}
}

func (k *Kafka) Close() error {
	return k.writer.Close()
}

type kafkaConn struct {
	reader *kafka.Reader
	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	lastErr error

	once sync.Once
	err  error
}

func (c *kafkaConn) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastErr = err
}

func (c *kafkaConn) takeFailure() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	err := c.lastErr
	c.lastErr = nil
	return err
}

func (c *kafkaConn) Close() error {
	c.once.Do(func() {
		c.cancel()
		c.err = c.reader.Close()
	})
	return c.err
}
