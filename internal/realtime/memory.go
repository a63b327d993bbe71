package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrTransportClosed is returned after Close.
var ErrTransportClosed = errors.New("transport closed")

// ErrDisconnected is reported to sinks when a memory connection is cut.
var ErrDisconnected = errors.New("connection lost")

// Memory is an in-process transport. Every connection gets its own ordered
// queue drained by one goroutine, so a slow subscriber never blocks Publish.
type Memory struct {
	mu      sync.Mutex
	conns   map[string]map[*memConn]struct{}
	down    map[string]bool
	openErr error
	closed  bool
}

func NewMemory() *Memory {
	return &Memory{
		conns: make(map[string]map[*memConn]struct{}),
		down:  make(map[string]bool),
	}
}

func (m *Memory) Publish(_ context.Context, c Change) error {
	payload, err := Encode(c)
	if err != nil {
		return fmt.Errorf("encoding change: %w", err)
	}
	return m.PublishRaw(c.Collection, payload)
}

// PublishRaw fans an already-encoded payload out to the collection's
// connections. Connections that are down miss it.
func (m *Memory) PublishRaw(collection string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrTransportClosed
	}
	if m.down[collection] {
		return nil
	}
	for conn := range m.conns[collection] {
		conn.push(memItem{payload: payload})
	}
	return nil
}

func (m *Memory) Open(_ context.Context, collection string, sink Sink) (Conn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrTransportClosed
	}
	if err := m.openErr; err != nil {
		m.openErr = nil
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	conn := &memConn{
		m:          m,
		collection: collection,
		sink:       sink,
		wake:       make(chan struct{}, 1),
		ctx:        ctx,
		cancel:     cancel,
	}
	if m.conns[collection] == nil {
		m.conns[collection] = make(map[*memConn]struct{})
	}
	m.conns[collection][conn] = struct{}{}
	go conn.run()
	return conn, nil
}

// FailNextOpen makes the next Open return err.
func (m *Memory) FailNextOpen(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openErr = err
}

// Disconnect cuts every connection to collection. Changes published while
// cut are lost.
func (m *Memory) Disconnect(collection string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down[collection] {
		return
	}
	m.down[collection] = true
	for conn := range m.conns[collection] {
		conn.push(memItem{dropped: ErrDisconnected})
	}
}

// Reconnect restores live delivery on collection.
func (m *Memory) Reconnect(collection string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.down[collection] {
		return
	}
	delete(m.down, collection)
	for conn := range m.conns[collection] {
		conn.push(memItem{resumed: true})
	}
}

// Conns is the number of open connections to collection.
func (m *Memory) Conns(collection string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.conns[collection])
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	for _, conns := range m.conns {
		for conn := range conns {
			conn.cancel()
		}
	}
	m.conns = make(map[string]map[*memConn]struct{})
	return nil
}

func (m *Memory) remove(conn *memConn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if conns, ok := m.conns[conn.collection]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(m.conns, conn.collection)
		}
	}
}

type memItem struct {
	payload []byte
	dropped error
	resumed bool
}

type memConn struct {
	m          *Memory
	collection string
	sink       Sink

	mu    sync.Mutex
	queue []memItem
	wake  chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

func (c *memConn) push(it memItem) {
	c.mu.Lock()
	c.queue = append(c.queue, it)
	c.mu.Unlock()
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *memConn) pop() (memItem, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.queue) == 0 {
		return memItem{}, false
	}
	it := c.queue[0]
	c.queue = c.queue[1:]
	return it, true
}

func (c *memConn) run() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-c.wake:
		}
		for {
			it, ok := c.pop()
			if !ok {
				break
			}
			if c.ctx.Err() != nil {
				return
			}
			switch {
			case it.dropped != nil:
				c.sink.Dropped(it.dropped)
			case it.resumed:
				c.sink.Resumed(c.ctx)
			default:
				c.sink.Deliver(c.ctx, it.payload)
			}
		}
	}
}

// Close does not wait for an in-flight delivery, so a sink may close its
// own connection from inside Deliver.
func (c *memConn) Close() error {
	c.once.Do(func() {
		c.cancel()
		c.m.remove(c)
	})
	return nil
}
