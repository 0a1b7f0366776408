package core

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer.
	defaultWriteWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	defaultPongWait = 60 * time.Second

	// Maximum message size allowed from peer.
	defaultMaxMessageSize = 64 * 1024

	// Number of outbound events buffered per connection before it is considered a slow consumer.
	defaultWriteStreamSize = 256
)

// ErrManagerClosed is returned by Connect once the manager has been closed.
var ErrManagerClosed = errors.New("connection manager closed")

// ConnManager upgrades HTTP requests to websocket connections and keeps track of them by connection id.
type ConnManager struct {
	conns  map[string]*Conn
	mu     sync.RWMutex
	connWg sync.WaitGroup
	closed bool

	context context.Context
	cancel  context.CancelFunc
	logger  *zap.Logger

	onConnectionOpened func(string)
	onConnectionClosed func(string)
	onEvent            func(context.Context, *Event)

	upgrader        websocket.Upgrader
	WriteStreamSize int
	MaxMessageSize  int64
	WriteWait       time.Duration
	PongWait        time.Duration
}

var defaultUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type ManagerOption func(*ConnManager)

func WithCheckOrigin(f func(r *http.Request) bool) ManagerOption {
	return func(m *ConnManager) {
		m.upgrader.CheckOrigin = f
	}
}

func WithLogger(l *zap.Logger) ManagerOption {
	return func(m *ConnManager) {
		m.logger = l
	}
}

// WithLimits overrides the inbound frame size limit and the outbound buffer of each connection.
// Zero values keep the defaults.
func WithLimits(maxMessageSize int64, writeStreamSize int) ManagerOption {
	return func(m *ConnManager) {
		if maxMessageSize > 0 {
			m.MaxMessageSize = maxMessageSize
		}
		if writeStreamSize > 0 {
			m.WriteStreamSize = writeStreamSize
		}
	}
}

// WithKeepalive overrides the write deadline and the pong deadline. Pings are sent every 9/10 of pongWait.
func WithKeepalive(writeWait, pongWait time.Duration) ManagerOption {
	return func(m *ConnManager) {
		if writeWait > 0 {
			m.WriteWait = writeWait
		}
		if pongWait > 0 {
			m.PongWait = pongWait
		}
	}
}

func NewConnManager(ctx context.Context, opts ...ManagerOption) *ConnManager {
	ctx, cancel := context.WithCancel(ctx)
	m := &ConnManager{
		conns:              make(map[string]*Conn),
		logger:             zap.NewNop(),
		context:            ctx,
		cancel:             cancel,
		upgrader:           defaultUpgrader,
		WriteStreamSize:    defaultWriteStreamSize,
		MaxMessageSize:     defaultMaxMessageSize,
		WriteWait:          defaultWriteWait,
		PongWait:           defaultPongWait,
		onConnectionOpened: func(string) {},
		onConnectionClosed: func(string) {},
		onEvent:            func(context.Context, *Event) {},
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// OnConnectionOpened registers a callback invoked once a connection is ready to receive events.
func (m *ConnManager) OnConnectionOpened(f func(string)) {
	m.onConnectionOpened = f
}

// OnConnectionClosed registers a callback invoked exactly once per connection,
// after the last event of that connection has been handled.
func (m *ConnManager) OnConnectionClosed(f func(string)) {
	m.onConnectionClosed = f
}

// OnEvent registers the function that handles the events received from every connection.
// It is called from the read loop of the connection.
func (m *ConnManager) OnEvent(f func(context.Context, *Event)) {
	m.onEvent = f
}

func (m *ConnManager) IsConnected(connID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.conns[connID]
	return ok
}

func (m *ConnManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.conns)
}

// Connect upgrades the request and starts the read and write loops of the new connection.
// The upgrader replies to the client itself when the upgrade fails.
func (m *ConnManager) Connect(w http.ResponseWriter, r *http.Request) error {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	id := uuid.NewString()
	wsConn := &Conn{
		id:          id,
		conn:        conn,
		context:     m.context,
		writeStream: make(chan *Event, m.WriteStreamSize),
		dispatch:    m.onEvent,
		pongWait:    m.PongWait,
		writeWait:   m.WriteWait,
		readLimit:   m.MaxMessageSize,
		logger:      m.logger.With(zap.String("conn", id)),
	}
	wsConn.notifyDisconnect = func() {
		m.disconnect(wsConn)
		m.onConnectionClosed(id)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(m.WriteWait))
		conn.Close()
		return ErrManagerClosed
	}
	m.conns[id] = wsConn
	m.connWg.Add(2)
	m.mu.Unlock()

	m.onConnectionOpened(id)

	go func() {
		defer m.connWg.Done()
		wsConn.writeLoop()
	}()
	go func() {
		defer m.connWg.Done()
		wsConn.readLoop()
	}()

	return nil
}

// disconnect forgets the connection and closes its write stream.
// The write loop then sends a close frame to the peer.
func (m *ConnManager) disconnect(c *Conn) {
	m.mu.Lock()
	if cur, ok := m.conns[c.id]; ok && cur == c {
		delete(m.conns, c.id)
	}
	m.mu.Unlock()
	c.close()
}

// SendToConns enqueues e on the write stream of each listed connection. It never blocks:
// a connection whose stream is full is disconnected as a slow consumer.
func (m *ConnManager) SendToConns(e *Event, connIDs ...string) {
	var slow []*Conn
	m.mu.RLock()
	for _, id := range connIDs {
		conn, ok := m.conns[id]
		if !ok {
			continue
		}
		if !conn.trySend(e) {
			slow = append(slow, conn)
		}
	}
	m.mu.RUnlock()

	for _, conn := range slow {
		m.logger.Warn("disconnecting slow consumer", zap.String("conn", conn.id))
		m.disconnect(conn)
	}
}

// Close disconnects every connection and waits for their loops to exit or for ctx to be done.
// Connect fails once Close has been called.
func (m *ConnManager) Close(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	conns := make([]*Conn, 0, len(m.conns))
	for id, c := range m.conns {
		conns = append(conns, c)
		delete(m.conns, id)
	}
	m.mu.Unlock()

	for _, c := range conns {
		c.close()
	}

	done := make(chan struct{})
	go func() {
		m.connWg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.cancel()
		return nil
	case <-ctx.Done():
		m.cancel()
		return ctx.Err()
	}
}
