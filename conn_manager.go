package ws2mongo

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const DefaultReconnectDelay = 5 * time.Second

// DelayCalculator returns how long to wait before the next connection attempt. attempts
// is the number of consecutive failed attempts, 0 right after a healthy connection dropped.
type DelayCalculator func(attempts int) time.Duration

type openConnectionParamsRepo interface {
	Get(ctx context.Context) (OpenConnectionParams, error)
}

// Manager owns one transport connection at a time and keeps it alive forever.
type Manager struct {
	logger      logger
	paramsRepo  openConnectionParamsRepo
	connFactory ConnectionFactory
	calculator  DelayCalculator
	initial     []Message
	emitter     *stateEmitter

	mu     sync.RWMutex
	conn   Connection
	connID string
	state  ConnectionState
}

// NewManager builds a Manager in the Disconnected state. initial frames are written,
// in order, after every successful handshake.
func NewManager(
	logger logger,
	paramsRepo openConnectionParamsRepo,
	connFactory ConnectionFactory,
	calculator DelayCalculator,
	initial []Message,
) *Manager {
	if calculator == nil {
		calculator = FixedDelay(DefaultReconnectDelay)
	}
	return &Manager{
		logger:      logger.WithField("type", "conn_manager"),
		paramsRepo:  paramsRepo,
		connFactory: connFactory,
		calculator:  calculator,
		initial:     append([]Message(nil), initial...),
		emitter:     newStateEmitter(),
		state:       StateDisconnected,
	}
}

// NewManagerFromConfig wires a Manager dialing cfg.Endpoint over websockets.
func NewManagerFromConfig(logger logger, cfg Config) (*Manager, error) {
	getter, err := EndpointParamsGetter(cfg.Endpoint)
	if err != nil {
		return nil, err
	}

	delay := cfg.ReconnectDelay
	if delay <= 0 {
		delay = DefaultReconnectDelay
	}

	return NewManager(
		logger,
		NewOpenConnectionParamsRepo(logger, getter),
		NewWebsocketFactory(logger, websocket.DefaultDialer, ErrorAdapters{}),
		FixedDelay(delay),
		cfg.Messages(),
	), nil
}

// State returns the current connection state.
func (m *Manager) State() ConnectionState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// OnStateChange registers l to be called on every state transition.
func (m *Manager) OnStateChange(l StateListener) {
	m.emitter.On(l)
}

// Connect performs the handshake and replays the initial frames. Any previous connection
// is closed first. A failed replay counts as a failed connect.
func (m *Manager) Connect(ctx context.Context) error {
	m.release(nil)
	m.setState(StateConnecting, nil)

	params, err := m.paramsRepo.Get(ctx)
	if err != nil {
		return m.connectFailed(err)
	}

	conn, err := m.connFactory(ctx, params)
	if err != nil {
		return m.connectFailed(err)
	}

	id := uuid.NewString()
	m.mu.Lock()
	m.conn = conn
	m.connID = id
	m.mu.Unlock()

	m.setState(StateOpen, nil)
	m.logger.Infof("connection %s open to %s", id, params.URL.String())

	for i, msg := range m.initial {
		if err := conn.Write(msg); err != nil {
			err = errors.Wrapf(err, "cannot replay initial message #%d", i)
			m.fail(conn, err)
			ConnectsTotal.WithLabelValues("failed").Inc()
			return err
		}
	}

	ConnectsTotal.WithLabelValues("succeeded").Inc()
	return nil
}

// Send writes a single frame over the open connection.
func (m *Manager) Send(msg Message) error {
	conn := m.active()
	if conn == nil {
		return ErrConnectionNotEstablished
	}

	if err := conn.Write(msg); err != nil {
		m.fail(conn, err)
		return err
	}
	return nil
}

// Receive waits for the next inbound frame. A failed read moves the Manager to Errored.
func (m *Manager) Receive(ctx context.Context) (Message, error) {
	conn := m.active()
	if conn == nil {
		return nil, ErrConnectionNotEstablished
	}

	msg, err := conn.Read(ctx)
	if err != nil {
		m.fail(conn, err)
		return nil, err
	}
	return msg, nil
}

// Run connects and delivers every inbound frame to handler, reconnecting forever. It
// only returns once ctx is done, leaving the Manager Disconnected.
func (m *Manager) Run(ctx context.Context, handler MessageHandler) error {
	attempts := 0

	for {
		if err := ctx.Err(); err != nil {
			m.Close()
			return err
		}

		if m.State() != StateOpen {
			attempts++
			if err := m.Connect(ctx); err != nil {
				ttw := m.calculator(attempts)
				m.logger.Warnf("cannot connect (attempt %d) due to %s, waiting %s", attempts, err, ttw)
				sleep(ctx, ttw)
				continue
			}
			attempts = 0
		}

		reason := m.receiveLoop(ctx, handler)
		if ctx.Err() != nil {
			continue
		}

		ttw := m.calculator(attempts)
		m.logger.Infof("retrying to connect after %s due to %s", ttw, reason)
		sleep(ctx, ttw)
	}
}

// Close drops the active connection, if any, and moves to Disconnected.
func (m *Manager) Close() {
	m.release(nil)
	if m.State() != StateDisconnected {
		m.setState(StateDisconnected, nil)
	}
}

func (m *Manager) receiveLoop(ctx context.Context, handler MessageHandler) error {
	conn := m.active()
	if conn == nil {
		return ErrConnectionNotEstablished
	}

	// Unblocks the pending read on shutdown.
	stop := context.AfterFunc(ctx, func() {
		m.release(conn)
	})
	defer stop()

	for {
		msg, err := m.Receive(ctx)
		if err != nil {
			return err
		}

		FramesReceived.WithLabelValues(msg.Type().String()).Inc()

		if err := handler.HandleMessage(ctx, msg); err != nil {
			m.logger.Errorf("message handler failed on %s: %s", msg, err)
		}
	}
}

func (m *Manager) active() Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state != StateOpen {
		return nil
	}
	return m.conn
}

// fail tears conn down and moves to Errored, unless conn was already replaced.
func (m *Manager) fail(conn Connection, err error) {
	id, ok := m.detach(conn)
	if !ok {
		return
	}
	_ = conn.Close()
	m.logger.WithField("conn_id", id).Warnf("connection lost: %s", err)
	m.setState(StateErrored, err)
}

// release closes the active connection without a state transition. When only is set,
// nothing happens unless it is still the active connection.
func (m *Manager) release(only Connection) {
	m.mu.Lock()
	conn := m.conn
	if conn == nil || (only != nil && conn != only) {
		m.mu.Unlock()
		return
	}
	m.conn = nil
	m.connID = ""
	m.mu.Unlock()

	_ = conn.Close()
}

func (m *Manager) detach(conn Connection) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn != conn {
		return "", false
	}
	id := m.connID
	m.conn = nil
	m.connID = ""
	return id, true
}

func (m *Manager) connectFailed(err error) error {
	ConnectsTotal.WithLabelValues("failed").Inc()
	m.setState(StateErrored, err)
	return err
}

func (m *Manager) setState(next ConnectionState, err error) {
	m.mu.Lock()
	prev := m.state
	m.state = next
	m.mu.Unlock()

	ConnectionStateGauge.Set(float64(next))
	m.logger.Debugf("state %s -> %s", prev, next)
	m.emitter.Emit(StateEvent{Old: prev, New: next, Err: err})
}

func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// FixedDelay waits d between every attempt, however many failed before.
func FixedDelay(d time.Duration) DelayCalculator {
	return func(int) time.Duration {
		return d
	}
}

func ExponentialBackoff(attempts int) float64 {
	return (math.Pow(2.0, float64(attempts)) - 1) / 2
}

func ExponentialBackoffSeconds(attempts int) time.Duration {
	return time.Duration(ExponentialBackoff(attempts)) * time.Second
}
