package ws2mongo

import (
	"context"
	"io"
	"net/url"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
)

func testLogger() logger {
	return NewWriterLogger(io.Discard)
}

type readResult struct {
	msg Message
	err error
}

// fakeConnection is a scripted Connection: reads come from inbox, writes are recorded.
type fakeConnection struct {
	inbox     chan readResult
	closed    chan struct{}
	closeOnce sync.Once

	mu       sync.Mutex
	written  []Message
	writeErr error
}

func newFakeConnection() *fakeConnection {
	return &fakeConnection{
		inbox:  make(chan readResult, 16),
		closed: make(chan struct{}),
	}
}

func (c *fakeConnection) Read(_ context.Context) (Message, error) {
	select {
	case r := <-c.inbox:
		return r.msg, r.err
	case <-c.closed:
		return nil, ErrConnectionClosed
	}
}

func (c *fakeConnection) Write(m Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	c.written = append(c.written, m)
	return nil
}

func (c *fakeConnection) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConnection) Written() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.written...)
}

func (c *fakeConnection) IsClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *fakeConnection) push(m Message) {
	c.inbox <- readResult{msg: m}
}

func (c *fakeConnection) fail(err error) {
	c.inbox <- readResult{err: err}
}

type dialStep struct {
	conn *fakeConnection
	err  error
}

// fakeDialer hands out its steps in order, then fails every further attempt.
type fakeDialer struct {
	mu       sync.Mutex
	steps    []dialStep
	attempts int
}

func (d *fakeDialer) factory() ConnectionFactory {
	return func(context.Context, OpenConnectionParams) (Connection, error) {
		d.mu.Lock()
		defer d.mu.Unlock()

		i := d.attempts
		d.attempts++
		if i >= len(d.steps) {
			return nil, ErrCannotConnect
		}
		if d.steps[i].err != nil {
			return nil, d.steps[i].err
		}
		return d.steps[i].conn, nil
	}
}

func (d *fakeDialer) Attempts() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.attempts
}

func staticParamsRepo() OpenConnectionParamsRepo {
	return NewOpenConnectionParamsRepo(testLogger(), func(context.Context) (OpenConnectionParams, error) {
		return OpenConnectionParams{URL: url.URL{Scheme: "ws", Host: "example.com"}}, nil
	})
}

// memStore keeps inserted documents in memory. insertFn, when set, runs before every
// insert and can fail it or block it.
type memStore struct {
	mu       sync.Mutex
	docs     []bson.D
	insertFn func(doc bson.D) error
}

func (s *memStore) Insert(_ context.Context, doc bson.D) error {
	if s.insertFn != nil {
		if err := s.insertFn(doc); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = append(s.docs, doc)
	return nil
}

func (s *memStore) Docs() []bson.D {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]bson.D(nil), s.docs...)
}

func (s *memStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.docs)
}

func field(doc bson.D, key string) any {
	for _, e := range doc {
		if e.Key == key {
			return e.Value
		}
	}
	return nil
}

// recordingHandler collects every frame it is handed.
type recordingHandler struct {
	mu       sync.Mutex
	messages []Message
	onMsg    func(Message) error
}

func (h *recordingHandler) HandleMessage(_ context.Context, m Message) error {
	h.mu.Lock()
	h.messages = append(h.messages, m)
	onMsg := h.onMsg
	h.mu.Unlock()

	if onMsg != nil {
		return onMsg(m)
	}
	return nil
}

func (h *recordingHandler) Messages() []Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Message(nil), h.messages...)
}
