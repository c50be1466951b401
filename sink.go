package ws2mongo

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
)

const DefaultQueueCapacity = 100

// DocumentStore persists one document per call.
type DocumentStore interface {
	Insert(ctx context.Context, doc bson.D) error
}

type disconnecter interface {
	Disconnect(ctx context.Context) error
}

// Sink buffers parsed frames in a bounded queue and writes them to a DocumentStore from
// a single consumer goroutine. Enqueue blocks while the queue is full.
type Sink struct {
	logger    logger
	store     DocumentStore
	queue     chan record
	consuming atomic.Bool
	closeC    chan struct{}
	closeOnce sync.Once
	done      chan struct{}
}

// NewSink creates the queue and starts its consumer. Store writes run under ctx with
// its cancellation stripped: shutting down goes through Close, not ctx.
func NewSink(ctx context.Context, logger logger, store DocumentStore, capacity int) (*Sink, error) {
	s := newSink(logger, store, capacity)
	if err := s.Start(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func newSink(logger logger, store DocumentStore, capacity int) *Sink {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &Sink{
		logger: logger.WithField("type", "document_sink"),
		store:  store,
		queue:  make(chan record, capacity),
		closeC: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// NewMongoSink connects to the store described by cfg, checks it answers a ping, and
// returns a running Sink writing to cfg.Collection.
func NewMongoSink(ctx context.Context, logger logger, cfg StoreConfig, capacity int) (*Sink, error) {
	store, err := ConnectMongo(ctx, logger, cfg)
	if err != nil {
		return nil, err
	}

	s, err := NewSink(ctx, logger, store, capacity)
	if err != nil {
		_ = store.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

// Start launches the consumer. Only the first call succeeds; later calls return
// ErrConsumerRunning so the queue never has two readers.
func (s *Sink) Start(ctx context.Context) error {
	if !s.consuming.CompareAndSwap(false, true) {
		return ErrConsumerRunning
	}
	go s.consume(context.WithoutCancel(ctx))
	return nil
}

// HandleMessage makes the Sink usable as the Manager's MessageHandler.
func (s *Sink) HandleMessage(ctx context.Context, m Message) error {
	return s.Enqueue(ctx, m)
}

// Enqueue classifies m. Payload frames that hold a JSON object or array are queued;
// anything unparsable is dropped silently. Control frames are only logged.
func (s *Sink) Enqueue(ctx context.Context, m Message) error {
	switch m.Type() {
	case TextMessage, BinaryMessage:
		rec, err := parseRecord(m.Data())
		if err != nil {
			s.logger.Debugf("dropping %s frame: %s", m.Type(), err)
			RecordsTotal.WithLabelValues(resultDropped).Inc()
			return nil
		}
		return s.push(ctx, rec)
	case PingMessage:
		s.logger.Infof("Ping: %v", m.Data())
	case PongMessage:
		s.logger.Infof("Pong: %v", m.Data())
	case CloseMessage:
		s.logger.Info(describeClose(m))
	default:
		return errors.Wrapf(ErrUnsupportedMessageFormat, "received %s frame", m.Type())
	}
	return nil
}

// Close stops accepting frames. Records already queued are still written; Done is
// closed once they are.
func (s *Sink) Close() {
	s.closeOnce.Do(func() {
		close(s.closeC)
	})
}

// Done is closed when the consumer has exited.
func (s *Sink) Done() <-chan struct{} {
	return s.done
}

// Shutdown closes the sink, waits for the queue to drain and disconnects the store
// when it supports it.
func (s *Sink) Shutdown(ctx context.Context) error {
	s.Close()

	if s.consuming.Load() {
		select {
		case <-s.done:
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "queue not drained")
		}
	}

	if d, ok := s.store.(disconnecter); ok {
		return d.Disconnect(ctx)
	}
	return nil
}

func (s *Sink) push(ctx context.Context, rec record) error {
	select {
	case <-s.closeC:
		return ErrSinkClosed
	default:
	}

	select {
	case s.queue <- rec:
		QueueDepth.Set(float64(len(s.queue)))
		return nil
	case <-s.closeC:
		return ErrSinkClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Sink) consume(ctx context.Context) {
	defer close(s.done)

	for {
		select {
		case rec := <-s.queue:
			s.process(ctx, rec)
		case <-s.closeC:
			for {
				select {
				case rec := <-s.queue:
					s.process(ctx, rec)
				default:
					return
				}
			}
		}
	}
}

func (s *Sink) process(ctx context.Context, rec record) {
	QueueDepth.Set(float64(len(s.queue)))

	for i, raw := range rec.items {
		doc, err := toDocument(raw)
		if err != nil {
			if rec.kind == recordSequence {
				s.logger.Errorf("Error converting JSON item #%d to a document: %s", i, err)
			} else {
				s.logger.Errorf("Error converting JSON to a document: %s", err)
			}
			RecordsTotal.WithLabelValues(resultConversionFailed).Inc()
			continue
		}

		if err := s.store.Insert(ctx, doc); err != nil {
			s.logger.Errorf("Error inserting document into MongoDB: %s", err)
			RecordsTotal.WithLabelValues(resultInsertFailed).Inc()
			continue
		}

		RecordsTotal.WithLabelValues(resultInserted).Inc()
	}
}
