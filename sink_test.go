package ws2mongo

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func startedSink(t *testing.T, store DocumentStore, capacity int) *Sink {
	t.Helper()
	s, err := NewSink(context.Background(), testLogger(), store, capacity)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func drain(t *testing.T, s *Sink) {
	t.Helper()
	s.Close()
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("sink did not drain")
	}
}

func TestSink_ObjectBecomesOneDocument(t *testing.T) {
	store := &memStore{}
	s := startedSink(t, store, 0)

	require.NoError(t, s.Enqueue(context.Background(),
		NewTextMessage(`{"type":"subscribe","symbol":"BTCUSD"}`)))
	drain(t, s)

	docs := store.Docs()
	require.Len(t, docs, 1)
	assert.Equal(t, bson.D{
		{Key: "type", Value: "subscribe"},
		{Key: "symbol", Value: "BTCUSD"},
	}, docs[0])
}

func TestSink_ArrayBecomesOneDocumentPerElement(t *testing.T) {
	store := &memStore{}
	s := startedSink(t, store, 0)

	require.NoError(t, s.Enqueue(context.Background(),
		NewBinaryMessage([]byte(`[{"p":1},{"p":2},{"p":3}]`))))
	drain(t, s)

	docs := store.Docs()
	require.Len(t, docs, 3)
	for i, doc := range docs {
		assert.EqualValues(t, i+1, field(doc, "p"))
	}
}

func TestSink_UnparsableFramesAreDropped(t *testing.T) {
	store := &memStore{}
	s := startedSink(t, store, 0)
	dropped := testutil.ToFloat64(RecordsTotal.WithLabelValues(resultDropped))

	for _, payload := range []string{"not json", `"a string"`, "42", "", "{"} {
		assert.NoError(t, s.Enqueue(context.Background(), NewTextMessage(payload)), payload)
	}
	require.NoError(t, s.Enqueue(context.Background(), NewTextMessage(`{"ok":true}`)))
	drain(t, s)

	docs := store.Docs()
	require.Len(t, docs, 1)
	assert.Equal(t, true, field(docs[0], "ok"))
	assert.Equal(t, dropped+5, testutil.ToFloat64(RecordsTotal.WithLabelValues(resultDropped)))
}

func TestSink_BadElementOnlySkipsItself(t *testing.T) {
	store := &memStore{}
	s := startedSink(t, store, 0)
	failed := testutil.ToFloat64(RecordsTotal.WithLabelValues(resultConversionFailed))

	require.NoError(t, s.Enqueue(context.Background(),
		NewTextMessage(`[{"n":1}, 7, {"n":3}]`)))
	drain(t, s)

	docs := store.Docs()
	require.Len(t, docs, 2)
	assert.EqualValues(t, 1, field(docs[0], "n"))
	assert.EqualValues(t, 3, field(docs[1], "n"))
	assert.Equal(t, failed+1, testutil.ToFloat64(RecordsTotal.WithLabelValues(resultConversionFailed)))
}

func TestSink_StoreFailureDoesNotStopConsumer(t *testing.T) {
	store := &memStore{}
	store.insertFn = func(doc bson.D) error {
		if field(doc, "n") == int32(1) {
			return errors.New("write concern error")
		}
		return nil
	}
	s := startedSink(t, store, 0)
	inserted := testutil.ToFloat64(RecordsTotal.WithLabelValues(resultInserted))
	insertFailed := testutil.ToFloat64(RecordsTotal.WithLabelValues(resultInsertFailed))

	require.NoError(t, s.Enqueue(context.Background(), NewTextMessage(`{"n":1}`)))
	require.NoError(t, s.Enqueue(context.Background(), NewTextMessage(`{"n":2}`)))
	drain(t, s)

	docs := store.Docs()
	require.Len(t, docs, 1)
	assert.EqualValues(t, 2, field(docs[0], "n"))
	assert.Equal(t, inserted+1, testutil.ToFloat64(RecordsTotal.WithLabelValues(resultInserted)))
	assert.Equal(t, insertFailed+1, testutil.ToFloat64(RecordsTotal.WithLabelValues(resultInsertFailed)))
}

func TestSink_ExtendedJSONValues(t *testing.T) {
	store := &memStore{}
	s := startedSink(t, store, 0)

	require.NoError(t, s.Enqueue(context.Background(),
		NewTextMessage(`{"t":{"$date":"2024-01-02T03:04:05Z"},"price":1.5}`)))
	drain(t, s)

	docs := store.Docs()
	require.Len(t, docs, 1)
	assert.IsType(t, time.Time{}, toTime(field(docs[0], "t")))
	assert.Equal(t, 1.5, field(docs[0], "price"))
}

func TestSink_BackpressureBlocksProducer(t *testing.T) {
	store := &memStore{}
	s := newSink(testLogger(), store, 2)

	ctx := context.Background()
	require.NoError(t, s.Enqueue(ctx, NewTextMessage(`{"n":1}`)))
	require.NoError(t, s.Enqueue(ctx, NewTextMessage(`{"n":2}`)))

	third := make(chan error, 1)
	go func() {
		third <- s.Enqueue(ctx, NewTextMessage(`{"n":3}`))
	}()

	select {
	case <-third:
		t.Fatal("enqueue on a full queue must block")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, s.Start(ctx))

	select {
	case err := <-third:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("enqueue did not resume after the consumer started")
	}

	drain(t, s)
	docs := store.Docs()
	require.Len(t, docs, 3)
	for i, doc := range docs {
		assert.EqualValues(t, i+1, field(doc, "n"))
	}
}

func TestSink_BlockedEnqueueHonoursContext(t *testing.T) {
	s := newSink(testLogger(), &memStore{}, 1)
	require.NoError(t, s.Enqueue(context.Background(), NewTextMessage(`{}`)))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := s.Enqueue(ctx, NewTextMessage(`{}`))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSink_SingleConsumer(t *testing.T) {
	s := startedSink(t, &memStore{}, 0)
	assert.ErrorIs(t, s.Start(context.Background()), ErrConsumerRunning)
}

func TestSink_ControlFramesAreNotQueued(t *testing.T) {
	s := newSink(testLogger(), &memStore{}, 1)
	ctx := context.Background()

	assert.NoError(t, s.Enqueue(ctx, NewPingMessage([]byte("p"))))
	assert.NoError(t, s.Enqueue(ctx, NewPongMessage(nil)))
	assert.NoError(t, s.Enqueue(ctx, NewCloseMessage(1000, "bye")))
	assert.NoError(t, s.Enqueue(ctx, NewCloseMessage(0, "")))
	assert.Len(t, s.queue, 0)

	err := s.Enqueue(ctx, NewMessage(MessageType(3), []byte(`{}`)))
	assert.ErrorIs(t, err, ErrUnsupportedMessageFormat)
	assert.Len(t, s.queue, 0)
}

func TestSink_CloseDrainsQueueThenRejects(t *testing.T) {
	store := &memStore{}
	s := newSink(testLogger(), store, 10)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Enqueue(ctx, NewTextMessage(`{"n":1}`)))
	}

	s.Close()
	assert.ErrorIs(t, s.Enqueue(ctx, NewTextMessage(`{"n":2}`)), ErrSinkClosed)

	require.NoError(t, s.Start(ctx))
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("sink did not drain")
	}
	assert.Equal(t, 5, store.Len())
}

type disconnectingStore struct {
	memStore
	disconnected bool
}

func (s *disconnectingStore) Disconnect(context.Context) error {
	s.disconnected = true
	return nil
}

func TestSink_ShutdownDisconnectsStore(t *testing.T) {
	store := &disconnectingStore{}
	s := startedSink(t, store, 0)

	require.NoError(t, s.Enqueue(context.Background(), NewTextMessage(`{"a":1}`)))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))

	assert.Equal(t, 1, store.Len())
	assert.True(t, store.disconnected)
}

func TestSink_ShutdownTimesOutOnStuckStore(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	store := &memStore{insertFn: func(bson.D) error {
		<-release
		return nil
	}}
	s := startedSink(t, store, 0)
	require.NoError(t, s.Enqueue(context.Background(), NewTextMessage(`{"a":1}`)))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Shutdown(ctx), context.DeadlineExceeded)
}

func toTime(v any) any {
	if dt, ok := v.(interface{ Time() time.Time }); ok {
		return dt.Time()
	}
	return v
}
