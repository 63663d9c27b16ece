package retention

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeStore struct {
	spanCalls  int32
	eventCalls int32
	spansDeleted int64
	eventsDeleted int64
}

func (f *fakeStore) DeleteSpansOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	atomic.AddInt32(&f.spanCalls, 1)
	return f.spansDeleted, nil
}

func (f *fakeStore) DeleteResolvedAlertEventsOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	atomic.AddInt32(&f.eventCalls, 1)
	return f.eventsDeleted, nil
}

func TestSweepPurgesSpansAndResolvedEvents(t *testing.T) {
	store := &fakeStore{spansDeleted: 4, eventsDeleted: 2}
	svc := New(DefaultConfig(), store, nil)

	svc.sweep(context.Background())

	assert.EqualValues(t, 1, store.spanCalls)
	assert.EqualValues(t, 1, store.eventCalls)
}

func TestRunSweepsImmediatelyThenOnInterval(t *testing.T) {
	store := &fakeStore{}
	cfg := Config{SpanRetention: time.Hour, ResolvedEventRetention: time.Hour, Interval: 10 * time.Millisecond}
	svc := New(cfg, store, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.Run(ctx)
		close(done)
	}()

	time.Sleep(35 * time.Millisecond)
	cancel()
	<-done

	assert.GreaterOrEqual(t, atomic.LoadInt32(&store.spanCalls), int32(2))
}
