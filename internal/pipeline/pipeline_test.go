package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/agenttrace/agenttrace/internal/models"
	"github.com/agenttrace/agenttrace/internal/pricing"
	"github.com/agenttrace/agenttrace/internal/pubsub"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	mu      sync.Mutex
	batches [][]models.Span
	err     error
}

func (f *fakeWriter) UpsertBatch(ctx context.Context, spans []models.Span) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	f.batches = append(f.batches, spans)
	return len(spans), nil
}

func (f *fakeWriter) batchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.batches)
}

func (f *fakeWriter) totalSpans() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, b := range f.batches {
		total += len(b)
	}
	return total
}

type fakePublisher struct {
	mu    sync.Mutex
	calls int
}

func (f *fakePublisher) PublishSpan(ctx context.Context, span *models.Span) []pubsub.PublishResult {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return []pubsub.PublishResult{{Channel: pubsub.GlobalChannel}}
}

func (f *fakePublisher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func sampleSpan() models.Span {
	return models.Span{
		SpanID:        uuid.NewString(),
		TraceID:       uuid.NewString(),
		OperationName: "chat.completion",
		ServiceName:   "agent-core",
		StartedAt:     time.Now().Add(-100 * time.Millisecond),
	}
}

func TestChannelCapacityDerivesFromBatchSize(t *testing.T) {
	writer := &fakeWriter{}
	pub := &fakePublisher{}
	cfg := Config{BatchSize: 25}
	p := New(cfg, writer, pub, pricing.NewCalculator(), nil)
	assert.Equal(t, 250, cap(p.in))
}

func TestFlushOnBatchSizeReached(t *testing.T) {
	writer := &fakeWriter{}
	pub := &fakePublisher{}
	cfg := DefaultConfig()
	cfg.BatchSize = 3
	cfg.FlushInterval = time.Hour // disable timer-driven flush for this test
	p := New(cfg, writer, pub, pricing.NewCalculator(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	go p.Run(ctx)

	for i := 0; i < 3; i++ {
		require.NoError(t, p.Submit(ctx, sampleSpan()))
	}

	require.Eventually(t, func() bool { return writer.batchCount() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 3, writer.totalSpans())

	cancel()
	<-p.Done()
}

func TestFlushOnTimerWithPartialBatch(t *testing.T) {
	writer := &fakeWriter{}
	pub := &fakePublisher{}
	cfg := DefaultConfig()
	cfg.BatchSize = 100
	cfg.FlushInterval = 20 * time.Millisecond
	p := New(cfg, writer, pub, pricing.NewCalculator(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	go p.Run(ctx)

	require.NoError(t, p.Submit(ctx, sampleSpan()))

	require.Eventually(t, func() bool { return writer.batchCount() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, writer.totalSpans())

	cancel()
	<-p.Done()
}

func TestShutdownFlushesBufferedSpans(t *testing.T) {
	writer := &fakeWriter{}
	pub := &fakePublisher{}
	cfg := DefaultConfig()
	cfg.BatchSize = 100
	cfg.FlushInterval = time.Hour
	p := New(cfg, writer, pub, pricing.NewCalculator(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	go p.Run(ctx)

	require.NoError(t, p.Submit(ctx, sampleSpan()))
	require.NoError(t, p.Submit(ctx, sampleSpan()))
	time.Sleep(10 * time.Millisecond) // let Run pull both off the channel before cancel

	cancel()
	<-p.Done()

	assert.Equal(t, 2, writer.totalSpans())
}

func TestEnrichDerivesDurationAndCost(t *testing.T) {
	writer := &fakeWriter{}
	pub := &fakePublisher{}
	cfg := DefaultConfig()
	cfg.BatchSize = 1
	p := New(cfg, writer, pub, pricing.NewCalculator(), nil)

	tokensIn, tokensOut := int64(1_000_000), int64(1_000_000)
	model := "gpt-4o"
	span := sampleSpan()
	span.ModelName = &model
	span.TokensIn = &tokensIn
	span.TokensOut = &tokensOut
	ended := span.StartedAt.Add(250 * time.Millisecond)
	span.EndedAt = &ended

	ctx, cancel := context.WithCancel(context.Background())
	go p.Run(ctx)
	require.NoError(t, p.Submit(ctx, span))

	require.Eventually(t, func() bool { return writer.batchCount() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	<-p.Done()

	written := writer.batches[0][0]
	require.NotNil(t, written.DurationMs)
	assert.Equal(t, int64(250), *written.DurationMs)
	require.NotNil(t, written.CostUSD)
	assert.InDelta(t, 12.5, *written.CostUSD, 1e-9)
}

func TestFanoutPublishesEveryEnrichedSpan(t *testing.T) {
	writer := &fakeWriter{}
	pub := &fakePublisher{}
	cfg := DefaultConfig()
	cfg.BatchSize = 2
	p := New(cfg, writer, pub, pricing.NewCalculator(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	go p.Run(ctx)
	require.NoError(t, p.Submit(ctx, sampleSpan()))
	require.NoError(t, p.Submit(ctx, sampleSpan()))

	require.Eventually(t, func() bool { return pub.callCount() == 2 }, time.Second, 5*time.Millisecond)

	cancel()
	<-p.Done()
}

func TestWriteFailureDropsButDoesNotBlockPipeline(t *testing.T) {
	writer := &fakeWriter{err: assert.AnError}
	pub := &fakePublisher{}
	cfg := DefaultConfig()
	cfg.BatchSize = 1
	p := New(cfg, writer, pub, pricing.NewCalculator(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	go p.Run(ctx)
	require.NoError(t, p.Submit(ctx, sampleSpan()))
	require.NoError(t, p.Submit(ctx, sampleSpan()))

	require.Eventually(t, func() bool { return pub.callCount() == 2 }, time.Second, 5*time.Millisecond)

	cancel()
	<-p.Done()
	assert.Equal(t, 0, writer.totalSpans())
}
