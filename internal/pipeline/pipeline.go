// Package pipeline ingests spans through a bounded channel, enriches them
// (duration, cost, preview truncation, fan-out publish), and flushes them to
// storage in batches.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/agenttrace/agenttrace/internal/models"
	"github.com/agenttrace/agenttrace/internal/pricing"
	"github.com/agenttrace/agenttrace/internal/pubsub"
	"github.com/agenttrace/agenttrace/internal/redaction"
	"github.com/agenttrace/agenttrace/internal/storage"
)

// Config tunes batching behavior.
type Config struct {
	// BatchSize is the number of buffered spans that triggers an immediate
	// flush, independent of the flush timer.
	BatchSize int
	// FlushInterval is the maximum time a span waits in the buffer before
	// being written, regardless of batch size.
	FlushInterval time.Duration
	// ChannelCapacity bounds the ingestion channel; Submit blocks once full,
	// applying backpressure to callers instead of growing unbounded memory.
	ChannelCapacity int
	// EnableCostCalculation toggles the pricing enrichment step.
	EnableCostCalculation bool
	// EnableFanout toggles publishing enriched spans to pubsub.
	EnableFanout bool
}

// defaultBatchSize is the collector's documented default batch size.
const defaultBatchSize = 100

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:             defaultBatchSize,
		FlushInterval:         time.Second,
		ChannelCapacity:       defaultBatchSize * 10,
		EnableCostCalculation: true,
		EnableFanout:          true,
	}
}

// Writer persists a batch of spans. Satisfied by *storage.Store.
type Writer interface {
	UpsertBatch(ctx context.Context, spans []models.Span) (int, error)
}

// Publisher fans enriched spans out to subscribers. Satisfied by
// *pubsub.Publisher.
type Publisher interface {
	PublishSpan(ctx context.Context, span *models.Span) []pubsub.PublishResult
}

// Pipeline is the ingestion stage sitting between the API's span-create
// handler and durable storage.
type Pipeline struct {
	cfg        Config
	writer     Writer
	publisher  Publisher
	calculator *pricing.Calculator
	redactor   *redaction.Service
	logger     *slog.Logger

	in   chan models.Span
	done chan struct{}
}

// New builds a Pipeline. calculator may be nil when EnableCostCalculation is
// false.
func New(cfg Config, writer Writer, publisher Publisher, calculator *pricing.Calculator, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Second
	}
	if cfg.ChannelCapacity <= 0 {
		cfg.ChannelCapacity = cfg.BatchSize * 10
	}
	return &Pipeline{
		cfg:        cfg,
		writer:     writer,
		publisher:  publisher,
		calculator: calculator,
		redactor:   redaction.NewService(),
		logger:     logger,
		in:         make(chan models.Span, cfg.ChannelCapacity),
		done:       make(chan struct{}),
	}
}

// Submit enqueues a span for enrichment and batched persistence. It blocks
// if the ingestion channel is full, or returns ctx.Err() if ctx is
// cancelled first.
func (p *Pipeline) Submit(ctx context.Context, span models.Span) error {
	select {
	case p.in <- span:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run drives the batch/flush loop until ctx is cancelled. On cancellation
// it drains the spans already queued on the ingestion channel and flushes
// them together with the buffered batch before returning. Run is meant to
// be called once, from its own goroutine.
func (p *Pipeline) Run(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.cfg.FlushInterval)
	defer ticker.Stop()

	buf := make([]models.Span, 0, p.cfg.BatchSize)

	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case span := <-p.in:
					buf = append(buf, p.enrich(context.Background(), span))
				default:
					p.flush(context.Background(), buf)
					return
				}
			}

		case span := <-p.in:
			buf = append(buf, p.enrich(ctx, span))
			if len(buf) >= p.cfg.BatchSize {
				p.flush(ctx, buf)
				buf = buf[:0]
			}

		case <-ticker.C:
			if len(buf) > 0 {
				p.flush(ctx, buf)
				buf = buf[:0]
			}
		}
	}
}

// Done is closed once Run has returned (including its final flush).
func (p *Pipeline) Done() <-chan struct{} {
	return p.done
}

// enrich derives duration, cost, and truncated previews, redacts secrets out
// of tool/LLM payloads, then (if enabled) fans the span out to subscribers
// immediately rather than waiting for the batch write, so streaming
// consumers see spans at ingestion latency.
func (p *Pipeline) enrich(ctx context.Context, span models.Span) models.Span {
	span.NormalizeServiceName()
	span.CalculateDuration()

	p.redactor.RedactPtr(span.ToolInput)
	p.redactor.RedactPtr(span.ToolOutput)
	p.redactor.RedactPtr(span.PromptPreview)
	p.redactor.RedactPtr(span.CompletionPreview)

	span.TruncatePreviews()
	if p.cfg.EnableCostCalculation && p.calculator != nil {
		p.calculator.Calculate(&span)
	}

	if p.cfg.EnableFanout && p.publisher != nil {
		for _, result := range p.publisher.PublishSpan(ctx, &span) {
			if result.Err != nil {
				p.logger.Warn("span fan-out publish failed", "channel", result.Channel, "error", result.Err)
			}
		}
	}

	return span
}

// flush writes buf to storage. A write failure is logged and the batch is
// dropped: the ingestion pipeline has no retry queue or dead-letter store,
// matching the source's best-effort batch semantics.
func (p *Pipeline) flush(ctx context.Context, buf []models.Span) {
	if len(buf) == 0 {
		return
	}
	batch := make([]models.Span, len(buf))
	copy(batch, buf)

	n, err := p.writer.UpsertBatch(ctx, batch)
	if err != nil {
		p.logger.Error("batch write failed, dropping batch", "batch_size", len(batch), "error", err)
		return
	}
	p.logger.Debug("flushed span batch", "written", n, "batch_size", len(batch))
}
