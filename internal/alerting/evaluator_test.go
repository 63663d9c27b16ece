package alerting

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenttrace/agenttrace/internal/models"
	"github.com/agenttrace/agenttrace/internal/storage"
)

// fakeRepository is an in-memory Repository sufficient to drive the
// evaluator's breach/recovery bookkeeping without a database.
type fakeRepository struct {
	mu     sync.Mutex
	rules  []models.AlertRule
	events map[uuid.UUID]models.AlertEvent
}

func newFakeRepository(rules ...models.AlertRule) *fakeRepository {
	return &fakeRepository{rules: rules, events: make(map[uuid.UUID]models.AlertEvent)}
}

func (f *fakeRepository) ListRules(ctx context.Context, enabledOnly bool) ([]models.AlertRule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.AlertRule, len(f.rules))
	copy(out, f.rules)
	return out, nil
}

func (f *fakeRepository) CreateEvent(ctx context.Context, event models.AlertEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events[event.ID] = event
	return nil
}

func (f *fakeRepository) ResolveEvent(ctx context.Context, id uuid.UUID, resolvedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e := f.events[id]
	e.Status = models.AlertStatusResolved
	e.ResolvedAt = &resolvedAt
	f.events[id] = e
	return nil
}

func (f *fakeRepository) UpdateEventNotifications(ctx context.Context, id uuid.UUID, records []models.NotificationRecord) error {
	return nil
}

func (f *fakeRepository) UpdateLastEvaluated(ctx context.Context, id uuid.UUID, at time.Time) error {
	return nil
}

func (f *fakeRepository) UpdateLastTriggered(ctx context.Context, id uuid.UUID, at time.Time) error {
	return nil
}

func (f *fakeRepository) eventCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

// fakeMetricSource returns a scripted sequence of span_count values, one
// per call, repeating the last value once the script is exhausted.
type fakeMetricSource struct {
	mu     sync.Mutex
	values []int64
	calls  int
}

func (f *fakeMetricSource) next() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.calls
	if idx >= len(f.values) {
		idx = len(f.values) - 1
	}
	f.calls++
	return f.values[idx]
}

func (f *fakeMetricSource) ErrorStats(ctx context.Context, scope storage.MetricScope) (storage.ErrorStats, error) {
	return storage.ErrorStats{}, nil
}
func (f *fakeMetricSource) LatencyPercentile(ctx context.Context, scope storage.MetricScope, p float64) (float64, bool, error) {
	return 0, false, nil
}
func (f *fakeMetricSource) LatencyAvg(ctx context.Context, scope storage.MetricScope) (float64, bool, error) {
	return 0, false, nil
}
func (f *fakeMetricSource) CostSum(ctx context.Context, scope storage.MetricScope) (float64, error) {
	return 0, nil
}
func (f *fakeMetricSource) TokenSum(ctx context.Context, scope storage.MetricScope) (int64, error) {
	return 0, nil
}
func (f *fakeMetricSource) SpanCount(ctx context.Context, scope storage.MetricScope) (int64, error) {
	return f.next(), nil
}

type fakeSender struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeSender) SendAll(ctx context.Context, rule *models.AlertRule, event *models.AlertEvent) []NotificationOutcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return nil
}

func spanCountRule(threshold float64, consecutiveFailures int) models.AlertRule {
	return models.AlertRule{
		ID:                  uuid.New(),
		Name:                "span volume",
		Metric:              models.MetricSpanCount,
		Operator:            models.OpGt,
		Threshold:           &threshold,
		WindowMinutes:       5,
		ConsecutiveFailures: consecutiveFailures,
		Severity:            models.SeverityWarning,
		Enabled:             true,
	}
}

// TestConsecutiveBreachesRequiredBeforeFiring exercises spec §8 scenario 4's
// 10,10,10,10,2 sequence with consecutive_failures:3 — three consecutive
// breaching ticks fire, the fourth (still breaching) does not duplicate,
// and the fifth (below threshold) recovers.
func TestConsecutiveBreachesRequiredBeforeFiring(t *testing.T) {
	rule := spanCountRule(5, 3)
	repo := newFakeRepository(rule)
	source := &fakeMetricSource{values: []int64{10, 10, 10, 10, 2}}
	sender := &fakeSender{}
	e := NewEvaluator(repo, source, sender, nil)

	now := time.Now().UTC()

	// Ticks 1-2: breaching but below ConsecutiveFailures, no event yet.
	require.NoError(t, e.evaluateRule(context.Background(), &rule, now))
	assert.Equal(t, 1, e.FailureCount(rule.ID))
	assert.Equal(t, 0, e.ActiveAlertCount())

	require.NoError(t, e.evaluateRule(context.Background(), &rule, now))
	assert.Equal(t, 2, e.FailureCount(rule.ID))
	assert.Equal(t, 0, e.ActiveAlertCount())

	// Tick 3: reaches ConsecutiveFailures, fires exactly once.
	require.NoError(t, e.evaluateRule(context.Background(), &rule, now))
	assert.Equal(t, 3, e.FailureCount(rule.ID))
	assert.Equal(t, 1, e.ActiveAlertCount())
	assert.Equal(t, 1, repo.eventCount())

	// Tick 4: still breaching, already active — no duplicate event.
	require.NoError(t, e.evaluateRule(context.Background(), &rule, now))
	assert.Equal(t, 1, e.ActiveAlertCount())
	assert.Equal(t, 1, repo.eventCount())
	assert.Equal(t, 1, sender.calls)

	// Tick 5: below threshold — a single non-breach recovers immediately.
	require.NoError(t, e.evaluateRule(context.Background(), &rule, now))
	assert.Equal(t, 0, e.ActiveAlertCount())
	assert.Equal(t, 0, e.FailureCount(rule.ID))
}

func TestRecoveryClearsCounterBeforeThresholdReached(t *testing.T) {
	rule := spanCountRule(5, 3)
	repo := newFakeRepository(rule)
	source := &fakeMetricSource{values: []int64{10, 10, 2, 10, 10, 10}}
	sender := &fakeSender{}
	e := NewEvaluator(repo, source, sender, nil)

	now := time.Now().UTC()
	for i := 0; i < 2; i++ {
		require.NoError(t, e.evaluateRule(context.Background(), &rule, now))
	}
	assert.Equal(t, 2, e.FailureCount(rule.ID))

	// A non-breach in the middle of the sequence resets the counter.
	require.NoError(t, e.evaluateRule(context.Background(), &rule, now))
	assert.Equal(t, 0, e.FailureCount(rule.ID))
	assert.Equal(t, 0, e.ActiveAlertCount())

	// Three fresh consecutive breaches are required again from here.
	for i := 0; i < 2; i++ {
		require.NoError(t, e.evaluateRule(context.Background(), &rule, now))
	}
	assert.Equal(t, 2, e.FailureCount(rule.ID))
	assert.Equal(t, 0, e.ActiveAlertCount())

	require.NoError(t, e.evaluateRule(context.Background(), &rule, now))
	assert.Equal(t, 1, e.ActiveAlertCount())
}

func TestTestRuleIgnoresHysteresisAndNeverPersists(t *testing.T) {
	rule := spanCountRule(5, 3)
	repo := newFakeRepository(rule)
	source := &fakeMetricSource{values: []int64{10}}
	sender := &fakeSender{}
	e := NewEvaluator(repo, source, sender, nil)

	event, err := e.TestRule(context.Background(), &rule)
	require.NoError(t, err)
	require.NotNil(t, event)
	assert.Equal(t, TestTagValue, event.Metadata[TestTagKey])

	assert.Equal(t, 0, repo.eventCount())
	assert.Equal(t, 0, sender.calls)
	assert.Equal(t, 0, e.FailureCount(rule.ID))
	assert.Equal(t, 0, e.ActiveAlertCount())
}

func TestTestRuleReturnsNilWhenNotBreaching(t *testing.T) {
	rule := spanCountRule(5, 3)
	repo := newFakeRepository(rule)
	source := &fakeMetricSource{values: []int64{1}}
	sender := &fakeSender{}
	e := NewEvaluator(repo, source, sender, nil)

	event, err := e.TestRule(context.Background(), &rule)
	require.NoError(t, err)
	assert.Nil(t, event)
}
