// Package alerting periodically checks alert rules against windowed
// metrics, maintains per-rule hysteresis, and dispatches notifications on
// breach/recovery transitions.
package alerting

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/agenttrace/agenttrace/internal/models"
	"github.com/google/uuid"
)

// defaultTickInterval is the single uniform tick every enabled rule is
// evaluated on. Per-rule EvaluationIntervalSeconds is persisted and
// returned through the API but not honored independently; this preserves
// the source's behavior rather than building a priority-queue scheduler.
const defaultTickInterval = 60 * time.Second

// TestTagKey/TestTagValue mark the metadata of a dry-run event produced by
// TestRule, distinguishing it from a persisted, dispatched event.
const (
	TestTagKey   = "test"
	TestTagValue = true
)

// Evaluator runs the periodic rule-evaluation loop.
type Evaluator struct {
	repo   Repository
	source MetricSource
	sender Sender
	logger *slog.Logger

	tickInterval time.Duration

	mu             sync.RWMutex
	failureCounts  map[uuid.UUID]int
	activeAlerts   map[uuid.UUID]models.AlertEvent
}

// NewEvaluator builds an Evaluator over the given repository, metric
// source and notification sender.
func NewEvaluator(repo Repository, source MetricSource, sender Sender, logger *slog.Logger) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{
		repo:          repo,
		source:        source,
		sender:        sender,
		logger:        logger,
		tickInterval:  defaultTickInterval,
		failureCounts: make(map[uuid.UUID]int),
		activeAlerts:  make(map[uuid.UUID]models.AlertEvent),
	}
}

// Run ticks every tickInterval, evaluating every enabled rule on each tick,
// until ctx is cancelled. Ticks never overlap: the loop does not start a
// new iteration until the previous one returns.
func (e *Evaluator) Run(ctx context.Context) {
	ticker := time.NewTicker(e.tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			e.evaluateAll(ctx, now)
		}
	}
}

func (e *Evaluator) evaluateAll(ctx context.Context, now time.Time) {
	rules, err := e.repo.ListRules(ctx, true)
	if err != nil {
		e.logger.Error("list enabled alert rules failed", "error", err)
		return
	}
	for i := range rules {
		if err := e.evaluateRule(ctx, &rules[i], now); err != nil {
			e.logger.Error("evaluate alert rule failed", "rule_id", rules[i].ID, "error", err)
		}
	}
}

// evaluateRule runs one rule's per-tick evaluation: compute the window,
// fetch the metric, apply the operator, and drive breach/recovery
// handling. last_evaluated_at is always stamped, even when there is no
// data for the window.
func (e *Evaluator) evaluateRule(ctx context.Context, rule *models.AlertRule, now time.Time) error {
	defer func() {
		if err := e.repo.UpdateLastEvaluated(ctx, rule.ID, now); err != nil {
			e.logger.Error("update last_evaluated_at failed", "rule_id", rule.ID, "error", err)
		}
	}()

	scope := windowScope(rule, now)
	metric, err := getMetricValue(ctx, e.source, rule, scope)
	if err != nil {
		return err
	}
	if metric == nil {
		return nil
	}

	if rule.Check(metric.Value) {
		e.handleBreach(ctx, rule, *metric, now)
	} else {
		e.handleRecovery(ctx, rule, now)
	}
	return nil
}

// handleBreach increments the rule's consecutive-breach counter, and only
// creates + dispatches a new event once the counter reaches
// ConsecutiveFailures and no event is already active (idempotent: no
// duplicate notifications while Active).
func (e *Evaluator) handleBreach(ctx context.Context, rule *models.AlertRule, metric MetricValue, now time.Time) {
	e.mu.Lock()
	e.failureCounts[rule.ID]++
	count := e.failureCounts[rule.ID]
	_, alreadyActive := e.activeAlerts[rule.ID]
	e.mu.Unlock()

	if count < rule.ConsecutiveFailures {
		return
	}
	if alreadyActive {
		return
	}

	threshold := 0.0
	if rule.Threshold != nil {
		threshold = *rule.Threshold
	}
	event := models.AlertEvent{
		ID:             uuid.New(),
		RuleID:         rule.ID,
		TriggeredAt:    now,
		Status:         models.AlertStatusActive,
		Severity:       rule.Severity,
		Message:        formatMessage(rule, metric.Value),
		MetricValue:    metric.Value,
		ThresholdValue: threshold,
		ServiceName:    rule.ServiceName,
		TraceIDs:       metric.SampleTraceIDs,
		Metadata:       map[string]any{},
	}

	if err := e.repo.CreateEvent(ctx, event); err != nil {
		e.logger.Error("persist alert event failed", "rule_id", rule.ID, "error", err)
		return
	}
	if err := e.repo.UpdateLastTriggered(ctx, rule.ID, now); err != nil {
		e.logger.Error("update last_triggered_at failed", "rule_id", rule.ID, "error", err)
	}

	outcomes := e.sender.SendAll(ctx, rule, &event)
	records := ToRecords(outcomes)
	event.NotificationRecords = records
	if err := e.repo.UpdateEventNotifications(ctx, event.ID, records); err != nil {
		e.logger.Error("persist notification records failed", "event_id", event.ID, "error", err)
	}

	e.mu.Lock()
	e.activeAlerts[rule.ID] = event
	e.mu.Unlock()
}

// handleRecovery clears the rule's breach counter and resolves any active
// event. A single non-breach evaluation is enough to recover.
func (e *Evaluator) handleRecovery(ctx context.Context, rule *models.AlertRule, now time.Time) {
	e.mu.Lock()
	delete(e.failureCounts, rule.ID)
	active, ok := e.activeAlerts[rule.ID]
	if ok {
		delete(e.activeAlerts, rule.ID)
	}
	e.mu.Unlock()

	if !ok {
		return
	}
	if err := e.repo.ResolveEvent(ctx, active.ID, now); err != nil {
		e.logger.Error("resolve alert event failed", "event_id", active.ID, "error", err)
	}
}

// TestRule evaluates rule once against the current window and returns the
// event that would be created, ignoring hysteresis and the active-alert
// guard. It never persists anything or dispatches notifications.
func (e *Evaluator) TestRule(ctx context.Context, rule *models.AlertRule) (*models.AlertEvent, error) {
	now := time.Now().UTC()
	scope := windowScope(rule, now)
	metric, err := getMetricValue(ctx, e.source, rule, scope)
	if err != nil {
		return nil, err
	}
	if metric == nil {
		return nil, nil
	}
	if !rule.Check(metric.Value) {
		return nil, nil
	}

	threshold := 0.0
	if rule.Threshold != nil {
		threshold = *rule.Threshold
	}
	event := models.AlertEvent{
		ID:             uuid.New(),
		RuleID:         rule.ID,
		TriggeredAt:    now,
		Status:         models.AlertStatusActive,
		Severity:       rule.Severity,
		Message:        formatMessage(rule, metric.Value),
		MetricValue:    metric.Value,
		ThresholdValue: threshold,
		ServiceName:    rule.ServiceName,
		TraceIDs:       metric.SampleTraceIDs,
		Metadata:       map[string]any{TestTagKey: TestTagValue},
	}
	return &event, nil
}

// ActiveAlertCount returns the number of currently-active events, for
// tests asserting invariant 2 (at most one active event per rule is
// implied by the map's own keying, but this exposes the count for
// assertions).
func (e *Evaluator) ActiveAlertCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.activeAlerts)
}

// FailureCount returns the current consecutive-breach counter for a rule,
// for tests asserting the hysteresis law.
func (e *Evaluator) FailureCount(ruleID uuid.UUID) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.failureCounts[ruleID]
}
