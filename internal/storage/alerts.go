package storage

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/agenttrace/agenttrace/internal/apperrors"
	"github.com/agenttrace/agenttrace/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const ruleColumns = `
	id, name, description, created_at, updated_at, created_by,
	service_name, environment, model_name,
	condition_type, metric, operator, threshold,
	window_minutes, evaluation_interval_seconds, consecutive_failures,
	severity, notification_channels, enabled,
	last_evaluated_at, last_triggered_at
`

// CreateRule inserts a new alert rule.
func (s *Store) CreateRule(ctx context.Context, rule models.AlertRule) error {
	channels, err := marshalJSON(rule.NotificationChannels)
	if err != nil {
		return apperrors.NewStorageError("create_rule:marshal", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO alert_rules (
			id, name, description, created_at, updated_at, created_by,
			service_name, environment, model_name,
			condition_type, metric, operator, threshold,
			window_minutes, evaluation_interval_seconds, consecutive_failures,
			severity, notification_channels, enabled
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
	`,
		rule.ID, rule.Name, rule.Description, rule.CreatedAt, rule.UpdatedAt, rule.CreatedBy,
		rule.ServiceName, rule.Environment, rule.ModelName,
		string(rule.ConditionType), string(rule.Metric), string(rule.Operator), rule.Threshold,
		rule.WindowMinutes, rule.EvaluationIntervalSeconds, rule.ConsecutiveFailures,
		string(rule.Severity), channels, rule.Enabled,
	)
	if err != nil {
		return apperrors.NewStorageError("create_rule", err)
	}
	return nil
}

// GetRule fetches a single alert rule by id.
func (s *Store) GetRule(ctx context.Context, id uuid.UUID) (*models.AlertRule, error) {
	row := s.pool.QueryRow(ctx, "SELECT "+ruleColumns+" FROM alert_rules WHERE id = $1", id)
	rule, err := scanRule(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.NewNotFoundError("alert_rule", id.String())
		}
		return nil, apperrors.NewStorageError("get_rule", err)
	}
	return rule, nil
}

// ListRules returns all alert rules, optionally only the enabled ones.
func (s *Store) ListRules(ctx context.Context, enabledOnly bool) ([]models.AlertRule, error) {
	query := "SELECT " + ruleColumns + " FROM alert_rules"
	var args []any
	if enabledOnly {
		query += " WHERE enabled = $1"
		args = append(args, true)
	}
	query += " ORDER BY created_at ASC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewStorageError("list_rules", err)
	}
	defer rows.Close()

	var rules []models.AlertRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, apperrors.NewStorageError("list_rules:scan", err)
		}
		rules = append(rules, *rule)
	}
	return rules, rows.Err()
}

// UpdateRule overwrites every mutable field of an existing rule.
func (s *Store) UpdateRule(ctx context.Context, rule models.AlertRule) error {
	channels, err := marshalJSON(rule.NotificationChannels)
	if err != nil {
		return apperrors.NewStorageError("update_rule:marshal", err)
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE alert_rules SET
			name = $2, description = $3, updated_at = $4,
			service_name = $5, environment = $6, model_name = $7,
			condition_type = $8, metric = $9, operator = $10, threshold = $11,
			window_minutes = $12, evaluation_interval_seconds = $13, consecutive_failures = $14,
			severity = $15, notification_channels = $16, enabled = $17
		WHERE id = $1
	`,
		rule.ID, rule.Name, rule.Description, rule.UpdatedAt,
		rule.ServiceName, rule.Environment, rule.ModelName,
		string(rule.ConditionType), string(rule.Metric), string(rule.Operator), rule.Threshold,
		rule.WindowMinutes, rule.EvaluationIntervalSeconds, rule.ConsecutiveFailures,
		string(rule.Severity), channels, rule.Enabled,
	)
	if err != nil {
		return apperrors.NewStorageError("update_rule", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NewNotFoundError("alert_rule", rule.ID.String())
	}
	return nil
}

// DeleteRule removes an alert rule (and its events, via cascade).
func (s *Store) DeleteRule(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, "DELETE FROM alert_rules WHERE id = $1", id)
	if err != nil {
		return apperrors.NewStorageError("delete_rule", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NewNotFoundError("alert_rule", id.String())
	}
	return nil
}

// UpdateLastEvaluated stamps a rule's last_evaluated_at.
func (s *Store) UpdateLastEvaluated(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := s.pool.Exec(ctx, "UPDATE alert_rules SET last_evaluated_at = $2 WHERE id = $1", id, at)
	if err != nil {
		return apperrors.NewStorageError("update_last_evaluated", err)
	}
	return nil
}

// UpdateLastTriggered stamps a rule's last_triggered_at.
func (s *Store) UpdateLastTriggered(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := s.pool.Exec(ctx, "UPDATE alert_rules SET last_triggered_at = $2 WHERE id = $1", id, at)
	if err != nil {
		return apperrors.NewStorageError("update_last_triggered", err)
	}
	return nil
}

func scanRule(row rowScanner) (*models.AlertRule, error) {
	var rule models.AlertRule
	var conditionType, metric, operator, severity string
	var channels []byte

	err := row.Scan(
		&rule.ID, &rule.Name, &rule.Description, &rule.CreatedAt, &rule.UpdatedAt, &rule.CreatedBy,
		&rule.ServiceName, &rule.Environment, &rule.ModelName,
		&conditionType, &metric, &operator, &rule.Threshold,
		&rule.WindowMinutes, &rule.EvaluationIntervalSeconds, &rule.ConsecutiveFailures,
		&severity, &channels, &rule.Enabled,
		&rule.LastEvaluatedAt, &rule.LastTriggeredAt,
	)
	if err != nil {
		return nil, err
	}
	rule.ConditionType = models.ConditionType(conditionType)
	rule.Metric = models.Metric(metric)
	rule.Operator = models.Operator(operator)
	rule.Severity = models.Severity(severity)
	if channels != nil {
		_ = json.Unmarshal(channels, &rule.NotificationChannels)
	}
	return &rule, nil
}

const eventColumns = `
	id, rule_id, triggered_at, resolved_at, status, severity, message,
	metric_value, threshold_value, service_name, trace_ids, notification_records, metadata
`

// CreateEvent persists a newly-triggered alert event.
func (s *Store) CreateEvent(ctx context.Context, event models.AlertEvent) error {
	traceIDs, err := marshalJSON(event.TraceIDs)
	if err != nil {
		return apperrors.NewStorageError("create_event:marshal_trace_ids", err)
	}
	records, err := marshalJSON(event.NotificationRecords)
	if err != nil {
		return apperrors.NewStorageError("create_event:marshal_records", err)
	}
	metadata, err := marshalJSON(event.Metadata)
	if err != nil {
		return apperrors.NewStorageError("create_event:marshal_metadata", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO alert_events (
			id, rule_id, triggered_at, resolved_at, status, severity, message,
			metric_value, threshold_value, service_name, trace_ids, notification_records, metadata
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`,
		event.ID, event.RuleID, event.TriggeredAt, event.ResolvedAt, string(event.Status), string(event.Severity), event.Message,
		event.MetricValue, event.ThresholdValue, event.ServiceName, traceIDs, records, metadata,
	)
	if err != nil {
		return apperrors.NewStorageError("create_event", err)
	}
	return nil
}

// GetEvent fetches a single alert event by id.
func (s *Store) GetEvent(ctx context.Context, id uuid.UUID) (*models.AlertEvent, error) {
	row := s.pool.QueryRow(ctx, "SELECT "+eventColumns+" FROM alert_events WHERE id = $1", id)
	event, err := scanEvent(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.NewNotFoundError("alert_event", id.String())
		}
		return nil, apperrors.NewStorageError("get_event", err)
	}
	return event, nil
}

// ListEvents returns alert events, optionally scoped to one rule, newest
// first.
func (s *Store) ListEvents(ctx context.Context, ruleID *uuid.UUID, limit int) ([]models.AlertEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	query := "SELECT " + eventColumns + " FROM alert_events"
	var args []any
	if ruleID != nil {
		args = append(args, *ruleID)
		query += " WHERE rule_id = $1"
	}
	args = append(args, limit)
	query += " ORDER BY triggered_at DESC LIMIT $" + strconv.Itoa(len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewStorageError("list_events", err)
	}
	defer rows.Close()

	var events []models.AlertEvent
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, apperrors.NewStorageError("list_events:scan", err)
		}
		events = append(events, *event)
	}
	return events, rows.Err()
}

// ResolveEvent marks an event resolved.
func (s *Store) ResolveEvent(ctx context.Context, id uuid.UUID, resolvedAt time.Time) error {
	tag, err := s.pool.Exec(ctx,
		"UPDATE alert_events SET status = $2, resolved_at = $3 WHERE id = $1",
		id, string(models.AlertStatusResolved), resolvedAt)
	if err != nil {
		return apperrors.NewStorageError("resolve_event", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NewNotFoundError("alert_event", id.String())
	}
	return nil
}

// AcknowledgeEvent marks an event acknowledged.
func (s *Store) AcknowledgeEvent(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		"UPDATE alert_events SET status = $2 WHERE id = $1",
		id, string(models.AlertStatusAcknowledged))
	if err != nil {
		return apperrors.NewStorageError("acknowledge_event", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NewNotFoundError("alert_event", id.String())
	}
	return nil
}

// UpdateEventNotifications stores notification delivery outcomes on an
// event's record. The given records replace any already stored; they are
// not merged with them.
func (s *Store) UpdateEventNotifications(ctx context.Context, id uuid.UUID, records []models.NotificationRecord) error {
	payload, err := marshalJSON(records)
	if err != nil {
		return apperrors.NewStorageError("update_event_notifications:marshal", err)
	}
	tag, err := s.pool.Exec(ctx, "UPDATE alert_events SET notification_records = $2 WHERE id = $1", id, payload)
	if err != nil {
		return apperrors.NewStorageError("update_event_notifications", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NewNotFoundError("alert_event", id.String())
	}
	return nil
}

func scanEvent(row rowScanner) (*models.AlertEvent, error) {
	var event models.AlertEvent
	var status, severity string
	var traceIDs, records, metadata []byte

	err := row.Scan(
		&event.ID, &event.RuleID, &event.TriggeredAt, &event.ResolvedAt, &status, &severity, &event.Message,
		&event.MetricValue, &event.ThresholdValue, &event.ServiceName, &traceIDs, &records, &metadata,
	)
	if err != nil {
		return nil, err
	}
	event.Status = models.AlertStatus(status)
	event.Severity = models.Severity(severity)
	if traceIDs != nil {
		_ = json.Unmarshal(traceIDs, &event.TraceIDs)
	}
	if records != nil {
		_ = json.Unmarshal(records, &event.NotificationRecords)
	}
	if metadata != nil {
		_ = json.Unmarshal(metadata, &event.Metadata)
	}
	return &event, nil
}
