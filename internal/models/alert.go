package models

import (
	"time"

	"github.com/google/uuid"
)

// ConditionType classifies how a rule's condition is evaluated. Only
// Threshold is required; the remaining variants are reserved for future
// evaluation strategies.
type ConditionType string

const (
	ConditionThreshold  ConditionType = "threshold"
	ConditionAnomaly    ConditionType = "anomaly"
	ConditionRateChange ConditionType = "rate_change"
	ConditionAbsence    ConditionType = "absence"
)

// Operator is a threshold comparison.
type Operator string

const (
	OpGt  Operator = "gt"
	OpLt  Operator = "lt"
	OpEq  Operator = "eq"
	OpGte Operator = "gte"
	OpLte Operator = "lte"
	OpNe  Operator = "ne"
)

// operatorEpsilon bounds floating-point equality comparisons for eq/ne.
const operatorEpsilon = 1e-9

// Severity is the importance level of an alert rule and its events.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// AlertStatus is the lifecycle state of an alert event.
type AlertStatus string

const (
	AlertStatusActive       AlertStatus = "active"
	AlertStatusAcknowledged AlertStatus = "acknowledged"
	AlertStatusResolved     AlertStatus = "resolved"
)

// Metric is one of the closed set of metric names an alert rule may watch.
type Metric string

const (
	MetricErrorRate   Metric = "error_rate"
	MetricLatencyP50  Metric = "latency_p50"
	MetricLatencyP95  Metric = "latency_p95"
	MetricLatencyP99  Metric = "latency_p99"
	MetricLatencyAvg  Metric = "latency_avg"
	MetricCostSum     Metric = "cost_sum"
	MetricCostRate    Metric = "cost_rate"
	MetricTokenSum    Metric = "token_sum"
	MetricSpanCount   Metric = "span_count"
	MetricThroughput  Metric = "throughput"
)

// ValidMetrics is the closed set of metric names a rule may reference.
var ValidMetrics = map[Metric]bool{
	MetricErrorRate:  true,
	MetricLatencyP50: true,
	MetricLatencyP95: true,
	MetricLatencyP99: true,
	MetricLatencyAvg: true,
	MetricCostSum:    true,
	MetricCostRate:   true,
	MetricTokenSum:   true,
	MetricSpanCount:  true,
	MetricThroughput: true,
}

// NotificationChannelType names the tagged variant of a NotificationChannel.
type NotificationChannelType string

const (
	ChannelSlack     NotificationChannelType = "slack"
	ChannelEmail     NotificationChannelType = "email"
	ChannelWebhook   NotificationChannelType = "webhook"
	ChannelPagerDuty NotificationChannelType = "pagerduty"
)

// NotificationChannel is a tagged variant describing where alert
// notifications are delivered. Exactly one of the type-specific fields is
// populated, selected by Type.
type NotificationChannel struct {
	Type NotificationChannelType `json:"type"`

	// Slack
	WebhookURL string  `json:"webhook_url,omitempty"`
	Channel    *string `json:"channel,omitempty"`

	// Email
	To []string `json:"to,omitempty"`

	// Webhook
	URL     string            `json:"url,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`

	// PagerDuty
	RoutingKey string `json:"routing_key,omitempty"`
}

// AlertRule is a user-defined monitor over a metric.
type AlertRule struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	CreatedBy   *string   `json:"created_by,omitempty"`

	ServiceName *string `json:"service_name,omitempty"`
	Environment *string `json:"environment,omitempty"`
	ModelName   *string `json:"model_name,omitempty"`

	ConditionType ConditionType `json:"condition_type"`
	Metric        Metric        `json:"metric"`
	Operator      Operator      `json:"operator"`
	Threshold     *float64      `json:"threshold,omitempty"`

	WindowMinutes             int `json:"window_minutes"`
	EvaluationIntervalSeconds int `json:"evaluation_interval_seconds"`
	ConsecutiveFailures       int `json:"consecutive_failures"`

	Severity             Severity               `json:"severity"`
	NotificationChannels []NotificationChannel  `json:"notification_channels"`
	Enabled              bool                   `json:"enabled"`

	LastEvaluatedAt *time.Time `json:"last_evaluated_at,omitempty"`
	LastTriggeredAt *time.Time `json:"last_triggered_at,omitempty"`
}

// Check applies the rule's operator to a metric value. A missing threshold
// never breaches.
func (r *AlertRule) Check(value float64) bool {
	if r.Threshold == nil {
		return false
	}
	threshold := *r.Threshold
	switch r.Operator {
	case OpGt:
		return value > threshold
	case OpLt:
		return value < threshold
	case OpEq:
		return absFloat(value-threshold) < operatorEpsilon
	case OpGte:
		return value >= threshold
	case OpLte:
		return value <= threshold
	case OpNe:
		return absFloat(value-threshold) >= operatorEpsilon
	default:
		return false
	}
}

func absFloat(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

// AlertRuleInput is the client-supplied shape for creating or updating an
// alert rule.
type AlertRuleInput struct {
	Name                      string                `json:"name"`
	Description               *string               `json:"description,omitempty"`
	ServiceName               *string               `json:"service_name,omitempty"`
	Environment               *string               `json:"environment,omitempty"`
	ModelName                 *string               `json:"model_name,omitempty"`
	ConditionType             ConditionType         `json:"condition_type"`
	Metric                    Metric                `json:"metric"`
	Operator                  Operator              `json:"operator"`
	Threshold                 *float64              `json:"threshold,omitempty"`
	WindowMinutes             int                   `json:"window_minutes"`
	EvaluationIntervalSeconds int                   `json:"evaluation_interval_seconds"`
	ConsecutiveFailures       int                   `json:"consecutive_failures"`
	Severity                  Severity              `json:"severity"`
	NotificationChannels      []NotificationChannel `json:"notification_channels"`
	Enabled                   bool                  `json:"enabled"`
	CreatedBy                 *string               `json:"created_by,omitempty"`
}

// ToRule builds a persistable AlertRule from client input, applying the
// defaults from the data model (window 5m, interval 60s, 1 consecutive
// failure, warning severity) and assigning a fresh id and timestamps.
func (in AlertRuleInput) ToRule(now time.Time) AlertRule {
	windowMinutes := in.WindowMinutes
	if windowMinutes <= 0 {
		windowMinutes = 5
	}
	interval := in.EvaluationIntervalSeconds
	if interval <= 0 {
		interval = 60
	}
	consecutive := in.ConsecutiveFailures
	if consecutive <= 0 {
		consecutive = 1
	}
	severity := in.Severity
	if severity == "" {
		severity = SeverityWarning
	}
	conditionType := in.ConditionType
	if conditionType == "" {
		conditionType = ConditionThreshold
	}
	return AlertRule{
		ID:                        uuid.New(),
		Name:                      in.Name,
		Description:               in.Description,
		CreatedAt:                 now,
		UpdatedAt:                 now,
		CreatedBy:                 in.CreatedBy,
		ServiceName:               in.ServiceName,
		Environment:               in.Environment,
		ModelName:                 in.ModelName,
		ConditionType:             conditionType,
		Metric:                    in.Metric,
		Operator:                  in.Operator,
		Threshold:                 in.Threshold,
		WindowMinutes:             windowMinutes,
		EvaluationIntervalSeconds: interval,
		ConsecutiveFailures:       consecutive,
		Severity:                  severity,
		NotificationChannels:      in.NotificationChannels,
		Enabled:                   in.Enabled,
	}
}

// NotificationRecord is an append-only record of one delivery attempt.
type NotificationRecord struct {
	ChannelType NotificationChannelType `json:"channel_type"`
	SentAt      time.Time               `json:"sent_at"`
	Success     bool                    `json:"success"`
	Error       *string                 `json:"error,omitempty"`
}

// AlertEvent is one triggered-alert instance.
type AlertEvent struct {
	ID                   uuid.UUID             `json:"id"`
	RuleID                uuid.UUID             `json:"rule_id"`
	TriggeredAt           time.Time             `json:"triggered_at"`
	ResolvedAt            *time.Time            `json:"resolved_at,omitempty"`
	Status               AlertStatus           `json:"status"`
	Severity             Severity              `json:"severity"`
	Message              string                `json:"message"`
	MetricValue          float64               `json:"metric_value"`
	ThresholdValue       float64               `json:"threshold_value"`
	ServiceName          *string               `json:"service_name,omitempty"`
	TraceIDs             []string              `json:"trace_ids,omitempty"`
	NotificationRecords  []NotificationRecord  `json:"notification_records,omitempty"`
	Metadata             map[string]any        `json:"metadata,omitempty"`
}
