package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/agenttrace/agenttrace/internal/apperrors"
	"github.com/agenttrace/agenttrace/internal/models"
	"github.com/slack-go/slack"
)

const (
	pagerDutyEventsURL  = "https://events.pagerduty.com/v2/enqueue"
	notifierHTTPTimeout = 30 * time.Second
)

var severityColor = map[models.Severity]string{
	models.SeverityCritical: "#dc3545",
	models.SeverityWarning:  "#ffc107",
	models.SeverityInfo:     "#17a2b8",
}

var severityEmoji = map[models.Severity]string{
	models.SeverityCritical: "\U0001F6A8", // 🚨
	models.SeverityWarning:  "⚠️", // ⚠️
	models.SeverityInfo:     "ℹ️", // ℹ️
}

// Notifier translates an (rule, event) pair into per-channel payloads and
// delivers them. A delivery failure is captured as a NotificationOutcome; it
// never causes Notifier to return an error itself, matching the
// evaluator's requirement that notification dispatch never fails the loop.
type Notifier struct {
	client *http.Client
}

// NewNotifier builds a Notifier with the spec's 30-second total request
// timeout.
func NewNotifier() *Notifier {
	return &Notifier{client: &http.Client{Timeout: notifierHTTPTimeout}}
}

// NotificationOutcome is the per-channel delivery result, convertible
// directly into a models.NotificationRecord.
type NotificationOutcome struct {
	ChannelType models.NotificationChannelType
	Success     bool
	Err         error
	SentAt      time.Time
}

func (o NotificationOutcome) toRecord() models.NotificationRecord {
	rec := models.NotificationRecord{ChannelType: o.ChannelType, SentAt: o.SentAt, Success: o.Success}
	if o.Err != nil {
		msg := o.Err.Error()
		rec.Error = &msg
	}
	return rec
}

// SendAll attempts delivery to every channel configured on rule, collecting
// one outcome per channel regardless of individual failures.
func (n *Notifier) SendAll(ctx context.Context, rule *models.AlertRule, event *models.AlertEvent) []NotificationOutcome {
	outcomes := make([]NotificationOutcome, 0, len(rule.NotificationChannels))
	for _, channel := range rule.NotificationChannels {
		outcomes = append(outcomes, n.send(ctx, channel, rule, event))
	}
	return outcomes
}

// ToRecords converts SendAll's outcomes to persistable notification
// records.
func ToRecords(outcomes []NotificationOutcome) []models.NotificationRecord {
	records := make([]models.NotificationRecord, 0, len(outcomes))
	for _, o := range outcomes {
		records = append(records, o.toRecord())
	}
	return records
}

func (n *Notifier) send(ctx context.Context, channel models.NotificationChannel, rule *models.AlertRule, event *models.AlertEvent) NotificationOutcome {
	now := time.Now().UTC()
	var err error
	switch channel.Type {
	case models.ChannelSlack:
		err = n.sendSlack(ctx, channel, rule, event)
	case models.ChannelWebhook:
		err = n.sendWebhook(ctx, channel, rule, event)
	case models.ChannelPagerDuty:
		err = n.sendPagerDuty(ctx, channel, rule, event)
	case models.ChannelEmail:
		// Reserved: no SMTP adapter is wired up. Reporting success without
		// sending anything keeps the spec's documented placeholder behavior
		// rather than failing the whole dispatch for a channel nobody can
		// configure yet.
		err = nil
	default:
		err = apperrors.NewTransportError(string(channel.Type), fmt.Errorf("unsupported channel type"))
	}
	return NotificationOutcome{ChannelType: channel.Type, Success: err == nil, Err: err, SentAt: now}
}

func (n *Notifier) sendSlack(ctx context.Context, channel models.NotificationChannel, rule *models.AlertRule, event *models.AlertEvent) error {
	service := ""
	if event.ServiceName != nil {
		service = *event.ServiceName
	}
	attachment := slack.Attachment{
		Color: severityColor[event.Severity],
		Title: fmt.Sprintf("%s Alert: %s", severityEmoji[event.Severity], rule.Name),
		Text:  event.Message,
		Fields: []slack.AttachmentField{
			{Title: "Severity", Value: string(event.Severity), Short: true},
			{Title: "Metric Value", Value: fmt.Sprintf("%.2f", event.MetricValue), Short: true},
			{Title: "Threshold", Value: fmt.Sprintf("%.2f", event.ThresholdValue), Short: true},
			{Title: "Service", Value: service, Short: true},
		},
		Footer: "AgentTrace Alerting",
		Ts:     json.Number(fmt.Sprintf("%d", event.TriggeredAt.Unix())),
	}

	payload := struct {
		Channel     string              `json:"channel,omitempty"`
		Username    string              `json:"username"`
		IconEmoji   string              `json:"icon_emoji"`
		Attachments []slack.Attachment  `json:"attachments"`
	}{
		Username:    "AgentTrace",
		IconEmoji:   ":robot_face:",
		Attachments: []slack.Attachment{attachment},
	}
	if channel.Channel != nil {
		payload.Channel = *channel.Channel
	}

	return n.post(ctx, channel.WebhookURL, payload, nil, "slack")
}

// webhookPayload is the generic webhook JSON shape.
type webhookPayload struct {
	AlertID        string         `json:"alert_id"`
	RuleID         string         `json:"rule_id"`
	RuleName       string         `json:"rule_name"`
	Severity       models.Severity `json:"severity"`
	Status         models.AlertStatus `json:"status"`
	Message        string         `json:"message"`
	MetricValue    float64        `json:"metric_value"`
	ThresholdValue float64        `json:"threshold_value"`
	ServiceName    *string        `json:"service_name,omitempty"`
	TriggeredAt    string         `json:"triggered_at"`
	TraceIDs       []string       `json:"trace_ids"`
	Metadata       map[string]any `json:"metadata"`
}

func (n *Notifier) sendWebhook(ctx context.Context, channel models.NotificationChannel, rule *models.AlertRule, event *models.AlertEvent) error {
	payload := webhookPayload{
		AlertID:        event.ID.String(),
		RuleID:         rule.ID.String(),
		RuleName:       rule.Name,
		Severity:       event.Severity,
		Status:         event.Status,
		Message:        event.Message,
		MetricValue:    event.MetricValue,
		ThresholdValue: event.ThresholdValue,
		ServiceName:    event.ServiceName,
		TriggeredAt:    event.TriggeredAt.Format(time.RFC3339),
		TraceIDs:       event.TraceIDs,
		Metadata:       event.Metadata,
	}
	return n.post(ctx, channel.URL, payload, channel.Headers, "webhook")
}

// pagerDutyPayload is the Events API v2 trigger shape.
type pagerDutyPayload struct {
	RoutingKey  string                `json:"routing_key"`
	EventAction string                `json:"event_action"`
	DedupKey    string                `json:"dedup_key"`
	Payload     pagerDutyEventPayload `json:"payload"`
}

type pagerDutyEventPayload struct {
	Summary       string         `json:"summary"`
	Source        string         `json:"source"`
	Severity      models.Severity `json:"severity"`
	Timestamp     string         `json:"timestamp"`
	CustomDetails map[string]any `json:"custom_details"`
}

func (n *Notifier) sendPagerDuty(ctx context.Context, channel models.NotificationChannel, rule *models.AlertRule, event *models.AlertEvent) error {
	service := ""
	if event.ServiceName != nil {
		service = *event.ServiceName
	}
	payload := pagerDutyPayload{
		RoutingKey:  channel.RoutingKey,
		EventAction: "trigger",
		DedupKey:    fmt.Sprintf("%s:%s", rule.ID, event.ID),
		Payload: pagerDutyEventPayload{
			Summary:   fmt.Sprintf("[%s] %s: %s", severityUpper(event.Severity), rule.Name, event.Message),
			Source:    "AgentTrace",
			Severity:  event.Severity,
			Timestamp: event.TriggeredAt.Format(time.RFC3339),
			CustomDetails: map[string]any{
				"rule_id":         rule.ID.String(),
				"metric_value":    event.MetricValue,
				"threshold_value": event.ThresholdValue,
				"service_name":    service,
				"trace_ids":       event.TraceIDs,
			},
		},
	}
	return n.post(ctx, pagerDutyEventsURL, payload, nil, "pagerduty")
}

func severityUpper(s models.Severity) string {
	switch s {
	case models.SeverityCritical:
		return "CRITICAL"
	case models.SeverityWarning:
		return "WARNING"
	default:
		return "INFO"
	}
}

func (n *Notifier) post(ctx context.Context, url string, payload any, headers map[string]string, channelName string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return apperrors.NewTransportError(channelName, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return apperrors.NewTransportError(channelName, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return apperrors.NewTransportError(channelName, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return apperrors.NewTransportError(channelName, fmt.Errorf("http %d", resp.StatusCode))
	}
	return nil
}
