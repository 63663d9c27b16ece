package alerting

import (
	"context"
	"time"

	"github.com/agenttrace/agenttrace/internal/models"
	"github.com/google/uuid"
)

// Repository is the persistence surface the evaluator needs for rules and
// events. It is satisfied by *storage.Store; tests substitute a fake.
type Repository interface {
	ListRules(ctx context.Context, enabledOnly bool) ([]models.AlertRule, error)
	CreateEvent(ctx context.Context, event models.AlertEvent) error
	ResolveEvent(ctx context.Context, id uuid.UUID, resolvedAt time.Time) error
	UpdateEventNotifications(ctx context.Context, id uuid.UUID, records []models.NotificationRecord) error
	UpdateLastEvaluated(ctx context.Context, id uuid.UUID, at time.Time) error
	UpdateLastTriggered(ctx context.Context, id uuid.UUID, at time.Time) error
}

// Sender delivers notifications for a breaching rule/event pair. It is
// satisfied by *Notifier; tests substitute a fake.
type Sender interface {
	SendAll(ctx context.Context, rule *models.AlertRule, event *models.AlertEvent) []NotificationOutcome
}
