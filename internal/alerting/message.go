package alerting

import (
	"fmt"

	"github.com/agenttrace/agenttrace/internal/models"
)

var operatorPhrase = map[models.Operator]string{
	models.OpGt:  "exceeded",
	models.OpLt:  "fell below",
	models.OpEq:  "equals",
	models.OpGte: "reached or exceeded",
	models.OpLte: "fell to or below",
	models.OpNe:  "differs from",
}

// formatMessage builds the human-readable alert message:
// "<metric> <operator-phrase> threshold of <threshold> <scope> (current value: <value>)".
func formatMessage(rule *models.AlertRule, value float64) string {
	threshold := 0.0
	if rule.Threshold != nil {
		threshold = *rule.Threshold
	}
	return fmt.Sprintf("%s %s threshold of %.2f%s (current value: %.2f)",
		rule.Metric, operatorPhrase[rule.Operator], threshold, scopePhrase(rule), value)
}

// scopePhrase renders the optional service/model scope suffix.
func scopePhrase(rule *models.AlertRule) string {
	hasService := rule.ServiceName != nil && *rule.ServiceName != ""
	hasModel := rule.ModelName != nil && *rule.ModelName != ""
	switch {
	case hasService && hasModel:
		return fmt.Sprintf(" for service '%s' with model '%s'", *rule.ServiceName, *rule.ModelName)
	case hasService:
		return fmt.Sprintf(" for service '%s'", *rule.ServiceName)
	case hasModel:
		return fmt.Sprintf(" for model '%s'", *rule.ModelName)
	default:
		return ""
	}
}
