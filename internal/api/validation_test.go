package api

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/agenttrace/agenttrace/internal/models"
)

func TestValidateSpanInputRequiresCoreFields(t *testing.T) {
	valid := models.SpanInput{
		SpanID:        "span-1",
		TraceID:       "trace-1",
		OperationName: "chat.completion",
		StartedAt:     time.Now(),
	}
	assert.NoError(t, validateSpanInput(valid))

	missingSpanID := valid
	missingSpanID.SpanID = ""
	assert.Error(t, validateSpanInput(missingSpanID))

	missingTraceID := valid
	missingTraceID.TraceID = ""
	assert.Error(t, validateSpanInput(missingTraceID))

	missingOperation := valid
	missingOperation.OperationName = ""
	assert.Error(t, validateSpanInput(missingOperation))

	missingStartedAt := valid
	missingStartedAt.StartedAt = time.Time{}
	assert.Error(t, validateSpanInput(missingStartedAt))
}

func TestValidateAlertRuleInputRejectsUnknownMetricAndOperator(t *testing.T) {
	threshold := 10.0
	base := models.AlertRuleInput{
		Name:      "high error rate",
		Metric:    models.MetricErrorRate,
		Operator:  models.OpGt,
		Threshold: &threshold,
	}
	assert.NoError(t, validateAlertRuleInput(base))

	badMetric := base
	badMetric.Metric = "not_a_real_metric"
	assert.Error(t, validateAlertRuleInput(badMetric))

	badOperator := base
	badOperator.Operator = "weird"
	assert.Error(t, validateAlertRuleInput(badOperator))

	noThreshold := base
	noThreshold.Threshold = nil
	assert.Error(t, validateAlertRuleInput(noThreshold))

	noName := base
	noName.Name = ""
	assert.Error(t, validateAlertRuleInput(noName))
}
