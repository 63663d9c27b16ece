package alerting

import (
	"context"
	"time"

	"github.com/agenttrace/agenttrace/internal/models"
	"github.com/agenttrace/agenttrace/internal/storage"
)

// MetricValue is one computed metric reading, carrying a sample of trace
// ids (populated only for error_rate) so a breaching AlertEvent can record
// representative traces.
type MetricValue struct {
	Value          float64
	SampleTraceIDs []string
}

// MetricSource computes windowed, scope-filtered metric values. It is
// satisfied by *storage.Store; tests substitute a fake.
type MetricSource interface {
	ErrorStats(ctx context.Context, scope storage.MetricScope) (storage.ErrorStats, error)
	LatencyPercentile(ctx context.Context, scope storage.MetricScope, p float64) (float64, bool, error)
	LatencyAvg(ctx context.Context, scope storage.MetricScope) (float64, bool, error)
	CostSum(ctx context.Context, scope storage.MetricScope) (float64, error)
	TokenSum(ctx context.Context, scope storage.MetricScope) (int64, error)
	SpanCount(ctx context.Context, scope storage.MetricScope) (int64, error)
}

// getMetricValue dispatches on rule.Metric to the right storage query and
// returns (nil, nil) when the metric is undefined for the window (no data,
// or a zero-duration window for rate metrics).
func getMetricValue(ctx context.Context, source MetricSource, rule *models.AlertRule, scope storage.MetricScope) (*MetricValue, error) {
	switch rule.Metric {
	case models.MetricErrorRate:
		stats, err := source.ErrorStats(ctx, scope)
		if err != nil {
			return nil, err
		}
		if stats.Total == 0 {
			return nil, nil
		}
		return &MetricValue{
			Value:          float64(stats.ErrorCount) / float64(stats.Total) * 100,
			SampleTraceIDs: stats.SampleTraceIDs,
		}, nil

	case models.MetricLatencyP50:
		return percentileMetric(ctx, source, scope, 0.50)
	case models.MetricLatencyP95:
		return percentileMetric(ctx, source, scope, 0.95)
	case models.MetricLatencyP99:
		return percentileMetric(ctx, source, scope, 0.99)

	case models.MetricLatencyAvg:
		value, ok, err := source.LatencyAvg(ctx, scope)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}
		return &MetricValue{Value: value}, nil

	case models.MetricCostSum:
		value, err := source.CostSum(ctx, scope)
		if err != nil {
			return nil, err
		}
		return &MetricValue{Value: value}, nil

	case models.MetricCostRate:
		hours := scope.End.Sub(scope.Start).Hours()
		if hours == 0 {
			return nil, nil
		}
		sum, err := source.CostSum(ctx, scope)
		if err != nil {
			return nil, err
		}
		return &MetricValue{Value: sum / hours}, nil

	case models.MetricTokenSum:
		value, err := source.TokenSum(ctx, scope)
		if err != nil {
			return nil, err
		}
		return &MetricValue{Value: float64(value)}, nil

	case models.MetricSpanCount:
		value, err := source.SpanCount(ctx, scope)
		if err != nil {
			return nil, err
		}
		return &MetricValue{Value: float64(value)}, nil

	case models.MetricThroughput:
		minutes := scope.End.Sub(scope.Start).Minutes()
		if minutes == 0 {
			return nil, nil
		}
		count, err := source.SpanCount(ctx, scope)
		if err != nil {
			return nil, err
		}
		return &MetricValue{Value: float64(count) / minutes}, nil

	default:
		return nil, nil
	}
}

func percentileMetric(ctx context.Context, source MetricSource, scope storage.MetricScope, p float64) (*MetricValue, error) {
	value, ok, err := source.LatencyPercentile(ctx, scope, p)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return &MetricValue{Value: value}, nil
}

// windowScope builds the [now-window_minutes, now] scope for a rule.
func windowScope(rule *models.AlertRule, now time.Time) storage.MetricScope {
	return storage.MetricScope{
		ServiceName: rule.ServiceName,
		ModelName:   rule.ModelName,
		Start:       now.Add(-time.Duration(rule.WindowMinutes) * time.Minute),
		End:         now,
	}
}
