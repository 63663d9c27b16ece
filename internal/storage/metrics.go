package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/agenttrace/agenttrace/internal/apperrors"
)

// MetricScope narrows a metric query to a service and/or model, matching an
// alert rule's scope filters.
type MetricScope struct {
	ServiceName *string
	ModelName   *string
	Start       time.Time
	End         time.Time
}

func (sc MetricScope) whereClause(args *[]any) string {
	clause := " WHERE started_at >= " + placeholder(args, sc.Start) + " AND started_at <= " + placeholder(args, sc.End)
	if sc.ServiceName != nil {
		clause += " AND service_name = " + placeholder(args, *sc.ServiceName)
	}
	if sc.ModelName != nil {
		clause += " AND model_name = " + placeholder(args, *sc.ModelName)
	}
	return clause
}

func placeholder(args *[]any, v any) string {
	*args = append(*args, v)
	return fmt.Sprintf("$%d", len(*args))
}

// ErrorStats is the raw error-rate numerator/denominator plus a sample of
// trace ids for the breaching window, used both for the error_rate metric
// and to populate AlertEvent.TraceIDs.
type ErrorStats struct {
	ErrorCount      int64
	Total           int64
	SampleTraceIDs  []string
}

const sampleTraceIDLimit = 10

// ErrorStats returns the error/total span counts and a sample of trace ids
// with errors in the window. Total == 0 signals "no data" to the caller.
func (s *Store) ErrorStats(ctx context.Context, sc MetricScope) (ErrorStats, error) {
	var args []any
	where := sc.whereClause(&args)

	var stats ErrorStats
	row := s.pool.QueryRow(ctx,
		"SELECT COUNT(*) FILTER (WHERE status = 'error'), COUNT(*) FROM spans"+where, args...)
	if err := row.Scan(&stats.ErrorCount, &stats.Total); err != nil {
		return ErrorStats{}, apperrors.NewStorageError("error_stats", err)
	}
	if stats.ErrorCount == 0 {
		return stats, nil
	}

	traceArgs := append([]any{}, args...)
	rows, err := s.pool.Query(ctx,
		"SELECT DISTINCT trace_id FROM spans"+where+" AND status = 'error' LIMIT "+placeholder(&traceArgs, sampleTraceIDLimit),
		traceArgs...)
	if err != nil {
		return ErrorStats{}, apperrors.NewStorageError("error_stats:sample", err)
	}
	defer rows.Close()
	for rows.Next() {
		var traceID string
		if err := rows.Scan(&traceID); err != nil {
			return ErrorStats{}, apperrors.NewStorageError("error_stats:sample_scan", err)
		}
		stats.SampleTraceIDs = append(stats.SampleTraceIDs, traceID)
	}
	return stats, rows.Err()
}

// LatencyPercentile returns the p-th percentile (0 < p < 1) of duration_ms
// in the window. Returns (0, false) when there is no data.
func (s *Store) LatencyPercentile(ctx context.Context, sc MetricScope, p float64) (float64, bool, error) {
	var args []any
	where := sc.whereClause(&args)
	pArg := placeholder(&args, p)

	var value *float64
	row := s.pool.QueryRow(ctx,
		"SELECT percentile_cont("+pArg+") WITHIN GROUP (ORDER BY duration_ms) FROM spans"+where+" AND duration_ms IS NOT NULL",
		args...)
	if err := row.Scan(&value); err != nil {
		return 0, false, apperrors.NewStorageError("latency_percentile", err)
	}
	if value == nil {
		return 0, false, nil
	}
	return *value, true, nil
}

// LatencyAvg returns the mean duration_ms in the window.
func (s *Store) LatencyAvg(ctx context.Context, sc MetricScope) (float64, bool, error) {
	var args []any
	where := sc.whereClause(&args)
	var value *float64
	row := s.pool.QueryRow(ctx, "SELECT AVG(duration_ms) FROM spans"+where+" AND duration_ms IS NOT NULL", args...)
	if err := row.Scan(&value); err != nil {
		return 0, false, apperrors.NewStorageError("latency_avg", err)
	}
	if value == nil {
		return 0, false, nil
	}
	return *value, true, nil
}

// CostSum returns the total cost_usd in the window.
func (s *Store) CostSum(ctx context.Context, sc MetricScope) (float64, error) {
	var args []any
	where := sc.whereClause(&args)
	var value float64
	row := s.pool.QueryRow(ctx, "SELECT COALESCE(SUM(cost_usd), 0) FROM spans"+where, args...)
	if err := row.Scan(&value); err != nil {
		return 0, apperrors.NewStorageError("cost_sum", err)
	}
	return value, nil
}

// TokenSum returns the total token count (in + out + reasoning) in the
// window.
func (s *Store) TokenSum(ctx context.Context, sc MetricScope) (int64, error) {
	var args []any
	where := sc.whereClause(&args)
	var value int64
	row := s.pool.QueryRow(ctx,
		"SELECT COALESCE(SUM(COALESCE(tokens_in,0)+COALESCE(tokens_out,0)+COALESCE(tokens_reasoning,0)), 0) FROM spans"+where,
		args...)
	if err := row.Scan(&value); err != nil {
		return 0, apperrors.NewStorageError("token_sum", err)
	}
	return value, nil
}

// SpanCount returns the span count in the window.
func (s *Store) SpanCount(ctx context.Context, sc MetricScope) (int64, error) {
	var args []any
	where := sc.whereClause(&args)
	var value int64
	row := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM spans"+where, args...)
	if err := row.Scan(&value); err != nil {
		return 0, apperrors.NewStorageError("span_count", err)
	}
	return value, nil
}

// MetricsSummary is the API-facing aggregate for a window: totals plus
// latency percentiles.
type MetricsSummary struct {
	SpanCount   int64
	ErrorCount  int64
	TotalCost   float64
	TotalTokens int64
	LatencyP50  float64
	LatencyP95  float64
	LatencyP99  float64
}

// MetricsSummary computes the dashboard summary for a window, running one
// query per aggregate.
func (s *Store) MetricsSummary(ctx context.Context, sc MetricScope) (MetricsSummary, error) {
	var summary MetricsSummary

	errStats, err := s.ErrorStats(ctx, sc)
	if err != nil {
		return summary, err
	}
	summary.SpanCount = errStats.Total
	summary.ErrorCount = errStats.ErrorCount

	summary.TotalCost, err = s.CostSum(ctx, sc)
	if err != nil {
		return summary, err
	}
	summary.TotalTokens, err = s.TokenSum(ctx, sc)
	if err != nil {
		return summary, err
	}

	if summary.LatencyP50, _, err = s.LatencyPercentile(ctx, sc, 0.50); err != nil {
		return summary, err
	}
	if summary.LatencyP95, _, err = s.LatencyPercentile(ctx, sc, 0.95); err != nil {
		return summary, err
	}
	if summary.LatencyP99, _, err = s.LatencyPercentile(ctx, sc, 0.99); err != nil {
		return summary, err
	}
	return summary, nil
}

// GroupBy names the dimension cost_by_group aggregates over.
type GroupBy string

const (
	GroupByModel     GroupBy = "model"
	GroupByService   GroupBy = "service"
	GroupByOperation GroupBy = "operation"
)

var groupByColumn = map[GroupBy]string{
	GroupByModel:     "model_name",
	GroupByService:   "service_name",
	GroupByOperation: "operation_name",
}

// CostByGroupRow is one bucket of a cost_by_group result.
type CostByGroupRow struct {
	Key  string
	Cost float64
}

// CostByGroup sums cost_usd within the window, grouped by the requested
// dimension.
func (s *Store) CostByGroup(ctx context.Context, sc MetricScope, group GroupBy) ([]CostByGroupRow, error) {
	column, ok := groupByColumn[group]
	if !ok {
		return nil, apperrors.NewValidationError("group_by", "unknown grouping dimension")
	}
	var args []any
	where := sc.whereClause(&args)
	rows, err := s.pool.Query(ctx,
		"SELECT COALESCE("+column+", 'unknown') AS k, COALESCE(SUM(cost_usd), 0) FROM spans"+where+" GROUP BY k ORDER BY 2 DESC",
		args...)
	if err != nil {
		return nil, apperrors.NewStorageError("cost_by_group", err)
	}
	defer rows.Close()

	var out []CostByGroupRow
	for rows.Next() {
		var r CostByGroupRow
		if err := rows.Scan(&r.Key, &r.Cost); err != nil {
			return nil, apperrors.NewStorageError("cost_by_group:scan", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// TimeBucket is one hourly bucket of a time-series aggregate.
type TimeBucket struct {
	BucketStart time.Time
	Value       float64
}

// LatencyOverTime buckets average latency into 1-hour intervals across the
// window.
func (s *Store) LatencyOverTime(ctx context.Context, sc MetricScope) ([]TimeBucket, error) {
	var args []any
	where := sc.whereClause(&args)
	rows, err := s.pool.Query(ctx,
		"SELECT date_trunc('hour', started_at) AS bucket, AVG(duration_ms) FROM spans"+where+" AND duration_ms IS NOT NULL GROUP BY bucket ORDER BY bucket",
		args...)
	if err != nil {
		return nil, apperrors.NewStorageError("latency_over_time", err)
	}
	return scanTimeBuckets(rows)
}

// ErrorsOverTime buckets error counts into 1-hour intervals across the
// window.
func (s *Store) ErrorsOverTime(ctx context.Context, sc MetricScope) ([]TimeBucket, error) {
	var args []any
	where := sc.whereClause(&args)
	rows, err := s.pool.Query(ctx,
		"SELECT date_trunc('hour', started_at) AS bucket, COUNT(*) FILTER (WHERE status = 'error') FROM spans"+where+" GROUP BY bucket ORDER BY bucket",
		args...)
	if err != nil {
		return nil, apperrors.NewStorageError("errors_over_time", err)
	}
	return scanTimeBuckets(rows)
}

func scanTimeBuckets(rows interface {
	Next() bool
	Scan(...any) error
	Err() error
	Close()
}) ([]TimeBucket, error) {
	defer rows.Close()
	var out []TimeBucket
	for rows.Next() {
		var b TimeBucket
		if err := rows.Scan(&b.BucketStart, &b.Value); err != nil {
			return nil, apperrors.NewStorageError("time_bucket:scan", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
