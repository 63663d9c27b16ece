package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/agenttrace/agenttrace/internal/apperrors"
	"github.com/agenttrace/agenttrace/internal/models"
	"github.com/jackc/pgx/v5"
)

// UpsertBatch persists spans in a single transaction, keyed on
// (span_id, started_at). On conflict, the mutable fields named in the data
// model (ended_at, duration_ms, status, status_message, tokens_in,
// tokens_out, cost_usd, tool_output, completion_preview, events) are
// overwritten with the latest submission. Returns the number of rows
// written.
func (s *Store) UpsertBatch(ctx context.Context, spans []models.Span) (int, error) {
	if len(spans) == 0 {
		return 0, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, apperrors.NewStorageError("upsert_batch:begin", err)
	}
	defer tx.Rollback(ctx)

	written := 0
	for _, span := range spans {
		attributes, err := marshalJSON(span.Attributes)
		if err != nil {
			return written, apperrors.NewStorageError("upsert_batch:marshal_attributes", err)
		}
		events, err := marshalJSON(span.Events)
		if err != nil {
			return written, apperrors.NewStorageError("upsert_batch:marshal_events", err)
		}
		links, err := marshalJSON(span.Links)
		if err != nil {
			return written, apperrors.NewStorageError("upsert_batch:marshal_links", err)
		}

		tag, err := tx.Exec(ctx, upsertSpanSQL,
			span.ID, span.SpanID, span.TraceID, span.ParentSpanID,
			span.OperationName, span.ServiceName, string(span.SpanKind),
			span.StartedAt, span.EndedAt, span.DurationMs,
			string(span.Status), span.StatusMessage,
			span.ModelName, span.ModelProvider, span.TokensIn, span.TokensOut, span.TokensReasoning, span.CostUSD,
			span.ToolName, span.ToolInput, span.ToolOutput, span.ToolDurationMs,
			span.PromptPreview, span.CompletionPreview,
			attributes, events, links,
		)
		if err != nil {
			return written, apperrors.NewStorageError("upsert_batch:exec", err)
		}
		written += int(tag.RowsAffected())
	}

	if err := tx.Commit(ctx); err != nil {
		return written, apperrors.NewStorageError("upsert_batch:commit", err)
	}
	return written, nil
}

const upsertSpanSQL = `
INSERT INTO spans (
	id, span_id, trace_id, parent_span_id, operation_name, service_name, span_kind,
	started_at, ended_at, duration_ms, status, status_message,
	model_name, model_provider, tokens_in, tokens_out, tokens_reasoning, cost_usd,
	tool_name, tool_input, tool_output, tool_duration_ms,
	prompt_preview, completion_preview, attributes, events, links
) VALUES (
	$1, $2, $3, $4, $5, $6, $7,
	$8, $9, $10, $11, $12,
	$13, $14, $15, $16, $17, $18,
	$19, $20, $21, $22,
	$23, $24, $25, $26, $27
)
ON CONFLICT (span_id, started_at) DO UPDATE SET
	ended_at = EXCLUDED.ended_at,
	duration_ms = EXCLUDED.duration_ms,
	status = EXCLUDED.status,
	status_message = EXCLUDED.status_message,
	tokens_in = EXCLUDED.tokens_in,
	tokens_out = EXCLUDED.tokens_out,
	cost_usd = EXCLUDED.cost_usd,
	tool_output = EXCLUDED.tool_output,
	completion_preview = EXCLUDED.completion_preview,
	events = EXCLUDED.events
`

const spanColumns = `
	id, span_id, trace_id, parent_span_id, operation_name, service_name, span_kind,
	started_at, ended_at, duration_ms, status, status_message,
	model_name, model_provider, tokens_in, tokens_out, tokens_reasoning, cost_usd,
	tool_name, tool_input, tool_output, tool_duration_ms,
	prompt_preview, completion_preview, attributes, events, links
`

// GetByID fetches a single span by its span_id.
func (s *Store) GetByID(ctx context.Context, spanID string) (*models.Span, error) {
	row := s.pool.QueryRow(ctx, "SELECT "+spanColumns+" FROM spans WHERE span_id = $1 LIMIT 1", spanID)
	span, err := scanSpan(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.NewNotFoundError("span", spanID)
		}
		return nil, apperrors.NewStorageError("get_by_id", err)
	}
	return span, nil
}

// GetByTraceID returns every span in a trace, ordered by started_at
// ascending.
func (s *Store) GetByTraceID(ctx context.Context, traceID string) ([]models.Span, error) {
	rows, err := s.pool.Query(ctx, "SELECT "+spanColumns+" FROM spans WHERE trace_id = $1 ORDER BY started_at ASC", traceID)
	if err != nil {
		return nil, apperrors.NewStorageError("get_by_trace_id", err)
	}
	defer rows.Close()
	return scanSpans(rows)
}

// GetRecent returns the most recently started spans, newest first.
func (s *Store) GetRecent(ctx context.Context, limit int) ([]models.Span, error) {
	rows, err := s.pool.Query(ctx, "SELECT "+spanColumns+" FROM spans ORDER BY started_at DESC LIMIT $1", limit)
	if err != nil {
		return nil, apperrors.NewStorageError("get_recent", err)
	}
	defer rows.Close()
	return scanSpans(rows)
}

// SearchFilters are the scalar/range/free-text filters accepted by Search
// and AdvancedSearch. Zero values mean "no constraint".
type SearchFilters struct {
	Query         string // ILIKE against operation_name/prompt_preview/completion_preview
	ServiceName   string
	ModelName     string
	Status        string
	MinDurationMs *int64
	MaxDurationMs *int64
	MinCostUSD    *float64
	MaxCostUSD    *float64
	StartedAfter  *time.Time
	StartedBefore *time.Time
	SortBy        string // column name; defaults to started_at
	SortDesc      bool
	Limit         int
	Offset        int
}

// Search runs a filtered, paginated span query built entirely from
// parameter placeholders.
func (s *Store) Search(ctx context.Context, f SearchFilters) ([]models.Span, error) {
	query, args := buildSearchQuery(f)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewStorageError("search", err)
	}
	defer rows.Close()
	return scanSpans(rows)
}

// AdvancedSearch runs Search once per filter in filters and concatenates
// the results in filter order. Each filter's Limit and Offset apply to its
// own query only, and a span matching more than one filter appears once per
// matching filter.
func (s *Store) AdvancedSearch(ctx context.Context, filters []SearchFilters) ([]models.Span, error) {
	var all []models.Span
	for _, f := range filters {
		spans, err := s.Search(ctx, f)
		if err != nil {
			return nil, err
		}
		all = append(all, spans...)
	}
	return all, nil
}

func buildSearchQuery(f SearchFilters) (string, []any) {
	var sb strings.Builder
	sb.WriteString("SELECT " + spanColumns + " FROM spans WHERE 1=1")
	var args []any

	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.Query != "" {
		like := "%" + f.Query + "%"
		sb.WriteString(fmt.Sprintf(" AND (operation_name ILIKE %s OR prompt_preview ILIKE %s OR completion_preview ILIKE %s)",
			arg(like), arg(like), arg(like)))
	}
	if f.ServiceName != "" {
		sb.WriteString(fmt.Sprintf(" AND service_name = %s", arg(f.ServiceName)))
	}
	if f.ModelName != "" {
		sb.WriteString(fmt.Sprintf(" AND model_name = %s", arg(f.ModelName)))
	}
	if f.Status != "" {
		sb.WriteString(fmt.Sprintf(" AND status = %s", arg(f.Status)))
	}
	if f.MinDurationMs != nil {
		sb.WriteString(fmt.Sprintf(" AND duration_ms >= %s", arg(*f.MinDurationMs)))
	}
	if f.MaxDurationMs != nil {
		sb.WriteString(fmt.Sprintf(" AND duration_ms <= %s", arg(*f.MaxDurationMs)))
	}
	if f.MinCostUSD != nil {
		sb.WriteString(fmt.Sprintf(" AND cost_usd >= %s", arg(*f.MinCostUSD)))
	}
	if f.MaxCostUSD != nil {
		sb.WriteString(fmt.Sprintf(" AND cost_usd <= %s", arg(*f.MaxCostUSD)))
	}
	if f.StartedAfter != nil {
		sb.WriteString(fmt.Sprintf(" AND started_at >= %s", arg(*f.StartedAfter)))
	}
	if f.StartedBefore != nil {
		sb.WriteString(fmt.Sprintf(" AND started_at <= %s", arg(*f.StartedBefore)))
	}

	sortColumn := "started_at"
	if validSortColumns[f.SortBy] {
		sortColumn = f.SortBy
	}
	direction := "ASC"
	if f.SortDesc {
		direction = "DESC"
	}
	sb.WriteString(fmt.Sprintf(" ORDER BY %s %s", sortColumn, direction))

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	sb.WriteString(fmt.Sprintf(" LIMIT %s OFFSET %s", arg(limit), arg(f.Offset)))

	return sb.String(), args
}

// validSortColumns is a closed set, preventing sort-by injection via column
// name even though the value is never string-interpolated from request
// bodies into a WHERE clause (only into this allow-listed identifier spot).
var validSortColumns = map[string]bool{
	"started_at":  true,
	"duration_ms": true,
	"cost_usd":    true,
}

// TraceSummary is one row of the list_traces rollup.
type TraceSummary struct {
	TraceID    string
	SpanCount  int64
	ErrorCount int64
	TotalTokens int64
	TotalCost  float64
	StartedAt  time.Time
}

// ListTraces aggregates root spans (parent_span_id IS NULL) joined to a
// per-trace rollup of span count, error count, total tokens, and total
// cost, newest trace first, at most limit rows. The filters in f are not
// applied to the query.
func (s *Store) ListTraces(ctx context.Context, f SearchFilters, limit int) ([]TraceSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT
			r.trace_id,
			COUNT(child.span_id) AS span_count,
			COUNT(child.span_id) FILTER (WHERE child.status = 'error') AS error_count,
			COALESCE(SUM(COALESCE(child.tokens_in, 0) + COALESCE(child.tokens_out, 0) + COALESCE(child.tokens_reasoning, 0)), 0) AS total_tokens,
			COALESCE(SUM(COALESCE(child.cost_usd, 0)), 0) AS total_cost,
			r.started_at
		FROM spans r
		JOIN spans child ON child.trace_id = r.trace_id
		WHERE r.parent_span_id IS NULL
		GROUP BY r.trace_id, r.started_at
		ORDER BY r.started_at DESC
		LIMIT $1
	`
	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, apperrors.NewStorageError("list_traces", err)
	}
	defer rows.Close()

	var summaries []TraceSummary
	for rows.Next() {
		var t TraceSummary
		if err := rows.Scan(&t.TraceID, &t.SpanCount, &t.ErrorCount, &t.TotalTokens, &t.TotalCost, &t.StartedAt); err != nil {
			return nil, apperrors.NewStorageError("list_traces:scan", err)
		}
		summaries = append(summaries, t)
	}
	return summaries, rows.Err()
}

func marshalJSON(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSpan(row rowScanner) (*models.Span, error) {
	var span models.Span
	var spanKind, status string
	var attributes, events, links []byte

	err := row.Scan(
		&span.ID, &span.SpanID, &span.TraceID, &span.ParentSpanID,
		&span.OperationName, &span.ServiceName, &spanKind,
		&span.StartedAt, &span.EndedAt, &span.DurationMs,
		&status, &span.StatusMessage,
		&span.ModelName, &span.ModelProvider, &span.TokensIn, &span.TokensOut, &span.TokensReasoning, &span.CostUSD,
		&span.ToolName, &span.ToolInput, &span.ToolOutput, &span.ToolDurationMs,
		&span.PromptPreview, &span.CompletionPreview,
		&attributes, &events, &links,
	)
	if err != nil {
		return nil, err
	}
	span.SpanKind = models.SpanKind(spanKind)
	span.Status = models.SpanStatus(status)
	if attributes != nil {
		_ = json.Unmarshal(attributes, &span.Attributes)
	}
	if events != nil {
		_ = json.Unmarshal(events, &span.Events)
	}
	if links != nil {
		_ = json.Unmarshal(links, &span.Links)
	}
	return &span, nil
}

func scanSpans(rows pgx.Rows) ([]models.Span, error) {
	var spans []models.Span
	for rows.Next() {
		span, err := scanSpan(rows)
		if err != nil {
			return nil, err
		}
		spans = append(spans, *span)
	}
	return spans, rows.Err()
}
