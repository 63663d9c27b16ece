package api

import (
	"net/http"
	"strconv"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/agenttrace/agenttrace/internal/apperrors"
	"github.com/agenttrace/agenttrace/internal/models"
)

// createSpanHandler handles POST /api/v1/spans: a single span is validated,
// handed to the ingestion pipeline, and acknowledged immediately. Batch
// enrichment/persistence happens asynchronously; the response confirms
// acceptance, not durability.
func (s *Server) createSpanHandler(c *echo.Context) error {
	var in models.SpanInput
	if err := c.Bind(&in); err != nil {
		return mapError(apperrors.NewValidationError("body", "invalid request body"))
	}
	if err := validateSpanInput(in); err != nil {
		return mapError(err)
	}

	span := in.ToSpan()
	if err := s.pipeline.Submit(c.Request().Context(), span); err != nil {
		return mapError(apperrors.NewInternalError(err))
	}
	return c.JSON(http.StatusAccepted, map[string]string{"span_id": span.SpanID, "id": span.ID.String()})
}

// createSpanBatchHandler handles POST /api/v1/spans/batch: a JSON array of
// span inputs, each submitted to the pipeline independently.
func (s *Server) createSpanBatchHandler(c *echo.Context) error {
	var in []models.SpanInput
	if err := c.Bind(&in); err != nil {
		return mapError(apperrors.NewValidationError("body", "invalid request body"))
	}
	accepted := make([]string, 0, len(in))
	for _, item := range in {
		if err := validateSpanInput(item); err != nil {
			return mapError(err)
		}
		span := item.ToSpan()
		if err := s.pipeline.Submit(c.Request().Context(), span); err != nil {
			return mapError(apperrors.NewInternalError(err))
		}
		accepted = append(accepted, span.SpanID)
	}
	return c.JSON(http.StatusAccepted, map[string]any{"accepted": accepted, "count": len(accepted)})
}

func validateSpanInput(in models.SpanInput) error {
	if in.SpanID == "" {
		return apperrors.NewValidationError("span_id", "span_id is required")
	}
	if in.TraceID == "" {
		return apperrors.NewValidationError("trace_id", "trace_id is required")
	}
	if in.OperationName == "" {
		return apperrors.NewValidationError("operation_name", "operation_name is required")
	}
	if in.StartedAt.IsZero() {
		return apperrors.NewValidationError("started_at", "started_at is required")
	}
	return nil
}

// getSpanHandler handles GET /api/v1/spans/:span_id.
func (s *Server) getSpanHandler(c *echo.Context) error {
	span, err := s.store.GetByID(c.Request().Context(), c.Param("span_id"))
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, span)
}

// getTraceHandler handles GET /api/v1/traces/:trace_id, returning every
// span belonging to the trace in start order.
func (s *Server) getTraceHandler(c *echo.Context) error {
	spans, err := s.store.GetByTraceID(c.Request().Context(), c.Param("trace_id"))
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, spans)
}

// listTracesHandler handles GET /api/v1/traces, returning a rollup of the
// most recent traces, at most ?limit= of them (default 50).
func (s *Server) listTracesHandler(c *echo.Context) error {
	limit := queryInt(c, "limit", 50)
	summaries, err := s.store.ListTraces(c.Request().Context(), buildSearchFiltersFromQuery(c), limit)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, summaries)
}

func queryInt(c *echo.Context, name string, def int) int {
	v := c.QueryParam(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func queryFloatPtr(c *echo.Context, name string) *float64 {
	v := c.QueryParam(name)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil
	}
	return &f
}

func queryInt64Ptr(c *echo.Context, name string) *int64 {
	v := c.QueryParam(name)
	if v == "" {
		return nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return nil
	}
	return &n
}

func queryTimePtr(c *echo.Context, name string) *time.Time {
	v := c.QueryParam(name)
	if v == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil
	}
	return &t
}
