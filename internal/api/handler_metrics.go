package api

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/agenttrace/agenttrace/internal/storage"
)

// defaultMetricsWindow is used when a request omits start/end bounds.
const defaultMetricsWindow = time.Hour

// metricsSummaryCacheTTL bounds how stale a cached summary can be before
// the next request recomputes it from storage.
const metricsSummaryCacheTTL = 10 * time.Second

func metricsSummaryCacheKey(scope storage.MetricScope) string {
	service := ""
	if scope.ServiceName != nil {
		service = *scope.ServiceName
	}
	model := ""
	if scope.ModelName != nil {
		model = *scope.ModelName
	}
	h := sha1.Sum([]byte(fmt.Sprintf("%s|%s|%d|%d", service, model, scope.Start.Unix(), scope.End.Unix())))
	return "metrics-summary:" + hex.EncodeToString(h[:])
}

func buildMetricScope(c *echo.Context) storage.MetricScope {
	now := time.Now().UTC()
	start := now.Add(-defaultMetricsWindow)
	if t := queryTimePtr(c, "start"); t != nil {
		start = *t
	}
	end := now
	if t := queryTimePtr(c, "end"); t != nil {
		end = *t
	}

	var serviceName, modelName *string
	if v := c.QueryParam("service_name"); v != "" {
		serviceName = &v
	}
	if v := c.QueryParam("model_name"); v != "" {
		modelName = &v
	}

	return storage.MetricScope{ServiceName: serviceName, ModelName: modelName, Start: start, End: end}
}

// metricsSummaryHandler handles GET /api/v1/metrics/summary, serving a
// cached copy when the window and service/model filters match a recent request — p50/p95/p99
// latency percentiles are expensive to recompute on every poll.
func (s *Server) metricsSummaryHandler(c *echo.Context) error {
	ctx := c.Request().Context()
	scope := buildMetricScope(c)

	var summary storage.MetricsSummary
	if s.cache != nil {
		if hit, err := s.cache.GetSnapshot(ctx, metricsSummaryCacheKey(scope), &summary); err == nil && hit {
			return c.JSON(http.StatusOK, summary)
		}
	}

	summary, err := s.store.MetricsSummary(ctx, scope)
	if err != nil {
		return mapError(err)
	}
	if s.cache != nil {
		_ = s.cache.SetSnapshot(ctx, metricsSummaryCacheKey(scope), summary, metricsSummaryCacheTTL)
	}
	return c.JSON(http.StatusOK, summary)
}

// costByGroupHandler handles GET /api/v1/metrics/cost-by-group?group=model|service|operation.
func (s *Server) costByGroupHandler(c *echo.Context) error {
	group := storage.GroupBy(c.QueryParam("group"))
	if group == "" {
		group = storage.GroupByModel
	}
	rows, err := s.store.CostByGroup(c.Request().Context(), buildMetricScope(c), group)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, rows)
}

// latencyOverTimeHandler handles GET /api/v1/metrics/latency-over-time.
func (s *Server) latencyOverTimeHandler(c *echo.Context) error {
	buckets, err := s.store.LatencyOverTime(c.Request().Context(), buildMetricScope(c))
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, buckets)
}

// errorsOverTimeHandler handles GET /api/v1/metrics/errors-over-time.
func (s *Server) errorsOverTimeHandler(c *echo.Context) error {
	buckets, err := s.store.ErrorsOverTime(c.Request().Context(), buildMetricScope(c))
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, buckets)
}
