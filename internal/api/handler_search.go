package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/agenttrace/agenttrace/internal/storage"
)

// searchHandler handles GET /api/v1/search, translating query-string
// filters into a storage.SearchFilters.
func (s *Server) searchHandler(c *echo.Context) error {
	f := buildSearchFiltersFromQuery(c)
	spans, err := s.store.Search(c.Request().Context(), f)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, spans)
}

func buildSearchFiltersFromQuery(c *echo.Context) storage.SearchFilters {
	return storage.SearchFilters{
		Query:         c.QueryParam("q"),
		ServiceName:   c.QueryParam("service_name"),
		ModelName:     c.QueryParam("model_name"),
		Status:        c.QueryParam("status"),
		MinDurationMs: queryInt64Ptr(c, "min_duration_ms"),
		MaxDurationMs: queryInt64Ptr(c, "max_duration_ms"),
		MinCostUSD:    queryFloatPtr(c, "min_cost_usd"),
		MaxCostUSD:    queryFloatPtr(c, "max_cost_usd"),
		StartedAfter:  queryTimePtr(c, "started_after"),
		StartedBefore: queryTimePtr(c, "started_before"),
		SortBy:        c.QueryParam("sort_by"),
		SortDesc:      c.QueryParam("sort_dir") == "desc",
		Limit:         queryInt(c, "limit", 100),
		Offset:        queryInt(c, "offset", 0),
	}
}
