// Package api exposes the collector's HTTP surface with Echo v5: span
// ingestion, trace/search/metrics read endpoints, alert rule management,
// and a streaming endpoint for live spans.
package api

import (
	"context"
	"net"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/agenttrace/agenttrace/internal/alerting"
	"github.com/agenttrace/agenttrace/internal/pipeline"
	"github.com/agenttrace/agenttrace/internal/pubsub"
	"github.com/agenttrace/agenttrace/internal/storage"
	"github.com/agenttrace/agenttrace/internal/version"
)

// maxIngestBodySize bounds the body of every request (the limit is applied
// to all routes), rejecting oversized payloads at the HTTP layer before JSON
// decoding.
const maxIngestBodySize = 2 * 1024 * 1024

// Server is the collector's HTTP API server.
type Server struct {
	echo       *echo.Echo
	httpServer *http.Server

	store      *storage.Store
	pipeline   *pipeline.Pipeline
	redis      *pubsub.Publisher
	cache      *pubsub.Cache
	subscriber func(ctx context.Context, channel string) *streamSource
	evaluator  *alerting.Evaluator
}

// streamSource abstracts the pubsub.Subscriber so the streaming handler
// doesn't depend on a concrete Redis client directly.
type streamSource struct {
	messages <-chan []byte
	close    func() error
}

// NewServer wires the HTTP surface over the given storage, ingestion
// pipeline, pubsub client and alert evaluator. redisClient may be nil, in
// which case the streaming endpoint responds 503.
func NewServer(store *storage.Store, pl *pipeline.Pipeline, redisClient *redis.Client, evaluator *alerting.Evaluator) *Server {
	e := echo.New()
	s := &Server{
		echo:      e,
		store:     store,
		pipeline:  pl,
		evaluator: evaluator,
	}
	if redisClient != nil {
		s.redis = pubsub.NewPublisher(redisClient)
		s.cache = pubsub.NewCache(redisClient)
		s.subscriber = func(ctx context.Context, channel string) *streamSource {
			sub := pubsub.Subscribe(ctx, redisClient, channel)
			return &streamSource{messages: sub.Messages(), close: sub.Close}
		}
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.echo.Use(middleware.BodyLimit(maxIngestBodySize))
	s.echo.Use(middleware.Recover())

	s.echo.GET("/health", s.healthHandler)

	v1 := s.echo.Group("/api/v1")

	v1.POST("/spans", s.createSpanHandler)
	v1.POST("/spans/batch", s.createSpanBatchHandler)
	v1.GET("/spans/:span_id", s.getSpanHandler)
	v1.GET("/traces/:trace_id", s.getTraceHandler)
	v1.GET("/traces", s.listTracesHandler)
	v1.GET("/search", s.searchHandler)

	v1.GET("/metrics/summary", s.metricsSummaryHandler)
	v1.GET("/metrics/cost-by-group", s.costByGroupHandler)
	v1.GET("/metrics/latency-over-time", s.latencyOverTimeHandler)
	v1.GET("/metrics/errors-over-time", s.errorsOverTimeHandler)

	v1.GET("/alerts/rules", s.listAlertRulesHandler)
	v1.POST("/alerts/rules", s.createAlertRuleHandler)
	v1.GET("/alerts/rules/:id", s.getAlertRuleHandler)
	v1.PUT("/alerts/rules/:id", s.updateAlertRuleHandler)
	v1.DELETE("/alerts/rules/:id", s.deleteAlertRuleHandler)
	v1.POST("/alerts/rules/:id/test", s.testAlertRuleHandler)
	v1.GET("/alerts/events", s.listAlertEventsHandler)
	v1.POST("/alerts/events/:id/acknowledge", s.acknowledgeAlertEventHandler)

	v1.GET("/stream", s.streamHandler)
}

// Start starts the HTTP server on addr (blocking).
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.echo}
	return s.httpServer.ListenAndServe()
}

// StartWithListener starts the HTTP server on a pre-created listener, such
// as one bound to a random OS-assigned port.
func (s *Server) StartWithListener(ln net.Listener) error {
	s.httpServer = &http.Server{Handler: s.echo}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) healthHandler(c *echo.Context) error {
	reqCtx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := s.store.Pool().Ping(reqCtx); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"status":  "unhealthy",
			"error":   err.Error(),
			"version": version.Full(),
		})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "healthy", "version": version.Full()})
}
