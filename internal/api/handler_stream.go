package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/agenttrace/agenttrace/internal/pubsub"
)

// streamKeepAlive is the interval at which a comment line is written to
// keep intermediate proxies from closing an idle connection.
const streamKeepAlive = 30 * time.Second

// streamHandler handles GET /api/v1/stream, a Server-Sent Events endpoint
// delivering live spans. ?channel=spans (default), "llm", or
// "trace:<trace_id>" selects the topical channel; channel=trace&trace_id=...
// also selects the per-trace channel.
func (s *Server) streamHandler(c *echo.Context) error {
	if s.subscriber == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "streaming is not available")
	}

	channel := pubsub.GlobalChannel
	switch q := c.QueryParam("channel"); q {
	case "llm":
		channel = pubsub.LLMChannel
	case "trace":
		if traceID := c.QueryParam("trace_id"); traceID != "" {
			channel = pubsub.TraceChannel(traceID)
		}
	default:
		if traceID, ok := strings.CutPrefix(q, "trace:"); ok && traceID != "" {
			channel = pubsub.TraceChannel(traceID)
		}
	}

	req := c.Request()
	resp := c.Response()
	resp.Header().Set("Content-Type", "text/event-stream")
	resp.Header().Set("Cache-Control", "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.WriteHeader(http.StatusOK)

	source := s.subscriber(req.Context(), channel)
	defer source.close()

	ticker := time.NewTicker(streamKeepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-req.Context().Done():
			return nil
		case payload, ok := <-source.messages:
			if !ok {
				return nil
			}
			if _, err := fmt.Fprintf(resp, "data: %s\n\n", payload); err != nil {
				return nil
			}
			resp.Flush()
		case <-ticker.C:
			if _, err := fmt.Fprint(resp, ": keep-alive\n\n"); err != nil {
				return nil
			}
			resp.Flush()
		}
	}
}
