// Package models defines the entities ingested, persisted, and alerted on
// by the collector: spans, alert rules, alert events and their supporting
// value types.
package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// SpanStatus is the terminal status of a span.
type SpanStatus string

const (
	SpanStatusOK    SpanStatus = "ok"
	SpanStatusError SpanStatus = "error"
	SpanStatusUnset SpanStatus = "unset"
)

// SpanKind classifies a span's role in a distributed call.
type SpanKind string

const (
	SpanKindInternal SpanKind = "internal"
	SpanKindClient   SpanKind = "client"
	SpanKindServer   SpanKind = "server"
	SpanKindProducer SpanKind = "producer"
	SpanKindConsumer SpanKind = "consumer"
)

// previewMaxLen is the truncation point for prompt/completion previews
// before the ellipsis marker is appended.
const previewMaxLen = 500

// SpanEvent is a timestamped annotation attached to a span.
type SpanEvent struct {
	Name       string         `json:"name"`
	Timestamp  time.Time      `json:"timestamp"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// SpanLink references another span, e.g. a followed-from or followed-by
// relationship across traces.
type SpanLink struct {
	TraceID    string         `json:"trace_id"`
	SpanID     string         `json:"span_id"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// Span is the unit of observation ingested by the collector.
type Span struct {
	ID            uuid.UUID  `json:"id"`
	SpanID        string     `json:"span_id"`
	TraceID       string     `json:"trace_id"`
	ParentSpanID  *string    `json:"parent_span_id,omitempty"`
	OperationName string     `json:"operation_name"`
	ServiceName   string     `json:"service_name"`
	SpanKind      SpanKind   `json:"span_kind"`
	StartedAt     time.Time  `json:"started_at"`
	EndedAt       *time.Time `json:"ended_at,omitempty"`
	DurationMs    *int64     `json:"duration_ms,omitempty"`
	Status        SpanStatus `json:"status"`
	StatusMessage *string    `json:"status_message,omitempty"`

	// LLM fields.
	ModelName       *string  `json:"model_name,omitempty"`
	ModelProvider   *string  `json:"model_provider,omitempty"`
	TokensIn        *int64   `json:"tokens_in,omitempty"`
	TokensOut       *int64   `json:"tokens_out,omitempty"`
	TokensReasoning *int64   `json:"tokens_reasoning,omitempty"`
	CostUSD         *float64 `json:"cost_usd,omitempty"`

	// Tool fields.
	ToolName       *string `json:"tool_name,omitempty"`
	ToolInput      *string `json:"tool_input,omitempty"`
	ToolOutput     *string `json:"tool_output,omitempty"`
	ToolDurationMs *int64  `json:"tool_duration_ms,omitempty"`

	PromptPreview     *string `json:"prompt_preview,omitempty"`
	CompletionPreview *string `json:"completion_preview,omitempty"`

	Attributes map[string]any `json:"attributes,omitempty"`
	Events     []SpanEvent    `json:"events,omitempty"`
	Links      []SpanLink     `json:"links,omitempty"`
}

// SpanInput is the client-supplied shape for creating a span. It excludes
// the internal id and derived fields (duration, cost) so a caller can never
// forge them.
type SpanInput struct {
	SpanID            string         `json:"span_id"`
	TraceID           string         `json:"trace_id"`
	ParentSpanID      *string        `json:"parent_span_id,omitempty"`
	OperationName     string         `json:"operation_name"`
	ServiceName       string         `json:"service_name"`
	SpanKind          SpanKind       `json:"span_kind"`
	StartedAt         time.Time      `json:"started_at"`
	EndedAt           *time.Time     `json:"ended_at,omitempty"`
	Status            SpanStatus     `json:"status"`
	StatusMessage     *string        `json:"status_message,omitempty"`
	ModelName         *string        `json:"model_name,omitempty"`
	ModelProvider     *string        `json:"model_provider,omitempty"`
	TokensIn          *int64         `json:"tokens_in,omitempty"`
	TokensOut         *int64         `json:"tokens_out,omitempty"`
	TokensReasoning   *int64         `json:"tokens_reasoning,omitempty"`
	ToolName          *string        `json:"tool_name,omitempty"`
	ToolInput         *string        `json:"tool_input,omitempty"`
	ToolOutput        *string        `json:"tool_output,omitempty"`
	ToolDurationMs    *int64         `json:"tool_duration_ms,omitempty"`
	PromptPreview     *string        `json:"prompt_preview,omitempty"`
	CompletionPreview *string        `json:"completion_preview,omitempty"`
	Attributes        map[string]any `json:"attributes,omitempty"`
	Events            []SpanEvent    `json:"events,omitempty"`
	Links             []SpanLink     `json:"links,omitempty"`
}

// ToSpan builds a persistable Span from a client-supplied input, assigning a
// fresh internal id. Status defaults to SpanStatusUnset and SpanKind to
// SpanKindInternal when left zero-valued, matching the source's defaults.
func (in SpanInput) ToSpan() Span {
	status := in.Status
	if status == "" {
		status = SpanStatusUnset
	}
	kind := in.SpanKind
	if kind == "" {
		kind = SpanKindInternal
	}
	return Span{
		ID:                uuid.New(),
		SpanID:            in.SpanID,
		TraceID:           in.TraceID,
		ParentSpanID:      in.ParentSpanID,
		OperationName:     in.OperationName,
		ServiceName:       in.ServiceName,
		SpanKind:          kind,
		StartedAt:         in.StartedAt,
		EndedAt:           in.EndedAt,
		Status:            status,
		StatusMessage:     in.StatusMessage,
		ModelName:         in.ModelName,
		ModelProvider:     in.ModelProvider,
		TokensIn:          in.TokensIn,
		TokensOut:         in.TokensOut,
		TokensReasoning:   in.TokensReasoning,
		ToolName:          in.ToolName,
		ToolInput:         in.ToolInput,
		ToolOutput:        in.ToolOutput,
		ToolDurationMs:    in.ToolDurationMs,
		PromptPreview:     in.PromptPreview,
		CompletionPreview: in.CompletionPreview,
		Attributes:        in.Attributes,
		Events:            in.Events,
		Links:             in.Links,
	}
}

// IsLLMCall reports whether the span carries LLM metadata.
func (s *Span) IsLLMCall() bool {
	return s.ModelName != nil && *s.ModelName != ""
}

// IsToolCall reports whether the span carries tool-invocation metadata.
func (s *Span) IsToolCall() bool {
	return s.ToolName != nil && *s.ToolName != ""
}

// TotalTokens sums input, output and reasoning tokens, treating absent
// counters as zero.
func (s *Span) TotalTokens() int64 {
	var total int64
	if s.TokensIn != nil {
		total += *s.TokensIn
	}
	if s.TokensOut != nil {
		total += *s.TokensOut
	}
	if s.TokensReasoning != nil {
		total += *s.TokensReasoning
	}
	return total
}

// CalculateDuration derives DurationMs from StartedAt/EndedAt at
// integer-millisecond resolution, matching the source's rounding (a
// sub-millisecond span rounds to 0). No-op when EndedAt is unset.
func (s *Span) CalculateDuration() {
	if s.EndedAt == nil {
		return
	}
	ms := s.EndedAt.Sub(s.StartedAt).Milliseconds()
	s.DurationMs = &ms
}

// TruncatePreviews truncates PromptPreview/CompletionPreview to 500
// characters, appending "..." when truncation occurs. Previews of at most
// 500 characters are left untouched; re-truncating an already-truncated
// preview (503 characters) keeps the same first 500 characters plus "...",
// so truncation is a fixed point under repeated application.
func (s *Span) TruncatePreviews() {
	s.PromptPreview = truncatePreview(s.PromptPreview)
	s.CompletionPreview = truncatePreview(s.CompletionPreview)
}

func truncatePreview(p *string) *string {
	if p == nil {
		return nil
	}
	runes := []rune(*p)
	if len(runes) <= previewMaxLen {
		return p
	}
	truncated := string(runes[:previewMaxLen]) + "..."
	return &truncated
}

// NormalizeServiceName defaults an empty service name to "unknown".
func (s *Span) NormalizeServiceName() {
	if strings.TrimSpace(s.ServiceName) == "" {
		s.ServiceName = "unknown"
	}
}
