package models

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCalculateDuration(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(1500 * time.Millisecond)
	s := Span{StartedAt: start, EndedAt: &end}
	s.CalculateDuration()
	assert.NotNil(t, s.DurationMs)
	assert.Equal(t, int64(1500), *s.DurationMs)
	assert.GreaterOrEqual(t, *s.DurationMs, int64(0))
}

func TestCalculateDurationSubMillisecondRoundsToZero(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(400 * time.Microsecond)
	s := Span{StartedAt: start, EndedAt: &end}
	s.CalculateDuration()
	assert.Equal(t, int64(0), *s.DurationMs)
}

func TestCalculateDurationNoEndedAt(t *testing.T) {
	s := Span{StartedAt: time.Now()}
	s.CalculateDuration()
	assert.Nil(t, s.DurationMs)
}

func TestTruncatePreviewsLength503(t *testing.T) {
	long := strings.Repeat("a", 1000)
	s := Span{PromptPreview: &long}
	s.TruncatePreviews()
	assert.Equal(t, 503, len(*s.PromptPreview))
	assert.True(t, strings.HasSuffix(*s.PromptPreview, "..."))
}

func TestTruncatePreviewsFixedPoint(t *testing.T) {
	long := strings.Repeat("b", 1000)
	s := Span{PromptPreview: &long}
	s.TruncatePreviews()
	first := *s.PromptPreview
	s.TruncatePreviews()
	assert.Equal(t, first, *s.PromptPreview)
}

func TestTruncatePreviewsShortUntouched(t *testing.T) {
	short := "hello"
	s := Span{PromptPreview: &short}
	s.TruncatePreviews()
	assert.Equal(t, "hello", *s.PromptPreview)
}

func TestNormalizeServiceNameDefaultsToUnknown(t *testing.T) {
	s := Span{ServiceName: ""}
	s.NormalizeServiceName()
	assert.Equal(t, "unknown", s.ServiceName)

	s2 := Span{ServiceName: "checkout"}
	s2.NormalizeServiceName()
	assert.Equal(t, "checkout", s2.ServiceName)
}

func TestIsLLMCallAndIsToolCall(t *testing.T) {
	model := "gpt-4o"
	s := Span{ModelName: &model}
	assert.True(t, s.IsLLMCall())
	assert.False(t, s.IsToolCall())

	tool := "search"
	s2 := Span{ToolName: &tool}
	assert.False(t, s2.IsLLMCall())
	assert.True(t, s2.IsToolCall())
}

func TestTotalTokens(t *testing.T) {
	in, out, reasoning := int64(10), int64(20), int64(5)
	s := Span{TokensIn: &in, TokensOut: &out, TokensReasoning: &reasoning}
	assert.Equal(t, int64(35), s.TotalTokens())

	var empty Span
	assert.Equal(t, int64(0), empty.TotalTokens())
}

func TestSpanInputToSpanDefaults(t *testing.T) {
	in := SpanInput{SpanID: "abc", TraceID: "t1", StartedAt: time.Now()}
	s := in.ToSpan()
	assert.Equal(t, SpanStatusUnset, s.Status)
	assert.Equal(t, SpanKindInternal, s.SpanKind)
	assert.NotEqual(t, "", s.ID.String())
}
