package pubsub

import (
	"testing"

	"github.com/agenttrace/agenttrace/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestTraceChannelNaming(t *testing.T) {
	assert.Equal(t, "trace:T1", TraceChannel("T1"))
}

func TestWireNamePrefixesChannel(t *testing.T) {
	assert.Equal(t, "agenttrace:spans", wireName(GlobalChannel))
	assert.Equal(t, "agenttrace:llm", wireName(LLMChannel))
	assert.Equal(t, "agenttrace:trace:T1", wireName(TraceChannel("T1")))
}

func TestSubscriberDeliverDropsOldestOnOverflow(t *testing.T) {
	s := &Subscriber{out: make(chan []byte, 2), done: make(chan struct{})}
	s.deliver([]byte("1"))
	s.deliver([]byte("2"))
	s.deliver([]byte("3")) // buffer full, drops "1"

	first := <-s.out
	second := <-s.out
	assert.Equal(t, "2", string(first))
	assert.Equal(t, "3", string(second))
}

func TestSubscriberDeliverWithinCapacityKeepsOrder(t *testing.T) {
	s := &Subscriber{out: make(chan []byte, 4), done: make(chan struct{})}
	s.deliver([]byte("a"))
	s.deliver([]byte("b"))
	assert.Equal(t, "a", string(<-s.out))
	assert.Equal(t, "b", string(<-s.out))
}

func TestChannelsForSpanLLMFanOut(t *testing.T) {
	model := "gpt-4o"
	span := &models.Span{TraceID: "T1", ModelName: &model}
	channels := channelsForSpan(span)
	assert.ElementsMatch(t, []string{GlobalChannel, "trace:T1", LLMChannel}, channels)
}

func TestChannelsForSpanNonLLMSkipsLLMChannel(t *testing.T) {
	span := &models.Span{TraceID: "T1"}
	channels := channelsForSpan(span)
	assert.ElementsMatch(t, []string{GlobalChannel, "trace:T1"}, channels)
	assert.NotContains(t, channels, LLMChannel)
}

func TestChannelsForSpanDifferentTraceIsolated(t *testing.T) {
	span := &models.Span{TraceID: "T1"}
	channels := channelsForSpan(span)
	assert.NotContains(t, channels, "trace:T2")
}
