// Package pubsub fans out ingested spans to topical subscribers over
// Redis: a global "spans" channel, a per-trace "trace:<trace_id>" channel,
// and an "llm" channel for LLM-only spans. Subscriber delivery is
// best-effort and bounded: a slow reader drops the oldest buffered payload
// rather than back-pressuring the publisher.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/agenttrace/agenttrace/internal/apperrors"
	"github.com/agenttrace/agenttrace/internal/models"
	"github.com/redis/go-redis/v9"
)

const (
	// channelPrefix namespaces wire channel names on the Redis bus, matching
	// the upstream "agenttrace:" prefix convention.
	channelPrefix = "agenttrace:"

	// GlobalChannel receives every published span.
	GlobalChannel = "spans"
	// LLMChannel receives only LLM spans.
	LLMChannel = "llm"

	// subscriberBufferSize bounds the per-subscriber delivery buffer;
	// overflow drops the oldest buffered payload.
	subscriberBufferSize = 100
)

// TraceChannel returns the per-trace wire channel name for traceID.
func TraceChannel(traceID string) string {
	return fmt.Sprintf("trace:%s", traceID)
}

// channelsForSpan returns the set of topical channels span is routed to:
// always the global channel and the span's own trace channel, plus the
// LLM-only channel when the span carries model metadata.
func channelsForSpan(span *models.Span) []string {
	channels := []string{GlobalChannel, TraceChannel(span.TraceID)}
	if span.IsLLMCall() {
		channels = append(channels, LLMChannel)
	}
	return channels
}

func wireName(channel string) string {
	return channelPrefix + channel
}

// Publisher publishes span payloads to the topical Redis channels defined
// by spec: "spans", "trace:<trace_id>", and "llm" for LLM spans.
type Publisher struct {
	client *redis.Client
}

// NewPublisher wraps a Redis client for span publication.
func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client}
}

// PublishResult reports the outcome of one channel's publish attempt.
type PublishResult struct {
	Channel string
	Err     error
}

// PublishSpan serializes span once and publishes it to every channel it is
// routed to. Each channel's publish is attempted independently: a failure
// on one channel does not prevent the others from being attempted. Results
// are returned for the caller to log; a publish failure never blocks or
// fails ingestion.
func (p *Publisher) PublishSpan(ctx context.Context, span *models.Span) []PublishResult {
	payload, err := json.Marshal(span)
	if err != nil {
		return []PublishResult{{Channel: GlobalChannel, Err: apperrors.NewPubSubError("marshal", err)}}
	}

	channels := channelsForSpan(span)

	results := make([]PublishResult, 0, len(channels))
	for _, channel := range channels {
		if err := p.client.Publish(ctx, wireName(channel), payload).Err(); err != nil {
			results = append(results, PublishResult{Channel: channel, Err: apperrors.NewPubSubError("publish:"+channel, err)})
			continue
		}
		results = append(results, PublishResult{Channel: channel})
	}
	return results
}

// Subscriber exposes a bounded, best-effort stream of raw span payloads for
// one wire channel.
type Subscriber struct {
	pubsub *redis.PubSub
	out    chan []byte
	done   chan struct{}
}

// Subscribe opens a subscription on channel ("spans", "llm", or
// "trace:<id>") and returns a Subscriber whose Messages channel delivers
// raw JSON payloads with a bounded, drop-oldest buffer. Call Close when the
// consumer is done.
func Subscribe(ctx context.Context, client *redis.Client, channel string) *Subscriber {
	ps := client.Subscribe(ctx, wireName(channel))
	s := &Subscriber{
		pubsub: ps,
		out:    make(chan []byte, subscriberBufferSize),
		done:   make(chan struct{}),
	}
	go s.pump(ctx)
	return s
}

func (s *Subscriber) pump(ctx context.Context) {
	ch := s.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			s.deliver([]byte(msg.Payload))
		}
	}
}

// deliver pushes payload onto the bounded buffer, dropping the oldest
// buffered payload on overflow so a slow reader never blocks the publisher.
func (s *Subscriber) deliver(payload []byte) {
	select {
	case s.out <- payload:
		return
	default:
	}
	select {
	case <-s.out:
	default:
	}
	select {
	case s.out <- payload:
	default:
	}
}

// Messages returns the channel of raw JSON span payloads.
func (s *Subscriber) Messages() <-chan []byte {
	return s.out
}

// Close tears down the subscription and stops delivery.
func (s *Subscriber) Close() error {
	close(s.done)
	return s.pubsub.Close()
}
