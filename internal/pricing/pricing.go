// Package pricing attaches a monetary cost to LLM spans by matching their
// model identifier against a table of per-million-token rates.
package pricing

import (
	"strings"
	"sync"

	"github.com/agenttrace/agenttrace/internal/models"
)

// ModelPricing is the per-million-token rate for a model. CachedInputPerMillion
// is carried for completeness (the upstream pricing data includes it) but is
// not applied by Calculate: the span data model has no cached-token counter
// to multiply it by.
type ModelPricing struct {
	InputPerMillion       float64
	OutputPerMillion      float64
	CachedInputPerMillion *float64
}

// Calculator holds a pricing table and computes span cost from it. It is
// safe for concurrent use.
type Calculator struct {
	mu      sync.RWMutex
	pricing map[string]ModelPricing
}

// NewCalculator returns a Calculator seeded with the required built-in
// model rates.
func NewCalculator() *Calculator {
	return &Calculator{pricing: builtinPricing()}
}

func ptr(f float64) *float64 { return &f }

func builtinPricing() map[string]ModelPricing {
	return map[string]ModelPricing{
		"claude-3-opus":      {InputPerMillion: 15.00, OutputPerMillion: 75.00, CachedInputPerMillion: ptr(1.50)},
		"claude-3-5-sonnet":  {InputPerMillion: 3.00, OutputPerMillion: 15.00, CachedInputPerMillion: ptr(0.30)},
		"claude-3-5-haiku":   {InputPerMillion: 0.80, OutputPerMillion: 4.00, CachedInputPerMillion: ptr(0.08)},
		"claude-sonnet-4":    {InputPerMillion: 3.00, OutputPerMillion: 15.00, CachedInputPerMillion: ptr(0.30)},
		"claude-opus-4":      {InputPerMillion: 15.00, OutputPerMillion: 75.00, CachedInputPerMillion: ptr(1.50)},
		"gpt-4":              {InputPerMillion: 30.00, OutputPerMillion: 60.00},
		"gpt-4-turbo":        {InputPerMillion: 10.00, OutputPerMillion: 30.00},
		"gpt-4o":             {InputPerMillion: 2.50, OutputPerMillion: 10.00, CachedInputPerMillion: ptr(1.25)},
		"gpt-4o-mini":        {InputPerMillion: 0.15, OutputPerMillion: 0.60, CachedInputPerMillion: ptr(0.075)},
		"o1":                 {InputPerMillion: 15.00, OutputPerMillion: 60.00, CachedInputPerMillion: ptr(7.50)},
		"o1-mini":            {InputPerMillion: 3.00, OutputPerMillion: 12.00, CachedInputPerMillion: ptr(1.50)},
		"o1-pro":             {InputPerMillion: 150.00, OutputPerMillion: 600.00},
		"gpt-3.5-turbo":      {InputPerMillion: 0.50, OutputPerMillion: 1.50},
		"gemini-1.5-pro":     {InputPerMillion: 1.25, OutputPerMillion: 5.00, CachedInputPerMillion: ptr(0.3125)},
		"gemini-1.5-flash":   {InputPerMillion: 0.075, OutputPerMillion: 0.30, CachedInputPerMillion: ptr(0.01875)},
		"gemini-2.0-flash":   {InputPerMillion: 0.10, OutputPerMillion: 0.40, CachedInputPerMillion: ptr(0.025)},
		"mistral-large":      {InputPerMillion: 2.00, OutputPerMillion: 6.00},
		"mistral-small":      {InputPerMillion: 0.20, OutputPerMillion: 0.60},
	}
}

// SetPricing adds or overrides a pricing table entry at runtime.
func (c *Calculator) SetPricing(modelKey string, entry ModelPricing) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pricing[modelKey] = entry
}

// GetPricing returns the entry for an exact model key, if present.
func (c *Calculator) GetPricing(modelKey string) (ModelPricing, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.pricing[modelKey]
	return entry, ok
}

// Calculate attaches cost_usd to an LLM span, overwriting any prior value.
// Non-LLM spans are left untouched. When no pricing entry matches the
// model name, cost_usd is left unset rather than failing.
func (c *Calculator) Calculate(span *models.Span) {
	if !span.IsLLMCall() {
		return
	}
	entry, ok := c.findPricing(*span.ModelName)
	if !ok {
		return
	}
	var tokensIn, tokensOut, tokensReasoning int64
	if span.TokensIn != nil {
		tokensIn = *span.TokensIn
	}
	if span.TokensOut != nil {
		tokensOut = *span.TokensOut
	}
	if span.TokensReasoning != nil {
		tokensReasoning = *span.TokensReasoning
	}
	cost := float64(tokensIn)/1e6*entry.InputPerMillion +
		float64(tokensOut+tokensReasoning)/1e6*entry.OutputPerMillion
	span.CostUSD = &cost
}

// findPricing matches modelName against the table by (a) exact key, then
// (b) longest key that is a prefix of modelName, then (c) any key that is a
// substring of modelName. Ties within a stage are broken by the longer
// candidate first, then the lexicographically smaller key.
func (c *Calculator) findPricing(modelName string) (ModelPricing, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if entry, ok := c.pricing[modelName]; ok {
		return entry, true
	}

	if key, ok := bestMatch(c.pricing, func(key string) bool {
		return strings.HasPrefix(modelName, key)
	}); ok {
		return c.pricing[key], true
	}

	if key, ok := bestMatch(c.pricing, func(key string) bool {
		return strings.Contains(modelName, key)
	}); ok {
		return c.pricing[key], true
	}

	return ModelPricing{}, false
}

// bestMatch returns the key among pricing whose match predicate is true
// that is longest, breaking ties lexicographically.
func bestMatch(pricing map[string]ModelPricing, matches func(key string) bool) (string, bool) {
	best := ""
	found := false
	for key := range pricing {
		if !matches(key) {
			continue
		}
		if !found {
			best = key
			found = true
			continue
		}
		if len(key) > len(best) || (len(key) == len(best) && key < best) {
			best = key
		}
	}
	return best, found
}
