package pricing

import (
	"testing"

	"github.com/agenttrace/agenttrace/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func i64(v int64) *int64 { return &v }

func TestCalculateClaudeSonnet4VersionedPrefix(t *testing.T) {
	c := NewCalculator()
	model := "claude-sonnet-4-20250514"
	span := models.Span{ModelName: &model, TokensIn: i64(1000), TokensOut: i64(500)}
	c.Calculate(&span)
	require.NotNil(t, span.CostUSD)
	assert.InDelta(t, 0.0105, *span.CostUSD, 1e-4)
}

func TestCalculateGPT4o(t *testing.T) {
	c := NewCalculator()
	model := "gpt-4o"
	span := models.Span{ModelName: &model, TokensIn: i64(1_000_000), TokensOut: i64(500_000)}
	c.Calculate(&span)
	require.NotNil(t, span.CostUSD)
	assert.InDelta(t, 7.50, *span.CostUSD, 0.01)
}

func TestCalculateUnknownModelLeavesCostUnset(t *testing.T) {
	c := NewCalculator()
	model := "acme-42"
	span := models.Span{ModelName: &model, TokensIn: i64(1000), TokensOut: i64(500)}
	c.Calculate(&span)
	assert.Nil(t, span.CostUSD)
}

func TestCalculateNonLLMSpanUntouched(t *testing.T) {
	c := NewCalculator()
	span := models.Span{}
	c.Calculate(&span)
	assert.Nil(t, span.CostUSD)
}

func TestCalculateReasoningTokensBilledAtOutputRate(t *testing.T) {
	c := NewCalculator()
	model := "gpt-4o"
	span := models.Span{ModelName: &model, TokensIn: i64(0), TokensOut: i64(0), TokensReasoning: i64(1_000_000)}
	c.Calculate(&span)
	require.NotNil(t, span.CostUSD)
	assert.InDelta(t, 10.00, *span.CostUSD, 1e-9)
}

func TestCostLinearity(t *testing.T) {
	c := NewCalculator()
	model := "claude-3-5-sonnet"
	span1 := models.Span{ModelName: &model, TokensIn: i64(1000), TokensOut: i64(500)}
	c.Calculate(&span1)
	span2 := models.Span{ModelName: &model, TokensIn: i64(2000), TokensOut: i64(1000)}
	c.Calculate(&span2)
	require.NotNil(t, span1.CostUSD)
	require.NotNil(t, span2.CostUSD)
	assert.InDelta(t, *span1.CostUSD*2, *span2.CostUSD, 1e-9)
}

func TestSetAndGetPricingRuntimeExtension(t *testing.T) {
	c := NewCalculator()
	c.SetPricing("acme-42", ModelPricing{InputPerMillion: 1, OutputPerMillion: 2})
	entry, ok := c.GetPricing("acme-42")
	require.True(t, ok)
	assert.Equal(t, 1.0, entry.InputPerMillion)

	model := "acme-42"
	span := models.Span{ModelName: &model, TokensIn: i64(1_000_000), TokensOut: i64(1_000_000)}
	c.Calculate(&span)
	require.NotNil(t, span.CostUSD)
	assert.InDelta(t, 3.0, *span.CostUSD, 1e-9)
}

func TestBestMatchTieBreakLongerThenLexicographic(t *testing.T) {
	table := map[string]ModelPricing{
		"zz-model": {InputPerMillion: 1, OutputPerMillion: 1},
		"aa-model": {InputPerMillion: 2, OutputPerMillion: 2},
		"x":        {InputPerMillion: 3, OutputPerMillion: 3},
	}
	key, ok := bestMatch(table, func(k string) bool { return true })
	require.True(t, ok)
	// "aa-model" and "zz-model" are both length 8 and both match; "x" is
	// shorter. Lexicographically "aa-model" < "zz-model".
	assert.Equal(t, "aa-model", key)
}

func TestFindPricingPrefersExactOverPrefix(t *testing.T) {
	c := NewCalculator()
	entry, ok := c.findPricing("gpt-4o")
	require.True(t, ok)
	assert.Equal(t, 2.50, entry.InputPerMillion)
}

func TestFindPricingSubstringFallback(t *testing.T) {
	c := NewCalculator()
	// substring match: a vendor-prefixed alias containing a known key, where
	// the key is not a prefix of the model name.
	entry, ok := c.findPricing("vendor/gpt-4o-mini/v2")
	require.True(t, ok)
	assert.Equal(t, 0.15, entry.InputPerMillion)
}
