// Package cost estimates what an enrichment run spends on external
// services, so logs can attribute spend per record and per run.
package cost

import (
	"sync"

	"github.com/inkshelf/enricher/pkg/anthropic"
)

// Rates holds per-provider pricing.
type Rates struct {
	// Anthropic maps model name to per-million-token pricing.
	Anthropic  map[string]ModelRate `yaml:"anthropic" mapstructure:"anthropic"`
	Jina       JinaRate             `yaml:"jina" mapstructure:"jina"`
	Perplexity PerplexityRate       `yaml:"perplexity" mapstructure:"perplexity"`
}

// ModelRate holds per-model token pricing (per million tokens). Cache
// multipliers scale the input rate for prompt-cache writes and reads.
type ModelRate struct {
	Input         float64 `yaml:"input" mapstructure:"input"`
	Output        float64 `yaml:"output" mapstructure:"output"`
	CacheWriteMul float64 `yaml:"cache_write_mul" mapstructure:"cache_write_mul"`
	CacheReadMul  float64 `yaml:"cache_read_mul" mapstructure:"cache_read_mul"`
}

// JinaRate holds Jina Reader pricing.
type JinaRate struct {
	PerMTok float64 `yaml:"per_mtok" mapstructure:"per_mtok"`
}

// PerplexityRate holds Perplexity pricing.
type PerplexityRate struct {
	PerQuery float64 `yaml:"per_query" mapstructure:"per_query"`
}

// Calculator computes costs and accumulates a running total across an
// enrichment run. Safe for concurrent workers.
type Calculator struct {
	rates Rates

	mu    sync.Mutex
	total float64
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// Claude computes and accrues the cost of one classification call.
// Unknown models cost zero.
func (c *Calculator) Claude(model string, usage anthropic.TokenUsage) float64 {
	rate, ok := c.rates.Anthropic[model]
	if !ok {
		return 0
	}

	cost := (float64(usage.InputTokens)/1e6)*rate.Input +
		(float64(usage.OutputTokens)/1e6)*rate.Output +
		(float64(usage.CacheCreationInputTokens)/1e6)*rate.Input*rate.CacheWriteMul +
		(float64(usage.CacheReadInputTokens)/1e6)*rate.Input*rate.CacheReadMul

	c.accrue(cost)
	return cost
}

// JinaRead computes and accrues the cost of one reader call.
func (c *Calculator) JinaRead(tokens int) float64 {
	cost := (float64(tokens) / 1e6) * c.rates.Jina.PerMTok
	c.accrue(cost)
	return cost
}

// PerplexityQuery accrues the flat cost of one research query.
func (c *Calculator) PerplexityQuery() float64 {
	cost := c.rates.Perplexity.PerQuery
	c.accrue(cost)
	return cost
}

// Total returns the accumulated spend so far.
func (c *Calculator) Total() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}

func (c *Calculator) accrue(cost float64) {
	c.mu.Lock()
	c.total += cost
	c.mu.Unlock()
}

// DefaultRates returns the default pricing rates.
func DefaultRates() Rates {
	return Rates{
		Anthropic: map[string]ModelRate{
			"claude-haiku-4-5-20251001": {
				Input: 0.80, Output: 4.00,
				CacheWriteMul: 1.25, CacheReadMul: 0.1,
			},
			"claude-sonnet-4-5-20250929": {
				Input: 3.00, Output: 15.00,
				CacheWriteMul: 1.25, CacheReadMul: 0.1,
			},
		},
		Jina:       JinaRate{PerMTok: 0.02},
		Perplexity: PerplexityRate{PerQuery: 0.005},
	}
}
