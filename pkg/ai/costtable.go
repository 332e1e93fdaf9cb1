package ai

import "math"

// ModelRate is the provider price per million tokens, in currency
// micro-units (1 USD == 1_000_000 micros).
type ModelRate struct {
	InputPerMillionMicros  int64
	OutputPerMillionMicros int64
}

type rateKey struct {
	provider string
	model    string
}

// costTable holds the rates for the models OrderFlow actually wires.
// Unknown models fall back to defaultRate so a new model never costs
// zero in the ledger.
var costTable = map[rateKey]ModelRate{
	{"anthropic", "claude-sonnet-4-20250514"}:  {3_000_000, 15_000_000},
	{"anthropic", "claude-3-5-haiku-20241022"}: {800_000, 4_000_000},
	{"bedrock", "anthropic.claude-sonnet-4-20250514-v1:0"}:  {3_000_000, 15_000_000},
	{"bedrock", "anthropic.claude-3-5-haiku-20241022-v1:0"}: {800_000, 4_000_000},
	{"openai", "text-embedding-3-small"}: {20_000, 0},
	{"openai", "text-embedding-3-large"}: {130_000, 0},
	{"bedrock", "amazon.titan-embed-text-v2:0"}: {20_000, 0},
}

var defaultRate = ModelRate{5_000_000, 15_000_000}

// RateFor returns the rate for (provider, model), falling back to a
// conservative default for unknown pairs.
func RateFor(provider, model string) ModelRate {
	if rate, ok := costTable[rateKey{provider, model}]; ok {
		return rate
	}
	return defaultRate
}

// CostMicros computes the cost of a call in micro-units, rounding each
// component half up.
func CostMicros(provider, model string, inputTokens, outputTokens int) int64 {
	rate := RateFor(provider, model)
	in := math.Round(float64(inputTokens) * float64(rate.InputPerMillionMicros) / 1_000_000)
	out := math.Round(float64(outputTokens) * float64(rate.OutputPerMillionMicros) / 1_000_000)
	return int64(in) + int64(out)
}

// EstimateTextTokens approximates the token count of a text prompt:
// ceil(chars/4) with a 20% safety margin.
func EstimateTextTokens(chars int) int {
	if chars <= 0 {
		return 0
	}
	return int(math.Ceil(math.Ceil(float64(chars)/4) * 1.2))
}

// EstimateVisionTokens approximates the token count of a vision call
// over n pages: (500 + 1500*pages) with a 20% safety margin.
func EstimateVisionTokens(pages int) int {
	if pages <= 0 {
		pages = 0
	}
	return int(math.Ceil(float64(500+1500*pages) * 1.2))
}

// EstimateCostMicros estimates a call's cost before making it, pricing
// the estimated input and output token counts at their own rates (the
// ledger records the true cost afterwards).
func EstimateCostMicros(provider, model string, estimatedInputTokens, estimatedOutputTokens int) int64 {
	return CostMicros(provider, model, estimatedInputTokens, estimatedOutputTokens)
}
