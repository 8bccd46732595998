package ai

import "strings"

// modelRate is USD per 1K tokens.
type modelRate struct {
	inPer1K  float64
	outPer1K float64
}

// rateTable maps model-id prefixes to rates. Unknown models cost zero; the
// estimate is for budget dashboards, not billing.
var rateTable = map[string]modelRate{
	"openai/gpt-4o-mini":   {0.00015, 0.0006},
	"openai/gpt-4o":        {0.0025, 0.01},
	"openai/gpt-4":         {0.03, 0.06},
	"openai/gpt-3.5":       {0.0005, 0.0015},
	"anthropic/claude-3-5": {0.003, 0.015},
	"anthropic/claude-3":   {0.003, 0.015},
	"meta-llama/":          {0.0002, 0.0002},
	"mistralai/":           {0.0002, 0.0006},
	"google/gemini":        {0.000075, 0.0003},
}

// EstimateCostUSD estimates the dollar cost of a call from the rate table.
func EstimateCostUSD(model string, promptTokens, completionTokens int) float64 {
	var best modelRate
	bestLen := -1
	for prefix, r := range rateTable {
		if strings.HasPrefix(model, prefix) && len(prefix) > bestLen {
			best = r
			bestLen = len(prefix)
		}
	}
	if bestLen < 0 {
		return 0
	}
	return float64(promptTokens)/1000*best.inPer1K + float64(completionTokens)/1000*best.outPer1K
}
