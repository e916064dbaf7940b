package usage

// ModelPrice holds per-1000-token USD rates for one model.
type ModelPrice struct {
	Prompt     float64
	Completion float64
}

// pricing maps model names to their rates. Unknown models are billed at the
// cheapest tier rather than rejected, so new upstream models keep working.
var pricing = map[string]ModelPrice{
	"gpt-4o":        {Prompt: 0.0025, Completion: 0.01},
	"gpt-4o-mini":   {Prompt: 0.00015, Completion: 0.0006},
	"gpt-4":         {Prompt: 0.03, Completion: 0.06},
	"gpt-3.5-turbo": {Prompt: 0.0005, Completion: 0.0015},
}

const defaultPricingModel = "gpt-4o-mini"

// PriceFor returns the rates for a model, falling back to the default tier.
func PriceFor(model string) ModelPrice {
	if p, ok := pricing[model]; ok {
		return p
	}
	return pricing[defaultPricingModel]
}

// Cost computes the USD cost for a token split on the given model.
func Cost(model string, promptTokens, completionTokens int64) float64 {
	p := PriceFor(model)
	return float64(promptTokens)*p.Prompt/1000 + float64(completionTokens)*p.Completion/1000
}
