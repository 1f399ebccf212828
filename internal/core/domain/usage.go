package domain

// TokenUsage is what a single LLM call reports. DurationNS is zero when the backend omits it.
type TokenUsage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
	TotalTokens  int64 `json:"total_tokens"`
	DurationNS   int64 `json:"duration_ns,omitempty"`
}

// Pricing is per million tokens, in the user's billing currency.
type Pricing struct {
	InputPerMillion  float64 `json:"input_per_million" yaml:"input_per_million"`
	OutputPerMillion float64 `json:"output_per_million" yaml:"output_per_million"`
}

// Cost returns input, output and total cost for the given usage.
func (p Pricing) Cost(u TokenUsage) (input, output, total float64) {
	input = float64(u.InputTokens) * p.InputPerMillion / 1_000_000
	output = float64(u.OutputTokens) * p.OutputPerMillion / 1_000_000
	return input, output, input + output
}

// Usage is the accumulated token, cost and wall-clock state attached to a Document.
type Usage struct {
	InputTokens     int64   `json:"input_tokens"`
	OutputTokens    int64   `json:"output_tokens"`
	TotalTokens     int64   `json:"total_tokens"`
	InputCost       float64 `json:"input_cost"`
	OutputCost      float64 `json:"output_cost"`
	TotalCost       float64 `json:"total_cost"`
	DurationSeconds float64 `json:"duration_seconds"`
}

func (u Usage) IsZero() bool {
	return u == Usage{}
}
