package costs

// rate is a model's per-million-token dollar rate.
type rate struct {
	inputPerMillion  float64
	outputPerMillion float64
}

// StaticPriceTable implements llmgateway.PriceTable from a fixed, in-memory
// rate sheet. Rates are dollars per million tokens, the unit model pricing
// pages publish them in; an unknown model resolves to the configured
// default rate rather than zero, so a newly added model tier never looks
// free in the cost summary.
type StaticPriceTable struct {
	rates       map[string]rate
	defaultRate rate
}

// NewStaticPriceTable builds a price table. defaultInputPerMillion and
// defaultOutputPerMillion apply to any model not present in rates.
func NewStaticPriceTable(defaultInputPerMillion, defaultOutputPerMillion float64) *StaticPriceTable {
	return &StaticPriceTable{
		rates:       make(map[string]rate),
		defaultRate: rate{defaultInputPerMillion, defaultOutputPerMillion},
	}
}

// SetRate configures model's per-million-token input/output rates.
func (t *StaticPriceTable) SetRate(model string, inputPerMillion, outputPerMillion float64) {
	t.rates[model] = rate{inputPerMillion, outputPerMillion}
}

// Price converts a call's token counts to dollars at model's configured
// rate (or the default rate if model is unrecognized).
func (t *StaticPriceTable) Price(model string, inputTokens, outputTokens int) float64 {
	r, ok := t.rates[model]
	if !ok {
		r = t.defaultRate
	}
	return float64(inputTokens)/1_000_000*r.inputPerMillion + float64(outputTokens)/1_000_000*r.outputPerMillion
}
