package xusage

import (
	"sync"
)

// Rate prices one model or operation kind. Token-style pricing uses the
// per-1K rates; time-based pricing uses PerMinute. A rate may set both,
// in which case each cost function reads only its own fields.
type Rate struct {
	InputPer1K  float64 `json:"input_per_1k" koanf:"input_per_1k"`
	OutputPer1K float64 `json:"output_per_1k" koanf:"output_per_1k"`
	PerMinute   float64 `json:"per_minute" koanf:"per_minute"`
}

// DefaultRate is the conservative tier applied to unknown pricing keys.
// Unknown keys must never be priced at zero: overcharging the budget
// window slightly is safer than silently unbounded spend.
var DefaultRate = Rate{
	InputPer1K:  0.01,
	OutputPer1K: 0.03,
	PerMinute:   0.10,
}

// PriceTable maps model/operation keys to rates.
// Safe for concurrent lookup and update.
type PriceTable struct {
	mu          sync.RWMutex
	rates       map[string]Rate
	defaultRate Rate
}

// NewPriceTable builds a table from the given rates. The default tier for
// unknown keys may be overridden with SetDefault.
func NewPriceTable(rates map[string]Rate) *PriceTable {
	copied := make(map[string]Rate, len(rates))
	for k, v := range rates {
		copied[k] = v
	}
	return &PriceTable{rates: copied, defaultRate: DefaultRate}
}

// SetDefault replaces the unknown-key tier.
func (t *PriceTable) SetDefault(r Rate) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.defaultRate = r
}

// Set adds or replaces the rate for a key.
func (t *PriceTable) Set(key string, r Rate) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rates[key] = r
}

// Lookup returns the rate for key and whether it was known.
// Unknown keys return the default tier.
func (t *PriceTable) Lookup(key string) (Rate, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if r, ok := t.rates[key]; ok {
		return r, true
	}
	return t.defaultRate, false
}

// TokenCost prices a token-metered event:
//
//	cost = inputUnits/1000 * inputRate + outputUnits/1000 * outputRate
//
// The returned bool reports whether the key was known; unknown keys are
// priced at the default tier, never zero.
func (t *PriceTable) TokenCost(key string, inputUnits, outputUnits int64) (float64, bool) {
	rate, known := t.Lookup(key)
	if inputUnits < 0 {
		inputUnits = 0
	}
	if outputUnits < 0 {
		outputUnits = 0
	}
	cost := float64(inputUnits)/1000*rate.InputPer1K + float64(outputUnits)/1000*rate.OutputPer1K
	return cost, known
}

// TimeCost prices a duration-metered event: durationMinutes * perMinuteRate.
func (t *PriceTable) TimeCost(key string, durationMinutes float64) (float64, bool) {
	rate, known := t.Lookup(key)
	if durationMinutes < 0 {
		durationMinutes = 0
	}
	return durationMinutes * rate.PerMinute, known
}
