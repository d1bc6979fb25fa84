package formulas

// DrawdownMetrics summarizes the peak-to-trough losses of a value curve.
type DrawdownMetrics struct {
	MaxDrawdown       float64 `json:"max_drawdown"`     // positive fraction, 0.25 = 25% below peak
	CurrentDrawdown   float64 `json:"current_drawdown"` // from the running peak to the last value
	PeriodsInDrawdown int     `json:"periods_in_drawdown"`
}

// CalculateMaxDrawdown returns the largest (peak - value) / peak over the
// curve, or nil with fewer than two values.
func CalculateMaxDrawdown(values []float64) *float64 {
	m := CalculateDrawdownMetrics(values)
	if m == nil {
		return nil
	}
	return &m.MaxDrawdown
}

// CalculateDrawdownMetrics walks the curve once tracking the running peak.
func CalculateDrawdownMetrics(values []float64) *DrawdownMetrics {
	if len(values) < 2 {
		return nil
	}

	maxDrawdown := 0.0
	peak := values[0]
	peakIndex := 0
	for i, v := range values {
		if v > peak {
			peak = v
			peakIndex = i
		}
		if peak > 0 {
			if dd := (peak - v) / peak; dd > maxDrawdown {
				maxDrawdown = dd
			}
		}
	}

	current := 0.0
	last := values[len(values)-1]
	if peak > 0 {
		current = (peak - last) / peak
	}

	return &DrawdownMetrics{
		MaxDrawdown:       maxDrawdown,
		CurrentDrawdown:   current,
		PeriodsInDrawdown: len(values) - 1 - peakIndex,
	}
}
