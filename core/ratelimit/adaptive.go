package ratelimit

import "time"

// ScoreInputs is the rolling-window performance signal the adaptive
// supervisor reads from the metrics aggregator to decide whether an
// endpoint's rate limit should widen or tighten.
type ScoreInputs struct {
	ErrorRate       float64 // 0..1
	AvgResponseTime time.Duration
	SlowThreshold   time.Duration
	CacheHitRate    float64 // 0..1
}

// scaleFactors are the only multipliers the supervisor may apply, per spec.
var scaleFactors = []float64{0.5, 0.75, 1.0, 1.25}

// Score derives a single performance score in [0,1] from rolling error rate,
// average response time, and cache hit rate. Higher is healthier.
func Score(in ScoreInputs) float64 {
	errorComponent := 1.0 - in.ErrorRate
	if errorComponent < 0 {
		errorComponent = 0
	}

	latencyComponent := 1.0
	if in.SlowThreshold > 0 {
		latencyComponent = 1.0 - float64(in.AvgResponseTime)/float64(in.SlowThreshold)
		if latencyComponent < 0 {
			latencyComponent = 0
		}
		if latencyComponent > 1 {
			latencyComponent = 1
		}
	}

	hitComponent := in.CacheHitRate
	if hitComponent < 0 {
		hitComponent = 0
	}
	if hitComponent > 1 {
		hitComponent = 1
	}

	return (errorComponent + latencyComponent + hitComponent) / 3.0
}

// Factor maps a performance score to the nearest allowed scale factor: poor
// health (score < 0.4) halves the limit, mediocre health (< 0.65) cuts it by
// a quarter, good health (< 0.85) leaves it unchanged, excellent health
// raises it by a quarter.
func Factor(score float64) float64 {
	switch {
	case score < 0.4:
		return scaleFactors[0]
	case score < 0.65:
		return scaleFactors[1]
	case score < 0.85:
		return scaleFactors[2]
	default:
		return scaleFactors[3]
	}
}

// Supervisor periodically recomputes each configured endpoint's limit from
// its current ScoreInputs, clamped to the endpoint's [Min, Max].
type Supervisor struct {
	limiter *Limiter
	inputs  func(endpoint string) ScoreInputs
	base    map[string]int
}

// NewSupervisor builds a Supervisor over limiter. base records each
// endpoint's unscaled limit so repeated rescoring doesn't compound.
func NewSupervisor(limiter *Limiter, base map[string]int, inputs func(endpoint string) ScoreInputs) *Supervisor {
	return &Supervisor{limiter: limiter, inputs: inputs, base: base}
}

// Rescore recomputes and applies the scaled limit for every endpoint in base.
func (s *Supervisor) Rescore() {
	for endpoint, baseLimit := range s.base {
		rule := s.limiter.RuleFor(endpoint)
		score := Score(s.inputs(endpoint))
		factor := Factor(score)

		scaled := int(float64(baseLimit) * factor)
		if rule.Min > 0 && scaled < rule.Min {
			scaled = rule.Min
		}
		if rule.Max > 0 && scaled > rule.Max {
			scaled = rule.Max
		}

		rule.Limit = scaled
		s.limiter.SetRule(endpoint, rule)
	}
}
