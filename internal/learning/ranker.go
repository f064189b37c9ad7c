package learning

import "fmt"

// Shadow ranker identity, recorded with every model score so historical
// scores stay attributable after the model changes.
const (
	ShadowRankerModelName    = "linear_shadow_ranker"
	ShadowRankerModelVersion = "m6-v1"
)

// ShadowResult is one shadow scoring outcome.
type ShadowResult struct {
	Score       float64
	Confidence  float64
	Explanation string
}

// ShadowRanker is an interpretable weighted ranker. It only ever runs in
// shadow or bounded mode; deterministic ordering stays the baseline.
type ShadowRanker struct{}

// Score computes a weighted score and a calibrated confidence from a task
// feature vector. Deterministic for identical inputs.
func (ShadowRanker) Score(features map[string]float64) ShadowResult {
	score := 0.0
	score += 18.0 * featureOr(features, "priority_value", 0.5)
	score += 14.0 * features["due_overdue"]
	score += 9.0 * features["due_in_24h"]
	score += 6.0 * features["due_in_72h"]
	score += 4.0 * minFloat(features["age_hours"]/24.0, 14.0)
	score -= 8.0 * features["is_blocked"]
	score -= 6.0 * features["has_future_start_gate"]

	confidence := 0.55
	if features["has_due"] == 1.0 {
		confidence += 0.15
	}
	if featureOr(features, "priority_value", 0.5) >= 0.75 {
		confidence += 0.1
	}
	if features["age_hours"] > 72 {
		confidence += 0.1
	}
	confidence = clamp(confidence, 0.05, 0.99)

	return ShadowResult{
		Score:      score,
		Confidence: confidence,
		Explanation: fmt.Sprintf(
			"weighted(priority,due_proximity,age,blocked,start_gate) => score=%.2f, confidence=%.2f",
			score, confidence,
		),
	}
}

func featureOr(features map[string]float64, key string, fallback float64) float64 {
	if value, ok := features[key]; ok {
		return value
	}
	return fallback
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func clamp(value, low, high float64) float64 {
	if value < low {
		return low
	}
	if value > high {
		return high
	}
	return value
}
