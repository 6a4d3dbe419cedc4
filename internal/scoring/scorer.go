package scoring

import (
	"math"
	"time"

	"github.com/MikeSquared-Agency/mixsig/internal/detectors"
)

// Confidence factor weights.
const (
	sampleWeight      = 0.45
	coverageWeight    = 0.25
	consistencyWeight = 0.30

	sampleSaturation   = 100.0
	coverageSaturation = 30.0

	// quietConsistency is the consistency factor when no detector fired.
	quietConsistency = 0.1
)

// Weights is the per-detector weight table for the mixed signal index.
var Weights = map[string]float64{
	detectors.InitiationImbalance:            1.0,
	detectors.ResponseLatencyAsymmetry:       1.0,
	detectors.WarmColdCycles:                 1.2,
	detectors.BoundarySettingLanguage:        1.2,
	detectors.UnresolvedFutureTalk:           0.8,
	detectors.AffectionDistanceContradiction: 1.4,
}

// SubScore is one detector's contribution to the index.
type SubScore struct {
	Score  float64 `json:"score"`
	Weight float64 `json:"weight"`
}

// Weight returns the index weight for a detector. Unknown detectors weigh 1.0.
func Weight(name string) float64 {
	if w, ok := Weights[name]; ok {
		return w
	}
	return 1.0
}

// Confidence estimates how much data supports the index.
//
// Formula: 0.45 x sample + 0.25 x coverage + 0.30 x consistency, where
// sample = min(count/100, 1), coverage = min(days/30, 1) and consistency is
// the mean of the fired fraction and the mean fired score (0.1 when nothing
// fired). Rounded to 3 decimals.
func Confidence(messageCount, coveredDays int, results []detectors.Result) float64 {
	sample := math.Min(float64(messageCount)/sampleSaturation, 1.0)
	coverage := math.Min(float64(coveredDays)/coverageSaturation, 1.0)

	conf := sampleWeight*clamp(sample) + coverageWeight*clamp(coverage) + consistencyWeight*consistency(results)
	return round(clamp(conf), 3)
}

func consistency(results []detectors.Result) float64 {
	var fired int
	var sum float64
	for _, r := range results {
		if r.Score > 0 {
			fired++
			sum += r.Score
		}
	}
	if fired == 0 {
		return quietConsistency
	}
	fraction := float64(fired) / float64(len(results))
	mean := sum / float64(fired)
	return clamp((fraction + mean) / 2)
}

// MixedSignalIndex returns the weighted average detector score scaled by
// confidence to 0..100 (2 decimals), and the per-detector breakdown.
func MixedSignalIndex(results []detectors.Result, confidence float64) (float64, map[string]SubScore) {
	breakdown := make(map[string]SubScore, len(results))
	var weighted, total float64
	for _, r := range results {
		w := Weight(r.Name)
		score := clamp(r.Score)
		weighted += score * w
		total += w
		breakdown[r.Name] = SubScore{Score: round(score, 3), Weight: w}
	}

	var avg float64
	if total > 0 {
		avg = weighted / total
	}
	index := round(avg*clamp(confidence)*100, 2)
	return math.Max(0, math.Min(index, 100)), breakdown
}

// CoveredDays counts the calendar days from first to last inclusive, floored at 1.
func CoveredDays(first, last time.Time) int {
	f := first.UTC()
	l := last.UTC()
	start := time.Date(f.Year(), f.Month(), f.Day(), 0, 0, 0, 0, time.UTC)
	end := time.Date(l.Year(), l.Month(), l.Day(), 0, 0, 0, 0, time.UTC)
	days := int(end.Sub(start).Hours()/24) + 1
	if days < 1 {
		return 1
	}
	return days
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func clamp(score float64) float64 {
	if score < 0.0 {
		return 0.0
	}
	if score > 1.0 {
		return 1.0
	}
	return score
}
