// Package detectors holds the heuristic pattern detectors that score a tagged
// message stream for mixed communication signals.
//
// Every detector is a pure function of its input. Detectors sort the input
// chronologically themselves, never fail, and report a zero score with an
// explanation when there is not enough data.
package detectors

import (
	"github.com/MikeSquared-Agency/mixsig/internal/features"
)

// Detector names, in report order.
const (
	InitiationImbalance            = "initiation_imbalance"
	ResponseLatencyAsymmetry       = "response_latency_asymmetry"
	WarmColdCycles                 = "warm_cold_cycles"
	BoundarySettingLanguage        = "boundary_setting_language"
	UnresolvedFutureTalk           = "unresolved_future_talk"
	AffectionDistanceContradiction = "affection_distance_contradiction"
)

// maxEvidence caps the evidence list of every detector except initiation.
const maxEvidence = 12

// Sentiment thresholds shared by the warm/cold style detectors.
const (
	warmSentiment = 0.4
	coldSentiment = -0.2
)

// Result is the output of one detector run.
type Result struct {
	Name        string   `json:"name"`
	Score       float64  `json:"score"`
	Explanation string   `json:"explanation"`
	EvidenceIDs []string `json:"evidence_ids"`
}

// Detector scores one communication pattern.
type Detector interface {
	Name() string
	Detect(msgs []features.Tagged) Result
}

// Func adapts a plain function to the Detector interface.
type Func struct {
	name string
	fn   func([]features.Tagged) Result
}

// Name returns the detector name.
func (f Func) Name() string { return f.name }

// Detect runs the detector over a chronologically sorted copy of msgs.
func (f Func) Detect(msgs []features.Tagged) Result {
	r := f.fn(features.SortTagged(msgs))
	r.Name = f.name
	r.Score = clamp01(r.Score)
	if r.EvidenceIDs == nil {
		r.EvidenceIDs = []string{}
	}
	return r
}

var registry = []Detector{
	Func{InitiationImbalance, initiationImbalance},
	Func{ResponseLatencyAsymmetry, responseLatencyAsymmetry},
	Func{WarmColdCycles, warmColdCycles},
	Func{BoundarySettingLanguage, boundarySettingLanguage},
	Func{UnresolvedFutureTalk, unresolvedFutureTalk},
	Func{AffectionDistanceContradiction, affectionDistanceContradiction},
}

// All returns the fixed detector set in report order.
func All() []Detector {
	out := make([]Detector, len(registry))
	copy(out, registry)
	return out
}

// Names returns the detector names in report order.
func Names() []string {
	names := make([]string, len(registry))
	for i, d := range registry {
		names[i] = d.Name()
	}
	return names
}

// Run executes every detector unconditionally and returns one result per
// detector in report order.
func Run(msgs []features.Tagged) []Result {
	sorted := features.SortTagged(msgs)
	results := make([]Result, 0, len(registry))
	for _, d := range registry {
		results = append(results, d.Detect(sorted))
	}
	return results
}

// ratioScore divides count by max(n/per, 1), the density floor used by the
// frequency detectors.
func ratioScore(count, n int, per float64) float64 {
	denom := float64(n) / per
	if denom < 1 {
		denom = 1
	}
	return clamp01(float64(count) / denom)
}

// dedupe keeps the first occurrence of each ID and caps the result.
func dedupe(ids []string, limit int) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

func capped(ids []string, limit int) []string {
	if len(ids) > limit {
		return ids[:limit]
	}
	return ids
}

func clamp01(score float64) float64 {
	if score != score || score < 0.0 {
		return 0.0
	}
	if score > 1.0 {
		return 1.0
	}
	return score
}
