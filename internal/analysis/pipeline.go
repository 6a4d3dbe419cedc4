// Package analysis runs the heuristic mixed-signal pipeline over one upload's
// messages and assembles the report.
package analysis

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/MikeSquared-Agency/mixsig/internal/detectors"
	"github.com/MikeSquared-Agency/mixsig/internal/features"
	"github.com/MikeSquared-Agency/mixsig/internal/moments"
	"github.com/MikeSquared-Agency/mixsig/internal/scoring"
	"github.com/MikeSquared-Agency/mixsig/internal/timeline"
)

// EmptySummary is the summary of a report with no messages.
const EmptySummary = "No analyzable messages were found."

const disclaimer = "This report describes communication patterns and does not diagnose people or predict outcomes."

// Report is the heuristic analysis output for one upload.
type Report struct {
	TimelineMetrics    timeline.Metrics            `json:"timeline_metrics"`
	Detectors          []detectors.Result          `json:"detectors"`
	MixedSignalIndex   float64                     `json:"mixed_signal_index"`
	Confidence         float64                     `json:"confidence"`
	SubScores          map[string]scoring.SubScore `json:"sub_scores"`
	MomentsOfAmbiguity []moments.Moment            `json:"moments_of_ambiguity"`
	SummaryText        string                      `json:"summary_text"`
}

// Options configures a pipeline.
type Options struct {
	// TopN caps the moments of ambiguity. Non-positive means moments.DefaultTopN.
	TopN int
}

// Pipeline is stateless across runs and safe for concurrent use.
type Pipeline struct {
	extractor *features.Extractor
	topN      int
}

// New creates a pipeline. A nil extractor uses the default lexicon and scorer.
func New(ext *features.Extractor, opts Options) *Pipeline {
	if ext == nil {
		ext = features.NewExtractor(features.DefaultLexicon(), nil)
	}
	return &Pipeline{extractor: ext, topN: opts.TopN}
}

// Run analyses msgs. It never fails: empty input yields a minimal report.
func (p *Pipeline) Run(msgs []features.Message) Report {
	if len(msgs) == 0 {
		return emptyReport()
	}

	sorted := features.SortChronological(msgs)
	tagged := p.extractor.Extract(sorted)

	metrics := timeline.Build(tagged)
	results := detectors.Run(tagged)

	days := scoring.CoveredDays(sorted[0].Timestamp, sorted[len(sorted)-1].Timestamp)
	confidence := scoring.Confidence(len(sorted), days, results)
	index, subScores := scoring.MixedSignalIndex(results, confidence)

	windows := moments.Build(tagged, results, p.topN)

	rounded := make([]detectors.Result, len(results))
	for i, r := range results {
		r.Score = math.Round(r.Score*1000) / 1000
		rounded[i] = r
	}

	return Report{
		TimelineMetrics:    metrics,
		Detectors:          rounded,
		MixedSignalIndex:   index,
		Confidence:         confidence,
		SubScores:          subScores,
		MomentsOfAmbiguity: windows,
		SummaryText:        Summary(index, confidence, results),
	}
}

func emptyReport() Report {
	return Report{
		Detectors:          []detectors.Result{},
		SubScores:          map[string]scoring.SubScore{},
		MomentsOfAmbiguity: []moments.Moment{},
		SummaryText:        EmptySummary,
	}
}

// Summary renders the descriptive, non-diagnostic report summary naming the
// two strongest detectors that fired.
func Summary(index, confidence float64, results []detectors.Result) string {
	top := make([]detectors.Result, len(results))
	copy(top, results)
	sort.SliceStable(top, func(i, j int) bool { return top[i].Score > top[j].Score })

	var names []string
	for _, r := range top[:min(2, len(top))] {
		if r.Score > 0 {
			names = append(names, r.Name)
		}
	}
	contributors := strings.Join(names, ", ")
	if contributors == "" {
		contributors = "no strong mixed-signal detectors"
	}

	return fmt.Sprintf("Mixed Signal Index: %s/100 with confidence %s%%. Primary contributors: %s. %s",
		strconv.FormatFloat(index, 'f', -1, 64),
		strconv.FormatFloat(math.Round(confidence*1000)/10, 'f', -1, 64),
		contributors,
		disclaimer,
	)
}
