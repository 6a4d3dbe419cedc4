package detectors

import (
	"math"

	"github.com/MikeSquared-Agency/mixsig/internal/features"
)

const (
	warmColdPer      = 12.0
	boundaryPer      = 20.0
	futureTalkPer    = 30.0
	contradictionPer = 20.0

	futureLookahead        = 24
	contradictionLookahead = 6
)

// initiationImbalance compares how many conversations each initiating
// sender opens. Senders who never open a conversation are not counted.
func initiationImbalance(msgs []features.Tagged) Result {
	if len(msgs) == 0 {
		return Result{Explanation: "Not enough data."}
	}

	starts := make(map[string]int)
	var evidence []string
	for _, idx := range features.ConversationStarts(msgs, features.ConversationGap) {
		starts[msgs[idx].SenderID]++
		evidence = append(evidence, msgs[idx].ID)
	}

	maxStarts, minStarts := 0, math.MaxInt
	for _, n := range starts {
		maxStarts = max(maxStarts, n)
		minStarts = min(minStarts, n)
	}

	return Result{
		Score:       float64(maxStarts-minStarts) / float64(max(maxStarts, 1)),
		Explanation: "One participant initiates far more conversations than the other.",
		EvidenceIDs: evidence,
	}
}

// responseLatencyAsymmetry compares average reply latency per replying sender.
func responseLatencyAsymmetry(msgs []features.Tagged) Result {
	latency := make(map[string][]float64)
	var evidence []string
	for i := 1; i < len(msgs); i++ {
		prev, curr := msgs[i-1], msgs[i]
		if prev.SenderID == curr.SenderID {
			continue
		}
		latency[curr.SenderID] = append(latency[curr.SenderID], curr.Timestamp.Sub(prev.Timestamp).Minutes())
		evidence = append(evidence, prev.ID, curr.ID)
	}
	if len(latency) < 2 {
		return Result{Explanation: "Not enough alternating replies."}
	}

	maxAvg, minAvg := math.Inf(-1), math.Inf(1)
	for _, values := range latency {
		var sum float64
		for _, v := range values {
			sum += v
		}
		avg := sum / float64(len(values))
		maxAvg = math.Max(maxAvg, avg)
		minAvg = math.Min(minAvg, avg)
	}

	return Result{
		Score:       math.Abs(maxAvg-minAvg) / math.Max(maxAvg, 1.0),
		Explanation: "One participant tends to respond much slower than the other.",
		EvidenceIDs: dedupe(evidence, maxEvidence),
	}
}

// warmColdCycles counts abrupt flips between affectionate and distant messages.
func warmColdCycles(msgs []features.Tagged) Result {
	if len(msgs) < 2 {
		return Result{Explanation: "Not enough messages to compare consecutive turns."}
	}

	flips := 0
	var evidence []string
	for i := 1; i < len(msgs); i++ {
		prev, curr := msgs[i-1], msgs[i]
		warmToCold := prev.Affection && (curr.Avoidance || curr.Sentiment < coldSentiment)
		coldToWarm := prev.Avoidance && (curr.Affection || curr.Sentiment > warmSentiment)
		if warmToCold || coldToWarm {
			flips++
			evidence = append(evidence, prev.ID, curr.ID)
		}
	}

	return Result{
		Score:       ratioScore(flips, len(msgs), warmColdPer),
		Explanation: "Detected alternating affectionate and distant behavior within short windows.",
		EvidenceIDs: dedupe(evidence, maxEvidence),
	}
}

// boundarySettingLanguage measures how often boundary phrases appear.
func boundarySettingLanguage(msgs []features.Tagged) Result {
	var hits []string
	for _, m := range msgs {
		if m.Boundary {
			hits = append(hits, m.ID)
		}
	}
	if len(hits) == 0 {
		return Result{Explanation: "No boundary-setting language detected."}
	}

	return Result{
		Score:       ratioScore(len(hits), len(msgs), boundaryPer),
		Explanation: "Boundary-setting language appears repeatedly in the conversation.",
		EvidenceIDs: capped(hits, maxEvidence),
	}
}

// unresolvedFutureTalk flags plans that the other sender never picks up
// within the next futureLookahead messages.
func unresolvedFutureTalk(msgs []features.Tagged) Result {
	unresolved := 0
	var evidence []string
	for i, m := range msgs {
		if !m.FutureTalk {
			continue
		}
		end := min(i+1+futureLookahead, len(msgs))
		followedUp := false
		for _, w := range msgs[i+1 : end] {
			if w.FutureTalk && w.SenderID != m.SenderID {
				followedUp = true
				break
			}
		}
		if !followedUp {
			unresolved++
			evidence = append(evidence, m.ID)
		}
	}
	if unresolved == 0 {
		return Result{Explanation: "Plans that are raised get picked up by the other participant."}
	}

	return Result{
		Score:       ratioScore(unresolved, len(msgs), futureTalkPer),
		Explanation: "Plans are suggested but not clearly confirmed later.",
		EvidenceIDs: capped(evidence, maxEvidence),
	}
}

// affectionDistanceContradiction pairs warm messages with a distant message
// that follows within contradictionLookahead messages.
func affectionDistanceContradiction(msgs []features.Tagged) Result {
	contradictions := 0
	var evidence []string
	for i, m := range msgs {
		if !(m.Sentiment > warmSentiment || m.Affection) {
			continue
		}
		end := min(i+1+contradictionLookahead, len(msgs))
		for _, follow := range msgs[i+1 : end] {
			if follow.Avoidance || follow.Sentiment < coldSentiment {
				contradictions++
				evidence = append(evidence, m.ID, follow.ID)
				break
			}
		}
	}
	if contradictions == 0 {
		return Result{Explanation: "No warm messages were followed closely by distancing."}
	}

	return Result{
		Score:       ratioScore(contradictions, len(msgs), contradictionPer),
		Explanation: "Positive wording often appears near avoidant behavior.",
		EvidenceIDs: dedupe(evidence, maxEvidence),
	}
}
