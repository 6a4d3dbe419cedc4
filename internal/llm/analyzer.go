package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MikeSquared-Agency/mixsig/internal/features"
	"github.com/MikeSquared-Agency/mixsig/internal/moments"
)

const (
	recentVerbatimMessages = 120
	maxVerbatimChars       = 600
	compactTextChars       = 220
	maxSenderChars         = 80
	maxNotableEvents       = 8
	maxContextSummaryChars = 3000
)

const systemPrompt = "You analyze relationship communication patterns in chat logs. " +
	"Use evidence only from provided messages. Do not invent quotes. " +
	"Do not diagnose people and do not predict outcomes."

const reportInstructions = systemPrompt + "\n\n" +
	"Return JSON only, matching the schema with correct types. " +
	"mixed_signal_index is an integer from 0 to 100, confidence and signal scores are between 0 and 1, " +
	"summary is 2-4 sentences, timestamps are ISO 8601. " +
	"Evidence excerpts must be direct text from provided messages. " +
	"Timeline must contain AT MOST 10 items; if more candidates exist, include only the most significant moments."

const compressInstructions = "Summarize older chat context without adding new content. " +
	"Output JSON with keys summary and notable_events (array of short bullet strings)."

const repairInstructions = "Fix this JSON so it exactly matches the required schema and type constraints. Return JSON only."

type contextSummary struct {
	Summary       string   `json:"summary"`
	NotableEvents []string `json:"notable_events"`
}

type payloadMessage struct {
	Timestamp string `json:"timestamp"`
	Sender    string `json:"sender"`
	Text      string `json:"text"`
}

type contextPolicy struct {
	CompressedOlderContext bool `json:"compressed_older_context"`
	RecentVerbatimMessages int  `json:"recent_verbatim_messages"`
}

type analysisPayload struct {
	ContextPolicy       contextPolicy    `json:"context_policy"`
	OlderContextSummary *string          `json:"older_context_summary"`
	RecentMessages      []payloadMessage `json:"recent_messages"`
}

// Analyzer produces model-backed reports.
type Analyzer struct {
	completer  Completer
	logger     *slog.Logger
	highlights int

	reportSchema  map[string]any
	contextSchema map[string]any
}

func NewAnalyzer(c Completer, highlights int, logger *slog.Logger) *Analyzer {
	if highlights <= 0 {
		highlights = DefaultHighlights
	}
	return &Analyzer{
		completer:     c,
		logger:        logger,
		highlights:    highlights,
		reportSchema:  GenerateSchema[Assessment](),
		contextSchema: GenerateSchema[contextSummary](),
	}
}

// Analyze asks the model for an assessment of msgs. Output that fails
// validation gets one repair round-trip before ErrInvalidReport is returned.
func (a *Analyzer) Analyze(ctx context.Context, msgs []features.Message) (*Report, error) {
	if len(msgs) == 0 {
		return nil, ErrNoMessages
	}
	msgs = features.SortChronological(msgs)

	summary, err := a.compressContext(ctx, msgs)
	if err != nil {
		return nil, err
	}
	payload := buildPayload(msgs, summary)
	input, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	raw, err := a.completer.CompleteJSON(ctx, Request{
		Name:         "MixedSignalReport",
		Description:  "Evidence-based assessment of mixed signals in a chat log",
		Instructions: reportInstructions,
		Input:        string(input),
		Schema:       a.reportSchema,
	})
	if err != nil {
		return nil, fmt.Errorf("request report: %w", err)
	}

	assessment, verr := decodeAssessment(raw)
	if verr != nil {
		a.logger.Warn("model report invalid, requesting repair", "error", verr)
		repaired, err := a.completer.CompleteJSON(ctx, Request{
			Name:         "MixedSignalReport",
			Description:  "Evidence-based assessment of mixed signals in a chat log",
			Instructions: repairInstructions,
			Input:        raw,
			Schema:       a.reportSchema,
		})
		if err != nil {
			return nil, fmt.Errorf("request repair: %w", err)
		}
		assessment, verr = decodeAssessment(repaired)
		if verr != nil {
			return nil, verr
		}
	}

	report := Enrich(*assessment, a.highlights)
	a.logger.Info("model report produced",
		"messages", len(msgs),
		"compressed", summary != nil,
		"mixed_signal_index", report.MixedSignalIndex,
		"highlights", len(report.Highlights),
	)
	return &report, nil
}

func decodeAssessment(raw string) (*Assessment, error) {
	var a Assessment
	if err := json.Unmarshal([]byte(raw), &a); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrInvalidReport, err)
	}
	if len(a.Timeline) > maxTimelineItems {
		a.Timeline = a.Timeline[:maxTimelineItems]
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return &a, nil
}

// compressContext summarises everything before the verbatim tail. It
// returns nil when the conversation fits entirely in the tail.
func (a *Analyzer) compressContext(ctx context.Context, msgs []features.Message) (*string, error) {
	if len(msgs) <= recentVerbatimMessages {
		return nil, nil
	}
	older := msgs[:len(msgs)-recentVerbatimMessages]
	input, err := json.Marshal(map[string][]payloadMessage{"messages": toPayload(older, compactTextChars)})
	if err != nil {
		return nil, fmt.Errorf("marshal older context: %w", err)
	}

	raw, err := a.completer.CompleteJSON(ctx, Request{
		Name:         "ContextSummary",
		Description:  "Summary of older chat context",
		Instructions: compressInstructions,
		Input:        string(input),
		Schema:       a.contextSchema,
	})
	if err != nil {
		return nil, fmt.Errorf("compress context: %w", err)
	}

	var cs contextSummary
	if err := json.Unmarshal([]byte(raw), &cs); err != nil {
		return nil, fmt.Errorf("decode context summary: %w", err)
	}
	merged := mergeSummary(cs)
	return &merged, nil
}

func mergeSummary(cs contextSummary) string {
	summary := strings.TrimSpace(cs.Summary)
	events := cs.NotableEvents
	if len(events) > maxNotableEvents {
		events = events[:maxNotableEvents]
	}
	merged := summary
	if notable := strings.Join(events, "; "); notable != "" {
		merged = summary + " Notable events: " + notable
	}
	return moments.Truncate(merged, maxContextSummaryChars)
}

func buildPayload(msgs []features.Message, summary *string) analysisPayload {
	recent := msgs
	if len(recent) > recentVerbatimMessages {
		recent = recent[len(recent)-recentVerbatimMessages:]
	}
	rows := toPayload(recent, maxVerbatimChars)
	return analysisPayload{
		ContextPolicy: contextPolicy{
			CompressedOlderContext: summary != nil && *summary != "",
			RecentVerbatimMessages: len(rows),
		},
		OlderContextSummary: summary,
		RecentMessages:      rows,
	}
}

func toPayload(msgs []features.Message, textChars int) []payloadMessage {
	out := make([]payloadMessage, len(msgs))
	for i, m := range msgs {
		out[i] = payloadMessage{
			Timestamp: m.Timestamp.UTC().Format(time.RFC3339),
			Sender:    moments.Truncate(m.SenderName, maxSenderChars),
			Text:      moments.Truncate(m.Text, textChars),
		}
	}
	return out
}
