// Package processor runs analysis jobs: it loads and decrypts an upload's
// messages, runs the configured engine and persists the report.
package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/MikeSquared-Agency/mixsig/internal/analysis"
	"github.com/MikeSquared-Agency/mixsig/internal/config"
	"github.com/MikeSquared-Agency/mixsig/internal/features"
	"github.com/MikeSquared-Agency/mixsig/internal/hermes"
	"github.com/MikeSquared-Agency/mixsig/internal/llm"
	"github.com/MikeSquared-Agency/mixsig/internal/store"
)

// Job progress checkpoints.
const (
	progressLoaded   = 10
	progressAnalyzed = 85
)

// Store is the persistence the processor needs.
type Store interface {
	ListMessages(ctx context.Context, uploadID uuid.UUID) ([]store.MessageRow, error)
	UpdateJob(ctx context.Context, id uuid.UUID, status string, progress int, errMsg string) error
	SaveReport(ctx context.Context, w store.ReportWrite) error
}

// Cipher encrypts and decrypts text at rest.
type Cipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// Publisher emits lifecycle events.
type Publisher interface {
	Publish(subject string, data any) error
}

// Analyzer is the model-backed engine.
type Analyzer interface {
	Analyze(ctx context.Context, msgs []features.Message) (*llm.Report, error)
}

// Options selects the engine and its limits.
type Options struct {
	Engine      string
	Retention   time.Duration
	MaxAttempts int
}

type Processor struct {
	store     Store
	cipher    Cipher
	pipeline  *analysis.Pipeline
	analyzer  Analyzer
	publisher Publisher
	logger    *slog.Logger
	opts      Options

	group singleflight.Group
	now   func() time.Time
}

// New builds a processor. analyzer may be nil when the heuristic engine is
// selected; publisher may be nil when no event bus is configured.
func New(s Store, c Cipher, pipeline *analysis.Pipeline, analyzer Analyzer, pub Publisher, opts Options, logger *slog.Logger) *Processor {
	if opts.Engine == "" {
		opts.Engine = config.EngineHeuristic
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	return &Processor{
		store:     s,
		cipher:    c,
		pipeline:  pipeline,
		analyzer:  analyzer,
		publisher: pub,
		logger:    logger,
		opts:      opts,
		now:       time.Now,
	}
}

// outcome is an engine result ready to persist.
type outcome struct {
	engine   string
	report   any
	index    float64
	conf     float64
	summary  string
	excerpts map[uuid.UUID]string
}

// Submit schedules an analysis. With an event bus the request is published
// for a worker; otherwise it runs in the background in this process.
func (p *Processor) Submit(jobID, uploadID uuid.UUID) error {
	if p.publisher != nil {
		return p.publisher.Publish(hermes.SubjectAnalysisRequested, hermes.AnalysisRequested{
			JobID:       jobID,
			UploadID:    uploadID,
			RequestedAt: p.now().UTC(),
		})
	}
	go func() {
		_ = p.Process(context.Background(), jobID, uploadID)
	}()
	return nil
}

// HandleAnalysisRequested is the NATS handler for mixsig.analysis.requested.
func (p *Processor) HandleAnalysisRequested(subject string, data []byte) {
	var evt hermes.AnalysisRequested
	if err := json.Unmarshal(data, &evt); err != nil {
		p.logger.Error("failed to parse analysis request", "error", err)
		return
	}
	if evt.JobID == uuid.Nil || evt.UploadID == uuid.Nil {
		p.logger.Warn("analysis request missing ids", "job_id", evt.JobID, "upload_id", evt.UploadID)
		return
	}
	_ = p.Process(context.Background(), evt.JobID, evt.UploadID)
}

// Process runs one job. Concurrent requests for the same upload share a
// single run; jobs that joined another run are finalised with its result.
func (p *Processor) Process(ctx context.Context, jobID, uploadID uuid.UUID) error {
	v, err, _ := p.group.Do(uploadID.String(), func() (any, error) {
		return jobID, p.run(ctx, jobID, uploadID)
	})
	if ranBy, _ := v.(uuid.UUID); ranBy != jobID {
		p.logger.Info("analysis coalesced", "job_id", jobID, "ran_by", ranBy, "upload_id", uploadID)
		if err != nil {
			p.fail(ctx, jobID, uploadID, 0, err)
		} else if uerr := p.store.UpdateJob(ctx, jobID, store.JobSucceeded, 100, ""); uerr != nil {
			p.logger.Error("failed to finalise coalesced job", "job_id", jobID, "error", uerr)
		}
	}
	return err
}

func (p *Processor) run(ctx context.Context, jobID, uploadID uuid.UUID) error {
	progress := 0
	if err := p.store.UpdateJob(ctx, jobID, store.JobRunning, progress, ""); err != nil {
		p.logger.Error("failed to mark job running", "job_id", jobID, "error", err)
	}

	msgs, err := p.loadMessages(ctx, uploadID)
	if err != nil {
		p.fail(ctx, jobID, uploadID, progress, err)
		return err
	}
	progress = progressLoaded
	if err := p.store.UpdateJob(ctx, jobID, store.JobRunning, progress, ""); err != nil {
		p.logger.Warn("failed to update job progress", "job_id", jobID, "error", err)
	}

	out, err := p.analyze(ctx, msgs)
	if err != nil {
		p.fail(ctx, jobID, uploadID, progress, err)
		return err
	}
	progress = progressAnalyzed
	if err := p.store.UpdateJob(ctx, jobID, store.JobRunning, progress, ""); err != nil {
		p.logger.Warn("failed to update job progress", "job_id", jobID, "error", err)
	}

	if err := p.persist(ctx, jobID, uploadID, out); err != nil {
		p.fail(ctx, jobID, uploadID, progress, err)
		return err
	}

	p.logger.Info("analysis completed",
		"job_id", jobID,
		"upload_id", uploadID,
		"engine", out.engine,
		"messages", len(msgs),
		"mixed_signal_index", out.index,
		"confidence", out.conf,
	)
	p.publish(hermes.SubjectAnalysisCompleted, hermes.AnalysisCompleted{
		JobID:            jobID,
		UploadID:         uploadID,
		Engine:           out.engine,
		MixedSignalIndex: out.index,
		Confidence:       out.conf,
		CompletedAt:      p.now().UTC(),
	})
	return nil
}

func (p *Processor) loadMessages(ctx context.Context, uploadID uuid.UUID) ([]features.Message, error) {
	rows, err := p.store.ListMessages(ctx, uploadID)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	msgs := make([]features.Message, len(rows))
	for i, r := range rows {
		text, err := p.cipher.Decrypt(r.EncryptedText)
		if err != nil {
			return nil, fmt.Errorf("decrypt message %s: %w", r.ID, err)
		}
		msgs[i] = features.Message{
			ID:         r.ID.String(),
			Timestamp:  r.Timestamp,
			SenderID:   r.SenderID.String(),
			SenderName: r.SenderName,
			Text:       text,
		}
	}
	return msgs, nil
}

func (p *Processor) analyze(ctx context.Context, msgs []features.Message) (*outcome, error) {
	switch p.opts.Engine {
	case config.EngineHeuristic:
		return p.analyzeHeuristic(msgs), nil
	case config.EngineLLM:
		return p.analyzeLLM(ctx, msgs)
	default:
		return nil, fmt.Errorf("unknown analysis engine %q", p.opts.Engine)
	}
}

// analyzeHeuristic moves excerpt text out of the report so it is only
// stored encrypted.
func (p *Processor) analyzeHeuristic(msgs []features.Message) *outcome {
	report := p.pipeline.Run(msgs)
	excerpts := make(map[uuid.UUID]string)
	for i := range report.MomentsOfAmbiguity {
		m := &report.MomentsOfAmbiguity[i]
		for j := range m.Excerpts {
			ex := &m.Excerpts[j]
			if id, err := uuid.Parse(ex.MessageID); err == nil {
				excerpts[id] = ex.TextPrefix
			}
			ex.TextPrefix = ""
		}
	}
	return &outcome{
		engine:   config.EngineHeuristic,
		report:   report,
		index:    report.MixedSignalIndex,
		conf:     report.Confidence,
		summary:  report.SummaryText,
		excerpts: excerpts,
	}
}

func (p *Processor) analyzeLLM(ctx context.Context, msgs []features.Message) (*outcome, error) {
	if p.analyzer == nil {
		return nil, errors.New("llm engine selected but no analyzer configured")
	}
	var report *llm.Report
	err := llm.Retry(ctx, p.opts.MaxAttempts, func(ctx context.Context) error {
		r, err := p.analyzer.Analyze(ctx, msgs)
		if err != nil {
			return err
		}
		report = r
		return nil
	})
	if errors.Is(err, llm.ErrNoMessages) {
		return nil, errors.New(analysis.EmptySummary)
	}
	if err != nil {
		return nil, fmt.Errorf("llm analysis: %w", err)
	}
	return &outcome{
		engine:  config.EngineLLM,
		report:  report,
		index:   float64(report.MixedSignalIndex),
		conf:    report.Confidence,
		summary: report.Summary,
	}, nil
}

func (p *Processor) persist(ctx context.Context, jobID, uploadID uuid.UUID, out *outcome) error {
	body, err := json.Marshal(out.report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	excerpts := make([]store.Excerpt, 0, len(out.excerpts))
	for id, text := range out.excerpts {
		enc, err := p.cipher.Encrypt(text)
		if err != nil {
			return fmt.Errorf("encrypt excerpt: %w", err)
		}
		excerpts = append(excerpts, store.Excerpt{
			MessageID:     id,
			Purpose:       store.PurposeAmbiguityHighlight,
			EncryptedText: enc,
		})
	}

	return p.store.SaveReport(ctx, store.ReportWrite{
		UploadID:         uploadID,
		JobID:            jobID,
		Engine:           out.engine,
		ReportJSON:       body,
		MixedSignalIndex: out.index,
		Confidence:       out.conf,
		SummaryText:      out.summary,
		Excerpts:         excerpts,
		RetentionUntil:   p.now().Add(p.opts.Retention),
	})
}

func (p *Processor) fail(ctx context.Context, jobID, uploadID uuid.UUID, progress int, cause error) {
	p.logger.Error("analysis failed", "job_id", jobID, "upload_id", uploadID, "error", cause)
	if err := p.store.UpdateJob(ctx, jobID, store.JobFailed, progress, cause.Error()); err != nil {
		p.logger.Error("failed to mark job failed", "job_id", jobID, "error", err)
	}
	p.publish(hermes.SubjectAnalysisFailed, hermes.AnalysisFailed{
		JobID:    jobID,
		UploadID: uploadID,
		Error:    cause.Error(),
		FailedAt: p.now().UTC(),
	})
}

func (p *Processor) publish(subject string, data any) {
	if p.publisher == nil {
		return
	}
	if err := p.publisher.Publish(subject, data); err != nil {
		p.logger.Error("failed to publish event", "subject", subject, "error", err)
	}
}
