package processor

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikeSquared-Agency/mixsig/internal/analysis"
	"github.com/MikeSquared-Agency/mixsig/internal/config"
	"github.com/MikeSquared-Agency/mixsig/internal/features"
	"github.com/MikeSquared-Agency/mixsig/internal/hermes"
	"github.com/MikeSquared-Agency/mixsig/internal/llm"
	"github.com/MikeSquared-Agency/mixsig/internal/store"
)

type jobUpdate struct {
	status   string
	progress int
	errMsg   string
}

type fakeStore struct {
	mu       sync.Mutex
	rows     []store.MessageRow
	listErr  error
	entered  chan struct{}
	release  chan struct{}
	updates  map[uuid.UUID][]jobUpdate
	reports  []store.ReportWrite
	lastJobs map[uuid.UUID]string
}

func newFakeStore(rows []store.MessageRow) *fakeStore {
	return &fakeStore{
		rows:     rows,
		updates:  make(map[uuid.UUID][]jobUpdate),
		lastJobs: make(map[uuid.UUID]string),
	}
}

func (f *fakeStore) ListMessages(_ context.Context, _ uuid.UUID) ([]store.MessageRow, error) {
	if f.entered != nil {
		f.entered <- struct{}{}
		<-f.release
	}
	return f.rows, f.listErr
}

func (f *fakeStore) UpdateJob(_ context.Context, id uuid.UUID, status string, progress int, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates[id] = append(f.updates[id], jobUpdate{status, progress, errMsg})
	f.lastJobs[id] = status
	return nil
}

func (f *fakeStore) SaveReport(_ context.Context, w store.ReportWrite) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reports = append(f.reports, w)
	f.lastJobs[w.JobID] = store.JobSucceeded
	return nil
}

func (f *fakeStore) jobStatus(id uuid.UUID) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastJobs[id]
}

type fakeCipher struct{}

func (fakeCipher) Encrypt(s string) (string, error) { return "enc:" + s, nil }

func (fakeCipher) Decrypt(s string) (string, error) {
	if !strings.HasPrefix(s, "enc:") {
		return "", errors.New("bad ciphertext")
	}
	return strings.TrimPrefix(s, "enc:"), nil
}

type published struct {
	subject string
	data    any
}

type fakePublisher struct {
	mu     sync.Mutex
	events []published
}

func (f *fakePublisher) Publish(subject string, data any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, published{subject, data})
	return nil
}

type fakeAnalyzer struct {
	report *llm.Report
	err    error
	calls  int
}

func (f *fakeAnalyzer) Analyze(context.Context, []features.Message) (*llm.Report, error) {
	f.calls++
	return f.report, f.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleRows() []store.MessageRow {
	base := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	a, b := uuid.New(), uuid.New()
	texts := []struct {
		sender uuid.UUID
		name   string
		text   string
		offset time.Duration
	}{
		{a, "A", "I miss you, we should meet next week", 0},
		{b, "B", "maybe, I'm busy", 13 * time.Minute},
		{a, "A", "let's plan something for Saturday", 20 * time.Minute},
		{b, "B", "I need some space right now", 49 * time.Minute},
	}
	rows := make([]store.MessageRow, len(texts))
	for i, tt := range texts {
		rows[i] = store.MessageRow{
			ID:            uuid.New(),
			Timestamp:     base.Add(tt.offset),
			SenderID:      tt.sender,
			SenderName:    tt.name,
			EncryptedText: "enc:" + tt.text,
		}
	}
	return rows
}

func newTestProcessor(s Store, a Analyzer, pub Publisher, engine string) *Processor {
	p := New(s, fakeCipher{}, analysis.New(nil, analysis.Options{}), a, pub,
		Options{Engine: engine, Retention: 24 * time.Hour, MaxAttempts: 1}, discardLogger())
	p.now = func() time.Time { return time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC) }
	return p
}

func TestProcess_Heuristic(t *testing.T) {
	rows := sampleRows()
	fs := newFakeStore(rows)
	pub := &fakePublisher{}
	p := newTestProcessor(fs, nil, pub, config.EngineHeuristic)

	jobID, uploadID := uuid.New(), uuid.New()
	require.NoError(t, p.Process(context.Background(), jobID, uploadID))

	require.Len(t, fs.reports, 1)
	w := fs.reports[0]
	assert.Equal(t, uploadID, w.UploadID)
	assert.Equal(t, jobID, w.JobID)
	assert.Equal(t, config.EngineHeuristic, w.Engine)
	assert.Equal(t, time.Date(2025, 2, 2, 0, 0, 0, 0, time.UTC), w.RetentionUntil)
	assert.NotContains(t, string(w.ReportJSON), "text_prefix")
	assert.NotContains(t, string(w.ReportJSON), "need some space")

	var report analysis.Report
	require.NoError(t, json.Unmarshal(w.ReportJSON, &report))
	assert.Equal(t, report.MixedSignalIndex, w.MixedSignalIndex)
	assert.Equal(t, report.SummaryText, w.SummaryText)
	require.NotEmpty(t, report.MomentsOfAmbiguity)

	known := make(map[uuid.UUID]string)
	for _, r := range rows {
		known[r.ID] = r.EncryptedText
	}
	require.NotEmpty(t, w.Excerpts)
	for _, ex := range w.Excerpts {
		assert.Equal(t, store.PurposeAmbiguityHighlight, ex.Purpose)
		assert.Equal(t, known[ex.MessageID], ex.EncryptedText)
	}

	assert.Equal(t, []jobUpdate{
		{store.JobRunning, 0, ""},
		{store.JobRunning, progressLoaded, ""},
		{store.JobRunning, progressAnalyzed, ""},
	}, fs.updates[jobID])

	require.Len(t, pub.events, 1)
	assert.Equal(t, hermes.SubjectAnalysisCompleted, pub.events[0].subject)
	done := pub.events[0].data.(hermes.AnalysisCompleted)
	assert.Equal(t, jobID, done.JobID)
	assert.Equal(t, config.EngineHeuristic, done.Engine)
}

func TestProcess_DecryptFailure(t *testing.T) {
	rows := sampleRows()
	rows[1].EncryptedText = "garbage"
	fs := newFakeStore(rows)
	pub := &fakePublisher{}
	p := newTestProcessor(fs, nil, pub, config.EngineHeuristic)

	jobID := uuid.New()
	err := p.Process(context.Background(), jobID, uuid.New())
	require.Error(t, err)

	assert.Empty(t, fs.reports)
	updates := fs.updates[jobID]
	last := updates[len(updates)-1]
	assert.Equal(t, store.JobFailed, last.status)
	assert.Contains(t, last.errMsg, "decrypt message")

	require.Len(t, pub.events, 1)
	assert.Equal(t, hermes.SubjectAnalysisFailed, pub.events[0].subject)
}

func TestProcess_LLM(t *testing.T) {
	fa := &fakeAnalyzer{report: &llm.Report{Assessment: llm.Assessment{
		MixedSignalIndex: 40,
		Confidence:       0.6,
		Summary:          "Mixed.",
	}}}
	fs := newFakeStore(sampleRows())
	p := newTestProcessor(fs, fa, nil, config.EngineLLM)

	require.NoError(t, p.Process(context.Background(), uuid.New(), uuid.New()))
	require.Len(t, fs.reports, 1)
	w := fs.reports[0]
	assert.Equal(t, config.EngineLLM, w.Engine)
	assert.Equal(t, 40.0, w.MixedSignalIndex)
	assert.Equal(t, "Mixed.", w.SummaryText)
	assert.Empty(t, w.Excerpts)
	assert.Equal(t, 1, fa.calls)
}

func TestProcess_LLMNoMessages(t *testing.T) {
	fa := &fakeAnalyzer{err: llm.ErrNoMessages}
	fs := newFakeStore(nil)
	p := newTestProcessor(fs, fa, nil, config.EngineLLM)

	jobID := uuid.New()
	require.Error(t, p.Process(context.Background(), jobID, uuid.New()))
	updates := fs.updates[jobID]
	assert.Equal(t, jobUpdate{store.JobFailed, progressLoaded, analysis.EmptySummary}, updates[len(updates)-1])
}

func TestProcess_LLMPermanentErrorNotRetried(t *testing.T) {
	fa := &fakeAnalyzer{err: llm.ErrInvalidReport}
	fs := newFakeStore(sampleRows())
	p := New(fs, fakeCipher{}, analysis.New(nil, analysis.Options{}), fa, nil,
		Options{Engine: config.EngineLLM, MaxAttempts: 3}, discardLogger())

	err := p.Process(context.Background(), uuid.New(), uuid.New())
	require.ErrorIs(t, err, llm.ErrInvalidReport)
	assert.Equal(t, 1, fa.calls)
}

func TestProcess_UnknownEngine(t *testing.T) {
	fs := newFakeStore(sampleRows())
	p := newTestProcessor(fs, nil, nil, "magic")

	jobID := uuid.New()
	err := p.Process(context.Background(), jobID, uuid.New())
	require.Error(t, err)
	assert.Equal(t, store.JobFailed, fs.jobStatus(jobID))
}

func TestSubmit_PublishesRequest(t *testing.T) {
	pub := &fakePublisher{}
	p := newTestProcessor(newFakeStore(nil), nil, pub, config.EngineHeuristic)

	jobID, uploadID := uuid.New(), uuid.New()
	require.NoError(t, p.Submit(jobID, uploadID))

	require.Len(t, pub.events, 1)
	assert.Equal(t, hermes.SubjectAnalysisRequested, pub.events[0].subject)
	req := pub.events[0].data.(hermes.AnalysisRequested)
	assert.Equal(t, jobID, req.JobID)
	assert.Equal(t, uploadID, req.UploadID)
}

func TestSubmit_RunsInProcessWithoutBus(t *testing.T) {
	fs := newFakeStore(sampleRows())
	p := newTestProcessor(fs, nil, nil, config.EngineHeuristic)

	jobID := uuid.New()
	require.NoError(t, p.Submit(jobID, uuid.New()))
	assert.Eventually(t, func() bool {
		return fs.jobStatus(jobID) == store.JobSucceeded
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHandleAnalysisRequested_IgnoresBadPayload(t *testing.T) {
	fs := newFakeStore(sampleRows())
	p := newTestProcessor(fs, nil, nil, config.EngineHeuristic)

	p.HandleAnalysisRequested(hermes.SubjectAnalysisRequested, []byte("{not json"))
	p.HandleAnalysisRequested(hermes.SubjectAnalysisRequested, []byte(`{}`))
	assert.Empty(t, fs.updates)
	assert.Empty(t, fs.reports)
}

func TestHandleAnalysisRequested_Runs(t *testing.T) {
	fs := newFakeStore(sampleRows())
	p := newTestProcessor(fs, nil, nil, config.EngineHeuristic)

	jobID, uploadID := uuid.New(), uuid.New()
	data, err := json.Marshal(hermes.AnalysisRequested{JobID: jobID, UploadID: uploadID})
	require.NoError(t, err)

	p.HandleAnalysisRequested(hermes.SubjectAnalysisRequested, data)
	assert.Equal(t, store.JobSucceeded, fs.jobStatus(jobID))
}

func TestProcess_ConcurrentSameUpload(t *testing.T) {
	fs := newFakeStore(sampleRows())
	fs.entered = make(chan struct{}, 2)
	fs.release = make(chan struct{})
	p := newTestProcessor(fs, nil, nil, config.EngineHeuristic)

	uploadID := uuid.New()
	first, second := uuid.New(), uuid.New()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		errs[0] = p.Process(context.Background(), first, uploadID)
	}()
	<-fs.entered

	wg.Add(1)
	go func() {
		defer wg.Done()
		errs[1] = p.Process(context.Background(), second, uploadID)
	}()
	time.Sleep(50 * time.Millisecond)
	close(fs.release)
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, store.JobSucceeded, fs.jobStatus(first))
	assert.Equal(t, store.JobSucceeded, fs.jobStatus(second))
}
