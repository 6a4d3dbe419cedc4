package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/mixsig/internal/analysis"
	"github.com/MikeSquared-Agency/mixsig/internal/config"
	"github.com/MikeSquared-Agency/mixsig/internal/llm"
	"github.com/MikeSquared-Agency/mixsig/internal/store"
)

type reportResponse struct {
	UploadID         uuid.UUID       `json:"upload_id"`
	Engine           string          `json:"engine"`
	MixedSignalIndex float64         `json:"mixed_signal_index"`
	Confidence       float64         `json:"confidence"`
	SummaryText      string          `json:"summary_text"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
	Report           json.RawMessage `json:"report"`
}

type downloadResponse struct {
	GeneratedAt      time.Time       `json:"generated_at"`
	UploadID         uuid.UUID       `json:"upload_id"`
	MixedSignalIndex float64         `json:"mixed_signal_index"`
	Confidence       float64         `json:"confidence"`
	SummaryText      string          `json:"summary_text"`
	Report           json.RawMessage `json:"report"`
}

// loadReport fetches a report and puts decrypted excerpt text back into it.
func (s *Server) loadReport(ctx context.Context, uploadID uuid.UUID) (*store.Report, json.RawMessage, error) {
	rep, err := s.deps.Store.GetReport(ctx, uploadID)
	if err != nil {
		return nil, nil, err
	}
	if rep.Engine != config.EngineHeuristic {
		return rep, rep.ReportJSON, nil
	}

	var body analysis.Report
	if err := json.Unmarshal(rep.ReportJSON, &body); err != nil {
		return nil, nil, fmt.Errorf("decode report: %w", err)
	}
	if err := s.rehydrate(ctx, uploadID, &body); err != nil {
		return nil, nil, err
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, nil, fmt.Errorf("encode report: %w", err)
	}
	return rep, raw, nil
}

func (s *Server) rehydrate(ctx context.Context, uploadID uuid.UUID, body *analysis.Report) error {
	encrypted, err := s.deps.Store.ListExcerpts(ctx, uploadID, store.PurposeAmbiguityHighlight)
	if err != nil {
		return err
	}
	plain := make(map[string]string, len(encrypted))
	for id, enc := range encrypted {
		text, err := s.deps.Cipher.Decrypt(enc)
		if err != nil {
			return fmt.Errorf("decrypt excerpt %s: %w", id, err)
		}
		plain[id.String()] = text
	}
	for i := range body.MomentsOfAmbiguity {
		m := &body.MomentsOfAmbiguity[i]
		for j := range m.Excerpts {
			m.Excerpts[j].TextPrefix = plain[m.Excerpts[j].MessageID]
		}
	}
	return nil
}

// getReport handles GET /api/v1/reports/{id}.
func (s *Server) getReport(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	rep, body, err := s.loadReport(r.Context(), id)
	if err != nil {
		s.storeError(w, err, "report")
		return
	}
	writeJSON(w, http.StatusOK, reportResponse{
		UploadID:         rep.UploadID,
		Engine:           rep.Engine,
		MixedSignalIndex: rep.MixedSignalIndex,
		Confidence:       rep.Confidence,
		SummaryText:      rep.SummaryText,
		CreatedAt:        rep.CreatedAt,
		UpdatedAt:        rep.UpdatedAt,
		Report:           body,
	})
}

// getHighlights handles GET /api/v1/reports/{id}/highlights.
func (s *Server) getHighlights(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	rep, body, err := s.loadReport(r.Context(), id)
	if err != nil {
		s.storeError(w, err, "report")
		return
	}

	var highlights any
	switch rep.Engine {
	case config.EngineHeuristic:
		var full analysis.Report
		if err := json.Unmarshal(body, &full); err != nil {
			s.storeError(w, err, "report")
			return
		}
		highlights = full.MomentsOfAmbiguity
	default:
		var full llm.Report
		if err := json.Unmarshal(body, &full); err != nil {
			s.storeError(w, err, "report")
			return
		}
		highlights = full.Highlights
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"upload_id":  id.String(),
		"highlights": highlights,
	})
}

// downloadReport handles GET /api/v1/reports/{id}/download?format=json|pdf.
func (s *Server) downloadReport(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	format := r.URL.Query().Get("format")
	switch format {
	case "", "json":
	case "pdf":
		writeError(w, http.StatusNotImplemented, "PDF export is not implemented yet")
		return
	default:
		writeError(w, http.StatusBadRequest, "format must be json or pdf")
		return
	}

	rep, body, err := s.loadReport(r.Context(), id)
	if err != nil {
		s.storeError(w, err, "report")
		return
	}

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=report-%s.json", id))
	writeJSON(w, http.StatusOK, downloadResponse{
		GeneratedAt:      s.now().UTC(),
		UploadID:         id,
		MixedSignalIndex: rep.MixedSignalIndex,
		Confidence:       rep.Confidence,
		SummaryText:      rep.SummaryText,
		Report:           body,
	})
}
