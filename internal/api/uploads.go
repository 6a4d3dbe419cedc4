package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/MikeSquared-Agency/mixsig/internal/parsing"
	"github.com/MikeSquared-Agency/mixsig/internal/store"
	"github.com/MikeSquared-Agency/mixsig/internal/uploads"
)

const (
	multipartMemory   = 8 << 20
	multipartOverhead = 1 << 20
)

type uploadResponse struct {
	UploadID         string   `json:"upload_id"`
	MessageCount     int      `json:"message_count"`
	ParticipantCount int      `json:"participant_count"`
	Participants     []string `json:"participants"`
	Parser           string   `json:"parser"`
}

// createUpload handles POST /api/v1/uploads.
func (s *Server) createUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+multipartOverhead)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, uploads.ErrTooLarge.Error())
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	// Without an explicit platform, .txt is read as WhatsApp and .json as generic.
	platform := strings.ToLower(strings.TrimSpace(r.FormValue("platform")))
	if platform == "" {
		platform = uploads.PlatformFromFilename(header.Filename)
	}
	switch platform {
	case parsing.PlatformWhatsApp, parsing.PlatformIMessage, parsing.PlatformGeneric:
	default:
		writeError(w, http.StatusBadRequest, "platform must be one of whatsapp, imessage, generic")
		return
	}

	tz := strings.TrimSpace(r.FormValue("timezone"))
	if tz == "" {
		tz = "UTC"
	}
	if _, err := parsing.LoadLocation(tz); err != nil {
		writeError(w, http.StatusBadRequest, "invalid timezone")
		return
	}

	path, err := s.deps.Files.Save(platform, header.Filename, header.Header.Get("Content-Type"), file)
	switch {
	case errors.Is(err, uploads.ErrTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, err.Error())
		return
	case errors.Is(err, uploads.ErrInvalidFile), errors.Is(err, parsing.ErrUnsupportedPlatform):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		s.logger.Error("failed to save upload", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	chat, err := s.parseSaved(path, platform, tz)
	if err != nil {
		s.removeFile(path)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	msgs := make([]store.NewMessage, len(chat.Messages))
	for i, m := range chat.Messages {
		enc, err := s.deps.Cipher.Encrypt(m.Text)
		if err != nil {
			s.removeFile(path)
			s.logger.Error("failed to encrypt message", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		msgs[i] = store.NewMessage{Timestamp: m.Timestamp, Sender: m.Sender, EncryptedText: enc}
	}

	summary := map[string]any{
		"parser":            chat.Parser,
		"message_count":     len(chat.Messages),
		"participant_count": len(chat.Participants),
		"label_names":       splitLabels(r.FormValue("label_names")),
	}

	id, err := s.deps.Store.CreateUpload(r.Context(), store.NewUpload{
		Platform:       platform,
		Timezone:       tz,
		FilePath:       path,
		RetentionUntil: s.now().Add(s.cfg.Retention),
		ParsingSummary: summary,
		Participants:   chat.Participants,
		Messages:       msgs,
	})
	if err != nil {
		s.removeFile(path)
		s.storeError(w, err, "upload")
		return
	}

	s.logger.Info("upload parsed",
		"upload_id", id,
		"platform", platform,
		"parser", chat.Parser,
		"messages", len(chat.Messages),
	)
	writeJSON(w, http.StatusCreated, uploadResponse{
		UploadID:         id.String(),
		MessageCount:     len(chat.Messages),
		ParticipantCount: len(chat.Participants),
		Participants:     chat.Participants,
		Parser:           chat.Parser,
	})
}

func (s *Server) parseSaved(path, platform, tz string) (*parsing.Chat, error) {
	f, err := s.deps.Files.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parsing.Parse(f, platform, tz)
}

func (s *Server) removeFile(path string) {
	if err := s.deps.Files.Delete(path); err != nil {
		s.logger.Warn("failed to remove upload file", "error", err)
	}
}

func splitLabels(raw string) []string {
	out := []string{}
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

type uploadDetail struct {
	*store.Upload
	MessageCount int `json:"message_count"`
}

// getUpload handles GET /api/v1/uploads/{id}.
func (s *Server) getUpload(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	u, err := s.deps.Store.GetUpload(r.Context(), id)
	if err != nil {
		s.storeError(w, err, "upload")
		return
	}
	n, err := s.deps.Store.CountMessages(r.Context(), id)
	if err != nil {
		s.storeError(w, err, "upload")
		return
	}
	writeJSON(w, http.StatusOK, uploadDetail{Upload: u, MessageCount: n})
}

// deleteUpload handles DELETE /api/v1/uploads/{id}. Messages, jobs, reports
// and excerpts go with the upload row.
func (s *Server) deleteUpload(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	u, err := s.deps.Store.GetUpload(r.Context(), id)
	if err != nil {
		s.storeError(w, err, "upload")
		return
	}
	if err := s.deps.Files.Delete(u.FilePath); err != nil {
		s.logger.Error("failed to delete upload file", "upload_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if err := s.deps.Store.DeleteUpload(r.Context(), id); err != nil {
		s.storeError(w, err, "upload")
		return
	}
	s.logger.Info("upload deleted", "upload_id", id)
	w.WriteHeader(http.StatusNoContent)
}

// analyzeUpload handles POST /api/v1/uploads/{id}/analyze.
func (s *Server) analyzeUpload(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	if _, err := s.deps.Store.GetUpload(r.Context(), id); err != nil {
		s.storeError(w, err, "upload")
		return
	}
	job, err := s.deps.Store.CreateJob(r.Context(), id)
	if err != nil {
		s.storeError(w, err, "job")
		return
	}
	if err := s.deps.Jobs.Submit(job.ID, id); err != nil {
		s.logger.Error("failed to submit analysis", "job_id", job.ID, "upload_id", id, "error", err)
		if uerr := s.deps.Store.UpdateJob(r.Context(), job.ID, store.JobFailed, 0, err.Error()); uerr != nil {
			s.logger.Error("failed to mark job failed", "job_id", job.ID, "error", uerr)
		}
		writeError(w, http.StatusServiceUnavailable, "analysis could not be scheduled")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": job.ID.String()})
}

// getJob handles GET /api/v1/jobs/{id}.
func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	job, err := s.deps.Store.GetJob(r.Context(), id)
	if err != nil {
		s.storeError(w, err, "job")
		return
	}
	writeJSON(w, http.StatusOK, job)
}
