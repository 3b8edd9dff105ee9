package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"

	"github.com/banshee-data/abduction.report/internal/httputil"
	"github.com/banshee-data/abduction.report/internal/pose/export"
	"github.com/banshee-data/abduction.report/internal/pose/sampler"
)

type startRequest struct {
	SubjectID string `json:"subject_id"`
}

// SessionAPI describes a finalized session without its records.
type SessionAPI struct {
	ID         string         `json:"id"`
	SubjectID  string         `json:"subject_id"`
	Status     sampler.Status `json:"status"`
	Records    int            `json:"records"`
	Valid      int            `json:"valid"`
	IntervalMs float64        `json:"interval_ms"`
	DurationMs float64        `json:"duration_ms"`
	Filename   string         `json:"filename"`
}

func (s *Server) sessionToAPI(sess *sampler.Session) SessionAPI {
	return SessionAPI{
		ID:         sess.ID,
		SubjectID:  sess.SubjectID,
		Status:     sess.Status,
		Records:    len(sess.Records),
		Valid:      sess.ValidCount(),
		IntervalMs: sess.IntervalMs,
		DurationMs: sess.DurationMs,
		Filename:   export.Filename(sess.SubjectID, sess.EndedAt, s.opts.Format),
	}
}

func (s *Server) showProgress(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.rec.Progress())
}

// startRecording accepts the subject either as JSON {"subject_id": ...} or
// as a subject_id form value.
func (s *Server) startRecording(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if isJSON(r) {
		if err := json.NewDecoder(io.LimitReader(r.Body, 4096)).Decode(&req); err != nil {
			s.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
			return
		}
	} else {
		req.SubjectID = r.FormValue("subject_id")
	}

	id, err := s.rec.Start(req.SubjectID)
	switch {
	case errors.Is(err, sampler.ErrInvalidSubject):
		s.writeJSONError(w, http.StatusBadRequest, "Subject code must be 1-10 letters, digits, '_' or '-'")
		return
	case errors.Is(err, sampler.ErrAlreadyRecording):
		s.writeJSONError(w, http.StatusConflict, "A recording is already in progress")
		return
	case err != nil:
		s.writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]string{"session_id": id, "subject_id": req.SubjectID})
}

// isJSON reports whether the request body is JSON, ignoring media type
// parameters such as charset.
func isJSON(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mt == "application/json"
}

func (s *Server) stopRecording(w http.ResponseWriter, r *http.Request) {
	sess, err := s.rec.Cancel()
	if errors.Is(err, sampler.ErrNotRecording) {
		s.writeJSONError(w, http.StatusConflict, "No recording in progress")
		return
	}
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, s.sessionToAPI(sess))
}

func (s *Server) exportLast(w http.ResponseWriter, r *http.Request) {
	sess, err := s.rec.Last()
	if err != nil {
		s.writeJSONError(w, http.StatusNotFound, "No finalized session")
		return
	}
	s.writeExport(w, r, sess)
}

// writeExport encodes sess as an attachment in the requested format.
func (s *Server) writeExport(w http.ResponseWriter, r *http.Request, sess *sampler.Session) {
	format := s.opts.Format
	if q := r.URL.Query().Get("format"); q != "" {
		f, err := export.ParseFormat(q)
		if err != nil {
			s.writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		format = f
	}
	data, err := export.Encode(sess, format)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to encode session: %v", err))
		return
	}
	httputil.WriteAttachment(w, format.ContentType(), export.Filename(sess.SubjectID, sess.EndedAt, format), data)
}
