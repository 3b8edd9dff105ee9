package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/banshee-data/abduction.report/internal/httputil"
	"github.com/banshee-data/abduction.report/internal/pose/report"
	"github.com/banshee-data/abduction.report/internal/pose/sampler"
	"github.com/banshee-data/abduction.report/internal/pose/storage/sqlite"
)

// lookup resolves a session by ID from the store, falling back to the
// sampler's last session. It writes the error response itself.
func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*sampler.Session, bool) {
	id := chi.URLParam(r, "id")
	if last, err := s.rec.Last(); err == nil && (id == "last" || id == last.ID) {
		return last, true
	}
	if s.store == nil {
		s.writeJSONError(w, http.StatusNotFound, fmt.Sprintf("Session %s not found", id))
		return nil, false
	}
	sess, err := s.store.GetSession(r.Context(), id)
	if errors.Is(err, sqlite.ErrNotFound) {
		s.writeJSONError(w, http.StatusNotFound, fmt.Sprintf("Session %s not found", id))
		return nil, false
	}
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load session: %v", err))
		return nil, false
	}
	return sess, true
}

func (s *Server) requireStore(w http.ResponseWriter) bool {
	if s.store == nil {
		s.writeJSONError(w, http.StatusServiceUnavailable, "Session storage is disabled")
		return false
	}
	return true
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 0 {
			s.writeJSONError(w, http.StatusBadRequest, "Invalid 'limit' parameter")
			return
		}
		limit = n
	}
	subject := r.URL.Query().Get("subject")
	if subject != "" && !sampler.ValidSubject(subject) {
		s.writeJSONError(w, http.StatusBadRequest, "Invalid 'subject' parameter")
		return
	}
	sessions, err := s.store.ListSessions(r.Context(), subject, limit)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to list sessions: %v", err))
		return
	}
	s.writeJSON(w, http.StatusOK, sessions)
}

func (s *Server) showSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	tz := s.opts.Timezone
	if q := r.URL.Query().Get("timezone"); q != "" {
		tz = q
	}
	sum, err := report.Summarize(sess, s.opts.Zones, tz)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, struct {
		Session SessionAPI     `json:"session"`
		Summary report.Summary `json:"summary"`
	}{s.sessionToAPI(sess), sum})
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	err := s.store.DeleteSession(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, sqlite.ErrNotFound) {
		s.writeJSONError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) updateNotes(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	var body struct {
		Notes string `json:"notes"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, 64*1024)).Decode(&body); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	err := s.store.SetNotes(r.Context(), chi.URLParam(r, "id"), body.Notes)
	if errors.Is(err, sqlite.ErrNotFound) {
		s.writeJSONError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) exportSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	s.writeExport(w, r, sess)
}

func (s *Server) plotSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := report.WritePNG(&buf, sess, s.opts.Zones); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to render plot: %v", err))
		return
	}
	httputil.WriteBody(w, "image/png", buf.Bytes())
}

func (s *Server) chartSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	tz := s.opts.Timezone
	if q := r.URL.Query().Get("timezone"); q != "" {
		tz = q
	}
	var buf bytes.Buffer
	if err := report.WriteHTML(&buf, sess, s.opts.Zones, tz); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	httputil.WriteBody(w, "text/html; charset=utf-8", buf.Bytes())
}
