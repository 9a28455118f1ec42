package api

import (
	"context"
	"fmt"
	"maps"
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"

	"github.com/allaspectsdev/provswitch/internal/bridge"
	"github.com/allaspectsdev/provswitch/internal/session"
)

type candidateRequest struct {
	URL string `json:"url"`
}

type fieldsRequest struct {
	BaseURL *string                     `json:"base_url"`
	APIKey  *string                     `json:"api_key"`
	Models  map[bridge.ModelSlot]string `json:"models"`
}

type blobRequest struct {
	Blob *string `json:"blob"`
}

// lookupSession resolves {sid} or writes a 404.
func (s *Server) lookupSession(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sid := chi.URLParam(r, "sid")
	sess, ok := s.opts.Sessions.Get(sid)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": fmt.Sprintf("session %q not found", sid)})
		return nil, false
	}
	return sess, true
}

func (s *Server) handleOpenSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.opts.Sessions.Open(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess.Snapshot())
}

// handleOpenDraftSession starts a session for a provider that does not exist
// yet. The first commit creates it.
func (s *Server) handleOpenDraftSession(w http.ResponseWriter, r *http.Request) {
	var req providerRequest
	if err := s.decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	p, err := s.draftProvider(req)
	if err != nil {
		writeError(w, err)
		return
	}
	sess, err := s.opts.Sessions.OpenNew(p)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess.Snapshot())
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	if !s.opts.Sessions.Close(chi.URLParam(r, "sid")) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not found"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAddCandidate(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	var req candidateRequest
	if err := s.decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	c, err := sess.AddCandidate(req.URL)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// handleRemoveCandidate removes ?url= from the draft.
func (s *Server) handleRemoveCandidate(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	url := r.URL.Query().Get("url")
	if url == "" {
		writeError(w, badRequest("url query parameter is required"))
		return
	}
	removed, err := sess.RemoveCandidate(url)
	if err != nil {
		writeError(w, err)
		return
	}
	if !removed {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "candidate not found"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSpeedTest runs one probe round. The round is detached from the
// request so a disconnecting client does not cancel it; per-URL timeouts
// still bound it.
func (s *Server) handleSpeedTest(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	ranked, err := sess.RunSpeedTest(context.WithoutCancel(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ranked":  ranked,
		"session": sess.Snapshot(),
	})
}

// handleSetFields writes the given fields into the blob. Absent fields are
// left alone; an empty string clears a field.
func (s *Server) handleSetFields(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	var req fieldsRequest
	if err := s.decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	// Reject the whole request before any field is written.
	slots := slices.Sorted(maps.Keys(req.Models))
	for _, slot := range slots {
		if err := sess.CheckSlot(slot); err != nil {
			writeError(w, err)
			return
		}
	}
	if req.BaseURL != nil {
		if err := sess.SetBaseURL(*req.BaseURL); err != nil {
			writeError(w, err)
			return
		}
	}
	if req.APIKey != nil {
		if err := sess.SetAPIKey(*req.APIKey); err != nil {
			writeError(w, err)
			return
		}
	}
	for _, slot := range slots {
		if err := sess.SetModel(slot, req.Models[slot]); err != nil {
			writeError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

// handleBlobChanged accepts a raw editor notification.
func (s *Server) handleBlobChanged(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	var req blobRequest
	if err := s.decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Blob == nil {
		writeError(w, badRequest("blob is required"))
		return
	}
	adopted, err := sess.ConfigChanged(*req.Blob)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"adopted": adopted,
		"session": sess.Snapshot(),
	})
}

func (s *Server) handleCommit(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	if err := sess.Commit(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}
