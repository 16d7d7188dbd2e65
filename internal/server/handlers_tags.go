package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cuemby/relic/internal/identity"
	"github.com/cuemby/relic/pkg/apierr"
)

func (s *Server) handleGetTags(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	caller := identity.FromRequest(r)
	a, err := s.engine.GetArtifact(r.Context(), caller, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"tags": a.Tags})
}

func (s *Server) handleReplaceTags(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var body struct {
		Tags []string `json:"tags"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, r, apierr.Wrap(err, apierr.BadRequest, "malformed JSON body"))
		return
	}

	caller := identity.FromRequest(r)
	a, err := s.engine.ReplaceTags(r.Context(), caller, id, body.Tags)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"tags": a.Tags})
}

func (s *Server) handleDeleteTags(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	caller := identity.FromRequest(r)
	if _, err := s.engine.DeleteTags(r.Context(), caller, id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
