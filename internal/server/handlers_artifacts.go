package server

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cuemby/relic/internal/identity"
	"github.com/cuemby/relic/pkg/apierr"
	"github.com/cuemby/relic/pkg/lifecycle"
	"github.com/cuemby/relic/pkg/query"
	"github.com/cuemby/relic/pkg/registry"
)

func (s *Server) handleCreateArtifact(w http.ResponseWriter, r *http.Request) {
	typeName := chi.URLParam(r, "type")
	ct := r.Header.Get("Content-Type")
	if ct != "" && mediaType(ct) != "application/json" {
		writeError(w, r, apierr.New(apierr.UnsupportedMediaType, "request body must be application/json"))
		return
	}

	var req createArtifactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, apierr.Wrap(err, apierr.BadRequest, "malformed JSON body"))
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, r, apierr.Wrap(err, apierr.BadRequest, "invalid request body"))
		return
	}

	desc, err := s.resolveType(typeName)
	if err != nil {
		writeError(w, r, err)
		return
	}
	props, err := decodeProperties(desc, req.Extra)
	if err != nil {
		writeError(w, r, err)
		return
	}

	caller := identity.FromRequest(r)
	a, err := s.engine.CreateArtifact(r.Context(), caller, typeName, lifecycle.NewArtifactInput{
		Name:        req.Name,
		Version:     req.Version,
		Description: req.Description,
		Tags:        req.Tags,
		Metadata:    req.Metadata,
		Properties:  props,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, artifactToJSON(a))
}

func (s *Server) handleGetArtifact(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	caller := identity.FromRequest(r)
	a, err := s.engine.GetArtifact(r.Context(), caller, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, artifactToJSON(a))
}

func (s *Server) handleListArtifacts(w http.ResponseWriter, r *http.Request) {
	typeName := chi.URLParam(r, "type")
	desc, err := s.resolveType(typeName)
	if err != nil {
		writeError(w, r, err)
		return
	}
	caller := identity.FromRequest(r)
	baseURL := "/artifacts/" + typeName
	res, err := query.List(r.Context(), caller, desc, s.engine.Gateway(), typeName, r.URL.Query(), baseURL)
	if err != nil {
		writeError(w, r, err)
		return
	}
	schema, err := s.registry.SchemaOf(typeName)
	if err != nil {
		writeError(w, r, err)
		return
	}

	body := map[string]interface{}{
		typeName: artifactsToJSON(res.Items),
		"first":  res.First,
		"schema": schema,
	}
	if res.Next != "" {
		body["next"] = res.Next
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleDeleteArtifact(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	caller := identity.FromRequest(r)
	if err := s.engine.DeleteArtifact(r.Context(), caller, id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePatchArtifact(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if mediaType(r.Header.Get("Content-Type")) != "application/json-patch+json" {
		writeError(w, r, apierr.New(apierr.UnsupportedMediaType, "patch body must be application/json-patch+json"))
		return
	}
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, r, apierr.Wrap(err, apierr.BadRequest, "failed to read request body"))
		return
	}

	caller := identity.FromRequest(r)
	a, err := s.engine.ApplyPatch(r.Context(), caller, id, raw)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, artifactToJSON(a))
}

func (s *Server) resolveType(name string) (*registry.TypeDescriptor, error) {
	desc, ok := s.registry.GetType(name)
	if !ok {
		return nil, apierr.NotFoundf("artifact type %q", name)
	}
	return desc, nil
}
