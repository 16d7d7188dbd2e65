package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cuemby/relic/pkg/apierr"
)

func (s *Server) handleListSchemas(w http.ResponseWriter, r *http.Request) {
	schemas, err := s.registry.ListTypes()
	if err != nil {
		writeError(w, r, apierr.Wrap(err, apierr.Internal, "failed to render type schemas"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"schemas": schemas})
}

func (s *Server) handleGetSchema(w http.ResponseWriter, r *http.Request) {
	typeName := chi.URLParam(r, "type")
	schema, err := s.registry.SchemaOf(typeName)
	if err != nil {
		writeError(w, r, apierr.NotFoundf("artifact type %q", typeName))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"schemas": map[string]interface{}{typeName: schema}})
}
