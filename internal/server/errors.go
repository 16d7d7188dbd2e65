package server

import (
	"encoding/json"
	"mime"
	"net/http"

	"github.com/cuemby/relic/pkg/apierr"
	"github.com/cuemby/relic/pkg/log"
)

// mediaType strips any charset/boundary parameters from a Content-Type
// header, returning just the base media type. A malformed header
// returns the original string unchanged, deferring rejection to the
// caller's exact-match check.
func mediaType(contentType string) string {
	t, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return contentType
	}
	return t
}

// errorResponse is the JSON body written for every failed request. This
// is the only place in the module that translates an apierr.Type into
// an HTTP status code.
type errorResponse struct {
	Error string `json:"error"`
}

func statusFor(t apierr.Type) int {
	switch t {
	case apierr.BadRequest:
		return http.StatusBadRequest
	case apierr.Forbidden:
		return http.StatusForbidden
	case apierr.NotFound:
		return http.StatusNotFound
	case apierr.Conflict:
		return http.StatusConflict
	case apierr.PayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case apierr.UnsupportedMediaType:
		return http.StatusUnsupportedMediaType
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps err to the right status code and body. Anything that
// isn't an *apierr.Error is logged at error level and reported as a
// generic 500 — its detail never reaches the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	reqLog := log.WithRequestID(r.Context()).With().Str("component", "server").Logger()
	ae, ok := err.(*apierr.Error)
	if !ok {
		reqLog.Error().Err(err).Str("path", r.URL.Path).Msg("unhandled internal error")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}
	if ae.Type == apierr.Internal {
		reqLog.Error().Err(ae).Str("path", r.URL.Path).Msg("internal error")
	}
	writeJSON(w, statusFor(ae.Type), errorResponse{Error: ae.Message})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
