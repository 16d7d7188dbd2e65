package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/cuemby/relic/internal/identity"
	"github.com/cuemby/relic/pkg/apierr"
	"github.com/cuemby/relic/pkg/metrics"
)

const externalLocationMediaType = "application/vnd+openstack.glare-custom-location+json"

func (s *Server) handleUploadBlob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	slotPath := chi.URLParam(r, "*")
	if slotPath == "" {
		writeError(w, r, apierr.New(apierr.BadRequest, "blob path is required"))
		return
	}
	caller := identity.FromRequest(r)

	if mediaType(r.Header.Get("Content-Type")) == externalLocationMediaType {
		var body struct {
			URL string `json:"url"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.URL == "" {
			writeError(w, r, apierr.New(apierr.BadRequest, "malformed external blob registration body"))
			return
		}
		a, err := s.engine.RegisterExternalBlob(r.Context(), caller, id, slotPath, body.URL)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, artifactToJSON(a))
		return
	}

	lease, maxBytes, err := s.engine.BeginBlobUpload(r.Context(), caller, id, slotPath)
	if err != nil {
		if apierr.IsType(err, apierr.Conflict) {
			metrics.BlobLeaseContentionTotal.Inc()
		}
		writeError(w, r, err)
		return
	}

	timer := metrics.NewTimer()
	contentType := r.Header.Get("Content-Type")
	a, err := s.engine.FinalizeBlobUpload(r.Context(), caller, lease, maxBytes, contentType, r.Body)
	timer.ObserveDuration(metrics.BlobUploadDuration)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if slot, ok := a.Blobs[slotPath]; ok && slot.Size != nil {
		metrics.BlobBytesTransferred.WithLabelValues("upload").Add(float64(*slot.Size))
	} else if slotPath == "icon" && a.Icon != nil && a.Icon.Size != nil {
		metrics.BlobBytesTransferred.WithLabelValues("upload").Add(float64(*a.Icon.Size))
	}
	writeJSON(w, http.StatusOK, artifactToJSON(a))
}

func (s *Server) handleDownloadBlob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	slotPath := chi.URLParam(r, "*")
	if slotPath == "" {
		writeError(w, r, apierr.New(apierr.BadRequest, "blob path is required"))
		return
	}
	caller := identity.FromRequest(r)

	rc, slot, err := s.engine.DownloadBlob(r.Context(), caller, id, slotPath)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer rc.Close()

	if slot.ContentType != "" {
		w.Header().Set("Content-Type", slot.ContentType)
	}
	if slot.Size != nil {
		w.Header().Set("Content-Length", strconv.FormatInt(*slot.Size, 10))
	}
	w.WriteHeader(http.StatusOK)
	n, _ := io.Copy(w, rc)
	metrics.BlobBytesTransferred.WithLabelValues("download").Add(float64(n))
}
