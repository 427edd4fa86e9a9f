package api

import (
	"encoding/json"
	"net/http"

	"github.com/dgallion1/docoutline/internal/apperr"
	"github.com/dgallion1/docoutline/internal/config"
	"github.com/dgallion1/docoutline/internal/models"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, kind, msg string, code int) {
	writeJSON(w, code, map[string]string{"kind": kind, "error": msg})
}

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindInvalidInput:
		return http.StatusBadRequest
	case apperr.KindTooLarge:
		return http.StatusRequestEntityTooLarge
	case apperr.KindDuplicateContent:
		return http.StatusConflict
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindPersistenceFailure:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// writeError maps a gateway error to a status and a caller-safe body.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	code := statusFor(kind)
	if code >= 500 {
		s.log.Error("request failed", "path", r.URL.Path, "kind", kind, "error", err)
	}
	jsonError(w, string(kind), apperr.MessageOf(err), code)
}

// shapeSection drops the content representation the deployment does not serve.
func (s *Server) shapeSection(sec *models.Section) {
	switch s.cfg.ContentFormat {
	case config.FormatHTML:
		sec.ContentJSON = ""
	case config.FormatJSON:
		sec.ContentHTML = ""
	}
}
