package handler

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/warfront-game/api/pkg/risk"
)

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Error encoding response")
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// decodeJSON reads and decodes JSON from a request body.
func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// writeRejection maps a typed rejection onto an HTTP status. Non-rejection
// errors become a 500.
func writeRejection(w http.ResponseWriter, err error) {
	rej := risk.AsRejection(err)
	if rej == nil {
		log.Error().Err(err).Msg("Unexpected error on REST surface")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	status := http.StatusUnprocessableEntity
	switch rej.Code {
	case risk.CodeSessionNotFound:
		status = http.StatusNotFound
	case risk.CodeSessionExists:
		status = http.StatusConflict
	case risk.CodeUnauthorizedClient:
		status = http.StatusForbidden
	case risk.CodePersistenceUnavailable:
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]string{
		"code":  rej.Code,
		"error": rej.Message,
	})
}
