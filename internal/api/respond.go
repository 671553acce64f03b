package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mahmoodhamdi/Bulk-Email-Sender-sub002/internal/engine"
)

type errorResponse struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, errorResponse{Error: msg})
}

// respondEngineError maps the engine error taxonomy onto HTTP statuses.
func respondEngineError(w http.ResponseWriter, err error) {
	var validation *engine.ValidationError
	switch {
	case errors.As(err, &validation):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, engine.ErrNoRecipients):
		respondError(w, http.StatusBadRequest, err.Error())
	case engine.IsNotFound(err):
		respondError(w, http.StatusNotFound, err.Error())
	case engine.IsStateConflict(err):
		respondError(w, http.StatusConflict, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}
