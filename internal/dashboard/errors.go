package dashboard

import (
	"encoding/json"
	"net/http"
)

// apiError is a structured error response.
type apiError struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

const (
	errCodeBadRequest   = "bad_request"
	errCodeNotFound     = "not_found"
	errCodeUnauthorized = "unauthorised"
	errCodeConflict     = "conflict"
	errCodeInternal     = "internal_error"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // best-effort write; connection may already be closed
		json.NewEncoder(w).Encode(v)
	}
}

func writeErr(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, apiError{Status: status, Code: code, Message: message})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeErr(w, http.StatusBadRequest, errCodeBadRequest, message)
}

func writeNotFound(w http.ResponseWriter, message string) {
	writeErr(w, http.StatusNotFound, errCodeNotFound, message)
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	writeErr(w, http.StatusUnauthorized, errCodeUnauthorized, message)
}

func writeConflict(w http.ResponseWriter, message string) {
	writeErr(w, http.StatusConflict, errCodeConflict, message)
}

func writeInternalError(w http.ResponseWriter, message string) {
	writeErr(w, http.StatusInternalServerError, errCodeInternal, message)
}
