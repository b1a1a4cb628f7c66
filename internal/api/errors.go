package api

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the body of every non-2xx JSON answer.
type ErrorResponse struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// errorCodes gives each status this API emits a stable machine code.
var errorCodes = map[int]string{
	http.StatusBadRequest:          "bad_request",
	http.StatusNotFound:            "not_found",
	http.StatusUnprocessableEntity: "validation_error",
	http.StatusInternalServerError: "internal_error",
	http.StatusServiceUnavailable:  "unavailable",
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	code, ok := errorCodes[status]
	if !ok {
		code = "error"
	}
	writeJSON(w, status, ErrorResponse{Status: status, Code: code, Message: message})
}

func writeBadRequest(w http.ResponseWriter, msg string)    { writeError(w, http.StatusBadRequest, msg) }
func writeNotFound(w http.ResponseWriter, msg string)      { writeError(w, http.StatusNotFound, msg) }
func writeInternalError(w http.ResponseWriter, msg string) { writeError(w, http.StatusInternalServerError, msg) }
func writeUnavailable(w http.ResponseWriter, msg string)   { writeError(w, http.StatusServiceUnavailable, msg) }
