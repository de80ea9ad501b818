package json

import (
	"encoding/json"
	"net/http"
)

// Error codes carried next to the message so clients can branch on the class.
const (
	CodePayload  = "payload_error"
	CodeNotFound = "not_found"
	CodeStorage  = "storage_error"
	CodeEngine   = "engine_error"
	CodeInternal = "internal"
)

type ErrorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	return json.NewEncoder(w).Encode(v)
}

func WriteError(w http.ResponseWriter, status int, code string, err error) {
	WriteJSON(w, status, ErrorBody{Error: err.Error(), Code: code})
}
