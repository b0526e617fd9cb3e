package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// ErrCode is a stable machine-readable error tag, independent of the
// human-readable message, so API clients can switch on it.
type ErrCode string

const (
	ErrBadRequest   ErrCode = "bad_request"
	ErrInvalidBody  ErrCode = "invalid_body"
	ErrNotFound     ErrCode = "not_found"
	ErrForbidden    ErrCode = "forbidden"
	ErrRateLimited  ErrCode = "rate_limited"
	ErrConfigInvalid ErrCode = "config_invalid"
	ErrInternal     ErrCode = "internal_error"
)

// ErrorResponse is the standard error response body.
type ErrorResponse struct {
	Code   ErrCode `json:"code,omitempty"`
	Error  string  `json:"error"`
	Detail string  `json:"detail,omitempty"`
}

// WriteError writes a JSON error response without a specific code.
func WriteError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, ErrorResponse{Error: msg})
}

// WriteErrorWithCode writes a JSON error response carrying a stable code.
func WriteErrorWithCode(w http.ResponseWriter, status int, code ErrCode, msg string) {
	WriteJSON(w, status, ErrorResponse{Code: code, Error: msg})
}

// QueryString extracts a non-empty string query parameter.
func QueryString(r *http.Request, name string) (string, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return "", false
	}
	return v, true
}

// QueryBool extracts a boolean query parameter, defaulting to def when the
// parameter is absent or unparsable.
func QueryBool(r *http.Request, name string, def bool) bool {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// PathParam extracts a chi URL parameter, returning "" if absent.
func PathParam(r *http.Request, name string) string {
	return chi.URLParam(r, name)
}

// DecodeJSON reads and decodes a JSON request body into v.
func DecodeJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return fmt.Errorf("missing request body")
	}
	return json.NewDecoder(r.Body).Decode(v)
}
