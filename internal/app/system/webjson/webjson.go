// internal/app/system/webjson/webjson.go
package webjson

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/campuskit/progresshub/internal/app/system/apperrors"

	"go.uber.org/zap"
)

// Write encodes v as the JSON response body with the given status.
func Write(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// errorBody is the uniform JSON error envelope.
type errorBody struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// WriteError maps the app error taxonomy onto HTTP statuses: validation
// errors are 400, missing records 404, exhausted write conflicts 409,
// everything else 500 with the detail kept in the log rather than the body.
func WriteError(w http.ResponseWriter, log *zap.Logger, err error) {
	var ve *apperrors.ValidationError
	switch {
	case errors.As(err, &ve):
		Write(w, http.StatusBadRequest, errorBody{Error: ve.Msg, Field: ve.Field})
	case errors.Is(err, apperrors.ErrNotFound):
		Write(w, http.StatusNotFound, errorBody{Error: "not found"})
	case errors.Is(err, apperrors.ErrConflict):
		Write(w, http.StatusConflict, errorBody{Error: "write conflict; retry the request"})
	default:
		log.Error("request failed", zap.Error(err))
		Write(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

// Decode reads the request body into v, returning a ValidationError on
// malformed JSON so the caller can pass it straight to WriteError.
func Decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return apperrors.Validation("body", "malformed JSON: %v", err)
	}
	return nil
}
