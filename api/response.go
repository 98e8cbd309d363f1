package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/garnizeh/medequip/internal/errs"
)

const maxBodyBytes = 1 << 20

type successBody struct {
	Success bool   `json:"success"`
	Data    any    `json:"data"`
	Count   *int   `json:"count,omitempty"`
	Message string `json:"message,omitempty"`
}

type errorDetail struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

type errorBody struct {
	Success bool        `json:"success"`
	Error   errorDetail `json:"error"`
}

func writeJSON(w http.ResponseWriter, v any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeData(w http.ResponseWriter, status int, data any, message string) {
	writeJSON(w, successBody{Success: true, Data: data, Message: message}, status)
}

// writeList always encodes a JSON array, never null.
func writeList[T any](w http.ResponseWriter, items []T) {
	if items == nil {
		items = []T{}
	}
	n := len(items)
	writeJSON(w, successBody{Success: true, Data: items, Count: &n}, http.StatusOK)
}

// writeError renders err as an error envelope. Only the public message of a
// classified error reaches the client; causes go to the log.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	e, ok := errs.As(err)
	if !ok {
		e = &errs.Error{Kind: errs.KindOf(err), Err: err}
	}

	status := e.Kind.HTTPStatus()
	log := loggerFrom(r.Context())
	if status >= http.StatusInternalServerError {
		log.Error("request failed", zap.String("kind", e.Kind.String()), zap.Error(err))
	} else {
		log.Debug("request rejected", zap.String("kind", e.Kind.String()), zap.Error(err))
	}

	writeJSON(w, errorBody{Error: errorDetail{Kind: e.Kind.String(), Message: e.Public(), Field: e.Field}}, status)
}

func writeStatus(w http.ResponseWriter, status int, kind, msg string) {
	writeJSON(w, errorBody{Error: errorDetail{Kind: kind, Message: msg}}, status)
}

// decode reads a JSON request body into dst.
func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	return decodeBody(w, r, dst, false)
}

// decodeOptional is decode for endpoints whose body may be empty.
func decodeOptional(w http.ResponseWriter, r *http.Request, dst any) error {
	return decodeBody(w, r, dst, true)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any, optional bool) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil {
		return nil
	}

	var typeErr *json.UnmarshalTypeError
	var sizeErr *http.MaxBytesError
	switch {
	case errors.Is(err, io.EOF):
		if optional {
			return nil
		}
		return errs.Validation("", "request body is required")
	case errors.As(err, &typeErr):
		return errs.Validation(typeErr.Field, "invalid value for %s", typeErr.Field)
	case errors.As(err, &sizeErr):
		return errs.Validation("", "request body exceeds %d bytes", sizeErr.Limit)
	default:
		return errs.Validation("", "malformed request body")
	}
}
