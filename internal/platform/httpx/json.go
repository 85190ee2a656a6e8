package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

// maxJSONBody caps decoded request bodies.
const maxJSONBody = 1 << 20

// WriteJSON writes v as JSON with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// OK is the {ok:true} body shared by several endpoints.
var OK = map[string]bool{"ok": true}

// Decode reads a JSON body into dst and validates it. Malformed or invalid input
// yields a VALIDATION_ERROR *Error.
func Decode(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return Validation("Request body is required", nil)
		case errors.As(err, &maxErr):
			return Validation("Request body too large", nil)
		default:
			return Validation("Malformed JSON body", nil)
		}
	}
	return Validate(dst)
}
