// Package httputil provides the small set of HTTP response and request
// helpers every transport handler shares, rebuilt from the call-site shape
// of the teacher's pkg/platform/httputil (its source is not present in
// this corpus slice; behavior here is reconstructed from
// pkg/platform/httputil/httputil_test.go's expectations plus every
// handler's call sites across the corpus, e.g.
// internal/decision/handler/handler.go and
// internal/ratelimit/middleware/ratelimit.go).
package httputil

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"accessfabric/internal/apperrors"
)

// errorResponse is the wire shape WriteError emits: "error" is always the
// error kind's code string; "error_description" carries the message for
// every kind except fatal (internal) errors, which must not leak detail.
type errorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// WriteJSON writes v as a JSON response body with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError maps err to its apperrors.Code and writes the corresponding
// HTTP status and JSON body. Fatal errors omit error_description so
// internal failure detail never reaches the caller.
func WriteError(w http.ResponseWriter, err error) {
	code := apperrors.CodeOf(err)
	status := apperrors.HTTPStatus(code)

	resp := errorResponse{Error: string(code)}
	if code != apperrors.CodeFatal {
		resp.ErrorDescription = err.Error()
	}
	WriteJSON(w, status, resp)
}

// Validatable is implemented by a pointer to a request body: it can
// validate and normalize itself after JSON decoding.
type Validatable interface {
	Validate() error
}

// DecodeAndPrepare decodes r's JSON body into a T, calls (*T).Validate,
// and on any failure writes the error response and returns ok=false.
// Handlers that get ok=false must return immediately without writing any
// further response. T is the plain request struct; PT is inferred as *T
// by the compiler from the constraint, matching the corpus's
// one-type-argument call sites (e.g. DecodeAndPrepare[EvaluateRequest](...)).
func DecodeAndPrepare[T any, PT interface {
	*T
	Validatable
}](w http.ResponseWriter, r *http.Request, log *slog.Logger, ctx context.Context, requestID string) (T, bool) {
	var req T
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if log != nil {
			log.WarnContext(ctx, "request body decode failed", "request_id", requestID, "error", err)
		}
		WriteError(w, apperrors.Wrap(err, apperrors.CodeValidation, "http", "malformed request body"))
		var zero T
		return zero, false
	}
	if err := PT(&req).Validate(); err != nil {
		WriteError(w, err)
		var zero T
		return zero, false
	}
	return req, true
}
