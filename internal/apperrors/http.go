package apperrors

import "net/http"

// HTTPStatus maps an error kind to the HTTP status the transport layer
// should return when no more specific status applies (spec.md §6's 201/200
// success codes are chosen by the handler itself, not derived from an
// error).
func HTTPStatus(code Code) int {
	switch code {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeValidation:
		return http.StatusBadRequest
	case CodeTransient:
		return http.StatusServiceUnavailable
	case CodeUnavailable:
		return http.StatusServiceUnavailable
	case CodeFatal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
