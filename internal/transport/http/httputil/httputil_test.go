package httputil

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"accessfabric/internal/apperrors"
)

func TestWriteErrorOmitsDescriptionForFatal(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, apperrors.New(apperrors.CodeFatal, "store", "db failed"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	var body map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "fatal", body["error"])
	_, present := body["error_description"]
	assert.False(t, present)
}

func TestWriteErrorIncludesDescriptionForValidation(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, apperrors.New(apperrors.CodeValidation, "http", "name is required"))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var body map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "validation", body["error"])
	assert.Contains(t, body["error_description"], "name is required")
}

type fakeRequest struct {
	Name string `json:"name"`
}

func (r *fakeRequest) Validate() error {
	if r.Name == "" {
		return apperrors.New(apperrors.CodeValidation, "http", "name is required")
	}
	return nil
}

func TestDecodeAndPrepareSucceeds(t *testing.T) {
	body := strings.NewReader(`{"name":"alice"}`)
	r := httptest.NewRequest(http.MethodPost, "/", body)
	w := httptest.NewRecorder()

	req, ok := DecodeAndPrepare[fakeRequest](w, r, nil, context.Background(), "req-1")
	require.True(t, ok)
	assert.Equal(t, "alice", req.Name)
}

func TestDecodeAndPrepareRejectsInvalidRequest(t *testing.T) {
	body := strings.NewReader(`{"name":""}`)
	r := httptest.NewRequest(http.MethodPost, "/", body)
	w := httptest.NewRecorder()

	_, ok := DecodeAndPrepare[fakeRequest](w, r, nil, context.Background(), "req-1")
	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDecodeAndPrepareRejectsMalformedJSON(t *testing.T) {
	body := strings.NewReader(`not json`)
	r := httptest.NewRequest(http.MethodPost, "/", body)
	w := httptest.NewRecorder()

	_, ok := DecodeAndPrepare[fakeRequest](w, r, nil, context.Background(), "req-1")
	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
