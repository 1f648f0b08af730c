package utils

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"event-ticketing/internal/apperr"
)

func TestWriteError_MapsKinds(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{apperr.ErrInvalidQuantity, http.StatusBadRequest, "invalid_quantity"},
		{apperr.ErrInsufficientStock.With("only 2 left"), http.StatusConflict, "insufficient_stock"},
		{apperr.ErrEventNotFound, http.StatusNotFound, "event_not_found"},
		{apperr.ErrForbidden, http.StatusForbidden, "forbidden"},
		{apperr.ErrPaymentNotCompleted, http.StatusPaymentRequired, "payment_not_completed"},
		{apperr.ErrPaymentProvider.Wrap(errors.New("stripe down")), http.StatusBadGateway, "payment_provider_error"},
		{errors.New("pq: connection refused"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteError(rec, tt.err)

			assert.Equal(t, tt.status, rec.Code)
			var body APIResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.False(t, body.Success)
			assert.Equal(t, tt.code, body.Error)
			assert.NotContains(t, body.Message, "pq:")
			assert.NotContains(t, body.Message, "stripe down")
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	var dst struct {
		Quantity int `json:"quantity"`
	}

	req := httptest.NewRequest("POST", "/", strings.NewReader(`{"quantity": 2}`))
	require.NoError(t, DecodeJSON(req, &dst))
	assert.Equal(t, 2, dst.Quantity)

	req = httptest.NewRequest("POST", "/", strings.NewReader(`{"quantity": 2, "extra": true}`))
	assert.ErrorIs(t, DecodeJSON(req, &dst), apperr.ErrInvalidRequest)

	req = httptest.NewRequest("POST", "/", strings.NewReader(`{"quantity": 2}{"quantity": 3}`))
	assert.ErrorIs(t, DecodeJSON(req, &dst), apperr.ErrInvalidRequest)
}

func TestWantsJSON(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	assert.False(t, WantsJSON(req))
	req.Header.Set("Accept", "application/json, text/plain")
	assert.True(t, WantsJSON(req))
}
