package apperr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{ErrUnauthenticated, http.StatusUnauthorized},
		{ErrInvalidCredentials, http.StatusUnauthorized},
		{ErrInvalidToken, http.StatusForbidden},
		{ErrTenantIsolation, http.StatusForbidden},
		{&Error{Code: EInsufficientRole, Msg: "requires role admin"}, http.StatusForbidden},
		{&Error{Code: EModuleNotEnabled, Msg: "module maintenance is not enabled"}, http.StatusForbidden},
		{ErrNotFound, http.StatusNotFound},
		{Invalid("op", "bad"), http.StatusBadRequest},
		{Conflict("op", "dup"), http.StatusConflict},
		{ErrTooManyRequests, http.StatusTooManyRequests},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, HTTPStatus(tt.err), "error %v", tt.err)
	}
}

func TestIsMatchesWrappedCode(t *testing.T) {
	err := fmt.Errorf("repository: %w", NotFound("deviation.Get", "deviation not found"))
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrConflict))
	assert.Equal(t, ENotFound, Code(err))
}

func TestWriteJSONHidesInternalCause(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSON(rec, nil, Internal("db.query", errors.New("pq: password authentication failed for user qh")))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var body Body
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "internal server error", body.Message)
}

func TestWriteJSONUsesSpecificMessage(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSON(rec, nil, &Error{Code: EModuleNotEnabled, Msg: "module maintenance is not enabled"})

	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t, `{"message":"module maintenance is not enabled"}`, rec.Body.String())
}
