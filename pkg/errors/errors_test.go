package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetHTTPStatus(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want int
	}{
		{ErrCodeUnauthorized, http.StatusUnauthorized},
		{ErrCodeTokenExpired, http.StatusUnauthorized},
		{ErrCodeForbidden, http.StatusForbidden},
		{ErrCodeAuthLevelTooLow, http.StatusForbidden},
		{ErrCodeUnknownProfile, http.StatusBadRequest},
		{ErrCodeMissingRequired, http.StatusBadRequest},
		{ErrCodeRateLimited, http.StatusTooManyRequests},
		{ErrCodeNotFound, http.StatusNotFound},
		{ErrCodeTokenGeneration, http.StatusInternalServerError},
		{ErrorCode("SOMETHING_ELSE"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, New(tt.code, "msg").HTTPStatus)
		})
	}
}

func TestGateError_Wrapping(t *testing.T) {
	cause := stderrors.New("boom")
	err := Wrapf(cause, ErrCodeTokenGeneration, "failed to sign token for %s", "alice")

	assert.Equal(t, "[TOKEN_GENERATION] failed to sign token for alice: boom", err.Error())
	assert.ErrorIs(t, err, cause)

	outer := fmt.Errorf("handler: %w", err)
	assert.Equal(t, ErrCodeTokenGeneration, GetErrorCode(outer))
	assert.Equal(t, http.StatusInternalServerError, GetHTTPStatus(outer))

	assert.Equal(t, ErrCodeInternal, GetErrorCode(cause))

	err.WithDetails("subject", "alice")
	assert.Equal(t, "alice", err.Details["subject"])
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantError   string
		wantMessage string
	}{
		{
			name:        "gate error",
			err:         NewForbidden("Access denied: missing CACHE_WRITE"),
			wantStatus:  http.StatusForbidden,
			wantError:   "Forbidden",
			wantMessage: "Access denied: missing CACHE_WRITE",
		},
		{
			name:        "wrapped gate error",
			err:         fmt.Errorf("outer: %w", NewUnauthorized("Authentication required")),
			wantStatus:  http.StatusUnauthorized,
			wantError:   "Unauthorized",
			wantMessage: "Authentication required",
		},
		{
			name:        "plain error hides the cause",
			err:         stderrors.New("database password is hunter2"),
			wantStatus:  http.StatusInternalServerError,
			wantError:   "Internal Server Error",
			wantMessage: "internal server error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/v1/test/admin", nil)
			w := httptest.NewRecorder()

			WriteError(w, req, tt.err)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

			var body map[string]interface{}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Len(t, body, 5)
			assert.Equal(t, float64(tt.wantStatus), body["status"])
			assert.Equal(t, tt.wantError, body["error"])
			assert.Equal(t, tt.wantMessage, body["message"])
			assert.Equal(t, "/api/v1/test/admin", body["path"])
			assert.NotEmpty(t, body["timestamp"])
		})
	}
}
