package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-gateway/internal/shared"
)

func TestRespondErrorStatus(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"validation", shared.NewValidationError("email", "is required"), http.StatusBadRequest},
		{"missing field", &shared.MissingFieldError{Field: "email"}, http.StatusBadRequest},
		{"credentials", shared.ErrInvalidCredentials, http.StatusUnauthorized},
		{"unauthenticated", fmt.Errorf("gate: %w", shared.ErrUnauthenticated), http.StatusUnauthorized},
		{"forbidden", shared.ErrForbidden, http.StatusForbidden},
		{"csrf", shared.ErrCSRFTokenMismatch, http.StatusForbidden},
		{"not found", &shared.NotFoundError{Resource: "role", ID: "x"}, http.StatusNotFound},
		{"duplicate", &shared.DuplicateError{Resource: "user", Field: "email"}, http.StatusConflict},
		{"conflict", &shared.ConflictError{Resource: "role", Reason: "held"}, http.StatusConflict},
		{"foreign key", &shared.ForeignKeyViolationError{Constraint: "fk"}, http.StatusConflict},
		{"connection", &shared.ConnectionError{Attempts: 3, Err: errors.New("refused")}, http.StatusServiceUnavailable},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			RespondError(rr, tc.err)
			assert.Equal(t, tc.want, rr.Code)
			assert.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
		})
	}
}

func TestRespondErrorHidesInternalDetail(t *testing.T) {
	rr := httptest.NewRecorder()
	RespondError(rr, &shared.DatabaseError{Op: "insert", Err: errors.New("relation users does not exist")})

	require.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.NotContains(t, rr.Body.String(), "relation")
}

func TestRespondErrorListsFields(t *testing.T) {
	rr := httptest.NewRecorder()
	RespondError(rr, &shared.ValidationError{Fields: []shared.FieldError{
		{Field: "email", Message: "must be a valid email address"},
		{Field: "password", Message: "must be at least 8 characters"},
	}})

	var problem ProblemDetail
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &problem))
	assert.Equal(t, http.StatusBadRequest, problem.Status)
	require.Len(t, problem.Errors, 2)
	assert.Equal(t, "email", problem.Errors[0].Field)
}
