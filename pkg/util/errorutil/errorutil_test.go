package errorutil

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToDomainError_PassesThroughWrappedDomainError(t *testing.T) {
	base := NewValidationError("number must be non-negative", map[string]any{"field": "number"})
	wrapped := fmt.Errorf("set cursor: %w", base)

	de := ToDomainError(wrapped)
	require.NotNil(t, de)
	assert.Equal(t, CodeValidation, de.Code)
	assert.Equal(t, http.StatusBadRequest, de.HTTPStatus)
	assert.Equal(t, "number", de.Details["field"])
}

func TestToDomainError_MapsKnownErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		code   string
		status int
	}{
		{"no rows", pgx.ErrNoRows, CodeNotFound, http.StatusNotFound},
		{"fiber forbidden", fiber.NewError(http.StatusForbidden, "staff role required"), CodeForbidden, http.StatusForbidden},
		{"fiber bad request", fiber.ErrBadRequest, CodeValidation, http.StatusBadRequest},
		{"storage", NewStorageError(errors.New("dial tcp: refused")), CodeStorage, http.StatusServiceUnavailable},
		{"unknown", errors.New("boom"), CodeInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			de := ToDomainError(tt.err)
			assert.Equal(t, tt.code, de.Code)
			assert.Equal(t, tt.status, de.HTTPStatus)
		})
	}
}

func TestToDomainError_Nil(t *testing.T) {
	assert.Nil(t, ToDomainError(nil))
}

func TestStorageErrorUnwraps(t *testing.T) {
	cause := errors.New("connection reset")
	err := NewStorageError(cause)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "storage unavailable")
}
