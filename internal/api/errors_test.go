package api

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/danielgtaylor/huma/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/listenupapp/listenup-mirrors/internal/errors"
)

func TestRegisterErrorHandler_DomainErrors(t *testing.T) {
	RegisterErrorHandler()

	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"not found", domainerrors.NotFound("alternative not found"), http.StatusNotFound, "NOT_FOUND"},
		{"already exists", domainerrors.AlreadyExists("name taken"), http.StatusConflict, "ALREADY_EXISTS"},
		{"filesystem", domainerrors.Filesystemf("different devices"), http.StatusBadRequest, "FILESYSTEM_MISMATCH"},
		{"wrapped conflict", fmt.Errorf("add mirror: %w", domainerrors.Conflict("overlap")), http.StatusConflict, "CONFLICT"},
		{"canceled", context.Canceled, http.StatusServiceUnavailable, "INTERNAL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			statusErr := huma.NewError(http.StatusInternalServerError, "unexpected error occurred", tt.err)

			apiErr, ok := statusErr.(*APIError)
			require.True(t, ok)
			assert.Equal(t, tt.status, apiErr.GetStatus())
			assert.Equal(t, tt.code, apiErr.Code)
		})
	}
}

func TestRegisterErrorHandler_MessageHidesCause(t *testing.T) {
	RegisterErrorHandler()

	err := domainerrors.Wrap(fmt.Errorf("open /secret/path: permission denied"), domainerrors.CodeInternal, "create target directory")
	apiErr, ok := huma.NewError(http.StatusInternalServerError, "unexpected error occurred", err).(*APIError)

	require.True(t, ok)
	assert.Equal(t, "create target directory", apiErr.Message)
	assert.Equal(t, http.StatusInternalServerError, apiErr.GetStatus())
}

func TestRegisterErrorHandler_PlainStatus(t *testing.T) {
	RegisterErrorHandler()

	apiErr, ok := huma.NewError(http.StatusTooManyRequests, "slow down").(*APIError)

	require.True(t, ok)
	assert.Equal(t, "RATE_LIMITED", apiErr.Code)
	assert.Equal(t, "slow down", apiErr.Message)
	assert.Nil(t, apiErr.Details)
}

func TestRegisterErrorHandler_SchemaDetails(t *testing.T) {
	RegisterErrorHandler()

	apiErr, ok := huma.NewError(http.StatusUnprocessableEntity, "validation failed",
		&huma.ErrorDetail{Location: "body.name", Message: "expected required property name to be present"},
	).(*APIError)

	require.True(t, ok)
	assert.Equal(t, "VALIDATION", apiErr.Code)
	assert.Equal(t, map[string]string{"body.name": "expected required property name to be present"}, apiErr.Details)
}
