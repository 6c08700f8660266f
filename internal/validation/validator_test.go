package validation_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/listenupapp/listenup-mirrors/internal/errors"
	"github.com/listenupapp/listenup-mirrors/internal/validation"
)

type mapping struct {
	GroupDN  string `json:"group_dn" validate:"required"`
	Priority int    `json:"priority" validate:"gte=0"`
}

type testRequest struct {
	Name     string    `json:"name" validate:"required,max=100"`
	Language string    `json:"language_code" validate:"required,langtag"`
	BasePath string    `json:"destination_base_path" validate:"required,abspath"`
	Mappings []mapping `json:"mappings,omitempty" validate:"dive"`
}

func validRequest() testRequest {
	return testRequest{
		Name:     "Português",
		Language: "pt-BR",
		BasePath: "/media/pt",
	}
}

func TestValidator_ValidateSuccess(t *testing.T) {
	v := validation.New()
	assert.NoError(t, v.Validate(validRequest()))
}

func TestValidator_ValidateErrors(t *testing.T) {
	v := validation.New()

	tests := []struct {
		name      string
		mutate    func(*testRequest)
		wantField string
	}{
		{"missing name", func(r *testRequest) { r.Name = "" }, "name"},
		{"name too long", func(r *testRequest) { r.Name = string(make([]byte, 101)) }, "name"},
		{"bad language tag", func(r *testRequest) { r.Language = "not a language" }, "language_code"},
		{"relative base path", func(r *testRequest) { r.BasePath = "media/pt" }, "destination_base_path"},
		{"traversal in base path", func(r *testRequest) { r.BasePath = "/media/../etc" }, "destination_base_path"},
		{"nested field", func(r *testRequest) { r.Mappings = []mapping{{GroupDN: ""}} }, "mappings[0].group_dn"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(&req)

			err := v.Validate(req)
			require.Error(t, err)
			assert.ErrorIs(t, err, domainerrors.ErrValidation)

			var domainErr *domainerrors.Error
			require.ErrorAs(t, err, &domainErr)
			assert.Equal(t, http.StatusBadRequest, domainErr.HTTPStatus())
			assert.Contains(t, domainErr.Message, tt.wantField)

			details, ok := domainErr.Details.(map[string]string)
			require.True(t, ok)
			assert.Contains(t, details, tt.wantField)
		})
	}
}

func TestValidator_JSONFieldNames(t *testing.T) {
	v := validation.New()

	req := validRequest()
	req.BasePath = ""

	err := v.Validate(req)
	require.Error(t, err)

	assert.Contains(t, err.Error(), "destination_base_path")
	assert.NotContains(t, err.Error(), "BasePath")
}

func TestValidator_FriendlyMessages(t *testing.T) {
	v := validation.New()

	req := validRequest()
	req.BasePath = "relative"
	req.Language = "??"

	var domainErr *domainerrors.Error
	require.ErrorAs(t, v.Validate(req), &domainErr)

	details := domainErr.Details.(map[string]string)
	assert.Equal(t, "must be an absolute path without '..' segments", details["destination_base_path"])
	assert.Contains(t, details["language_code"], "language tag")
}
