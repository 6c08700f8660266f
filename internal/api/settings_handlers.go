package api

import (
	"context"
	"net/http"
	"slices"

	"github.com/danielgtaylor/huma/v2"

	"github.com/listenupapp/listenup-mirrors/internal/classifier"
	"github.com/listenupapp/listenup-mirrors/internal/domain"
	"github.com/listenupapp/listenup-mirrors/internal/service"
)

func (s *Server) registerSettingsRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "getSettings",
		Method:      http.MethodGet,
		Path:        "/api/v1/settings",
		Summary:     "Get settings",
		Description: "Returns the mirror classifier, assignment and sync settings",
		Tags:        []string{"Settings"},
	}, s.handleGetSettings)

	huma.Register(s.api, huma.Operation{
		OperationID: "updateSettings",
		Method:      http.MethodPut,
		Path:        "/api/v1/settings",
		Summary:     "Update settings",
		Description: "Updates the fields present in the body and leaves the rest unchanged",
		Tags:        []string{"Settings"},
	}, s.handleUpdateSettings)
}

// === DTOs ===

// GroupMapping maps a directory group to an alternative.
type GroupMapping struct {
	GroupDN       string `json:"group_dn" validate:"required" doc:"Distinguished name of the directory group"`
	AlternativeID string `json:"alternative_id" validate:"required" doc:"Alternative assigned to group members"`
	Priority      int    `json:"priority" doc:"Higher priority wins when a user is in several mapped groups"`
}

// SettingsResponse is the API response for settings. Classifier lists that
// were never customized report the built-in defaults.
type SettingsResponse struct {
	ExcludedExtensions         []string       `json:"excluded_extensions" doc:"File extensions never mirrored"`
	ExcludedDirectories        []string       `json:"excluded_directories" doc:"Directory names whose contents are never mirrored"`
	IncludedDirectories        []string       `json:"included_directories" doc:"Directory names whose contents are always mirrored"`
	ClassifierCustomized       bool           `json:"classifier_customized" doc:"Whether any classifier list differs from the defaults"`
	DefaultAlternativeID       *string        `json:"default_alternative_id,omitempty" doc:"Alternative for users with no assignment or group mapping"`
	LdapGroupMappings          []GroupMapping `json:"ldap_group_mappings" doc:"Directory group mappings"`
	SyncAfterLibraryScan       bool           `json:"sync_after_library_scan" doc:"Sync mirrors when their source finishes scanning"`
	SetUserLanguagePreferences bool           `json:"set_user_language_preferences" doc:"Set users' audio and subtitle language from their alternative"`
}

// UpdateSettingsRequest is the request body for updating settings.
type UpdateSettingsRequest struct {
	ExcludedExtensions         *[]string       `json:"excluded_extensions,omitempty" doc:"Replace the excluded extensions"`
	ExcludedDirectories        *[]string       `json:"excluded_directories,omitempty" doc:"Replace the excluded directory names"`
	IncludedDirectories        *[]string       `json:"included_directories,omitempty" doc:"Replace the included directory names"`
	ResetClassifier            bool            `json:"reset_classifier,omitempty" doc:"Restore the default classifier lists first"`
	DefaultAlternativeID       *string         `json:"default_alternative_id,omitempty" doc:"Default alternative; empty string clears it"`
	LdapGroupMappings          *[]GroupMapping `json:"ldap_group_mappings,omitempty" validate:"omitempty,dive" doc:"Replace the group mappings"`
	SyncAfterLibraryScan       *bool           `json:"sync_after_library_scan,omitempty" doc:"Sync mirrors after source scans"`
	SetUserLanguagePreferences *bool           `json:"set_user_language_preferences,omitempty" doc:"Set user language preferences"`
}

// SettingsOutput wraps the settings response.
type SettingsOutput struct {
	Body SettingsResponse
}

// UpdateSettingsInput is the Huma input for updating settings.
type UpdateSettingsInput struct {
	Body UpdateSettingsRequest
}

// === Handlers ===

func (s *Server) handleGetSettings(ctx context.Context, _ *struct{}) (*SettingsOutput, error) {
	return &SettingsOutput{Body: toSettingsResponse(s.alternatives.GetSettings(ctx))}, nil
}

func (s *Server) handleUpdateSettings(ctx context.Context, input *UpdateSettingsInput) (*SettingsOutput, error) {
	if err := s.validator.Validate(input.Body); err != nil {
		return nil, err
	}

	update := &service.SettingsUpdate{
		ExcludedExtensions:         input.Body.ExcludedExtensions,
		ExcludedDirectories:        input.Body.ExcludedDirectories,
		IncludedDirectories:        input.Body.IncludedDirectories,
		ResetClassifier:            input.Body.ResetClassifier,
		DefaultAlternativeID:       input.Body.DefaultAlternativeID,
		SyncAfterLibraryScan:       input.Body.SyncAfterLibraryScan,
		SetUserLanguagePreferences: input.Body.SetUserLanguagePreferences,
	}
	if input.Body.LdapGroupMappings != nil {
		mappings := make([]domain.LdapGroupMapping, len(*input.Body.LdapGroupMappings))
		for i, m := range *input.Body.LdapGroupMappings {
			mappings[i] = domain.LdapGroupMapping{
				GroupDN:       m.GroupDN,
				AlternativeID: m.AlternativeID,
				Priority:      m.Priority,
			}
		}
		update.LdapGroupMappings = &mappings
	}

	settings, err := s.alternatives.UpdateSettings(ctx, update)
	if err != nil {
		return nil, err
	}
	return &SettingsOutput{Body: toSettingsResponse(settings)}, nil
}

func toSettingsResponse(st *service.Settings) SettingsResponse {
	resp := SettingsResponse{
		ExcludedExtensions:         effective(st.ExcludedExtensions, classifier.DefaultExcludedExtensions),
		ExcludedDirectories:        effective(st.ExcludedDirectories, classifier.DefaultExcludedDirectories),
		IncludedDirectories:        effective(st.IncludedDirectories, classifier.DefaultIncludedDirectories),
		ClassifierCustomized:       st.ExcludedExtensions != nil || st.ExcludedDirectories != nil || st.IncludedDirectories != nil,
		DefaultAlternativeID:       st.DefaultAlternativeID,
		LdapGroupMappings:          make([]GroupMapping, len(st.LdapGroupMappings)),
		SyncAfterLibraryScan:       st.SyncAfterLibraryScan,
		SetUserLanguagePreferences: st.SetUserLanguagePreferences,
	}
	for i, m := range st.LdapGroupMappings {
		resp.LdapGroupMappings[i] = GroupMapping{
			GroupDN:       m.GroupDN,
			AlternativeID: m.AlternativeID,
			Priority:      m.Priority,
		}
	}
	return resp
}

func effective(values, defaults []string) []string {
	if values == nil {
		return slices.Clone(defaults)
	}
	return values
}
