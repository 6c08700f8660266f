package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/listenupapp/listenup-mirrors/internal/mirror"
	"github.com/listenupapp/listenup-mirrors/internal/service"
)

func (s *Server) registerAlternativeRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "listAlternatives",
		Method:      http.MethodGet,
		Path:        "/api/v1/alternatives",
		Summary:     "List alternatives",
		Description: "Returns every language alternative with its mirrors",
		Tags:        []string{"Alternatives"},
	}, s.handleListAlternatives)

	huma.Register(s.api, huma.Operation{
		OperationID:   "createAlternative",
		Method:        http.MethodPost,
		Path:          "/api/v1/alternatives",
		Summary:       "Create alternative",
		Description:   "Creates a language alternative. Names are unique ignoring case.",
		Tags:          []string{"Alternatives"},
		DefaultStatus: http.StatusCreated,
	}, s.handleCreateAlternative)

	huma.Register(s.api, huma.Operation{
		OperationID: "getAlternative",
		Method:      http.MethodGet,
		Path:        "/api/v1/alternatives/{id}",
		Summary:     "Get alternative",
		Description: "Returns a language alternative by ID",
		Tags:        []string{"Alternatives"},
	}, s.handleGetAlternative)

	huma.Register(s.api, huma.Operation{
		OperationID: "updateAlternative",
		Method:      http.MethodPatch,
		Path:        "/api/v1/alternatives/{id}",
		Summary:     "Update alternative",
		Description: "Updates an alternative. The base path is locked while mirrors exist.",
		Tags:        []string{"Alternatives"},
	}, s.handleUpdateAlternative)

	huma.Register(s.api, huma.Operation{
		OperationID: "deleteAlternative",
		Method:      http.MethodDelete,
		Path:        "/api/v1/alternatives/{id}",
		Summary:     "Delete alternative",
		Description: "Deletes an alternative after tearing down its mirrors",
		Tags:        []string{"Alternatives"},
	}, s.handleDeleteAlternative)

	huma.Register(s.api, huma.Operation{
		OperationID:   "syncAlternative",
		Method:        http.MethodPost,
		Path:          "/api/v1/alternatives/{id}/sync",
		Summary:       "Sync alternative",
		Description:   "Starts a sync of every mirror of the alternative and returns immediately",
		Tags:          []string{"Alternatives"},
		DefaultStatus: http.StatusAccepted,
		Middlewares:   s.limitTriggers("sync"),
	}, s.handleSyncAlternative)
}

// === DTOs ===

// CreateAlternativeRequest is the request body for creating an alternative.
type CreateAlternativeRequest struct {
	Name                string `json:"name" validate:"required,max=100" maxLength:"100" doc:"Display name"`
	LanguageCode        string `json:"language_code" validate:"required,langtag" doc:"Preferred audio and subtitle language (e.g. pt-BR)"`
	MetadataLanguage    string `json:"metadata_language,omitempty" validate:"omitempty,langtag" doc:"Metadata language; defaults to language_code"`
	MetadataCountry     string `json:"metadata_country,omitempty" validate:"omitempty,len=2" doc:"Two-letter metadata country"`
	DestinationBasePath string `json:"destination_base_path" validate:"required,abspath" doc:"Absolute directory for mirror trees"`
}

// UpdateAlternativeRequest is the request body for updating an alternative.
type UpdateAlternativeRequest struct {
	Name                *string `json:"name,omitempty" validate:"omitempty,min=1,max=100" doc:"Display name"`
	LanguageCode        *string `json:"language_code,omitempty" validate:"omitempty,langtag" doc:"Preferred audio and subtitle language"`
	MetadataLanguage    *string `json:"metadata_language,omitempty" validate:"omitempty,langtag" doc:"Metadata language"`
	MetadataCountry     *string `json:"metadata_country,omitempty" validate:"omitempty,len=2" doc:"Two-letter metadata country"`
	DestinationBasePath *string `json:"destination_base_path,omitempty" validate:"omitempty,abspath" doc:"Absolute directory for mirror trees"`
}

// ListAlternativesOutput is the Huma output for listing alternatives.
type ListAlternativesOutput struct {
	Body []AlternativeResponse
}

// CreateAlternativeInput is the Huma input for creating an alternative.
type CreateAlternativeInput struct {
	Body CreateAlternativeRequest
}

// AlternativeIDInput identifies an alternative by path.
type AlternativeIDInput struct {
	ID string `path:"id" doc:"Alternative ID"`
}

// UpdateAlternativeInput is the Huma input for updating an alternative.
type UpdateAlternativeInput struct {
	ID   string `path:"id" doc:"Alternative ID"`
	Body UpdateAlternativeRequest
}

// AlternativeOutput wraps a single alternative.
type AlternativeOutput struct {
	Body AlternativeResponse
}

// DeleteAlternativeInput is the Huma input for deleting an alternative.
type DeleteAlternativeInput struct {
	ID              string `path:"id" doc:"Alternative ID"`
	DeleteLibraries bool   `query:"delete_libraries" doc:"Remove the mirrors' host libraries"`
	DeleteFiles     bool   `query:"delete_files" doc:"Remove the mirrors' hardlinked trees"`
}

// DeleteAlternativeResponse reports the outcome of an alternative delete.
type DeleteAlternativeResponse struct {
	Forced  bool                   `json:"forced" doc:"Set when concurrent changes forced the removal"`
	Mirrors []MirrorDeleteResponse `json:"mirrors" doc:"Per-mirror teardown results"`
}

// DeleteAlternativeOutput wraps the delete outcome.
type DeleteAlternativeOutput struct {
	Body DeleteAlternativeResponse
}

// SyncStartedResponse reports whether a sync was started.
type SyncStartedResponse struct {
	Started bool   `json:"started" doc:"False when a sync of this alternative was already running"`
	Message string `json:"message" doc:"Human-readable status"`
}

// SyncStartedOutput wraps the sync trigger response.
type SyncStartedOutput struct {
	Body SyncStartedResponse
}

// === Handlers ===

func (s *Server) handleListAlternatives(ctx context.Context, _ *struct{}) (*ListAlternativesOutput, error) {
	alts := s.alternatives.ListAlternatives(ctx)
	progress := s.alternatives.Progress()

	out := make([]AlternativeResponse, len(alts))
	for i := range alts {
		out[i] = toAlternativeResponse(&alts[i], progress)
	}
	return &ListAlternativesOutput{Body: out}, nil
}

func (s *Server) handleCreateAlternative(ctx context.Context, input *CreateAlternativeInput) (*AlternativeOutput, error) {
	if err := s.validator.Validate(input.Body); err != nil {
		return nil, err
	}

	alt, err := s.alternatives.CreateAlternative(ctx, service.CreateAlternativeRequest{
		Name:                input.Body.Name,
		LanguageCode:        input.Body.LanguageCode,
		MetadataLanguage:    input.Body.MetadataLanguage,
		MetadataCountry:     input.Body.MetadataCountry,
		DestinationBasePath: input.Body.DestinationBasePath,
	})
	if err != nil {
		return nil, err
	}
	return &AlternativeOutput{Body: toAlternativeResponse(alt, nil)}, nil
}

func (s *Server) handleGetAlternative(ctx context.Context, input *AlternativeIDInput) (*AlternativeOutput, error) {
	alt, err := s.alternatives.GetAlternative(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	return &AlternativeOutput{Body: toAlternativeResponse(alt, s.alternatives.Progress())}, nil
}

func (s *Server) handleUpdateAlternative(ctx context.Context, input *UpdateAlternativeInput) (*AlternativeOutput, error) {
	if err := s.validator.Validate(input.Body); err != nil {
		return nil, err
	}

	alt, err := s.alternatives.UpdateAlternative(ctx, input.ID, service.UpdateAlternativeRequest{
		Name:                input.Body.Name,
		LanguageCode:        input.Body.LanguageCode,
		MetadataLanguage:    input.Body.MetadataLanguage,
		MetadataCountry:     input.Body.MetadataCountry,
		DestinationBasePath: input.Body.DestinationBasePath,
	})
	if err != nil {
		return nil, err
	}
	return &AlternativeOutput{Body: toAlternativeResponse(alt, s.alternatives.Progress())}, nil
}

func (s *Server) handleDeleteAlternative(ctx context.Context, input *DeleteAlternativeInput) (*DeleteAlternativeOutput, error) {
	result, err := s.alternatives.DeleteAlternative(ctx, input.ID, service.DeleteAlternativeOptions{
		DeleteLibraries: input.DeleteLibraries,
		DeleteFiles:     input.DeleteFiles,
	})
	if err != nil {
		return nil, err
	}

	resp := DeleteAlternativeResponse{
		Forced:  result.Forced,
		Mirrors: make([]MirrorDeleteResponse, len(result.Mirrors)),
	}
	for i := range result.Mirrors {
		resp.Mirrors[i] = toMirrorDeleteResponse(&result.Mirrors[i])
	}
	return &DeleteAlternativeOutput{Body: resp}, nil
}

func (s *Server) handleSyncAlternative(ctx context.Context, input *AlternativeIDInput) (*SyncStartedOutput, error) {
	started, err := s.alternatives.TriggerSync(ctx, input.ID)
	if err != nil {
		return nil, err
	}

	msg := "sync started"
	if !started {
		msg = "a sync of this alternative is already running"
	}
	return &SyncStartedOutput{Body: SyncStartedResponse{Started: started, Message: msg}}, nil
}

// deleteOptions converts mirror delete query flags.
func deleteOptions(deleteLibrary, deleteFiles, force bool) mirror.DeleteOptions {
	return mirror.DeleteOptions{
		DeleteLibrary:      deleteLibrary,
		DeleteFiles:        deleteFiles,
		ForceConfigRemoval: force,
	}
}
