package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	domainerrors "github.com/listenupapp/listenup-mirrors/internal/errors"
	"github.com/listenupapp/listenup-mirrors/internal/mirror"
	"github.com/listenupapp/listenup-mirrors/internal/service"
)

func (s *Server) registerMirrorRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID:   "addMirror",
		Method:        http.MethodPost,
		Path:          "/api/v1/alternatives/{id}/mirrors",
		Summary:       "Add mirror",
		Description:   "Adds a library mirror in pending state and builds it in the background",
		Tags:          []string{"Mirrors"},
		DefaultStatus: http.StatusCreated,
	}, s.handleAddMirror)

	huma.Register(s.api, huma.Operation{
		OperationID: "removeMirror",
		Method:      http.MethodDelete,
		Path:        "/api/v1/alternatives/{id}/mirrors/{mirrorId}",
		Summary:     "Remove mirror",
		Description: "Removes a mirror and optionally its host library and files",
		Tags:        []string{"Mirrors"},
	}, s.handleRemoveMirror)

	huma.Register(s.api, huma.Operation{
		OperationID: "cleanupMirrors",
		Method:      http.MethodPost,
		Path:        "/api/v1/mirrors/cleanup",
		Summary:     "Clean up orphaned mirrors",
		Description: "Removes mirrors whose source or target library no longer exists",
		Tags:        []string{"Mirrors"},
		Middlewares: s.limitTriggers("cleanup"),
	}, s.handleCleanupMirrors)

	huma.Register(s.api, huma.Operation{
		OperationID: "validateMirror",
		Method:      http.MethodPost,
		Path:        "/api/v1/mirrors/validate",
		Summary:     "Validate mirror",
		Description: "Checks a proposed source library and target path without saving anything",
		Tags:        []string{"Mirrors"},
	}, s.handleValidateMirror)

	huma.Register(s.api, huma.Operation{
		OperationID: "mirrorProgress",
		Method:      http.MethodGet,
		Path:        "/api/v1/mirrors/progress",
		Summary:     "Mirror progress",
		Description: "Returns the completion percentage of every mirror operation in flight",
		Tags:        []string{"Mirrors"},
	}, s.handleMirrorProgress)
}

// === DTOs ===

// AddMirrorRequest is the request body for adding a mirror.
type AddMirrorRequest struct {
	SourceLibraryID   string `json:"source_library_id" validate:"required" doc:"Host library to mirror"`
	TargetPath        string `json:"target_path,omitempty" validate:"omitempty,abspath" doc:"Target directory; defaults to a directory under the base path"`
	TargetLibraryName string `json:"target_library_name,omitempty" validate:"omitempty,max=200" doc:"Host library name for the mirror"`
}

// AddMirrorInput is the Huma input for adding a mirror.
type AddMirrorInput struct {
	ID   string `path:"id" doc:"Alternative ID"`
	Body AddMirrorRequest
}

// MirrorOutput wraps a single mirror.
type MirrorOutput struct {
	Body MirrorResponse
}

// RemoveMirrorInput is the Huma input for removing a mirror.
type RemoveMirrorInput struct {
	ID            string `path:"id" doc:"Alternative ID"`
	MirrorID      string `path:"mirrorId" doc:"Mirror ID"`
	DeleteLibrary bool   `query:"delete_library" doc:"Remove the mirror's host library"`
	DeleteFiles   bool   `query:"delete_files" doc:"Remove the mirror's hardlinked tree"`
	Force         bool   `query:"force" doc:"Remove the entry even if it changed concurrently"`
}

// MirrorDeleteOutput wraps a mirror removal outcome.
type MirrorDeleteOutput struct {
	Body MirrorDeleteResponse
}

// CleanupOutput wraps the orphan cleanup result.
type CleanupOutput struct {
	Body *mirror.CleanupResult
}

// ValidateMirrorRequest is the request body for validating a mirror.
type ValidateMirrorRequest struct {
	SourceLibraryID string `json:"source_library_id" validate:"required" doc:"Host library to mirror"`
	TargetPath      string `json:"target_path" validate:"required" doc:"Proposed target directory"`
	AlternativeID   string `json:"alternative_id,omitempty" doc:"Alternative whose destination must contain the target"`
}

// ValidateMirrorInput is the Huma input for validating a mirror.
type ValidateMirrorInput struct {
	Body ValidateMirrorRequest
}

// ValidateMirrorResponse reports whether a proposed mirror is acceptable.
type ValidateMirrorResponse struct {
	Valid   bool   `json:"valid" doc:"Whether the mirror can be created"`
	Code    string `json:"code,omitempty" doc:"Error code when invalid"`
	Message string `json:"message,omitempty" doc:"Reason when invalid"`
}

// ValidateMirrorOutput wraps the validation outcome.
type ValidateMirrorOutput struct {
	Body ValidateMirrorResponse
}

// ProgressOutput wraps in-flight mirror progress.
type ProgressOutput struct {
	Body map[string]float64
}

// === Handlers ===

func (s *Server) handleAddMirror(ctx context.Context, input *AddMirrorInput) (*MirrorOutput, error) {
	if err := s.validator.Validate(input.Body); err != nil {
		return nil, err
	}

	m, err := s.alternatives.AddMirror(ctx, input.ID, service.AddMirrorRequest{
		SourceLibraryID:   input.Body.SourceLibraryID,
		TargetPath:        input.Body.TargetPath,
		TargetLibraryName: input.Body.TargetLibraryName,
	})
	if err != nil {
		return nil, err
	}
	return &MirrorOutput{Body: toMirrorResponse(m, nil)}, nil
}

func (s *Server) handleRemoveMirror(ctx context.Context, input *RemoveMirrorInput) (*MirrorDeleteOutput, error) {
	res, err := s.alternatives.RemoveMirror(ctx, input.ID, input.MirrorID,
		deleteOptions(input.DeleteLibrary, input.DeleteFiles, input.Force))
	if err != nil {
		return nil, err
	}
	if !res.ConfigRemoved && res.Conflict != "" {
		return nil, domainerrors.Conflictf("mirror %q changed during removal (%s); retry or force", input.MirrorID, res.Conflict)
	}
	return &MirrorDeleteOutput{Body: toMirrorDeleteResponse(res)}, nil
}

func (s *Server) handleCleanupMirrors(ctx context.Context, _ *struct{}) (*CleanupOutput, error) {
	result, err := s.alternatives.TriggerCleanup(ctx)
	if err != nil {
		return nil, err
	}
	return &CleanupOutput{Body: result}, nil
}

func (s *Server) handleValidateMirror(ctx context.Context, input *ValidateMirrorInput) (*ValidateMirrorOutput, error) {
	if err := s.validator.Validate(input.Body); err != nil {
		return nil, err
	}

	err := s.alternatives.ValidateMirror(ctx, input.Body.AlternativeID, input.Body.SourceLibraryID, input.Body.TargetPath)
	if err == nil {
		return &ValidateMirrorOutput{Body: ValidateMirrorResponse{Valid: true}}, nil
	}

	var domainErr *domainerrors.Error
	if !errors.As(err, &domainErr) || domainErr.Code == domainerrors.CodeInternal {
		return nil, err
	}
	return &ValidateMirrorOutput{Body: ValidateMirrorResponse{
		Valid:   false,
		Code:    string(domainErr.Code),
		Message: domainErr.Message,
	}}, nil
}

func (s *Server) handleMirrorProgress(_ context.Context, _ *struct{}) (*ProgressOutput, error) {
	return &ProgressOutput{Body: s.alternatives.Progress()}, nil
}
