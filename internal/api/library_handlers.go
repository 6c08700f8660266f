package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

func (s *Server) registerLibraryRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "listLibraries",
		Method:      http.MethodGet,
		Path:        "/api/v1/libraries",
		Summary:     "List host libraries",
		Description: "Returns the host's libraries and which of them are mirror sources or mirrors",
		Tags:        []string{"Libraries"},
	}, s.handleListLibraries)

	huma.Register(s.api, huma.Operation{
		OperationID:   "libraryScanned",
		Method:        http.MethodPost,
		Path:          "/api/v1/libraries/{id}/scanned",
		Summary:       "Library scan finished",
		Description:   "Host notification that a library finished scanning; syncs its mirrors when enabled",
		Tags:          []string{"Libraries"},
		DefaultStatus: http.StatusAccepted,
	}, s.handleLibraryScanned)
}

// LibraryResponse is a host library in API responses.
type LibraryResponse struct {
	ID             string   `json:"id" doc:"Host library ID"`
	Name           string   `json:"name" doc:"Library name"`
	CollectionType string   `json:"collection_type,omitempty" doc:"Host collection type"`
	Paths          []string `json:"paths" doc:"Folders of the library"`
	IsMirrorSource bool     `json:"is_mirror_source" doc:"Whether any alternative mirrors this library"`
	MirrorOf       string   `json:"mirror_of,omitempty" doc:"Source library ID when this library is a mirror"`
}

// ListLibrariesOutput wraps the library list.
type ListLibrariesOutput struct {
	Body []LibraryResponse
}

// LibraryScannedInput identifies the scanned library.
type LibraryScannedInput struct {
	ID string `path:"id" doc:"Host library ID"`
}

func (s *Server) handleListLibraries(ctx context.Context, _ *struct{}) (*ListLibrariesOutput, error) {
	libs, err := s.alternatives.ListLibraries(ctx)
	if err != nil {
		return nil, huma.Error502BadGateway("failed to list host libraries", err)
	}

	cfg := s.store.Snapshot()
	sources := cfg.MirroredSourceLibraryIDs()
	mirrorOf := make(map[string]string)
	for _, ref := range cfg.AllMirrors() {
		if ref.Mirror.HasTargetLibrary() {
			mirrorOf[*ref.Mirror.TargetLibraryID] = ref.Mirror.SourceLibraryID
		}
	}

	out := make([]LibraryResponse, len(libs))
	for i, l := range libs {
		_, isSource := sources[l.ID]
		out[i] = LibraryResponse{
			ID:             l.ID,
			Name:           l.Name,
			CollectionType: l.CollectionType,
			Paths:          append([]string{}, l.Paths...),
			IsMirrorSource: isSource,
			MirrorOf:       mirrorOf[l.ID],
		}
	}
	return &ListLibrariesOutput{Body: out}, nil
}

func (s *Server) handleLibraryScanned(_ context.Context, input *LibraryScannedInput) (*struct{}, error) {
	s.alternatives.LibraryScanned(input.ID)
	return nil, nil
}
