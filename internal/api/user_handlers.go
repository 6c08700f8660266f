package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
)

func (s *Server) registerUserRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "listLanguageAssignments",
		Method:      http.MethodGet,
		Path:        "/api/v1/users/language",
		Summary:     "List language assignments",
		Description: "Returns every stored user language assignment",
		Tags:        []string{"Users"},
	}, s.handleListAssignments)

	huma.Register(s.api, huma.Operation{
		OperationID: "assignUserLanguage",
		Method:      http.MethodPut,
		Path:        "/api/v1/users/{id}/language",
		Summary:     "Assign user language",
		Description: "Pins a user to an alternative; an empty alternative ID pins the user to the source libraries",
		Tags:        []string{"Users"},
	}, s.handleAssignUser)

	huma.Register(s.api, huma.Operation{
		OperationID:   "clearUserLanguage",
		Method:        http.MethodDelete,
		Path:          "/api/v1/users/{id}/language",
		Summary:       "Clear user language",
		Description:   "Removes a user's manual assignment so group mappings and the default apply",
		Tags:          []string{"Users"},
		DefaultStatus: http.StatusNoContent,
	}, s.handleUnassignUser)

	huma.Register(s.api, huma.Operation{
		OperationID:   "reconcileAccess",
		Method:        http.MethodPost,
		Path:          "/api/v1/users/reconcile",
		Summary:       "Reconcile access",
		Description:   "Recomputes every user's library access and language preferences",
		Tags:          []string{"Users"},
		DefaultStatus: http.StatusNoContent,
		Middlewares:   s.limitTriggers("reconcile"),
	}, s.handleReconcileAccess)
}

// AssignmentResponse is a user language assignment.
type AssignmentResponse struct {
	UserID        string    `json:"user_id" doc:"Host user ID"`
	AlternativeID string    `json:"alternative_id" doc:"Assigned alternative; empty means source libraries"`
	Source        string    `json:"source" doc:"manual or ldap"`
	UpdatedAt     time.Time `json:"updated_at" doc:"When the assignment last changed"`
}

// ListAssignmentsOutput wraps the assignment list.
type ListAssignmentsOutput struct {
	Body []AssignmentResponse
}

// AssignUserRequest is the request body for assigning a user.
type AssignUserRequest struct {
	AlternativeID string `json:"alternative_id" required:"false" doc:"Alternative ID, or empty for source libraries"`
}

// AssignUserInput is the Huma input for assigning a user.
type AssignUserInput struct {
	ID   string `path:"id" doc:"Host user ID"`
	Body AssignUserRequest
}

// AssignmentOutput wraps a single assignment.
type AssignmentOutput struct {
	Body AssignmentResponse
}

// UserIDInput identifies a user by path.
type UserIDInput struct {
	ID string `path:"id" doc:"Host user ID"`
}

func (s *Server) handleListAssignments(ctx context.Context, _ *struct{}) (*ListAssignmentsOutput, error) {
	assignments := s.alternatives.ListAssignments(ctx)
	out := make([]AssignmentResponse, len(assignments))
	for i, a := range assignments {
		out[i] = AssignmentResponse{
			UserID:        a.UserID,
			AlternativeID: a.AlternativeID,
			Source:        a.Source,
			UpdatedAt:     a.UpdatedAt,
		}
	}
	return &ListAssignmentsOutput{Body: out}, nil
}

func (s *Server) handleAssignUser(ctx context.Context, input *AssignUserInput) (*AssignmentOutput, error) {
	if err := s.alternatives.AssignUser(ctx, input.ID, input.Body.AlternativeID); err != nil {
		return nil, err
	}

	for _, a := range s.alternatives.ListAssignments(ctx) {
		if a.UserID == input.ID {
			return &AssignmentOutput{Body: AssignmentResponse{
				UserID:        a.UserID,
				AlternativeID: a.AlternativeID,
				Source:        a.Source,
				UpdatedAt:     a.UpdatedAt,
			}}, nil
		}
	}
	return nil, huma.Error500InternalServerError("assignment was not stored")
}

func (s *Server) handleUnassignUser(ctx context.Context, input *UserIDInput) (*struct{}, error) {
	if err := s.alternatives.UnassignUser(ctx, input.ID); err != nil {
		return nil, err
	}
	return nil, nil
}

func (s *Server) handleReconcileAccess(ctx context.Context, _ *struct{}) (*struct{}, error) {
	if err := s.alternatives.ReconcileAccess(ctx); err != nil {
		return nil, err
	}
	return nil, nil
}
