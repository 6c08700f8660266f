package service

import (
	"context"
	"fmt"

	"github.com/listenupapp/listenup-mirrors/internal/domain"
	domainerrors "github.com/listenupapp/listenup-mirrors/internal/errors"
	"github.com/listenupapp/listenup-mirrors/internal/store"
)

// AssignUser pins a user to an alternative, overriding group mappings and the
// default. An empty alternativeID pins the user to the source libraries.
// The user's access is reconciled before returning.
func (s *AlternativeService) AssignUser(ctx context.Context, userID, alternativeID string) error {
	if userID == "" {
		return domainerrors.Validation("user ID is required")
	}

	var reject error
	applied, err := s.store.UpdateIf(ctx, func(c *domain.Configuration) bool {
		if alternativeID != "" && c.Alternative(alternativeID) == nil {
			reject = domainerrors.NotFoundf("alternative %q not found", alternativeID)
			return false
		}
		c.SetAssignment(domain.UserLanguageAssignment{
			UserID:        userID,
			AlternativeID: alternativeID,
			Source:        domain.AssignmentManual,
			UpdatedAt:     s.now(),
		})
		return true
	})
	if err != nil {
		return fmt.Errorf("assign user: %w", err)
	}
	if !applied {
		return reject
	}

	s.logger.Info("user language assigned", "user_id", userID, "alternative_id", alternativeID)
	return s.reconcileUser(ctx, userID)
}

// UnassignUser removes a user's assignment so group mappings and the default
// apply again. Removing an absent assignment is not an error.
func (s *AlternativeService) UnassignUser(ctx context.Context, userID string) error {
	removed, err := s.store.UpdateIf(ctx, func(c *domain.Configuration) bool {
		return c.ClearAssignment(userID)
	})
	if err != nil {
		return fmt.Errorf("unassign user: %w", err)
	}
	if removed {
		s.logger.Info("user language assignment cleared", "user_id", userID)
	}
	return s.reconcileUser(ctx, userID)
}

// ListAssignments returns every stored user assignment.
func (s *AlternativeService) ListAssignments(_ context.Context) []domain.UserLanguageAssignment {
	return store.Read(s.store, func(c *domain.Configuration) []domain.UserLanguageAssignment {
		return c.UserAssignments
	})
}

// ReconcileAccess recomputes library access for every user.
func (s *AlternativeService) ReconcileAccess(ctx context.Context) error {
	if s.reconciler == nil {
		return nil
	}
	return s.reconciler.ReconcileAll(ctx)
}

func (s *AlternativeService) reconcileUser(ctx context.Context, userID string) error {
	if s.reconciler == nil {
		return nil
	}
	if err := s.reconciler.ReconcileUser(ctx, userID); err != nil {
		return fmt.Errorf("reconcile user access: %w", err)
	}
	return nil
}
