package service

import (
	"context"
	"fmt"
	"slices"

	"github.com/listenupapp/listenup-mirrors/internal/domain"
	domainerrors "github.com/listenupapp/listenup-mirrors/internal/errors"
	"github.com/listenupapp/listenup-mirrors/internal/store"
)

// Settings are the server-wide mirror settings.
type Settings struct {
	// Nil classifier lists mean "use the built-in defaults".
	ExcludedExtensions  []string
	ExcludedDirectories []string
	IncludedDirectories []string

	DefaultAlternativeID       *string
	LdapGroupMappings          []domain.LdapGroupMapping
	SyncAfterLibraryScan       bool
	SetUserLanguagePreferences bool
}

// SettingsUpdate contains fields that can be updated. Nil leaves a field as is.
type SettingsUpdate struct {
	ExcludedExtensions  *[]string
	ExcludedDirectories *[]string
	IncludedDirectories *[]string
	// ResetClassifier restores the built-in classifier defaults before the
	// list fields above are applied.
	ResetClassifier bool

	// DefaultAlternativeID set to a pointer to "" clears the default.
	DefaultAlternativeID       *string
	LdapGroupMappings          *[]domain.LdapGroupMapping
	SyncAfterLibraryScan       *bool
	SetUserLanguagePreferences *bool
}

// GetSettings returns the current settings.
func (s *AlternativeService) GetSettings(_ context.Context) *Settings {
	return store.Read(s.store, settingsOf)
}

// UpdateSettings applies an update. Classifier lists are stored lowercased
// and de-duplicated. Changing the default alternative or the group mappings
// reconciles user access in the background.
func (s *AlternativeService) UpdateSettings(ctx context.Context, update *SettingsUpdate) (*Settings, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if update.LdapGroupMappings != nil {
		for _, m := range *update.LdapGroupMappings {
			if m.GroupDN == "" {
				return nil, domainerrors.Validation("group mapping requires a group DN")
			}
		}
	}

	var reject error
	applied, err := s.store.UpdateIf(ctx, func(c *domain.Configuration) bool {
		if update.ResetClassifier {
			c.ExcludedExtensions = nil
			c.ExcludedDirectories = nil
			c.IncludedDirectories = nil
		}
		if update.ExcludedExtensions != nil {
			c.ExcludedExtensions = nonNil(*update.ExcludedExtensions)
		}
		if update.ExcludedDirectories != nil {
			c.ExcludedDirectories = nonNil(*update.ExcludedDirectories)
		}
		if update.IncludedDirectories != nil {
			c.IncludedDirectories = nonNil(*update.IncludedDirectories)
		}

		if update.DefaultAlternativeID != nil {
			if altID := *update.DefaultAlternativeID; altID == "" {
				c.DefaultAlternativeID = nil
			} else {
				if c.Alternative(altID) == nil {
					reject = domainerrors.Validationf("default alternative %q not found", altID)
					return false
				}
				c.DefaultAlternativeID = &altID
			}
		}
		if update.LdapGroupMappings != nil {
			for _, m := range *update.LdapGroupMappings {
				if c.Alternative(m.AlternativeID) == nil {
					reject = domainerrors.Validationf("group mapping %q references unknown alternative %q", m.GroupDN, m.AlternativeID)
					return false
				}
			}
			c.LdapGroupMappings = slices.Clone(*update.LdapGroupMappings)
		}
		if update.SyncAfterLibraryScan != nil {
			c.SyncAfterLibraryScan = *update.SyncAfterLibraryScan
		}
		if update.SetUserLanguagePreferences != nil {
			c.SetUserLanguagePreferences = *update.SetUserLanguagePreferences
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("update settings: %w", err)
	}
	if !applied {
		return nil, reject
	}

	settings := s.GetSettings(ctx)
	s.logger.Info("mirror settings updated",
		"excluded_extensions", len(settings.ExcludedExtensions),
		"excluded_directories", len(settings.ExcludedDirectories),
		"included_directories", len(settings.IncludedDirectories),
	)

	if update.DefaultAlternativeID != nil || update.LdapGroupMappings != nil || update.SetUserLanguagePreferences != nil {
		s.background("reconcile after settings change", s.reconcileAll)
	}
	return settings, nil
}

func settingsOf(c *domain.Configuration) *Settings {
	return &Settings{
		ExcludedExtensions:         c.ExcludedExtensions,
		ExcludedDirectories:        c.ExcludedDirectories,
		IncludedDirectories:        c.IncludedDirectories,
		DefaultAlternativeID:       c.DefaultAlternativeID,
		LdapGroupMappings:          c.LdapGroupMappings,
		SyncAfterLibraryScan:       c.SyncAfterLibraryScan,
		SetUserLanguagePreferences: c.SetUserLanguagePreferences,
	}
}

// nonNil keeps an explicit empty list distinct from "use defaults".
func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return slices.Clone(v)
}
