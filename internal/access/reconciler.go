// Package access keeps user library visibility in step with mirrors.
//
// A user resolved to a language alternative sees that alternative's mirror
// libraries in place of the mirrored source libraries and never sees another
// alternative's mirrors. A user with no alternative sees the sources.
// Resolution order: manual assignment, then the highest-priority LDAP group
// mapping, then the configured default alternative.
package access

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/listenupapp/listenup-mirrors/internal/domain"
	"github.com/listenupapp/listenup-mirrors/internal/errors"
	"github.com/listenupapp/listenup-mirrors/internal/host"
	"github.com/listenupapp/listenup-mirrors/internal/store"
)

// Reconciler recomputes which libraries users can see.
type Reconciler interface {
	ReconcileAll(ctx context.Context) error
	ReconcileUser(ctx context.Context, userID string) error
	// RetireMirror hands users of a removed mirror library its source library
	// back. Once a mirror leaves the configuration nothing else links the
	// two, so callers invoke it after removing the mirror.
	RetireMirror(ctx context.Context, targetLibraryID, sourceLibraryID string) error
}

// LibraryReconciler rewrites host access policies from the mirror configuration.
type LibraryReconciler struct {
	store   *store.Store
	catalog host.LibraryCatalog
	users   host.UserDirectory
	groups  host.GroupResolver
	logger  *slog.Logger
	now     func() time.Time
}

var _ Reconciler = (*LibraryReconciler)(nil)

// New creates a reconciler. groups may be nil when no directory service is configured.
func New(st *store.Store, catalog host.LibraryCatalog, users host.UserDirectory, groups host.GroupResolver, logger *slog.Logger) *LibraryReconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &LibraryReconciler{
		store:   st,
		catalog: catalog,
		users:   users,
		groups:  groups,
		logger:  logger,
		now:     time.Now,
	}
}

// ReconcileAll reconciles every user. A failure for one user is logged and
// the rest still run; all failures are returned joined.
func (r *LibraryReconciler) ReconcileAll(ctx context.Context) error {
	users, err := r.users.ListUsers(ctx)
	if err != nil {
		return errors.Wrap(err, errors.CodeInternal, "list users")
	}

	var errs []error
	for _, u := range users {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.ReconcileUser(ctx, u.ID); err != nil {
			r.logger.Warn("failed to reconcile user access", "user_id", u.ID, "error", err)
			errs = append(errs, fmt.Errorf("user %s: %w", u.ID, err))
		}
	}
	return errors.Join(errs...)
}

// ReconcileUser reconciles one user.
func (r *LibraryReconciler) ReconcileUser(ctx context.Context, userID string) error {
	cfg := r.store.Snapshot()

	alt, err := r.resolve(ctx, cfg, userID)
	if err != nil {
		return err
	}

	libs, err := r.catalog.ListLibraries(ctx)
	if err != nil {
		return errors.Wrap(err, errors.CodeInternal, "list host libraries")
	}

	policy, err := r.users.GetPolicy(ctx, userID)
	if err != nil {
		return err
	}

	next, changed := Apply(policy, BuildIndex(cfg), alt, libs)
	if changed {
		if err := r.users.SetPolicy(ctx, userID, next); err != nil {
			return err
		}
		r.logger.Info("user library access updated",
			"user_id", userID,
			"alternative_id", altID(alt),
			"folders", len(next.EnabledFolders),
		)
	}

	if cfg.SetUserLanguagePreferences && alt != nil && alt.LanguageCode != "" {
		if err := r.applyLanguage(ctx, userID, alt.LanguageCode); err != nil {
			return err
		}
	}
	return nil
}

// RetireMirror implements Reconciler.
func (r *LibraryReconciler) RetireMirror(ctx context.Context, targetLibraryID, sourceLibraryID string) error {
	users, err := r.users.ListUsers(ctx)
	if err != nil {
		return errors.Wrap(err, errors.CodeInternal, "list users")
	}

	var errs []error
	for _, u := range users {
		policy, err := r.users.GetPolicy(ctx, u.ID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		next, changed := Retire(policy, targetLibraryID, sourceLibraryID)
		if !changed {
			continue
		}
		if err := r.users.SetPolicy(ctx, u.ID, next); err != nil {
			errs = append(errs, err)
			continue
		}
		r.logger.Info("mirror library retired from user access",
			"user_id", u.ID,
			"target_library_id", targetLibraryID,
			"source_library_id", sourceLibraryID,
		)
	}
	return errors.Join(errs...)
}

// Retire replaces targetLibraryID with sourceLibraryID in an explicit folder list.
func Retire(policy host.AccessPolicy, targetLibraryID, sourceLibraryID string) (host.AccessPolicy, bool) {
	if policy.EnableAllFolders {
		return policy, false
	}
	i := slices.Index(policy.EnabledFolders, targetLibraryID)
	if i < 0 {
		return policy, false
	}
	folders := slices.Clone(policy.EnabledFolders)
	if slices.Contains(folders, sourceLibraryID) {
		folders = slices.Delete(folders, i, i+1)
	} else {
		folders[i] = sourceLibraryID
	}
	return host.AccessPolicy{EnabledFolders: folders}, true
}

// resolve picks the user's alternative, or nil for "sources only".
func (r *LibraryReconciler) resolve(ctx context.Context, cfg *domain.Configuration, userID string) (*domain.LanguageAlternative, error) {
	existing := cfg.Assignment(userID)
	if existing != nil && existing.Source == domain.AssignmentManual {
		if existing.AlternativeID == "" {
			return nil, nil
		}
		return cfg.Alternative(existing.AlternativeID), nil
	}

	if r.groups != nil && len(cfg.LdapGroupMappings) > 0 {
		groups, err := r.groups.GroupsForUser(ctx, userID)
		if err != nil {
			r.logger.Warn("failed to resolve directory groups; skipping LDAP mappings", "user_id", userID, "error", err)
		} else if mapping, ok := BestMapping(cfg.LdapGroupMappings, groups); ok {
			if alt := cfg.Alternative(mapping.AlternativeID); alt != nil {
				r.recordLDAPAssignment(ctx, existing, userID, alt.ID)
				return alt, nil
			}
		}
	}

	if existing != nil && existing.Source == domain.AssignmentLDAP {
		if _, err := r.store.UpdateIf(ctx, func(c *domain.Configuration) bool {
			return c.ClearAssignment(userID)
		}); err != nil {
			r.logger.Warn("failed to clear stale LDAP assignment", "user_id", userID, "error", err)
		}
	}

	if cfg.DefaultAlternativeID != nil {
		return cfg.Alternative(*cfg.DefaultAlternativeID), nil
	}
	return nil, nil
}

func (r *LibraryReconciler) recordLDAPAssignment(ctx context.Context, existing *domain.UserLanguageAssignment, userID, alternativeID string) {
	if existing != nil && existing.Source == domain.AssignmentLDAP && existing.AlternativeID == alternativeID {
		return
	}
	if err := r.store.Update(ctx, func(c *domain.Configuration) {
		c.SetAssignment(domain.UserLanguageAssignment{
			UserID:        userID,
			AlternativeID: alternativeID,
			Source:        domain.AssignmentLDAP,
			UpdatedAt:     r.now(),
		})
	}); err != nil {
		r.logger.Warn("failed to record LDAP assignment", "user_id", userID, "error", err)
	}
}

func (r *LibraryReconciler) applyLanguage(ctx context.Context, userID, language string) error {
	prefs, err := r.users.GetPreferences(ctx, userID)
	if err != nil {
		return err
	}
	if prefs.AudioLanguage == language && prefs.SubtitleLanguage == language {
		return nil
	}
	prefs.AudioLanguage = language
	prefs.SubtitleLanguage = language
	if err := r.users.SetPreferences(ctx, userID, prefs); err != nil {
		return err
	}
	r.logger.Info("user language preferences updated", "user_id", userID, "language", language)
	return nil
}

// BestMapping returns the highest-priority mapping whose group the user is in.
// Group DNs compare case-insensitively; ties go to the earlier mapping.
func BestMapping(mappings []domain.LdapGroupMapping, groups []string) (domain.LdapGroupMapping, bool) {
	var (
		best  domain.LdapGroupMapping
		found bool
	)
	for _, m := range mappings {
		member := slices.ContainsFunc(groups, func(g string) bool { return strings.EqualFold(g, m.GroupDN) })
		if !member {
			continue
		}
		if !found || m.Priority > best.Priority {
			best, found = m, true
		}
	}
	return best, found
}

// Index relates mirror target libraries to their sources.
type Index struct {
	// sourceOf maps a mirror's target library ID to its source library ID.
	sourceOf map[string]string
	// targets maps alternative ID, then source library ID, to the target library ID.
	targets map[string]map[string]string
}

// BuildIndex indexes every mirror that has a host library.
func BuildIndex(cfg *domain.Configuration) Index {
	idx := Index{
		sourceOf: make(map[string]string),
		targets:  make(map[string]map[string]string),
	}
	for _, ref := range cfg.AllMirrors() {
		m := ref.Mirror
		if !m.HasTargetLibrary() {
			continue
		}
		idx.sourceOf[*m.TargetLibraryID] = m.SourceLibraryID
		if idx.targets[ref.AlternativeID] == nil {
			idx.targets[ref.AlternativeID] = make(map[string]string)
		}
		idx.targets[ref.AlternativeID][m.SourceLibraryID] = *m.TargetLibraryID
	}
	return idx
}

// Apply computes the policy a user should have. Enabled mirror libraries are
// first mapped back to their sources, then every source the alternative
// mirrors is swapped for its mirror. Libraries unrelated to mirrors pass
// through untouched. An all-folders policy is expanded to an explicit list
// once mirrors exist, since otherwise every alternative would be visible.
func Apply(policy host.AccessPolicy, idx Index, alt *domain.LanguageAlternative, libs []host.Library) (host.AccessPolicy, bool) {
	if len(idx.sourceOf) == 0 {
		return policy, false
	}

	base := policy.EnabledFolders
	if policy.EnableAllFolders {
		base = make([]string, 0, len(libs))
		for _, l := range libs {
			base = append(base, l.ID)
		}
	}

	var swaps map[string]string
	if alt != nil {
		swaps = idx.targets[alt.ID]
	}

	seen := make(map[string]struct{}, len(base))
	folders := make([]string, 0, len(base))
	for _, id := range base {
		if src, ok := idx.sourceOf[id]; ok {
			id = src
		}
		if target, ok := swaps[id]; ok {
			id = target
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		folders = append(folders, id)
	}

	next := host.AccessPolicy{EnableAllFolders: false, EnabledFolders: folders}
	changed := policy.EnableAllFolders || !sameSet(policy.EnabledFolders, folders)
	return next, changed
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	as := slices.Clone(a)
	bs := slices.Clone(b)
	slices.Sort(as)
	slices.Sort(bs)
	return slices.Equal(as, bs)
}

func altID(alt *domain.LanguageAlternative) string {
	if alt == nil {
		return ""
	}
	return alt.ID
}
