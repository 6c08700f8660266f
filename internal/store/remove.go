package store

import (
	"context"
	"slices"

	"github.com/listenupapp/listenup-mirrors/internal/domain"
)

// ConflictReason explains why an atomic removal declined to remove anything.
type ConflictReason string

const (
	// ConflictNone means the entry was removed.
	ConflictNone ConflictReason = ""
	// ConflictNotFound means the entry no longer exists.
	ConflictNotFound ConflictReason = "not_found"
	// ConflictMirrorsChanged means the alternative's live mirror set differs from
	// the set the caller expected, usually because a mirror was added concurrently.
	ConflictMirrorsChanged ConflictReason = "mirrors_changed"
	// ConflictTargetChanged means the mirror's host library changed after the
	// caller read it, so removing the entry would orphan the new library.
	ConflictTargetChanged ConflictReason = "target_changed"
)

// RemoveResult reports the outcome of an atomic removal. Conflicts are
// ordinary results, not errors, so callers can choose to retry or force.
type RemoveResult struct {
	Removed bool
	Reason  ConflictReason

	// Unexpected lists live mirror IDs the caller did not expect.
	Unexpected []string
	// Missing lists expected mirror IDs that are no longer live.
	Missing []string
}

// Conflict reports whether the removal was declined for a reason other than
// the entry being gone.
func (r RemoveResult) Conflict() bool {
	return !r.Removed && r.Reason != ConflictNone && r.Reason != ConflictNotFound
}

// TryRemoveAlternativeAtomic removes the alternative only if its live mirror
// IDs match expectedMirrorIDs exactly (order ignored). The comparison and
// removal happen under the writer lock, so a mirror added after the caller
// took its snapshot is never silently dropped.
func (s *Store) TryRemoveAlternativeAtomic(ctx context.Context, id string, expectedMirrorIDs []string) (RemoveResult, error) {
	var result RemoveResult
	_, err := s.UpdateIf(ctx, func(cfg *domain.Configuration) bool {
		alt := cfg.Alternative(id)
		if alt == nil {
			result.Reason = ConflictNotFound
			return false
		}

		live := alt.MirrorIDs()
		result.Unexpected = difference(live, expectedMirrorIDs)
		result.Missing = difference(expectedMirrorIDs, live)
		if len(result.Unexpected) > 0 || len(result.Missing) > 0 {
			result.Reason = ConflictMirrorsChanged
			return false
		}

		cfg.RemoveAlternative(id)
		result.Removed = true
		return true
	})
	return result, err
}

// RemoveAlternative removes the alternative unconditionally, cascading its
// mirrors and clearing references to it.
func (s *Store) RemoveAlternative(ctx context.Context, id string) (bool, error) {
	return s.UpdateIf(ctx, func(cfg *domain.Configuration) bool {
		return cfg.RemoveAlternative(id)
	})
}

// TryRemoveMirrorAtomic removes a mirror only if it still belongs to altID and
// still points at expectedTargetLibraryID (nil meaning "no host library").
func (s *Store) TryRemoveMirrorAtomic(ctx context.Context, altID, mirrorID string, expectedTargetLibraryID *string) (RemoveResult, error) {
	var result RemoveResult
	_, err := s.UpdateIf(ctx, func(cfg *domain.Configuration) bool {
		alt := cfg.Alternative(altID)
		if alt == nil {
			result.Reason = ConflictNotFound
			return false
		}
		m := alt.Mirror(mirrorID)
		if m == nil {
			result.Reason = ConflictNotFound
			return false
		}
		if !equalPtr(m.TargetLibraryID, expectedTargetLibraryID) {
			result.Reason = ConflictTargetChanged
			return false
		}

		alt.RemoveMirror(mirrorID)
		result.Removed = true
		return true
	})
	return result, err
}

// RemoveMirror removes a mirror from whichever alternative owns it.
func (s *Store) RemoveMirror(ctx context.Context, mirrorID string) (bool, error) {
	return s.UpdateIf(ctx, func(cfg *domain.Configuration) bool {
		alt, _ := cfg.FindMirror(mirrorID)
		if alt == nil {
			return false
		}
		return alt.RemoveMirror(mirrorID)
	})
}

// UpdateMirror applies fn to the live mirror with the given ID. Returns false
// when the mirror no longer exists.
func (s *Store) UpdateMirror(ctx context.Context, mirrorID string, fn func(*domain.LanguageAlternative, *domain.LibraryMirror)) (bool, error) {
	return s.UpdateIf(ctx, func(cfg *domain.Configuration) bool {
		alt, m := cfg.FindMirror(mirrorID)
		if m == nil {
			return false
		}
		fn(alt, m)
		return true
	})
}

// difference returns the elements of a not present in b.
func difference(a, b []string) []string {
	var out []string
	for _, v := range a {
		if !slices.Contains(b, v) {
			out = append(out, v)
		}
	}
	return out
}

func equalPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
