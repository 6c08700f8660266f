package service

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/listenupapp/listenup-mirrors/internal/access"
	"github.com/listenupapp/listenup-mirrors/internal/domain"
	domainerrors "github.com/listenupapp/listenup-mirrors/internal/errors"
	"github.com/listenupapp/listenup-mirrors/internal/fsutil"
	"github.com/listenupapp/listenup-mirrors/internal/host"
	"github.com/listenupapp/listenup-mirrors/internal/id"
	"github.com/listenupapp/listenup-mirrors/internal/mirror"
	"github.com/listenupapp/listenup-mirrors/internal/store"
)

// maxRemoveAttempts bounds how often DeleteAlternative retries the atomic
// removal before forcing it.
const maxRemoveAttempts = 3

// AlternativeService orchestrates language alternatives, their mirrors and
// the follow-up work (host library creation, access reconciliation) that
// runs after a request has been answered.
type AlternativeService struct {
	store      *store.Store
	engine     *mirror.Engine
	catalog    host.LibraryCatalog
	reconciler access.Reconciler
	logger     *slog.Logger
	now        func() time.Time

	bgCtx    context.Context
	bgCancel context.CancelFunc
	bg       sync.WaitGroup

	syncMu   sync.Mutex
	inFlight map[string]struct{}
}

// NewAlternativeService creates a new alternative service.
func NewAlternativeService(
	st *store.Store,
	engine *mirror.Engine,
	catalog host.LibraryCatalog,
	reconciler access.Reconciler,
	logger *slog.Logger,
) *AlternativeService {
	ctx, cancel := context.WithCancel(context.Background())
	return &AlternativeService{
		store:      st,
		engine:     engine,
		catalog:    catalog,
		reconciler: reconciler,
		logger:     logger,
		now:        time.Now,
		bgCtx:      ctx,
		bgCancel:   cancel,
		inFlight:   make(map[string]struct{}),
	}
}

// Wait blocks until all background work started so far has finished.
func (s *AlternativeService) Wait() {
	s.bg.Wait()
}

// Close cancels background work and waits for it to stop.
func (s *AlternativeService) Close() {
	s.bgCancel()
	s.bg.Wait()
}

// background runs fn detached from the request that started it.
func (s *AlternativeService) background(task string, fn func(ctx context.Context)) {
	s.bg.Go(func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("background task panicked", "task", task, "panic", r)
			}
		}()
		fn(s.bgCtx)
	})
}

// reconcileAll refreshes every user's access, logging instead of failing.
func (s *AlternativeService) reconcileAll(ctx context.Context) {
	if s.reconciler == nil {
		return
	}
	if err := s.reconciler.ReconcileAll(ctx); err != nil {
		s.logger.Warn("access reconciliation finished with errors", "error", err)
	}
}

// retire gives users of a removed mirror library the source back.
func (s *AlternativeService) retire(ctx context.Context, sourceLibraryID string, targetLibraryID *string) {
	if s.reconciler == nil || targetLibraryID == nil || *targetLibraryID == "" {
		return
	}
	if err := s.reconciler.RetireMirror(ctx, *targetLibraryID, sourceLibraryID); err != nil {
		s.logger.Warn("failed to retire mirror library from user access",
			"target_library_id", *targetLibraryID,
			"error", err,
		)
	}
}

// CreateAlternativeRequest holds the fields of a new alternative.
type CreateAlternativeRequest struct {
	Name                string
	LanguageCode        string
	MetadataLanguage    string
	MetadataCountry     string
	DestinationBasePath string
}

// CreateAlternative creates a language alternative. Names are unique
// ignoring case.
func (s *AlternativeService) CreateAlternative(ctx context.Context, req CreateAlternativeRequest) (*domain.LanguageAlternative, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domainerrors.Validation("alternative name cannot be empty")
	}
	if strings.TrimSpace(req.LanguageCode) == "" {
		return nil, domainerrors.Validation("language code cannot be empty")
	}
	if err := validateBasePath(req.DestinationBasePath); err != nil {
		return nil, err
	}

	alt := domain.LanguageAlternative{
		ID:                  id.NewAlternativeID(),
		Name:                name,
		LanguageCode:        req.LanguageCode,
		MetadataLanguage:    orDefault(req.MetadataLanguage, req.LanguageCode),
		MetadataCountry:     req.MetadataCountry,
		DestinationBasePath: filepath.Clean(req.DestinationBasePath),
		CreatedAt:           s.now(),
		Mirrors:             []domain.LibraryMirror{},
	}

	applied, err := s.store.UpdateIf(ctx, func(c *domain.Configuration) bool {
		if c.AlternativeByName(alt.Name) != nil {
			return false
		}
		c.Alternatives = append(c.Alternatives, alt)
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("create alternative: %w", err)
	}
	if !applied {
		return nil, domainerrors.AlreadyExistsf("an alternative named %q already exists", alt.Name)
	}

	s.logger.Info("language alternative created",
		"alternative_id", alt.ID,
		"name", alt.Name,
		"language", alt.LanguageCode,
	)
	return &alt, nil
}

// UpdateAlternativeRequest lists the fields that can change. Nil leaves a field as is.
type UpdateAlternativeRequest struct {
	Name                *string
	LanguageCode        *string
	MetadataLanguage    *string
	MetadataCountry     *string
	DestinationBasePath *string
}

// UpdateAlternative changes an alternative's settings. The base path can only
// change while the alternative has no mirrors.
func (s *AlternativeService) UpdateAlternative(ctx context.Context, alternativeID string, req UpdateAlternativeRequest) (*domain.LanguageAlternative, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if req.Name != nil && strings.TrimSpace(*req.Name) == "" {
		return nil, domainerrors.Validation("alternative name cannot be empty")
	}
	if req.LanguageCode != nil && strings.TrimSpace(*req.LanguageCode) == "" {
		return nil, domainerrors.Validation("language code cannot be empty")
	}
	if req.DestinationBasePath != nil {
		if err := validateBasePath(*req.DestinationBasePath); err != nil {
			return nil, err
		}
	}

	var (
		updated domain.LanguageAlternative
		reject  error
	)
	applied, err := s.store.UpdateIf(ctx, func(c *domain.Configuration) bool {
		alt := c.Alternative(alternativeID)
		if alt == nil {
			reject = domainerrors.NotFoundf("alternative %q not found", alternativeID)
			return false
		}
		if req.Name != nil {
			name := strings.TrimSpace(*req.Name)
			if other := c.AlternativeByName(name); other != nil && other.ID != alt.ID {
				reject = domainerrors.AlreadyExistsf("an alternative named %q already exists", name)
				return false
			}
			alt.Name = name
		}
		if req.DestinationBasePath != nil {
			base := filepath.Clean(*req.DestinationBasePath)
			if base != alt.DestinationBasePath && len(alt.Mirrors) > 0 {
				reject = domainerrors.Conflict("destination base path cannot change while the alternative has mirrors")
				return false
			}
			alt.DestinationBasePath = base
		}
		if req.LanguageCode != nil {
			alt.LanguageCode = *req.LanguageCode
		}
		if req.MetadataLanguage != nil {
			alt.MetadataLanguage = *req.MetadataLanguage
		}
		if req.MetadataCountry != nil {
			alt.MetadataCountry = *req.MetadataCountry
		}
		alt.Touch(s.now())
		updated = alt.Clone()
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("update alternative: %w", err)
	}
	if !applied {
		return nil, reject
	}

	s.logger.Info("language alternative updated", "alternative_id", alternativeID)
	return &updated, nil
}

// GetAlternative returns one alternative.
func (s *AlternativeService) GetAlternative(_ context.Context, alternativeID string) (*domain.LanguageAlternative, error) {
	alt := store.Read(s.store, func(c *domain.Configuration) *domain.LanguageAlternative {
		return c.Alternative(alternativeID)
	})
	if alt == nil {
		return nil, domainerrors.NotFoundf("alternative %q not found", alternativeID)
	}
	return alt, nil
}

// ListAlternatives returns every alternative in configuration order.
func (s *AlternativeService) ListAlternatives(_ context.Context) []domain.LanguageAlternative {
	return store.Read(s.store, func(c *domain.Configuration) []domain.LanguageAlternative {
		return c.Alternatives
	})
}

// DeleteAlternativeOptions selects what is removed along with an alternative.
type DeleteAlternativeOptions struct {
	DeleteLibraries bool
	DeleteFiles     bool
}

// DeleteAlternativeResult reports the per-mirror outcome of a delete.
type DeleteAlternativeResult struct {
	Mirrors []mirror.DeleteResult
	// Forced is set when concurrent mirror additions kept the atomic removal
	// from succeeding and the alternative was removed regardless.
	Forced bool
}

// DeleteAlternative removes an alternative after tearing down its mirrors.
// Library and file removal are best-effort. The configuration entry is
// removed atomically against the mirrors that were torn down; mirrors added
// concurrently are torn down on the next attempt, and the last attempt forces
// the removal.
func (s *AlternativeService) DeleteAlternative(ctx context.Context, alternativeID string, opts DeleteAlternativeOptions) (*DeleteAlternativeResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := s.GetAlternative(ctx, alternativeID); err != nil {
		return nil, err
	}

	result := &DeleteAlternativeResult{}
	for attempt := 1; ; attempt++ {
		alt, err := s.GetAlternative(ctx, alternativeID)
		if err != nil {
			// Removed by someone else in the meantime.
			break
		}

		for _, m := range alt.Mirrors {
			res := s.engine.DeleteMirror(ctx, m.ID, mirror.DeleteOptions{
				DeleteLibrary:      opts.DeleteLibraries,
				DeleteFiles:        opts.DeleteFiles,
				ForceConfigRemoval: true,
			})
			if err := res.Err(); err != nil && res.Conflict != store.ConflictNotFound {
				s.logger.Warn("mirror teardown incomplete", "mirror_id", m.ID, "error", err)
			}
			if res.ConfigRemoved {
				s.retire(ctx, m.SourceLibraryID, m.TargetLibraryID)
			}
			result.Mirrors = append(result.Mirrors, res)
		}

		removal, err := s.store.TryRemoveAlternativeAtomic(ctx, alternativeID, nil)
		if err != nil {
			return result, fmt.Errorf("remove alternative: %w", err)
		}
		if removal.Removed || removal.Reason == store.ConflictNotFound {
			break
		}

		s.logger.Warn("alternative changed during delete",
			"alternative_id", alternativeID,
			"reason", removal.Reason,
			"unexpected_mirrors", removal.Unexpected,
			"attempt", attempt,
		)
		if attempt >= maxRemoveAttempts {
			if _, err := s.store.RemoveAlternative(ctx, alternativeID); err != nil {
				return result, fmt.Errorf("force remove alternative: %w", err)
			}
			result.Forced = true
			break
		}
	}

	s.logger.Info("language alternative deleted",
		"alternative_id", alternativeID,
		"mirrors", len(result.Mirrors),
		"forced", result.Forced,
	)
	s.background("reconcile after alternative delete", s.reconcileAll)
	return result, nil
}

func validateBasePath(path string) error {
	switch {
	case strings.TrimSpace(path) == "":
		return domainerrors.Validation("destination base path cannot be empty")
	case fsutil.ContainsTraversal(path):
		return domainerrors.Validationf("destination base path %q must not contain '..' segments", path)
	case !filepath.IsAbs(path):
		return domainerrors.Validationf("destination base path %q must be absolute", path)
	}
	return nil
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
