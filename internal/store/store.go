// Package store holds the live mirror configuration and persists it.
//
// Readers and writers never share memory with the live value. Read runs its
// selector against a private deep clone. Update clones the live value, lets the
// mutator edit the clone, clones the result again so nothing the caller handed
// in during mutation stays reachable, then publishes it with a single atomic
// pointer swap. Writers are serialized so concurrent updates never lose each
// other's changes; readers never block.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/listenupapp/listenup-mirrors/internal/classifier"
	"github.com/listenupapp/listenup-mirrors/internal/domain"
)

// Store is the concurrency-safe configuration store.
type Store struct {
	live      atomic.Pointer[domain.Configuration]
	writeMu   sync.Mutex
	persister Persister
	logger    *slog.Logger

	// notifyMu is taken before writeMu is released so listeners see
	// configurations in publish order.
	notifyMu    sync.Mutex
	listenersMu sync.RWMutex
	listeners   []func(*domain.Configuration)
}

// New creates a store backed by persister. Call Load before use to pick up
// previously saved state; until then the store holds an empty configuration.
func New(persister Persister, logger *slog.Logger) *Store {
	if persister == nil {
		persister = NewMemoryPersister()
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		persister: persister,
		logger:    logger,
	}
	s.live.Store(domain.NewConfiguration())
	return s
}

// Load replaces the live configuration with the persisted document.
// A store with nothing persisted keeps an empty configuration.
func (s *Store) Load(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	cfg, err := s.persister.Load(ctx)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if cfg == nil {
		cfg = domain.NewConfiguration()
	}
	s.live.Store(cfg.Clone())

	s.logger.Info("configuration loaded",
		"alternatives", len(cfg.Alternatives),
		"mirrors", len(cfg.AllMirrors()),
	)
	return nil
}

// Read runs selector against a disposable deep clone of the live configuration.
// The selector may mutate its argument and may return values that alias it.
func Read[T any](s *Store, selector func(*domain.Configuration) T) T {
	return selector(s.live.Load().Clone())
}

// Snapshot returns a private deep copy of the live configuration.
func (s *Store) Snapshot() *domain.Configuration {
	return s.live.Load().Clone()
}

// Update applies mutator to a clone of the live configuration, publishes the
// result and persists it. The new value is live even if persisting fails.
func (s *Store) Update(ctx context.Context, mutator func(*domain.Configuration)) error {
	_, err := s.UpdateIf(ctx, func(cfg *domain.Configuration) bool {
		mutator(cfg)
		return true
	})
	return err
}

// UpdateIf is Update for mutators that may decline. When mutator returns false
// the clone is discarded and nothing is published or persisted.
func (s *Store) UpdateIf(ctx context.Context, mutator func(*domain.Configuration) bool) (bool, error) {
	s.writeMu.Lock()
	working := s.live.Load().Clone()
	if !mutator(working) {
		s.writeMu.Unlock()
		return false, nil
	}
	next := working.Clone()
	normalize(next)
	s.live.Store(next)
	err := s.persist(ctx, next)

	s.notifyMu.Lock()
	s.writeMu.Unlock()
	defer s.notifyMu.Unlock()

	s.notify(next)
	return true, err
}

// OnChange registers fn to receive a private copy of every published configuration.
// Listeners run synchronously after the writer lock is released, one publish
// at a time and in publish order. A listener must not write to the store.
func (s *Store) OnChange(fn func(*domain.Configuration)) {
	s.listenersMu.Lock()
	s.listeners = append(s.listeners, fn)
	s.listenersMu.Unlock()
}

func (s *Store) notify(cfg *domain.Configuration) {
	s.listenersMu.RLock()
	listeners := slices.Clone(s.listeners)
	s.listenersMu.RUnlock()

	for _, fn := range listeners {
		fn(cfg.Clone())
	}
}

// persist must be called with writeMu held so saves land in publish order.
func (s *Store) persist(ctx context.Context, cfg *domain.Configuration) error {
	if err := s.persister.Save(ctx, cfg); err != nil {
		s.logger.Error("failed to persist configuration", "error", err)
		return fmt.Errorf("persist configuration: %w", err)
	}
	return nil
}

// Close releases the persister.
func (s *Store) Close() error {
	s.logger.Info("closing configuration store")
	return s.persister.Close()
}

// normalize lowercases and de-duplicates the classifier overrides. Nil stays
// nil so "use defaults" survives persistence.
func normalize(cfg *domain.Configuration) {
	if cfg.ExcludedExtensions != nil {
		cfg.ExcludedExtensions = classifier.NormalizeExtensions(cfg.ExcludedExtensions)
	}
	if cfg.ExcludedDirectories != nil {
		cfg.ExcludedDirectories = classifier.NormalizeSet(cfg.ExcludedDirectories)
	}
	if cfg.IncludedDirectories != nil {
		cfg.IncludedDirectories = classifier.NormalizeSet(cfg.IncludedDirectories)
	}
}
