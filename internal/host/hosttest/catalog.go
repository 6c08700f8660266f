// Package hosttest provides an in-memory host for tests.
package hosttest

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/listenupapp/listenup-mirrors/internal/errors"
	"github.com/listenupapp/listenup-mirrors/internal/host"
)

// QueuedRefresh is a refresh request recorded by Host.
type QueuedRefresh struct {
	LibraryID string
	Request   host.RefreshRequest
}

// Host is an in-memory LibraryCatalog, UserDirectory and GroupResolver.
type Host struct {
	mu        sync.Mutex
	nextID    int
	libraries []host.Library
	users     []host.User
	policies  map[string]host.AccessPolicy
	prefs     map[string]host.LanguagePreferences
	groups    map[string][]string
	refreshes []QueuedRefresh

	// CreateErr, when set, is returned by CreateLibrary.
	CreateErr error
	// RemoveErr, when set, is returned by RemoveLibrary.
	RemoveErr error
	// BeforeRemove, when set, runs at the start of RemoveLibrary without the lock held.
	BeforeRemove func(name string)
}

var (
	_ host.LibraryCatalog = (*Host)(nil)
	_ host.UserDirectory  = (*Host)(nil)
	_ host.GroupResolver  = (*Host)(nil)
)

// New creates an empty host.
func New() *Host {
	return &Host{
		policies: make(map[string]host.AccessPolicy),
		prefs:    make(map[string]host.LanguagePreferences),
		groups:   make(map[string][]string),
	}
}

// AddLibrary registers a library and returns its ID.
func (h *Host) AddLibrary(name, collectionType string, opts host.LibraryOptions, paths ...string) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	lib := host.Library{
		ID:             h.newID(),
		Name:           name,
		CollectionType: collectionType,
		Paths:          slices.Clone(paths),
		Options:        opts.Clone(),
	}
	h.libraries = append(h.libraries, lib)
	return lib.ID
}

// DeleteLibraryByID removes a library as if it was deleted outside the mirror server.
func (h *Host) DeleteLibraryByID(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.libraries = slices.DeleteFunc(h.libraries, func(l host.Library) bool { return l.ID == id })
}

// Library returns a copy of the library with the given ID.
func (h *Host) Library(id string) (host.Library, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return host.FindLibrary(cloneLibraries(h.libraries), id)
}

// Refreshes returns the refresh requests queued so far.
func (h *Host) Refreshes() []QueuedRefresh {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.refreshes)
}

// AddUser registers a user with the given access policy.
func (h *Host) AddUser(id, name string, policy host.AccessPolicy) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.users = append(h.users, host.User{ID: id, Name: name})
	policy.EnabledFolders = slices.Clone(policy.EnabledFolders)
	h.policies[id] = policy
}

// SetGroups sets the directory groups a user belongs to.
func (h *Host) SetGroups(userID string, groups ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.groups[userID] = slices.Clone(groups)
}

// ListLibraries implements host.LibraryCatalog.
func (h *Host) ListLibraries(_ context.Context) ([]host.Library, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return cloneLibraries(h.libraries), nil
}

// CreateLibrary implements host.LibraryCatalog.
func (h *Host) CreateLibrary(_ context.Context, name, collectionType string, opts host.LibraryOptions) (host.Library, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.CreateErr != nil {
		return host.Library{}, h.CreateErr
	}
	if h.indexByName(name) >= 0 {
		return host.Library{}, errors.AlreadyExistsf("library %q already exists", name)
	}
	lib := host.Library{
		ID:             h.newID(),
		Name:           name,
		CollectionType: collectionType,
		Options:        opts.Clone(),
	}
	h.libraries = append(h.libraries, lib)
	return lib, nil
}

// AddLibraryPath implements host.LibraryCatalog.
func (h *Host) AddLibraryPath(_ context.Context, libraryName, path string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	i := h.indexByName(libraryName)
	if i < 0 {
		return errors.NotFoundf("library %q not found", libraryName)
	}
	if !slices.Contains(h.libraries[i].Paths, path) {
		h.libraries[i].Paths = append(h.libraries[i].Paths, path)
	}
	return nil
}

// RemoveLibrary implements host.LibraryCatalog.
func (h *Host) RemoveLibrary(_ context.Context, name string) error {
	if h.BeforeRemove != nil {
		h.BeforeRemove(name)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.RemoveErr != nil {
		return h.RemoveErr
	}
	i := h.indexByName(name)
	if i < 0 {
		return errors.NotFoundf("library %q not found", name)
	}
	h.libraries = slices.Delete(h.libraries, i, i+1)
	return nil
}

// QueueRefresh implements host.LibraryCatalog.
func (h *Host) QueueRefresh(_ context.Context, libraryID string, req host.RefreshRequest) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.refreshes = append(h.refreshes, QueuedRefresh{LibraryID: libraryID, Request: req})
	return nil
}

// ListUsers implements host.UserDirectory.
func (h *Host) ListUsers(_ context.Context) ([]host.User, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.users), nil
}

// GetPolicy implements host.UserDirectory.
func (h *Host) GetPolicy(_ context.Context, userID string) (host.AccessPolicy, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, ok := h.policies[userID]
	if !ok {
		return host.AccessPolicy{}, errors.NotFoundf("user %q not found", userID)
	}
	p.EnabledFolders = slices.Clone(p.EnabledFolders)
	return p, nil
}

// SetPolicy implements host.UserDirectory.
func (h *Host) SetPolicy(_ context.Context, userID string, policy host.AccessPolicy) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.policies[userID]; !ok {
		return errors.NotFoundf("user %q not found", userID)
	}
	policy.EnabledFolders = slices.Clone(policy.EnabledFolders)
	h.policies[userID] = policy
	return nil
}

// GetPreferences implements host.UserDirectory.
func (h *Host) GetPreferences(_ context.Context, userID string) (host.LanguagePreferences, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.prefs[userID], nil
}

// SetPreferences implements host.UserDirectory.
func (h *Host) SetPreferences(_ context.Context, userID string, prefs host.LanguagePreferences) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.prefs[userID] = prefs
	return nil
}

// GroupsForUser implements host.GroupResolver.
func (h *Host) GroupsForUser(_ context.Context, userID string) ([]string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.groups[userID]), nil
}

func (h *Host) newID() string {
	h.nextID++
	return fmt.Sprintf("lib-%d", h.nextID)
}

func (h *Host) indexByName(name string) int {
	return slices.IndexFunc(h.libraries, func(l host.Library) bool { return l.Name == name })
}

func cloneLibraries(libs []host.Library) []host.Library {
	out := make([]host.Library, len(libs))
	for i, l := range libs {
		l.Paths = slices.Clone(l.Paths)
		l.Options = l.Options.Clone()
		out[i] = l
	}
	return out
}
