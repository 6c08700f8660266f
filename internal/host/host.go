// Package host defines what the mirror server needs from the media server it
// manages: a library catalog and a user directory, plus an optional LDAP group
// resolver. Implementations live in subpackages.
package host

import (
	"context"
	"slices"
)

// Library is a library as the host catalog reports it.
type Library struct {
	ID             string
	Name           string
	CollectionType string
	Paths          []string
	Options        LibraryOptions
}

// LibraryOptions are the per-library settings the host stores.
type LibraryOptions struct {
	Enabled               bool
	EnableRealtimeMonitor bool

	// Metadata fetching.
	MetadataLanguage        string
	MetadataCountry         string
	MetadataFetchers        []string
	MetadataFetcherOrder    []string
	ImageFetchers           []string
	ImageFetcherOrder       []string
	AutomaticRefreshDays    int
	EnableEmbeddedTitles    bool
	EnableInternetProviders bool

	// Subtitles, lyrics and media segments.
	SubtitleDownloadLanguages               []string
	SkipSubtitlesIfEmbeddedSubtitlesPresent bool
	SkipSubtitlesIfAudioTrackMatches        bool
	RequirePerfectSubtitleMatch             bool
	SaveSubtitlesWithMedia                  bool
	SaveLyricsWithMedia                     bool
	DisabledSegmentProviders                []string
	SegmentProviderOrder                    []string

	// Image extraction.
	EnableChapterImageExtraction            bool
	ExtractChapterImagesDuringLibraryScan   bool
	EnableTrickplayImageExtraction          bool
	ExtractTrickplayImagesDuringLibraryScan bool

	// Writeback. A mirror shares file data with its source, so these must stay
	// off for mirrors or one language's metadata would land in every library.
	SaveLocalMetadata     bool
	SaveMetadataIntoMedia bool
}

// Clone returns a deep copy.
func (o LibraryOptions) Clone() LibraryOptions {
	o.MetadataFetchers = slices.Clone(o.MetadataFetchers)
	o.MetadataFetcherOrder = slices.Clone(o.MetadataFetcherOrder)
	o.ImageFetchers = slices.Clone(o.ImageFetchers)
	o.ImageFetcherOrder = slices.Clone(o.ImageFetcherOrder)
	o.SubtitleDownloadLanguages = slices.Clone(o.SubtitleDownloadLanguages)
	o.DisabledSegmentProviders = slices.Clone(o.DisabledSegmentProviders)
	o.SegmentProviderOrder = slices.Clone(o.SegmentProviderOrder)
	return o
}

// RefreshMode selects how much a refresh replaces.
type RefreshMode string

const (
	RefreshValidationOnly RefreshMode = "validation_only"
	RefreshDefault        RefreshMode = "default"
	RefreshFull           RefreshMode = "full"
)

// RefreshPriority orders queued refreshes.
type RefreshPriority int

const (
	PriorityLow RefreshPriority = iota
	PriorityNormal
	PriorityHigh
)

// RefreshRequest asks the host to refresh a library's metadata and images.
type RefreshRequest struct {
	MetadataMode       RefreshMode
	ImageMode          RefreshMode
	ReplaceAllMetadata bool
	ReplaceAllImages   bool
	Priority           RefreshPriority
}

// LibraryCatalog is the host's library catalog.
type LibraryCatalog interface {
	ListLibraries(ctx context.Context) ([]Library, error)
	// CreateLibrary creates an empty library and returns it with its new ID.
	CreateLibrary(ctx context.Context, name, collectionType string, opts LibraryOptions) (Library, error)
	AddLibraryPath(ctx context.Context, libraryName, path string) error
	RemoveLibrary(ctx context.Context, name string) error
	QueueRefresh(ctx context.Context, libraryID string, req RefreshRequest) error
}

// User is a host user account.
type User struct {
	ID   string
	Name string
}

// AccessPolicy controls which libraries a user sees.
type AccessPolicy struct {
	EnableAllFolders bool
	EnabledFolders   []string
}

// LanguagePreferences are a user's playback language defaults.
type LanguagePreferences struct {
	AudioLanguage    string
	SubtitleLanguage string
}

// UserDirectory is the host's user directory.
type UserDirectory interface {
	ListUsers(ctx context.Context) ([]User, error)
	GetPolicy(ctx context.Context, userID string) (AccessPolicy, error)
	SetPolicy(ctx context.Context, userID string, policy AccessPolicy) error
	GetPreferences(ctx context.Context, userID string) (LanguagePreferences, error)
	SetPreferences(ctx context.Context, userID string, prefs LanguagePreferences) error
}

// GroupResolver resolves directory group membership. It is optional: a nil
// GroupResolver means LDAP mappings are ignored.
type GroupResolver interface {
	GroupsForUser(ctx context.Context, userID string) ([]string, error)
}

// FindLibrary returns the library with the given ID from libs.
func FindLibrary(libs []Library, id string) (Library, bool) {
	i := slices.IndexFunc(libs, func(l Library) bool { return l.ID == id })
	if i < 0 {
		return Library{}, false
	}
	return libs[i], true
}
