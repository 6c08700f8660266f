package domain

import (
	"slices"
	"time"

	"golang.org/x/text/cases"
)

// LanguageAlternative is a named target locale owning zero or more mirrors.
// Mirrors for an alternative live under DestinationBasePath and carry metadata
// fetched in MetadataLanguage/MetadataCountry.
type LanguageAlternative struct {
	ID                  string `json:"id"`
	Name                string `json:"name"`
	LanguageCode        string `json:"language_code"`
	MetadataLanguage    string `json:"metadata_language"`
	MetadataCountry     string `json:"metadata_country"`
	DestinationBasePath string `json:"destination_base_path"`

	CreatedAt  time.Time  `json:"created_at"`
	ModifiedAt *time.Time `json:"modified_at"`

	Mirrors []LibraryMirror `json:"mirrors"`
}

// Clone returns a deep copy.
func (a *LanguageAlternative) Clone() LanguageAlternative {
	out := *a
	out.ModifiedAt = clonePtr(a.ModifiedAt)
	if a.Mirrors != nil {
		out.Mirrors = make([]LibraryMirror, len(a.Mirrors))
		for i := range a.Mirrors {
			out.Mirrors[i] = a.Mirrors[i].Clone()
		}
	}
	return out
}

// Mirror returns the mirror with the given ID, or nil.
func (a *LanguageAlternative) Mirror(id string) *LibraryMirror {
	for i := range a.Mirrors {
		if a.Mirrors[i].ID == id {
			return &a.Mirrors[i]
		}
	}
	return nil
}

// MirrorForSource returns the mirror of the given source library, or nil.
func (a *LanguageAlternative) MirrorForSource(sourceLibraryID string) *LibraryMirror {
	for i := range a.Mirrors {
		if a.Mirrors[i].SourceLibraryID == sourceLibraryID {
			return &a.Mirrors[i]
		}
	}
	return nil
}

// RemoveMirror deletes the mirror with the given ID and reports whether it existed.
func (a *LanguageAlternative) RemoveMirror(id string) bool {
	before := len(a.Mirrors)
	a.Mirrors = slices.DeleteFunc(a.Mirrors, func(m LibraryMirror) bool { return m.ID == id })
	return len(a.Mirrors) != before
}

// MirrorIDs returns the IDs of all mirrors in configuration order.
func (a *LanguageAlternative) MirrorIDs() []string {
	ids := make([]string, len(a.Mirrors))
	for i := range a.Mirrors {
		ids[i] = a.Mirrors[i].ID
	}
	return ids
}

// Touch sets ModifiedAt.
func (a *LanguageAlternative) Touch(at time.Time) {
	a.ModifiedAt = &at
}

// NamesEqual compares alternative names case-insensitively using Unicode case folding.
func NamesEqual(a, b string) bool {
	fold := cases.Fold()
	return fold.String(a) == fold.String(b)
}
