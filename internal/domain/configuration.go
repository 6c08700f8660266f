package domain

import (
	"slices"
	"time"
)

// Assignment sources for a user's language alternative.
const (
	AssignmentManual = "manual"
	AssignmentLDAP   = "ldap"
)

// LdapGroupMapping maps a directory group to a language alternative.
// Higher priority wins when a user belongs to several mapped groups.
type LdapGroupMapping struct {
	GroupDN       string `json:"group_dn"`
	AlternativeID string `json:"alternative_id"`
	Priority      int    `json:"priority"`
}

// UserLanguageAssignment records which alternative a user sees.
// An empty AlternativeID means the user sees the source libraries.
type UserLanguageAssignment struct {
	UserID        string    `json:"user_id"`
	AlternativeID string    `json:"alternative_id"`
	Source        string    `json:"source"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Configuration is the persisted aggregate of everything the mirror server owns.
// It is treated as immutable once published by the configuration store; all
// mutation happens on clones.
type Configuration struct {
	Alternatives         []LanguageAlternative    `json:"alternatives"`
	DefaultAlternativeID *string                  `json:"default_alternative_id"`
	LdapGroupMappings    []LdapGroupMapping       `json:"ldap_group_mappings"`
	UserAssignments      []UserLanguageAssignment `json:"user_assignments"`

	// Nil means "use the classifier defaults"; empty means "nothing".
	ExcludedExtensions  []string `json:"excluded_extensions"`
	ExcludedDirectories []string `json:"excluded_directories"`
	IncludedDirectories []string `json:"included_directories"`

	SyncAfterLibraryScan       bool `json:"sync_after_library_scan"`
	SetUserLanguagePreferences bool `json:"set_user_language_preferences"`
}

// NewConfiguration returns an empty configuration with default behavior flags.
func NewConfiguration() *Configuration {
	return &Configuration{
		SyncAfterLibraryScan:       true,
		SetUserLanguagePreferences: true,
	}
}

// Clone returns a deep copy sharing no memory with c.
func (c *Configuration) Clone() *Configuration {
	if c == nil {
		return NewConfiguration()
	}
	out := *c
	if c.Alternatives != nil {
		out.Alternatives = make([]LanguageAlternative, len(c.Alternatives))
		for i := range c.Alternatives {
			out.Alternatives[i] = c.Alternatives[i].Clone()
		}
	}
	out.DefaultAlternativeID = clonePtr(c.DefaultAlternativeID)
	out.LdapGroupMappings = slices.Clone(c.LdapGroupMappings)
	out.UserAssignments = slices.Clone(c.UserAssignments)
	out.ExcludedExtensions = slices.Clone(c.ExcludedExtensions)
	out.ExcludedDirectories = slices.Clone(c.ExcludedDirectories)
	out.IncludedDirectories = slices.Clone(c.IncludedDirectories)
	return &out
}

// Alternative returns the alternative with the given ID, or nil.
func (c *Configuration) Alternative(id string) *LanguageAlternative {
	for i := range c.Alternatives {
		if c.Alternatives[i].ID == id {
			return &c.Alternatives[i]
		}
	}
	return nil
}

// AlternativeByName returns the alternative whose name matches case-insensitively, or nil.
func (c *Configuration) AlternativeByName(name string) *LanguageAlternative {
	for i := range c.Alternatives {
		if NamesEqual(c.Alternatives[i].Name, name) {
			return &c.Alternatives[i]
		}
	}
	return nil
}

// FindMirror locates a mirror by ID across all alternatives.
func (c *Configuration) FindMirror(mirrorID string) (*LanguageAlternative, *LibraryMirror) {
	for i := range c.Alternatives {
		if m := c.Alternatives[i].Mirror(mirrorID); m != nil {
			return &c.Alternatives[i], m
		}
	}
	return nil, nil
}

// AllMirrors returns copies of every mirror paired with its alternative ID.
func (c *Configuration) AllMirrors() []MirrorRef {
	var refs []MirrorRef
	for i := range c.Alternatives {
		alt := &c.Alternatives[i]
		for j := range alt.Mirrors {
			refs = append(refs, MirrorRef{AlternativeID: alt.ID, Mirror: alt.Mirrors[j].Clone()})
		}
	}
	return refs
}

// MirrorRef is a mirror together with the alternative that owns it.
type MirrorRef struct {
	AlternativeID string
	Mirror        LibraryMirror
}

// RemoveAlternative deletes an alternative with its mirrors and clears every
// reference to it. Returns false if no such alternative exists.
func (c *Configuration) RemoveAlternative(id string) bool {
	before := len(c.Alternatives)
	c.Alternatives = slices.DeleteFunc(c.Alternatives, func(a LanguageAlternative) bool { return a.ID == id })
	if len(c.Alternatives) == before {
		return false
	}

	if c.DefaultAlternativeID != nil && *c.DefaultAlternativeID == id {
		c.DefaultAlternativeID = nil
	}
	c.LdapGroupMappings = slices.DeleteFunc(c.LdapGroupMappings, func(m LdapGroupMapping) bool {
		return m.AlternativeID == id
	})
	c.UserAssignments = slices.DeleteFunc(c.UserAssignments, func(u UserLanguageAssignment) bool {
		return u.AlternativeID == id
	})
	return true
}

// Assignment returns the user's assignment, or nil.
func (c *Configuration) Assignment(userID string) *UserLanguageAssignment {
	for i := range c.UserAssignments {
		if c.UserAssignments[i].UserID == userID {
			return &c.UserAssignments[i]
		}
	}
	return nil
}

// SetAssignment creates or replaces the user's assignment.
func (c *Configuration) SetAssignment(a UserLanguageAssignment) {
	if existing := c.Assignment(a.UserID); existing != nil {
		*existing = a
		return
	}
	c.UserAssignments = append(c.UserAssignments, a)
}

// ClearAssignment removes the user's assignment.
func (c *Configuration) ClearAssignment(userID string) bool {
	before := len(c.UserAssignments)
	c.UserAssignments = slices.DeleteFunc(c.UserAssignments, func(u UserLanguageAssignment) bool {
		return u.UserID == userID
	})
	return len(c.UserAssignments) != before
}

// MirroredSourceLibraryIDs returns the set of source library IDs that have at least one mirror.
func (c *Configuration) MirroredSourceLibraryIDs() map[string]struct{} {
	out := make(map[string]struct{})
	for i := range c.Alternatives {
		for j := range c.Alternatives[i].Mirrors {
			out[c.Alternatives[i].Mirrors[j].SourceLibraryID] = struct{}{}
		}
	}
	return out
}
