// Package classifier decides which files of a source library are hardlinked
// into a mirror and which are left behind as language-specific metadata.
//
// Classification rules, in order:
//   - A path with any ancestor directory in the excluded set is excluded,
//     even when the same name is also in the included set.
//   - A path with any ancestor directory in the included set is hardlinked
//     regardless of its extension (language-independent generated assets).
//   - A path whose extension is in the excluded-extension set is excluded.
//   - Everything else is hardlinked.
//
// All comparisons are case-insensitive and the package has no side effects.
package classifier

import (
	"path/filepath"
	"slices"
	"strings"
)

// DefaultExcludedExtensions are metadata and artwork formats that a mirror
// fetches for itself.
var DefaultExcludedExtensions = []string{
	".nfo", ".xml", ".jpg", ".jpeg", ".png", ".gif", ".webp", ".bmp", ".tbn",
}

// DefaultExcludedDirectories hold per-language artwork and metadata caches.
var DefaultExcludedDirectories = []string{
	"extrafanart", "extrathumbs", ".actors", "metadata",
}

// DefaultIncludedDirectories hold generated assets that are identical in every language.
var DefaultIncludedDirectories = []string{
	".trickplay", "trickplay",
}

// Set is a case-insensitive string set.
type Set map[string]struct{}

// NewSet builds a Set from values, lowercasing each.
func NewSet(values ...string) Set {
	s := make(Set, len(values))
	for _, v := range values {
		if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
			s[v] = struct{}{}
		}
	}
	return s
}

// Has reports whether v is in the set, ignoring case.
func (s Set) Has(v string) bool {
	_, ok := s[strings.ToLower(v)]
	return ok
}

// Rules carries per-call overrides. A nil slice selects the package default
// for that axis; a non-nil empty slice means "nothing" on that axis.
type Rules struct {
	ExcludedExtensions  []string
	ExcludedDirectories []string
	IncludedDirectories []string
}

// Compiled is a Rules value resolved into lookup sets. Build once per walk.
type Compiled struct {
	excludedExts Set
	excludedDirs Set
	includedDirs Set
}

// Compile resolves defaults and builds lookup sets. A nil *Rules uses all defaults.
func (r *Rules) Compile() *Compiled {
	var rules Rules
	if r != nil {
		rules = *r
	}
	return &Compiled{
		excludedExts: NewSet(normalizeExtensions(orDefault(rules.ExcludedExtensions, DefaultExcludedExtensions))...),
		excludedDirs: NewSet(orDefault(rules.ExcludedDirectories, DefaultExcludedDirectories)...),
		includedDirs: NewSet(orDefault(rules.IncludedDirectories, DefaultIncludedDirectories)...),
	}
}

// ShouldHardlink reports whether the file at path belongs in a mirror.
func ShouldHardlink(path string, rules *Rules) bool {
	return rules.Compile().ShouldHardlink(path)
}

// ShouldExcludeDirectory reports whether the directory at path, or any of its
// ancestors, is excluded. A nil excludedDirs uses the defaults.
func ShouldExcludeDirectory(path string, excludedDirs []string) bool {
	return (&Rules{ExcludedDirectories: excludedDirs}).Compile().ShouldExcludeDirectory(path)
}

// ShouldHardlink reports whether the file at path belongs in a mirror.
func (c *Compiled) ShouldHardlink(path string) bool {
	if strings.TrimSpace(path) == "" {
		return false
	}

	dirs := ancestorNames(path)
	if c.anyIn(dirs, c.excludedDirs) {
		return false
	}
	if c.anyIn(dirs, c.includedDirs) {
		return true
	}

	ext := filepath.Ext(path)
	if ext != "" && c.excludedExts.Has(ext) {
		return false
	}
	return true
}

// ShouldExcludeDirectory reports whether the directory at path, or any of its
// ancestors, is in the excluded set.
func (c *Compiled) ShouldExcludeDirectory(path string) bool {
	if strings.TrimSpace(path) == "" {
		return false
	}
	names := ancestorNames(path)
	names = append(names, filepath.Base(filepath.Clean(path)))
	return c.anyIn(names, c.excludedDirs)
}

func (c *Compiled) anyIn(names []string, set Set) bool {
	if len(set) == 0 {
		return false
	}
	return slices.ContainsFunc(names, set.Has)
}

// ancestorNames returns the directory components of path, excluding the file itself.
// Both separators are accepted so paths recorded on another platform classify the same.
func ancestorNames(path string) []string {
	normalized := strings.ReplaceAll(path, "\\", "/")
	parts := strings.Split(normalized, "/")
	if len(parts) <= 1 {
		return nil
	}
	dirs := parts[:len(parts)-1]
	out := dirs[:0:0]
	for _, d := range dirs {
		if d != "" && d != "." {
			out = append(out, d)
		}
	}
	return out
}

func orDefault(values, defaults []string) []string {
	if values == nil {
		return defaults
	}
	return values
}

// NormalizeSet lowercases, trims, and de-duplicates values while keeping first-seen order.
// The result is never nil so an explicitly empty setting survives persistence.
func NormalizeSet(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// NormalizeExtensions is NormalizeSet with a leading dot enforced on each entry.
func NormalizeExtensions(values []string) []string {
	return NormalizeSet(normalizeExtensions(values))
}

func normalizeExtensions(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" && !strings.HasPrefix(v, ".") {
			v = "." + v
		}
		out = append(out, v)
	}
	return out
}
