package backup

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"

	"github.com/listenupapp/listenup-mirrors/internal/backup/stream"
	"github.com/listenupapp/listenup-mirrors/internal/domain"
)

// contents is everything read from an archive.
type contents struct {
	manifest     Manifest
	settings     Settings
	alternatives []domain.LanguageAlternative
	mappings     []domain.LdapGroupMapping
	assignments  []domain.UserLanguageAssignment
	errors       []RestoreError
}

// Validate checks an archive without restoring it.
func (s *Service) Validate(_ context.Context, path string) (*ValidationResult, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return &ValidationResult{Errors: []string{fmt.Sprintf("failed to open backup: %v", err)}}, nil
	}
	defer zr.Close()

	return validate(&zr.Reader), nil
}

func validate(zr *zip.Reader) *ValidationResult {
	result := &ValidationResult{Valid: true}

	var manifest Manifest
	if err := stream.ReadDocument(zr, manifestFile, &manifest); err != nil {
		result.Valid = false
		if errors.Is(err, stream.ErrFileNotFound) {
			result.Errors = append(result.Errors, "missing "+manifestFile)
		} else {
			result.Errors = append(result.Errors, fmt.Sprintf("invalid manifest: %v", err))
		}
		return result
	}
	result.Manifest = &manifest

	if manifest.Version != FormatVersion {
		result.Valid = false
		result.Errors = append(result.Errors,
			fmt.Sprintf("unsupported version %s (want %s)", manifest.Version, FormatVersion))
	}

	for _, path := range []string{settingsFile, alternativesFile, mappingsFile, assignmentsFile} {
		rc, err := stream.OpenFile(zr, path)
		if err != nil {
			result.Warnings = append(result.Warnings, "missing file: "+path)
			continue
		}
		rc.Close()
	}
	return result
}

// Restore applies an archive to the live configuration. In full mode the
// configuration is replaced; in merge mode backup entities are added and
// ID collisions follow opts.MergeStrategy. References to alternatives that
// do not survive the restore are dropped and reported.
func (s *Service) Restore(ctx context.Context, path string, opts RestoreOptions) (*RestoreResult, error) {
	if opts.Mode == "" {
		opts.Mode = RestoreModeFull
	}
	if opts.MergeStrategy == "" {
		opts.MergeStrategy = MergeKeepLocal
	}
	if !opts.Mode.Valid() {
		return nil, fmt.Errorf("unknown restore mode %q", opts.Mode)
	}
	if !opts.MergeStrategy.Valid() {
		return nil, fmt.Errorf("unknown merge strategy %q", opts.MergeStrategy)
	}

	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open backup: %w", err)
	}
	defer zr.Close()

	if v := validate(&zr.Reader); !v.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBackup, v.Errors)
	}
	c, err := read(&zr.Reader)
	if err != nil {
		return nil, err
	}

	s.logger.Info("starting restore",
		"path", path,
		"mode", opts.Mode,
		"merge_strategy", opts.MergeStrategy,
		"dry_run", opts.DryRun)

	var result RestoreResult
	_, err = s.store.UpdateIf(ctx, func(cfg *domain.Configuration) bool {
		result = apply(cfg, c, opts)
		return !opts.DryRun
	})
	if err != nil {
		return nil, fmt.Errorf("save restored configuration: %w", err)
	}
	result.DryRun = opts.DryRun

	s.logger.Info("restore complete",
		"alternatives", result.Imported.Alternatives,
		"mirrors", result.Imported.Mirrors,
		"skipped", result.Skipped,
		"errors", len(result.Errors))
	return &result, nil
}

func read(zr *zip.Reader) (*contents, error) {
	c := &contents{settings: settingsOf(domain.NewConfiguration())}
	if err := stream.ReadDocument(zr, manifestFile, &c.manifest); err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	if err := stream.ReadDocument(zr, settingsFile, &c.settings); err != nil && !errors.Is(err, stream.ErrFileNotFound) {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	var err error
	if c.alternatives, err = readEntities[domain.LanguageAlternative](zr, alternativesFile, "alternative", c); err != nil {
		return nil, err
	}
	if c.mappings, err = readEntities[domain.LdapGroupMapping](zr, mappingsFile, "ldap_group_mapping", c); err != nil {
		return nil, err
	}
	if c.assignments, err = readEntities[domain.UserLanguageAssignment](zr, assignmentsFile, "user_assignment", c); err != nil {
		return nil, err
	}
	return c, nil
}

// readEntities collects a JSONL file. Unparseable lines are recorded on c and skipped.
func readEntities[T any](zr *zip.Reader, path, entityType string, c *contents) ([]T, error) {
	rc, err := stream.OpenFile(zr, path)
	if errors.Is(err, stream.ErrFileNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	var out []T
	for record, err := range stream.Records[T](rc) {
		if err != nil {
			c.errors = append(c.errors, RestoreError{EntityType: entityType, EntityID: path, Error: err.Error()})
			continue
		}
		out = append(out, record)
	}
	return out, nil
}

// apply merges c into cfg and reports what it did.
func apply(cfg *domain.Configuration, c *contents, opts RestoreOptions) RestoreResult {
	result := RestoreResult{Errors: append([]RestoreError(nil), c.errors...)}
	fail := func(entityType, id, msg string) {
		result.Skipped++
		result.Errors = append(result.Errors, RestoreError{EntityType: entityType, EntityID: id, Error: msg})
	}
	keepBackup := opts.Mode == RestoreModeFull || opts.MergeStrategy == MergeKeepBackup

	if opts.Mode == RestoreModeFull {
		*cfg = *domain.NewConfiguration()
	}
	if keepBackup {
		cfg.DefaultAlternativeID = c.settings.DefaultAlternativeID
		cfg.ExcludedExtensions = c.settings.ExcludedExtensions
		cfg.ExcludedDirectories = c.settings.ExcludedDirectories
		cfg.IncludedDirectories = c.settings.IncludedDirectories
		cfg.SyncAfterLibraryScan = c.settings.SyncAfterLibraryScan
		cfg.SetUserLanguagePreferences = c.settings.SetUserLanguagePreferences
	}

	for _, alt := range c.alternatives {
		if alt.ID == "" || alt.Name == "" {
			fail("alternative", alt.ID, "missing id or name")
			continue
		}
		if existing := cfg.Alternative(alt.ID); existing != nil {
			if !keepBackup {
				result.Skipped++
				continue
			}
			if other := cfg.AlternativeByName(alt.Name); other != nil && other.ID != alt.ID {
				fail("alternative", alt.ID, fmt.Sprintf("name %q is used by %s", alt.Name, other.ID))
				continue
			}
			if id := mirrorCollision(cfg, &alt); id != "" {
				fail("alternative", alt.ID, "mirror "+id+" belongs to another alternative")
				continue
			}
			*existing = alt.Clone()
		} else {
			if other := cfg.AlternativeByName(alt.Name); other != nil {
				fail("alternative", alt.ID, fmt.Sprintf("name %q is used by %s", alt.Name, other.ID))
				continue
			}
			if id := mirrorCollision(cfg, &alt); id != "" {
				fail("alternative", alt.ID, "mirror "+id+" belongs to another alternative")
				continue
			}
			cfg.Alternatives = append(cfg.Alternatives, alt.Clone())
		}
		result.Imported.Alternatives++
		result.Imported.Mirrors += len(alt.Mirrors)
	}

	for _, m := range c.mappings {
		if cfg.Alternative(m.AlternativeID) == nil {
			fail("ldap_group_mapping", m.GroupDN, "unknown alternative "+m.AlternativeID)
			continue
		}
		idx := -1
		for i := range cfg.LdapGroupMappings {
			if cfg.LdapGroupMappings[i].GroupDN == m.GroupDN {
				idx = i
				break
			}
		}
		switch {
		case idx < 0:
			cfg.LdapGroupMappings = append(cfg.LdapGroupMappings, m)
		case keepBackup:
			cfg.LdapGroupMappings[idx] = m
		default:
			result.Skipped++
			continue
		}
		result.Imported.GroupMappings++
	}

	for _, a := range c.assignments {
		if a.AlternativeID != "" && cfg.Alternative(a.AlternativeID) == nil {
			fail("user_assignment", a.UserID, "unknown alternative "+a.AlternativeID)
			continue
		}
		if cfg.Assignment(a.UserID) != nil && !keepBackup {
			result.Skipped++
			continue
		}
		cfg.SetAssignment(a)
		result.Imported.Assignments++
	}

	if cfg.DefaultAlternativeID != nil && cfg.Alternative(*cfg.DefaultAlternativeID) == nil {
		fail("settings", "default_alternative_id", "unknown alternative "+*cfg.DefaultAlternativeID)
		cfg.DefaultAlternativeID = nil
	}
	return result
}

// mirrorCollision returns the ID of a mirror in alt that another alternative already owns.
func mirrorCollision(cfg *domain.Configuration, alt *domain.LanguageAlternative) string {
	for i := range alt.Mirrors {
		if owner, _ := cfg.FindMirror(alt.Mirrors[i].ID); owner != nil && owner.ID != alt.ID {
			return alt.Mirrors[i].ID
		}
	}
	return ""
}
