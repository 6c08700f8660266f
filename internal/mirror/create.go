package mirror

import (
	"context"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"

	"github.com/listenupapp/listenup-mirrors/internal/domain"
	"github.com/listenupapp/listenup-mirrors/internal/errors"
	"github.com/listenupapp/listenup-mirrors/internal/host"
)

// CreateMirror builds the mirror's hardlink tree and, on first run, its host
// library. A failed build leaves the partial tree in place for the next sync
// to complete.
func (e *Engine) CreateMirror(ctx context.Context, alternativeID, mirrorID string) error {
	unlock := e.locks.acquire(mirrorID)
	defer unlock()

	cfg, alt, m, err := e.lookup(mirrorID)
	if err != nil {
		return err
	}
	if alt.ID != alternativeID {
		return errors.NotFoundf("mirror %q not found in alternative %q", mirrorID, alternativeID)
	}

	return e.create(ctx, cfg, alt, m)
}

// create does the work of CreateMirror. The caller holds the mirror's lock.
func (e *Engine) create(ctx context.Context, cfg *domain.Configuration, alt *domain.LanguageAlternative, m *domain.LibraryMirror) (err error) {
	log := e.logger.With("mirror_id", m.ID, "alternative_id", alt.ID)
	log.Info("creating mirror", "source_library_id", m.SourceLibraryID, "target", m.TargetPath)

	e.markSyncing(ctx, m.ID)
	fileCount := 0
	defer func() {
		if err != nil {
			log.Error("mirror creation failed", "error", err)
		}
		e.finish(ctx, m.ID, fileCount, err)
	}()

	src, err := e.sourceLibrary(ctx, m)
	if err != nil {
		return err
	}

	for _, p := range src.Paths {
		if !e.fs.AreOnSameFilesystem(p, m.TargetPath) {
			return errors.Filesystemf("source path %s and target %s are on different filesystems", p, m.TargetPath)
		}
	}

	if err := os.MkdirAll(m.TargetPath, 0o755); err != nil {
		return errors.Wrapf(err, errors.CodeInternal, "create target directory %s", m.TargetPath)
	}

	compiled := rules(cfg)
	trees := make([]Tree, 0, len(src.Paths))
	for _, root := range src.Paths {
		tree, err := e.walker.Collect(ctx, root, compiled)
		if err != nil {
			return fmt.Errorf("scan source path %s: %w", root, err)
		}
		trees = append(trees, tree)
	}
	files := Merge(trees...)

	linked := 0
	for _, rel := range sortedKeys(files) {
		if err := ctx.Err(); err != nil {
			return err
		}
		ok, err := e.fs.CreateHardLink(files[rel], filepath.Join(m.TargetPath, rel))
		if err != nil {
			log.Warn("skipping file", "path", rel, "error", err)
			continue
		}
		if ok {
			linked++
		}
	}
	log.Info("hardlinks created", "linked", linked, "files", len(files))

	if !m.HasTargetLibrary() {
		if err := e.ensureHostLibrary(ctx, alt, m, src); err != nil {
			return err
		}
	}

	fileCount = len(files)
	return nil
}

// ensureHostLibrary creates the mirror's host library and records its ID.
// A library left behind by an earlier attempt that already points at the
// target path is adopted instead of recreated.
func (e *Engine) ensureHostLibrary(ctx context.Context, alt *domain.LanguageAlternative, m *domain.LibraryMirror, src host.Library) error {
	name := m.TargetLibraryName
	if name == "" {
		name = DefaultTargetLibraryName(src.Name, alt.Name)
	}
	collectionType := m.CollectionType
	if collectionType == "" {
		collectionType = src.CollectionType
	}

	libs, err := e.catalog.ListLibraries(ctx)
	if err != nil {
		return errors.Wrap(err, errors.CodeInternal, "list host libraries")
	}

	var lib host.Library
	if i := slices.IndexFunc(libs, func(l host.Library) bool { return l.Name == name }); i >= 0 && slices.Contains(libs[i].Paths, m.TargetPath) {
		lib = libs[i]
		e.logger.Info("adopting existing host library", "mirror_id", m.ID, "library_id", lib.ID)
	} else {
		lib, err = e.catalog.CreateLibrary(ctx, name, collectionType, MirrorLibraryOptions(src.Options, alt))
		if err != nil {
			return errors.Wrapf(err, errors.CodeInternal, "create host library %q", name)
		}
		if err := e.catalog.AddLibraryPath(ctx, name, m.TargetPath); err != nil {
			return errors.Wrapf(err, errors.CodeInternal, "add path to host library %q", name)
		}
	}

	id := lib.ID
	if _, err := e.store.UpdateMirror(ctx, m.ID, func(_ *domain.LanguageAlternative, live *domain.LibraryMirror) {
		live.TargetLibraryID = &id
		live.TargetLibraryName = name
		live.CollectionType = collectionType
	}); err != nil {
		e.logger.Warn("failed to persist target library", "mirror_id", m.ID, "error", err)
	}
	m.TargetLibraryID = &id
	m.TargetLibraryName = name

	refresh := host.RefreshRequest{
		MetadataMode:       host.RefreshFull,
		ImageMode:          host.RefreshFull,
		ReplaceAllMetadata: true,
		ReplaceAllImages:   true,
		Priority:           host.PriorityLow,
	}
	if err := e.catalog.QueueRefresh(ctx, id, refresh); err != nil {
		e.logger.Warn("failed to queue metadata refresh", "mirror_id", m.ID, "library_id", id, "error", err)
	}

	e.logger.Info("host library ready", "mirror_id", m.ID, "library_id", id, "name", name)
	return nil
}

// MirrorLibraryOptions derives a mirror library's options from its source.
// Everything is inherited except metadata language and country, which come
// from the alternative, and writeback, which is always off: a mirror shares
// file data with its source and must never write into it.
func MirrorLibraryOptions(source host.LibraryOptions, alt *domain.LanguageAlternative) host.LibraryOptions {
	opts := source.Clone()
	opts.MetadataLanguage = alt.MetadataLanguage
	opts.MetadataCountry = alt.MetadataCountry
	opts.SaveLocalMetadata = false
	opts.SaveMetadataIntoMedia = false
	return opts
}

// DefaultTargetLibraryName names a mirror library after its source and alternative.
func DefaultTargetLibraryName(sourceName, alternativeName string) string {
	return fmt.Sprintf("%s (%s)", sourceName, alternativeName)
}

func sortedKeys(t Tree) []string {
	return slices.Sorted(maps.Keys(t))
}
