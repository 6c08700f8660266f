package backup

import (
	"archive/zip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/listenupapp/listenup-mirrors/internal/backup/stream"
	"github.com/listenupapp/listenup-mirrors/internal/domain"
	"github.com/listenupapp/listenup-mirrors/internal/store"
)

const backupSuffix = ".mirrors.zip"

// Service creates, lists and restores configuration backups.
type Service struct {
	store     *store.Store
	backupDir string
	logger    *slog.Logger
	now       func() time.Time
}

// NewService creates a backup Service writing into backupDir.
func NewService(s *store.Store, backupDir string, logger *slog.Logger) *Service {
	return &Service{
		store:     s,
		backupDir: backupDir,
		logger:    logger,
		now:       time.Now,
	}
}

// Create writes the current configuration to a new archive. An empty
// outputPath names the file after the current time inside the backup directory.
func (s *Service) Create(ctx context.Context, outputPath string) (*BackupResult, error) {
	start := s.now()
	if outputPath == "" {
		if err := os.MkdirAll(s.backupDir, 0o755); err != nil {
			return nil, fmt.Errorf("create backup dir: %w", err)
		}
		outputPath = filepath.Join(s.backupDir, "backup-"+start.Format("2006-01-02-150405")+backupSuffix)
	}

	cfg := s.store.Snapshot()
	counts, err := s.writeArchive(ctx, outputPath, cfg, start)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(outputPath)
	if err != nil {
		return nil, err
	}
	sum, err := checksum(outputPath)
	if err != nil {
		return nil, err
	}

	result := &BackupResult{
		Path:     outputPath,
		Size:     info.Size(),
		Counts:   counts,
		Duration: time.Since(start),
		Checksum: sum,
	}
	s.logger.Info("backup complete",
		"path", result.Path,
		"size", result.Size,
		"alternatives", counts.Alternatives,
		"mirrors", counts.Mirrors,
		"checksum", result.Checksum)
	return result, nil
}

// writeArchive streams cfg into a temporary file and renames it into place,
// so a failed backup never leaves a partial archive at outputPath.
func (s *Service) writeArchive(ctx context.Context, outputPath string, cfg *domain.Configuration, createdAt time.Time) (EntityCounts, error) {
	var counts EntityCounts

	tmp, err := os.CreateTemp(filepath.Dir(outputPath), ".backup-*")
	if err != nil {
		return counts, fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	zw := zip.NewWriter(tmp)
	write := func() error {
		alts, err := stream.NewWriter(zw, alternativesFile)
		if err != nil {
			return err
		}
		for i := range cfg.Alternatives {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := alts.Write(cfg.Alternatives[i]); err != nil {
				return err
			}
			counts.Mirrors += len(cfg.Alternatives[i].Mirrors)
		}
		counts.Alternatives = alts.Count()

		mappings, err := stream.NewWriter(zw, mappingsFile)
		if err != nil {
			return err
		}
		for _, m := range cfg.LdapGroupMappings {
			if err := mappings.Write(m); err != nil {
				return err
			}
		}
		counts.GroupMappings = mappings.Count()

		assignments, err := stream.NewWriter(zw, assignmentsFile)
		if err != nil {
			return err
		}
		for _, a := range cfg.UserAssignments {
			if err := assignments.Write(a); err != nil {
				return err
			}
		}
		counts.Assignments = assignments.Count()

		if err := stream.WriteDocument(zw, settingsFile, settingsOf(cfg)); err != nil {
			return err
		}
		return stream.WriteDocument(zw, manifestFile, Manifest{
			Version:   FormatVersion,
			CreatedAt: createdAt.UTC(),
			Counts:    counts,
		})
	}

	if err := write(); err != nil {
		zw.Close()
		tmp.Close()
		return counts, fmt.Errorf("write backup: %w", err)
	}
	if err := zw.Close(); err != nil {
		tmp.Close()
		return counts, fmt.Errorf("finish archive: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return counts, err
	}
	if err := os.Rename(tmp.Name(), outputPath); err != nil {
		return counts, fmt.Errorf("move backup into place: %w", err)
	}
	return counts, nil
}

func settingsOf(cfg *domain.Configuration) Settings {
	return Settings{
		DefaultAlternativeID:       cfg.DefaultAlternativeID,
		ExcludedExtensions:         cfg.ExcludedExtensions,
		ExcludedDirectories:        cfg.ExcludedDirectories,
		IncludedDirectories:        cfg.IncludedDirectories,
		SyncAfterLibraryScan:       cfg.SyncAfterLibraryScan,
		SetUserLanguagePreferences: cfg.SetUserLanguagePreferences,
	}
}

func checksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// List returns all backups in the backup directory, newest first.
func (s *Service) List(_ context.Context) ([]BackupInfo, error) {
	entries, err := os.ReadDir(s.backupDir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var backups []BackupInfo
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), backupSuffix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		backups = append(backups, BackupInfo{
			ID:        strings.TrimSuffix(entry.Name(), backupSuffix),
			Path:      filepath.Join(s.backupDir, entry.Name()),
			Size:      info.Size(),
			CreatedAt: info.ModTime(),
		})
	}

	slices.SortFunc(backups, func(a, b BackupInfo) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return backups, nil
}

// Get returns a backup by ID.
func (s *Service) Get(_ context.Context, id string) (*BackupInfo, error) {
	path := s.Path(id)
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrBackupNotFound
	}
	if err != nil {
		return nil, err
	}
	return &BackupInfo{ID: id, Path: path, Size: info.Size(), CreatedAt: info.ModTime()}, nil
}

// Delete removes a backup.
func (s *Service) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return os.Remove(s.Path(id))
}

// Path returns the file path for a backup ID.
func (s *Service) Path(id string) string {
	return filepath.Join(s.backupDir, filepath.Base(id)+backupSuffix)
}
