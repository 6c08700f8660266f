package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/listenupapp/listenup-mirrors/internal/errors"
	"github.com/listenupapp/listenup-mirrors/internal/host"
)

// ListLibraries returns every library with its paths, ordered by creation time.
func (s *Store) ListLibraries(ctx context.Context) ([]host.Library, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, collection_type, options FROM libraries ORDER BY created_at ASC, name ASC`)
	if err != nil {
		return nil, fmt.Errorf("query libraries: %w", err)
	}
	defer rows.Close()

	var libs []host.Library
	index := make(map[string]int)
	for rows.Next() {
		var (
			lib     host.Library
			options string
		)
		if err := rows.Scan(&lib.ID, &lib.Name, &lib.CollectionType, &options); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(options), &lib.Options); err != nil {
			return nil, fmt.Errorf("decode options for library %s: %w", lib.ID, err)
		}
		index[lib.ID] = len(libs)
		libs = append(libs, lib)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	pathRows, err := s.db.QueryContext(ctx,
		`SELECT library_id, path FROM library_paths ORDER BY library_id, position ASC`)
	if err != nil {
		return nil, fmt.Errorf("query library paths: %w", err)
	}
	defer pathRows.Close()

	for pathRows.Next() {
		var libraryID, path string
		if err := pathRows.Scan(&libraryID, &path); err != nil {
			return nil, err
		}
		if i, ok := index[libraryID]; ok {
			libs[i].Paths = append(libs[i].Paths, path)
		}
	}
	return libs, pathRows.Err()
}

// CreateLibrary inserts an empty library.
// Returns an AlreadyExists error when the name is taken.
func (s *Store) CreateLibrary(ctx context.Context, name, collectionType string, opts host.LibraryOptions) (host.Library, error) {
	optionsJSON, err := json.Marshal(opts)
	if err != nil {
		return host.Library{}, err
	}

	lib := host.Library{
		ID:             uuid.NewString(),
		Name:           name,
		CollectionType: collectionType,
		Options:        opts.Clone(),
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO libraries (id, name, collection_type, options, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		lib.ID, lib.Name, lib.CollectionType, string(optionsJSON), formatTime(s.now()),
	)
	if isUniqueViolation(err) {
		return host.Library{}, errors.AlreadyExistsf("library %q already exists", name)
	}
	if err != nil {
		return host.Library{}, fmt.Errorf("insert library: %w", err)
	}

	s.logger.Info("library created", "library_id", lib.ID, "name", name)
	return lib, nil
}

// AddLibraryPath appends a path to the named library. Adding a path twice is a no-op.
func (s *Store) AddLibraryPath(ctx context.Context, libraryName, path string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	libraryID, err := libraryIDByName(ctx, tx, libraryName)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO library_paths (library_id, path, position)
		VALUES (?, ?, (SELECT COALESCE(MAX(position), -1) + 1 FROM library_paths WHERE library_id = ?))
		ON CONFLICT (library_id, path) DO NOTHING`,
		libraryID, path, libraryID,
	)
	if err != nil {
		return fmt.Errorf("insert library path: %w", err)
	}
	return tx.Commit()
}

// RemoveLibrary deletes the named library and its paths. Files on disk are untouched.
func (s *Store) RemoveLibrary(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM libraries WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("delete library: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.NotFoundf("library %q not found", name)
	}
	s.logger.Info("library removed", "name", name)
	return nil
}

func libraryIDByName(ctx context.Context, tx *sql.Tx, name string) (string, error) {
	var id string
	err := tx.QueryRowContext(ctx, `SELECT id FROM libraries WHERE name = ?`, name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", errors.NotFoundf("library %q not found", name)
	}
	return id, err
}
