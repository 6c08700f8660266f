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

// CreateUser adds a user who can see every library.
func (s *Store) CreateUser(ctx context.Context, name string) (host.User, error) {
	u := host.User{ID: uuid.NewString(), Name: name}
	_, err := s.db.ExecContext(ctx, `INSERT INTO users (id, name) VALUES (?, ?)`, u.ID, u.Name)
	if isUniqueViolation(err) {
		return host.User{}, errors.AlreadyExistsf("user %q already exists", name)
	}
	if err != nil {
		return host.User{}, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

// ListUsers returns every user ordered by name.
func (s *Store) ListUsers(ctx context.Context) ([]host.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM users ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	var users []host.User
	for rows.Next() {
		var u host.User
		if err := rows.Scan(&u.ID, &u.Name); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// GetPolicy returns the user's library access policy.
func (s *Store) GetPolicy(ctx context.Context, userID string) (host.AccessPolicy, error) {
	var (
		enableAll int
		folders   string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT enable_all_folders, enabled_folders FROM users WHERE id = ?`, userID,
	).Scan(&enableAll, &folders)
	if errors.Is(err, sql.ErrNoRows) {
		return host.AccessPolicy{}, errors.NotFoundf("user %q not found", userID)
	}
	if err != nil {
		return host.AccessPolicy{}, err
	}

	policy := host.AccessPolicy{EnableAllFolders: enableAll != 0}
	if err := json.Unmarshal([]byte(folders), &policy.EnabledFolders); err != nil {
		return host.AccessPolicy{}, fmt.Errorf("decode enabled folders: %w", err)
	}
	return policy, nil
}

// SetPolicy replaces the user's library access policy.
func (s *Store) SetPolicy(ctx context.Context, userID string, policy host.AccessPolicy) error {
	folders := policy.EnabledFolders
	if folders == nil {
		folders = []string{}
	}
	foldersJSON, err := json.Marshal(folders)
	if err != nil {
		return err
	}
	return s.updateUser(ctx, userID,
		`UPDATE users SET enable_all_folders = ?, enabled_folders = ? WHERE id = ?`,
		boolToInt(policy.EnableAllFolders), string(foldersJSON), userID)
}

// GetPreferences returns the user's playback language preferences.
func (s *Store) GetPreferences(ctx context.Context, userID string) (host.LanguagePreferences, error) {
	var prefs host.LanguagePreferences
	err := s.db.QueryRowContext(ctx,
		`SELECT audio_language, subtitle_language FROM users WHERE id = ?`, userID,
	).Scan(&prefs.AudioLanguage, &prefs.SubtitleLanguage)
	if errors.Is(err, sql.ErrNoRows) {
		return host.LanguagePreferences{}, errors.NotFoundf("user %q not found", userID)
	}
	return prefs, err
}

// SetPreferences replaces the user's playback language preferences.
func (s *Store) SetPreferences(ctx context.Context, userID string, prefs host.LanguagePreferences) error {
	return s.updateUser(ctx, userID,
		`UPDATE users SET audio_language = ?, subtitle_language = ? WHERE id = ?`,
		prefs.AudioLanguage, prefs.SubtitleLanguage, userID)
}

// AddUserToGroup records directory group membership.
func (s *Store) AddUserToGroup(ctx context.Context, userID, groupDN string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_groups (user_id, group_dn) VALUES (?, ?) ON CONFLICT DO NOTHING`,
		userID, groupDN)
	return err
}

// GroupsForUser returns the directory groups the user belongs to.
func (s *Store) GroupsForUser(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT group_dn FROM user_groups WHERE user_id = ? ORDER BY group_dn`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []string
	for rows.Next() {
		var g string
		if err := rows.Scan(&g); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

func (s *Store) updateUser(ctx context.Context, userID, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.NotFoundf("user %q not found", userID)
	}
	return nil
}
