package sqlite

import (
	"context"
	"fmt"

	"github.com/listenupapp/listenup-mirrors/internal/host"
)

// QueuedRefresh is a pending refresh request.
type QueuedRefresh struct {
	ID        int64
	LibraryID string
	Request   host.RefreshRequest
}

// QueueRefresh records a refresh request for the library.
func (s *Store) QueueRefresh(ctx context.Context, libraryID string, req host.RefreshRequest) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_queue (library_id, metadata_mode, image_mode, replace_metadata, replace_images, priority, queued_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		libraryID,
		string(req.MetadataMode),
		string(req.ImageMode),
		boolToInt(req.ReplaceAllMetadata),
		boolToInt(req.ReplaceAllImages),
		int(req.Priority),
		formatTime(s.now()),
	)
	if err != nil {
		return fmt.Errorf("queue refresh: %w", err)
	}
	s.logger.Debug("refresh queued", "library_id", libraryID, "priority", int(req.Priority))
	return nil
}

// PendingRefreshes returns queued refreshes, highest priority first.
func (s *Store) PendingRefreshes(ctx context.Context) ([]QueuedRefresh, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, library_id, metadata_mode, image_mode, replace_metadata, replace_images, priority
		FROM refresh_queue ORDER BY priority DESC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query refresh queue: %w", err)
	}
	defer rows.Close()

	var out []QueuedRefresh
	for rows.Next() {
		var (
			q                        QueuedRefresh
			metaMode, imageMode      string
			replaceMeta, replaceImgs int
			priority                 int
		)
		if err := rows.Scan(&q.ID, &q.LibraryID, &metaMode, &imageMode, &replaceMeta, &replaceImgs, &priority); err != nil {
			return nil, err
		}
		q.Request = host.RefreshRequest{
			MetadataMode:       host.RefreshMode(metaMode),
			ImageMode:          host.RefreshMode(imageMode),
			ReplaceAllMetadata: replaceMeta != 0,
			ReplaceAllImages:   replaceImgs != 0,
			Priority:           host.RefreshPriority(priority),
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

// AckRefresh removes a processed refresh from the queue.
func (s *Store) AckRefresh(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM refresh_queue WHERE id = ?`, id)
	return err
}
