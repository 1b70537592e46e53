package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"vidstream/internal/db"
	"vidstream/internal/models"
	"vidstream/internal/session"
)

type Videos struct {
	db *db.DB
}

func NewVideos(dbConn *db.DB) *Videos {
	return &Videos{db: dbConn}
}

func (s *Videos) FindByID(ctx context.Context, id uuid.UUID) (*models.Video, error) {
	var v models.Video
	err := s.db.Pool.QueryRow(ctx,
		`SELECT id, owner_id, title, description, video_url, thumbnail_url, duration_seconds, views, published, created_at
		 FROM videos WHERE id = $1`, id).
		Scan(&v.ID, &v.OwnerID, &v.Title, &v.Description, &v.VideoURL, &v.ThumbnailURL,
			&v.DurationSeconds, &v.Views, &v.Published, &v.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading video: %w", err)
	}
	return &v, nil
}

// CountView bumps the view counter of a published video. A missing or
// unpublished video is session.ErrNotFound.
func (s *Videos) CountView(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Pool.Exec(ctx,
		`UPDATE videos SET views = views + 1 WHERE id = $1 AND published`, id)
	if err != nil {
		return fmt.Errorf("counting view: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: video", session.ErrNotFound)
	}
	return nil
}

// InsertMany bulk-loads videos through the chunked batch helper; used by the
// dev fixture seeding path. Rows whose id already exists are skipped.
func (s *Videos) InsertMany(ctx context.Context, videos []models.Video) (int, error) {
	if len(videos) == 0 {
		return 0, nil
	}

	columns := []string{"id", "owner_id", "title", "description", "video_url", "thumbnail_url", "duration_seconds", "views", "published"}
	values := make([][]interface{}, 0, len(videos))
	for _, v := range videos {
		id := v.ID
		if id == uuid.Nil {
			id = uuid.New()
		}
		values = append(values, []interface{}{
			id, v.OwnerID, v.Title, v.Description, v.VideoURL, v.ThumbnailURL, v.DurationSeconds, v.Views, v.Published,
		})
	}

	return s.db.BatchInsert(ctx, "videos", columns, values, db.DefaultBatchConfig())
}
