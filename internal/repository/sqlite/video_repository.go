package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"tubeshelf/internal/domain"
	"tubeshelf/internal/repository"
)

const createVideosTable = `
CREATE TABLE IF NOT EXISTS videos (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	video_id TEXT NOT NULL UNIQUE,
	title TEXT NOT NULL DEFAULT '',
	channel_title TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	thumbnail TEXT NOT NULL DEFAULT '',
	duration_seconds INTEGER NOT NULL DEFAULT 0,
	published_at DATETIME NULL,
	view_count INTEGER NOT NULL DEFAULT 0,
	like_count INTEGER NOT NULL DEFAULT 0,
	downloaded INTEGER NOT NULL DEFAULT 0,
	file_path TEXT NOT NULL DEFAULT '',
	file_size INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);
`

const selectVideoColumns = `
SELECT v.id, v.video_id, v.title, v.channel_title, v.description, v.thumbnail, v.duration_seconds, v.published_at, v.view_count, v.like_count, v.downloaded, v.file_path, v.file_size, v.created_at, v.updated_at
FROM videos v`

type VideoRepository struct {
	db *sql.DB
}

func NewVideoRepository(db *sql.DB) repository.VideoRepository {
	return &VideoRepository{db: db}
}

func (r *VideoRepository) Init(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createVideosTable); err != nil {
		return fmt.Errorf("create videos table: %w", err)
	}
	return nil
}

func (r *VideoRepository) Upsert(ctx context.Context, video *domain.Video) error {
	now := time.Now().UTC()
	d := video.Details
	_, err := r.db.ExecContext(ctx, `
INSERT INTO videos (video_id, title, channel_title, description, thumbnail, duration_seconds, published_at, view_count, like_count, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(video_id) DO UPDATE SET
	title=excluded.title,
	channel_title=excluded.channel_title,
	description=excluded.description,
	thumbnail=excluded.thumbnail,
	duration_seconds=excluded.duration_seconds,
	published_at=excluded.published_at,
	view_count=excluded.view_count,
	like_count=excluded.like_count,
	updated_at=excluded.updated_at`,
		video.VideoID,
		d.Title,
		d.ChannelTitle,
		d.Description,
		d.Thumbnail,
		d.DurationSeconds,
		nullTime(d.PublishedAt),
		d.ViewCount,
		d.LikeCount,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("upsert video: %w", err)
	}

	stored, err := r.GetByVideoID(ctx, video.VideoID)
	if err != nil {
		return err
	}
	*video = *stored
	return nil
}

func (r *VideoRepository) Get(ctx context.Context, id int64) (*domain.Video, error) {
	return scanVideo(r.db.QueryRowContext(ctx, selectVideoColumns+` WHERE v.id=?`, id))
}

func (r *VideoRepository) GetByVideoID(ctx context.Context, videoID string) (*domain.Video, error) {
	return scanVideo(r.db.QueryRowContext(ctx, selectVideoColumns+` WHERE v.video_id=?`, videoID))
}

func (r *VideoRepository) List(ctx context.Context) ([]domain.Video, error) {
	rows, err := r.db.QueryContext(ctx, selectVideoColumns+` ORDER BY v.id DESC`)
	if err != nil {
		return nil, fmt.Errorf("query videos: %w", err)
	}
	return collectVideos(rows)
}

func (r *VideoRepository) MarkDownloaded(ctx context.Context, videoID, filePath string, fileSize int64) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE videos
SET downloaded=1, file_path=?, file_size=?, updated_at=?
WHERE video_id=?`,
		filePath,
		fileSize,
		time.Now().UTC(),
		videoID,
	)
	if err != nil {
		return fmt.Errorf("mark video downloaded: %w", err)
	}
	ok, err := affected(res)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("video %s: %w", videoID, repository.ErrNotFound)
	}
	return nil
}

func (r *VideoRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM videos WHERE id=?`, id)
	if err != nil {
		return fmt.Errorf("delete video: %w", err)
	}
	ok, err := affected(res)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("video %d: %w", id, repository.ErrNotFound)
	}
	return nil
}

func collectVideos(rows *sql.Rows) ([]domain.Video, error) {
	defer rows.Close()

	videos := []domain.Video{}
	for rows.Next() {
		video, err := scanVideo(rows)
		if err != nil {
			return nil, err
		}
		videos = append(videos, *video)
	}
	return videos, rows.Err()
}

func scanVideo(scanner rowScanner) (*domain.Video, error) {
	var (
		video       domain.Video
		publishedAt sql.NullTime
	)
	if err := scanner.Scan(
		&video.ID,
		&video.VideoID,
		&video.Details.Title,
		&video.Details.ChannelTitle,
		&video.Details.Description,
		&video.Details.Thumbnail,
		&video.Details.DurationSeconds,
		&publishedAt,
		&video.Details.ViewCount,
		&video.Details.LikeCount,
		&video.Downloaded,
		&video.FilePath,
		&video.FileSize,
		&video.CreatedAt,
		&video.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("video: %w", repository.ErrNotFound)
		}
		return nil, fmt.Errorf("scan video: %w", err)
	}
	if publishedAt.Valid {
		t := publishedAt.Time.Local()
		video.Details.PublishedAt = &t
	}
	video.CreatedAt = video.CreatedAt.Local()
	video.UpdatedAt = video.UpdatedAt.Local()
	return &video, nil
}
