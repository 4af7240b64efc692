package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"tubeshelf/internal/domain"
	"tubeshelf/internal/repository"
)

const (
	createDownloadsTable = `
CREATE TABLE IF NOT EXISTS downloads (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	video_id TEXT NOT NULL,
	format TEXT NOT NULL DEFAULT '',
	quality TEXT NOT NULL DEFAULT '',
	audio_only INTEGER NOT NULL DEFAULT 0,
	subtitles INTEGER NOT NULL DEFAULT 0,
	save_metadata INTEGER NOT NULL DEFAULT 0,
	transcode_args TEXT NOT NULL DEFAULT '[]',
	status TEXT NOT NULL,
	progress REAL NOT NULL DEFAULT 0,
	total_bytes INTEGER NULL,
	downloaded_bytes INTEGER NULL,
	file_path TEXT NOT NULL DEFAULT '',
	archive_location TEXT NOT NULL DEFAULT '',
	error_message TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	completed_at DATETIME NULL
);
CREATE INDEX IF NOT EXISTS idx_downloads_status ON downloads(status);
CREATE UNIQUE INDEX IF NOT EXISTS idx_downloads_active_video ON downloads(video_id)
	WHERE status IN ('pending', 'downloading');
`

	selectDownloadColumns = `
SELECT id, video_id, format, quality, audio_only, subtitles, save_metadata, transcode_args, status, progress, total_bytes, downloaded_bytes, file_path, archive_location, error_message, created_at, updated_at, completed_at
FROM downloads`

	activeStatusFilter = `status IN ('pending', 'downloading')`
)

type DownloadRepository struct {
	db *sql.DB
}

func NewDownloadRepository(db *sql.DB) repository.DownloadRepository {
	return &DownloadRepository{db: db}
}

func (r *DownloadRepository) Init(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createDownloadsTable); err != nil {
		return fmt.Errorf("create downloads table: %w", err)
	}
	return nil
}

func (r *DownloadRepository) Create(ctx context.Context, download *domain.Download) (int64, error) {
	now := time.Now().UTC()
	download.CreatedAt = now
	download.UpdatedAt = now
	if download.Status == "" {
		download.Status = domain.DownloadStatusPending
	}

	transcodeArgs, err := json.Marshal(nonNilArgs(download.Options.TranscodeArgs))
	if err != nil {
		return 0, fmt.Errorf("encode transcode args: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var existing int64
	err = tx.QueryRowContext(ctx, `SELECT id FROM downloads WHERE video_id=? AND `+activeStatusFilter+` LIMIT 1`, download.VideoID).Scan(&existing)
	switch {
	case err == nil:
		return existing, repository.ErrActiveDownload
	case !errors.Is(err, sql.ErrNoRows):
		return 0, fmt.Errorf("check active download: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
INSERT INTO downloads (video_id, format, quality, audio_only, subtitles, save_metadata, transcode_args, status, progress, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		download.VideoID,
		download.Options.Format,
		download.Options.Quality,
		boolToInt(download.Options.AudioOnly),
		boolToInt(download.Options.Subtitles),
		boolToInt(download.Options.SaveMetadata),
		string(transcodeArgs),
		string(download.Status),
		download.Progress,
		download.CreatedAt,
		download.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, repository.ErrActiveDownload
		}
		return 0, fmt.Errorf("insert download: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get last insert id: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit download insert: %w", err)
	}
	download.ID = id
	return id, nil
}

func (r *DownloadRepository) Get(ctx context.Context, id int64) (*domain.Download, error) {
	row := r.db.QueryRowContext(ctx, selectDownloadColumns+` WHERE id=?`, id)
	return scanDownload(row)
}

func (r *DownloadRepository) List(ctx context.Context) ([]domain.Download, error) {
	rows, err := r.db.QueryContext(ctx, selectDownloadColumns+` ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("query downloads: %w", err)
	}
	return collectDownloads(rows)
}

func (r *DownloadRepository) ListByStatuses(ctx context.Context, statuses ...domain.DownloadStatus) ([]domain.Download, error) {
	if len(statuses) == 0 {
		return []domain.Download{}, nil
	}

	args := make([]any, len(statuses))
	for i, status := range statuses {
		args[i] = string(status)
	}

	query := fmt.Sprintf(selectDownloadColumns+` WHERE status IN (%s) ORDER BY id ASC`, placeholders(len(statuses)))
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query downloads by status: %w", err)
	}
	return collectDownloads(rows)
}

func (r *DownloadRepository) MarkDownloading(ctx context.Context, id int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
UPDATE downloads
SET status=?, updated_at=?
WHERE id=? AND status=?`,
		string(domain.DownloadStatusDownloading),
		time.Now().UTC(),
		id,
		string(domain.DownloadStatusPending),
	)
	if err != nil {
		return false, fmt.Errorf("mark downloading: %w", err)
	}
	return affected(res)
}

// UpdateProgress only moves progress forward and only while downloading, so
// a late write can neither lower progress nor touch a finished download.
func (r *DownloadRepository) UpdateProgress(ctx context.Context, id int64, progress float64, downloaded, total int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
UPDATE downloads
SET progress=?, downloaded_bytes=?, total_bytes=?, updated_at=?
WHERE id=? AND status=? AND progress <= ?`,
		progress,
		downloaded,
		total,
		time.Now().UTC(),
		id,
		string(domain.DownloadStatusDownloading),
		progress,
	)
	if err != nil {
		return false, fmt.Errorf("update download progress: %w", err)
	}
	return affected(res)
}

func (r *DownloadRepository) Finish(ctx context.Context, id int64, params repository.FinishParams) (bool, error) {
	if !params.Status.IsTerminal() {
		return false, fmt.Errorf("finish download: %s is not a terminal status", params.Status)
	}
	now := time.Now().UTC()

	var (
		res sql.Result
		err error
	)
	switch params.Status {
	case domain.DownloadStatusCompleted:
		res, err = r.db.ExecContext(ctx, `
UPDATE downloads
SET status=?, progress=100, file_path=?, total_bytes=?, downloaded_bytes=?, error_message='', completed_at=?, updated_at=?
WHERE id=? AND `+activeStatusFilter,
			string(params.Status),
			params.FilePath,
			params.FileSize,
			params.FileSize,
			now,
			now,
			id,
		)
	default:
		msg := ""
		if params.Status == domain.DownloadStatusFailed {
			msg = params.ErrorMessage
		}
		res, err = r.db.ExecContext(ctx, `
UPDATE downloads
SET status=?, error_message=?, completed_at=?, updated_at=?
WHERE id=? AND `+activeStatusFilter,
			string(params.Status),
			msg,
			now,
			now,
			id,
		)
	}
	if err != nil {
		return false, fmt.Errorf("finish download: %w", err)
	}
	return affected(res)
}

func (r *DownloadRepository) SetArchiveLocation(ctx context.Context, id int64, location string) error {
	_, err := r.db.ExecContext(ctx, `
UPDATE downloads
SET archive_location=?, updated_at=?
WHERE id=?`,
		location,
		time.Now().UTC(),
		id,
	)
	if err != nil {
		return fmt.Errorf("set archive location: %w", err)
	}
	return nil
}

// FailByStatus fails every download currently in the given status.
func (r *DownloadRepository) FailByStatus(ctx context.Context, status domain.DownloadStatus, message string) (int64, error) {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `
UPDATE downloads
SET status=?, error_message=?, completed_at=?, updated_at=?
WHERE status=?`,
		string(domain.DownloadStatusFailed),
		message,
		now,
		now,
		string(status),
	)
	if err != nil {
		return 0, fmt.Errorf("fail downloads: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("fail downloads rows affected: %w", err)
	}
	return n, nil
}

func (r *DownloadRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM downloads WHERE id=?`, id)
	if err != nil {
		return fmt.Errorf("delete download: %w", err)
	}
	ok, err := affected(res)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("download %d: %w", id, repository.ErrNotFound)
	}
	return nil
}

func collectDownloads(rows *sql.Rows) ([]domain.Download, error) {
	defer rows.Close()

	downloads := []domain.Download{}
	for rows.Next() {
		download, err := scanDownload(rows)
		if err != nil {
			return nil, err
		}
		downloads = append(downloads, *download)
	}
	return downloads, rows.Err()
}

func scanDownload(scanner rowScanner) (*domain.Download, error) {
	var (
		download        domain.Download
		status          string
		transcodeArgs   string
		totalBytes      sql.NullInt64
		downloadedBytes sql.NullInt64
		completedAt     sql.NullTime
	)

	if err := scanner.Scan(
		&download.ID,
		&download.VideoID,
		&download.Options.Format,
		&download.Options.Quality,
		&download.Options.AudioOnly,
		&download.Options.Subtitles,
		&download.Options.SaveMetadata,
		&transcodeArgs,
		&status,
		&download.Progress,
		&totalBytes,
		&downloadedBytes,
		&download.FilePath,
		&download.ArchiveLocation,
		&download.ErrorMessage,
		&download.CreatedAt,
		&download.UpdatedAt,
		&completedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("download: %w", repository.ErrNotFound)
		}
		return nil, fmt.Errorf("scan download: %w", err)
	}

	download.Status = domain.DownloadStatus(status)
	if transcodeArgs != "" {
		if err := json.Unmarshal([]byte(transcodeArgs), &download.Options.TranscodeArgs); err != nil {
			return nil, fmt.Errorf("decode transcode args: %w", err)
		}
	}
	if len(download.Options.TranscodeArgs) == 0 {
		download.Options.TranscodeArgs = nil
	}
	if totalBytes.Valid {
		v := totalBytes.Int64
		download.TotalBytes = &v
	}
	if downloadedBytes.Valid {
		v := downloadedBytes.Int64
		download.DownloadedBytes = &v
	}
	download.CreatedAt = download.CreatedAt.Local()
	download.UpdatedAt = download.UpdatedAt.Local()
	if completedAt.Valid {
		t := completedAt.Time.Local()
		download.CompletedAt = &t
	}

	return &download, nil
}

func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

func nonNilArgs(args []string) []string {
	if args == nil {
		return []string{}
	}
	return args
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
