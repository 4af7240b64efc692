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

const createBatchTables = `
CREATE TABLE IF NOT EXISTS batch_downloads (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL DEFAULT '',
	preset_id INTEGER NULL,
	status TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	completed_at DATETIME NULL,
	FOREIGN KEY(preset_id) REFERENCES quality_presets(id) ON DELETE SET NULL
);
CREATE TABLE IF NOT EXISTS batch_download_items (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	batch_id INTEGER NOT NULL,
	position INTEGER NOT NULL,
	video_id TEXT NOT NULL,
	status TEXT NOT NULL,
	download_id INTEGER NULL,
	error_message TEXT NOT NULL DEFAULT '',
	updated_at DATETIME NOT NULL,
	FOREIGN KEY(batch_id) REFERENCES batch_downloads(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_batch_items_batch ON batch_download_items(batch_id, position);
`

const selectBatchColumns = `
SELECT id, name, preset_id, status, created_at, updated_at, completed_at
FROM batch_downloads`

type BatchRepository struct {
	db *sql.DB
}

func NewBatchRepository(db *sql.DB) repository.BatchRepository {
	return &BatchRepository{db: db}
}

func (r *BatchRepository) Init(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createBatchTables); err != nil {
		return fmt.Errorf("create batch tables: %w", err)
	}
	return nil
}

func (r *BatchRepository) Create(ctx context.Context, batch *domain.BatchDownload) (int64, error) {
	now := time.Now().UTC()
	batch.CreatedAt = now
	batch.UpdatedAt = now
	if batch.Status == "" {
		batch.Status = domain.BatchStatusPending
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
INSERT INTO batch_downloads (name, preset_id, status, created_at, updated_at)
VALUES (?, ?, ?, ?, ?)`,
		batch.Name,
		nullInt64(batch.PresetID),
		string(batch.Status),
		batch.CreatedAt,
		batch.UpdatedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("insert batch: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("batch last insert id: %w", err)
	}

	for i := range batch.Items {
		item := &batch.Items[i]
		item.BatchID = id
		item.Position = i
		item.UpdatedAt = now
		if item.Status == "" {
			item.Status = domain.BatchItemStatusPending
		}
		itemRes, err := tx.ExecContext(ctx, `
INSERT INTO batch_download_items (batch_id, position, video_id, status, download_id, error_message, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
			id,
			item.Position,
			item.VideoID,
			string(item.Status),
			nullInt64(item.DownloadID),
			item.ErrorMessage,
			item.UpdatedAt,
		)
		if err != nil {
			return 0, fmt.Errorf("insert batch item: %w", err)
		}
		if item.ID, err = itemRes.LastInsertId(); err != nil {
			return 0, fmt.Errorf("batch item last insert id: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit batch insert: %w", err)
	}
	batch.ID = id
	return id, nil
}

func (r *BatchRepository) Get(ctx context.Context, id int64) (*domain.BatchDownload, error) {
	batch, err := scanBatch(r.db.QueryRowContext(ctx, selectBatchColumns+` WHERE id=?`, id))
	if err != nil {
		return nil, err
	}
	if batch.Items, err = r.listItems(ctx, id); err != nil {
		return nil, err
	}
	return batch, nil
}

func (r *BatchRepository) List(ctx context.Context) ([]domain.BatchDownload, error) {
	rows, err := r.db.QueryContext(ctx, selectBatchColumns+` ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("query batches: %w", err)
	}
	return r.collectBatches(ctx, rows)
}

func (r *BatchRepository) ListByStatuses(ctx context.Context, statuses ...domain.BatchStatus) ([]domain.BatchDownload, error) {
	if len(statuses) == 0 {
		return []domain.BatchDownload{}, nil
	}
	args := make([]any, len(statuses))
	for i, status := range statuses {
		args[i] = string(status)
	}
	query := fmt.Sprintf(selectBatchColumns+` WHERE status IN (%s) ORDER BY id ASC`, placeholders(len(statuses)))
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query batches by status: %w", err)
	}
	return r.collectBatches(ctx, rows)
}

func (r *BatchRepository) UpdateItem(ctx context.Context, item *domain.BatchDownloadItem) error {
	item.UpdatedAt = time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `
UPDATE batch_download_items
SET status=?, download_id=?, error_message=?, updated_at=?
WHERE id=?`,
		string(item.Status),
		nullInt64(item.DownloadID),
		item.ErrorMessage,
		item.UpdatedAt,
		item.ID,
	)
	if err != nil {
		return fmt.Errorf("update batch item: %w", err)
	}
	ok, err := affected(res)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("batch item %d: %w", item.ID, repository.ErrNotFound)
	}
	return nil
}

func (r *BatchRepository) UpdateStatus(ctx context.Context, id int64, status domain.BatchStatus, completedAt *time.Time) error {
	_, err := r.db.ExecContext(ctx, `
UPDATE batch_downloads
SET status=?, completed_at=?, updated_at=?
WHERE id=?`,
		string(status),
		nullTime(completedAt),
		time.Now().UTC(),
		id,
	)
	if err != nil {
		return fmt.Errorf("update batch status: %w", err)
	}
	return nil
}

// collectBatches drains rows before loading items; the pool holds a single connection.
func (r *BatchRepository) collectBatches(ctx context.Context, rows *sql.Rows) ([]domain.BatchDownload, error) {
	batches := []domain.BatchDownload{}
	for rows.Next() {
		batch, err := scanBatch(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		batches = append(batches, *batch)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for i := range batches {
		items, err := r.listItems(ctx, batches[i].ID)
		if err != nil {
			return nil, err
		}
		batches[i].Items = items
	}
	return batches, nil
}

func (r *BatchRepository) listItems(ctx context.Context, batchID int64) ([]domain.BatchDownloadItem, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, batch_id, position, video_id, status, download_id, error_message, updated_at
FROM batch_download_items
WHERE batch_id=?
ORDER BY position ASC, id ASC`, batchID)
	if err != nil {
		return nil, fmt.Errorf("query batch items: %w", err)
	}
	defer rows.Close()

	items := []domain.BatchDownloadItem{}
	for rows.Next() {
		var (
			item       domain.BatchDownloadItem
			status     string
			downloadID sql.NullInt64
		)
		if err := rows.Scan(&item.ID, &item.BatchID, &item.Position, &item.VideoID, &status, &downloadID, &item.ErrorMessage, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan batch item: %w", err)
		}
		item.Status = domain.BatchItemStatus(status)
		if downloadID.Valid {
			v := downloadID.Int64
			item.DownloadID = &v
		}
		item.UpdatedAt = item.UpdatedAt.Local()
		items = append(items, item)
	}
	return items, rows.Err()
}

func scanBatch(scanner rowScanner) (*domain.BatchDownload, error) {
	var (
		batch       domain.BatchDownload
		presetID    sql.NullInt64
		status      string
		completedAt sql.NullTime
	)
	if err := scanner.Scan(&batch.ID, &batch.Name, &presetID, &status, &batch.CreatedAt, &batch.UpdatedAt, &completedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("batch: %w", repository.ErrNotFound)
		}
		return nil, fmt.Errorf("scan batch: %w", err)
	}
	batch.Status = domain.BatchStatus(status)
	if presetID.Valid {
		v := presetID.Int64
		batch.PresetID = &v
	}
	batch.CreatedAt = batch.CreatedAt.Local()
	batch.UpdatedAt = batch.UpdatedAt.Local()
	if completedAt.Valid {
		t := completedAt.Time.Local()
		batch.CompletedAt = &t
	}
	return &batch, nil
}

func nullInt64(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}
