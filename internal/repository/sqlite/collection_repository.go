package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"tubeshelf/internal/domain"
	"tubeshelf/internal/repository"
)

const createCollectionsTables = `
CREATE TABLE IF NOT EXISTS collections (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	position INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS video_collections (
	video_id INTEGER NOT NULL,
	collection_id INTEGER NOT NULL,
	added_at DATETIME NOT NULL,
	PRIMARY KEY (video_id, collection_id),
	FOREIGN KEY(video_id) REFERENCES videos(id) ON DELETE CASCADE,
	FOREIGN KEY(collection_id) REFERENCES collections(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_video_collections_collection ON video_collections(collection_id);
`

const selectCollectionColumns = `
SELECT c.id, c.name, c.description, c.position, c.created_at, c.updated_at,
	(SELECT COUNT(*) FROM video_collections vc WHERE vc.collection_id = c.id)
FROM collections c`

type CollectionRepository struct {
	db *sql.DB
}

func NewCollectionRepository(db *sql.DB) repository.CollectionRepository {
	return &CollectionRepository{db: db}
}

func (r *CollectionRepository) Init(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createCollectionsTables); err != nil {
		return fmt.Errorf("create collections tables: %w", err)
	}
	return nil
}

func (r *CollectionRepository) Create(ctx context.Context, collection *domain.Collection) (int64, error) {
	now := time.Now().UTC()
	collection.CreatedAt = now
	collection.UpdatedAt = now

	res, err := r.db.ExecContext(ctx, `
INSERT INTO collections (name, description, position, created_at, updated_at)
VALUES (?, ?, ?, ?, ?)`,
		collection.Name,
		collection.Description,
		collection.Position,
		collection.CreatedAt,
		collection.UpdatedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("insert collection: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("collection last insert id: %w", err)
	}
	collection.ID = id
	return id, nil
}

func (r *CollectionRepository) Update(ctx context.Context, collection *domain.Collection) error {
	collection.UpdatedAt = time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `
UPDATE collections
SET name=?, description=?, position=?, updated_at=?
WHERE id=?`,
		collection.Name,
		collection.Description,
		collection.Position,
		collection.UpdatedAt,
		collection.ID,
	)
	if err != nil {
		return fmt.Errorf("update collection: %w", err)
	}
	ok, err := affected(res)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("collection %d: %w", collection.ID, repository.ErrNotFound)
	}
	return nil
}

func (r *CollectionRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM collections WHERE id=?`, id)
	if err != nil {
		return fmt.Errorf("delete collection: %w", err)
	}
	ok, err := affected(res)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("collection %d: %w", id, repository.ErrNotFound)
	}
	return nil
}

func (r *CollectionRepository) Get(ctx context.Context, id int64) (*domain.Collection, error) {
	return scanCollection(r.db.QueryRowContext(ctx, selectCollectionColumns+` WHERE c.id=?`, id))
}

func (r *CollectionRepository) List(ctx context.Context) ([]domain.Collection, error) {
	rows, err := r.db.QueryContext(ctx, selectCollectionColumns+` ORDER BY c.position ASC, c.id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query collections: %w", err)
	}
	defer rows.Close()

	collections := []domain.Collection{}
	for rows.Next() {
		collection, err := scanCollection(rows)
		if err != nil {
			return nil, err
		}
		collections = append(collections, *collection)
	}
	return collections, rows.Err()
}

func (r *CollectionRepository) AddVideo(ctx context.Context, collectionID, videoID int64) error {
	_, err := r.db.ExecContext(ctx, `
INSERT OR IGNORE INTO video_collections (video_id, collection_id, added_at)
VALUES (?, ?, ?)`,
		videoID,
		collectionID,
		time.Now().UTC(),
	)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "foreign key") {
			return fmt.Errorf("collection %d or video %d: %w", collectionID, videoID, repository.ErrNotFound)
		}
		return fmt.Errorf("add video to collection: %w", err)
	}
	return nil
}

func (r *CollectionRepository) RemoveVideo(ctx context.Context, collectionID, videoID int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM video_collections WHERE collection_id=? AND video_id=?`, collectionID, videoID)
	if err != nil {
		return fmt.Errorf("remove video from collection: %w", err)
	}
	return nil
}

func (r *CollectionRepository) ListVideos(ctx context.Context, collectionID int64) ([]domain.Video, error) {
	rows, err := r.db.QueryContext(ctx, selectVideoColumns+`
JOIN video_collections vc ON vc.video_id = v.id
WHERE vc.collection_id=?
ORDER BY vc.added_at ASC, v.id ASC`, collectionID)
	if err != nil {
		return nil, fmt.Errorf("query collection videos: %w", err)
	}
	return collectVideos(rows)
}

func scanCollection(scanner rowScanner) (*domain.Collection, error) {
	var collection domain.Collection
	if err := scanner.Scan(
		&collection.ID,
		&collection.Name,
		&collection.Description,
		&collection.Position,
		&collection.CreatedAt,
		&collection.UpdatedAt,
		&collection.VideoCount,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("collection: %w", repository.ErrNotFound)
		}
		return nil, fmt.Errorf("scan collection: %w", err)
	}
	collection.CreatedAt = collection.CreatedAt.Local()
	collection.UpdatedAt = collection.UpdatedAt.Local()
	return &collection, nil
}
